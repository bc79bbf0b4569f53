package cmds

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/rephrase/pkg/coordinator"
	"github.com/go-go-golems/rephrase/pkg/history"
	"github.com/go-go-golems/rephrase/pkg/render"
)

// deltaPrinter writes the growth of one assistant turn to out as it streams.
type deltaPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	turnID  string
	printed int
}

func (p *deltaPrinter) onChange(c history.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.Turn == nil || c.Turn.Role != history.RoleAssistant {
		return
	}
	if p.turnID == "" && c.Kind == history.ChangeAppended {
		p.turnID = c.Turn.ID
	}
	if c.Turn.ID != p.turnID || c.Turn.Status == history.StatusError {
		return
	}
	if len(c.Turn.Content) > p.printed {
		_, _ = io.WriteString(p.out, c.Turn.Content[p.printed:])
		p.printed = len(c.Turn.Content)
	}
}

func NewRewriteCommand(app *App) *cobra.Command {
	var (
		styles       []string
		model        string
		instructions string
		noStream     bool
	)
	cmd := &cobra.Command{
		Use:   "rewrite [text]",
		Short: "Rewrite text in one or more styles",
		Long:  "Rewrite text in one or more styles. Without an argument the text is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 1 {
				text = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read stdin")
				}
				text = string(b)
			}

			j, err := app.OpenJournal()
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			store := history.NewStore()
			coord, err := app.NewCoordinator(store, j)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			stream := !noStream && len(styles) <= 1
			if stream {
				p := &deltaPrinter{out: out}
				defer store.Subscribe(p.onChange)()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := coord.Submit(ctx, coordinator.Submission{
				Text:                   text,
				Styles:                 styles,
				Model:                  model,
				AdditionalInstructions: instructions,
			})
			if err != nil {
				return err
			}

			if stream && res.Outcome == coordinator.OutcomeComplete {
				_, _ = fmt.Fprintln(out)
				if res.TimeToFirstToken != nil || res.TotalTime != nil {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), render.Timing(history.StatusComplete, res.TimeToFirstToken, res.TotalTime))
				}
			} else {
				if err := render.New(out, 0).History(store.Snapshot()); err != nil {
					return err
				}
			}
			if res.Outcome == coordinator.OutcomeError {
				return errors.New(res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&styles, "style", "s", nil, "Style to rewrite in, repeat for several (default \"default\")")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model to use (default from config)")
	cmd.Flags().StringVarP(&instructions, "instructions", "i", "", "Additional instructions for the rewrite")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Print the rendered history at the end instead of streaming")
	return cmd
}
