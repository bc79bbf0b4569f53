package cmds

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/rephrase/pkg/render"
)

func NewCyclesCommand(app *App) *cobra.Command {
	var (
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List recorded rewrite cycles from the journal",
		Long:  "List recorded rewrite cycles. Only the sqlite journal keeps cycles across runs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := app.OpenJournal()
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			recs, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output != "table" {
				return printAs(cmd.OutOrStdout(), output, recs)
			}
			return render.New(cmd.OutOrStdout(), 0).Cycles(recs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of cycles to show")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}
