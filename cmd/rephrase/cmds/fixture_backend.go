package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/rephrase/pkg/fixtures"
)

func NewFixtureBackendCommand(_ *App) *cobra.Command {
	var (
		listen string
		script string
	)
	cmd := &cobra.Command{
		Use:   "fixture-backend",
		Short: "Serve a scripted rewrite backend for local testing",
		Long:  "Serve /api/rephrase, /api/styles and /api/models from a YAML script. Without a script the input is echoed once per style.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sc *fixtures.Script
			if script != "" {
				var err error
				sc, err = fixtures.LoadScript(script)
				if err != nil {
					return err
				}
			}
			server := &http.Server{
				Addr:              listen,
				Handler:           fixtures.NewServer(sc).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", listen).Str("script", script).Msg("starting fixture backend")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "addr", "localhost:5000", "Address to listen on")
	cmd.Flags().StringVar(&script, "script", "", "YAML fixture script")
	return cmd
}
