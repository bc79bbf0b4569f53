package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/rephrase/pkg/events"
	"github.com/go-go-golems/rephrase/pkg/history"
	"github.com/go-go-golems/rephrase/pkg/webui"
)

func NewServeCommand(app *App) *cobra.Command {
	var (
		redisEnabled bool
		redisAddr    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rewrite history over HTTP and websockets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := app.Settings
			if cmd.Flags().Changed("redis-enabled") {
				s.Redis.Enabled = redisEnabled
			}
			if cmd.Flags().Changed("redis-addr") {
				s.Redis.Addr = redisAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

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

			bus, err := events.BuildBus(s.Redis)
			if err != nil {
				return errors.Wrap(err, "build event bus")
			}
			defer func() { _ = bus.Close() }()
			if err := bus.EnsureGroupAtTail(ctx, events.TopicHistory); err != nil {
				log.Warn().Err(err).Str("component", "serve").Msg("could not create redis consumer group")
			}

			srvCtx, srvCancel := context.WithCancel(ctx)
			defer srvCancel()
			ui, err := webui.NewServer(srvCtx, coord, webui.WithJournal(j))
			if err != nil {
				return err
			}
			detach := events.NewHistoryPublisher(bus.Publisher, events.TopicHistory).Attach(store)
			defer detach()
			fwd := events.NewForwarder(events.TopicHistory, bus.Subscriber, ui.OnEnvelope)

			server := &http.Server{
				Addr:              s.Listen,
				Handler:           ui.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, egCtx := errgroup.WithContext(srvCtx)
			eg.Go(func() error {
				return fwd.Run(egCtx)
			})
			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				ui.Pool().CloseAll()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("server shutdown error")
					return err
				}
				return nil
			})
			eg.Go(func() error {
				log.Info().Str("addr", s.Listen).Str("backend_url", s.BackendURL).Bool("redis", bus.RedisEnabled()).Msg("starting rephrase server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("server listen error")
					srvCancel()
					return err
				}
				return nil
			})
			return eg.Wait()
		},
	}
	cmd.Flags().String("listen", "localhost:8080", "Address to listen on")
	cmd.Flags().BoolVar(&redisEnabled, "redis-enabled", false, "Carry history changes over Redis Streams")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address host:port")
	cmd.Flags().Bool("cancel-on-clear", false, "Cancel the in-flight request when the history is cleared")
	return cmd
}
