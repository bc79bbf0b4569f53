package cmds

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/rephrase/pkg/config"
	"github.com/go-go-golems/rephrase/pkg/coordinator"
	"github.com/go-go-golems/rephrase/pkg/history"
	"github.com/go-go-golems/rephrase/pkg/journal"
	"github.com/go-go-golems/rephrase/pkg/logging"
	"github.com/go-go-golems/rephrase/pkg/tokens"
)

// App carries the settings shared by all commands.
type App struct {
	v        *viper.Viper
	Settings config.Settings
}

func NewApp(v *viper.Viper) *App {
	return &App{v: v}
}

// Init binds the command's local flags, loads settings and sets up logging.
func (a *App) Init(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "bind flags")
	}
	s, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := logging.InitLogger(s.Log); err != nil {
		return err
	}
	a.Settings = s
	log.Debug().Str("component", "cli").Str("backend_url", s.BackendURL).Str("command", cmd.Name()).Msg("settings loaded")
	return nil
}

func (a *App) OpenJournal() (journal.Journal, error) {
	j := a.Settings.Journal
	switch j.Driver {
	case "sqlite":
		dsn, err := journal.SQLiteDSNForFile(j.Path)
		if err != nil {
			return nil, err
		}
		return journal.NewSQLiteJournal(dsn)
	default:
		return journal.NewInMemoryJournal(j.MaxRecords), nil
	}
}

func (a *App) NewCoordinator(store *history.Store, j journal.Journal) (*coordinator.Coordinator, error) {
	counter := tokens.NewTiktoken(tokens.DefaultEncoding)
	counter.Warm()
	opts := append(a.Settings.CoordinatorOptions(),
		coordinator.WithJournal(j),
		coordinator.WithTokenCounter(counter),
	)
	return coordinator.New(store, a.Settings.BackendURL, opts...)
}
