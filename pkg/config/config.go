// Package config loads rephrase settings from flags, environment and the
// config file, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/rephrase/pkg/coordinator"
	"github.com/go-go-golems/rephrase/pkg/events"
	"github.com/go-go-golems/rephrase/pkg/logging"
)

const (
	AppName   = "rephrase"
	EnvPrefix = "REPHRASE"
)

type JournalSettings struct {
	// Driver is "memory" or "sqlite".
	Driver     string `mapstructure:"driver" yaml:"driver"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxRecords int    `mapstructure:"max-records" yaml:"max-records"`
}

type Settings struct {
	BackendURL    string               `mapstructure:"backend-url" yaml:"backend-url"`
	RephrasePath  string               `mapstructure:"rephrase-path" yaml:"rephrase-path"`
	DefaultModel  string               `mapstructure:"default-model" yaml:"default-model"`
	DialTimeout   time.Duration        `mapstructure:"dial-timeout" yaml:"dial-timeout"`
	CancelOnClear bool                 `mapstructure:"cancel-on-clear" yaml:"cancel-on-clear"`
	Listen        string               `mapstructure:"listen" yaml:"listen"`
	Journal       JournalSettings      `mapstructure:"journal" yaml:"journal"`
	Redis         events.RedisSettings `mapstructure:"redis" yaml:"redis"`
	Log           logging.Settings     `mapstructure:"-" yaml:"-"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend-url", coordinator.DefaultBackendURL)
	v.SetDefault("rephrase-path", coordinator.DefaultRephrasePath)
	v.SetDefault("default-model", coordinator.DefaultModel)
	v.SetDefault("dial-timeout", coordinator.DefaultDialTimeout)
	v.SetDefault("cancel-on-clear", false)
	v.SetDefault("listen", "localhost:8080")
	v.SetDefault("journal.driver", "memory")
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.max-records", 1000)
	r := events.DefaultRedisSettings()
	v.SetDefault("redis.enabled", r.Enabled)
	v.SetDefault("redis.addr", r.Addr)
	v.SetDefault("redis.group", r.Group)
	v.SetDefault("redis.consumer", r.Consumer)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "auto")
}

// ConfigDir is $XDG_CONFIG_HOME/rephrase, or the platform equivalent.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config dir")
	}
	return filepath.Join(dir, AppName), nil
}

// InitViper prepares v for root: persistent flags, env binding, config paths.
func InitViper(v *viper.Viper, root *cobra.Command) error {
	logging.AddFlags(root)
	fs := root.PersistentFlags()
	fs.String("config", "", "Config file (default $XDG_CONFIG_HOME/rephrase/config.yaml)")
	fs.String("backend-url", coordinator.DefaultBackendURL, "Rewrite backend base URL")
	fs.String("default-model", coordinator.DefaultModel, "Model used when none is given")
	fs.Duration("dial-timeout", coordinator.DefaultDialTimeout, "Backend connect timeout")

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := ConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	return errors.Wrap(v.BindPFlags(fs), "bind persistent flags")
}

// Load reads the config file, if any, and decodes the settings. An explicit
// file from --config must exist.
func Load(v *viper.Viper) (Settings, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrapf(err, "read config %s", path)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, errors.Wrap(err, "read config")
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode config")
	}
	s.Log = logging.SettingsFromViper(v)
	return s, s.Validate()
}

func (s Settings) Validate() error {
	if s.BackendURL == "" {
		return errors.New("backend-url is empty")
	}
	switch s.Journal.Driver {
	case "", "memory":
	case "sqlite":
		if s.Journal.Path == "" {
			return errors.New("journal.path is required for the sqlite journal")
		}
	default:
		return errors.Errorf("unknown journal driver %q", s.Journal.Driver)
	}
	return nil
}

// CoordinatorOptions maps the settings onto coordinator options.
func (s Settings) CoordinatorOptions() []coordinator.Option {
	opts := []coordinator.Option{
		coordinator.WithDefaultModel(s.DefaultModel),
		coordinator.WithCancelOnClear(s.CancelOnClear),
	}
	if s.DialTimeout > 0 {
		opts = append(opts, coordinator.WithDialTimeout(s.DialTimeout))
	}
	if s.RephrasePath != "" {
		opts = append(opts, coordinator.WithRephrasePath(s.RephrasePath))
	}
	return opts
}
