package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) (*viper.Viper, *cobra.Command) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	v := viper.New()
	root := &cobra.Command{Use: "rephrase"}
	require.NoError(t, InitViper(v, root))
	return v, root
}

func TestLoad_Defaults(t *testing.T) {
	v, _ := newViper(t)
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000", s.BackendURL)
	require.Equal(t, "gpt-4.1", s.DefaultModel)
	require.Equal(t, "memory", s.Journal.Driver)
	require.Equal(t, "localhost:6379", s.Redis.Addr)
	require.Equal(t, "info", s.Log.Level)
	require.Len(t, s.CoordinatorOptions(), 4)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	v, root := newViper(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend-url: http://file:1
default-model: from-file
dial-timeout: 3s
journal:
  driver: sqlite
  path: /tmp/j.db
redis:
  enabled: true
  addr: redis:6379
`), 0o600))
	t.Setenv("REPHRASE_DEFAULT_MODEL", "from-env")
	require.NoError(t, root.PersistentFlags().Set("config", path))
	require.NoError(t, root.PersistentFlags().Set("backend-url", "http://flag:2"))

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "http://flag:2", s.BackendURL)
	require.Equal(t, "from-env", s.DefaultModel)
	require.Equal(t, 3*time.Second, s.DialTimeout)
	require.Equal(t, "sqlite", s.Journal.Driver)
	require.True(t, s.Redis.Enabled)
	require.Equal(t, "redis:6379", s.Redis.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	v, root := newViper(t)
	require.NoError(t, root.PersistentFlags().Set("config", filepath.Join(t.TempDir(), "nope.yaml")))
	_, err := Load(v)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.Error(t, Settings{}.Validate())
	require.Error(t, Settings{BackendURL: "x", Journal: JournalSettings{Driver: "sqlite"}}.Validate())
	require.Error(t, Settings{BackendURL: "x", Journal: JournalSettings{Driver: "mongo"}}.Validate())
	require.NoError(t, Settings{BackendURL: "x"}.Validate())
}
