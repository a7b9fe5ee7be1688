package flags

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruteri/setup-mpc-server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs a cli app carrying the server and ceremony flags and hands the
// parsed context to inspect.
func runApp(t *testing.T, args []string, inspect func(cCtx *cli.Context) error) error {
	t.Helper()
	flags := append(append(append([]cli.Flag{}, LogFlags...), ServerFlags...), CeremonyFlags...)
	app := &cli.App{
		Name:   "test",
		Flags:  flags,
		Action: inspect,
	}
	return app.Run(append([]string{"test"}, args...))
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", nil, "0.0.0.0:80"},
		{"listen addr", []string{"--listen-addr", "127.0.0.1:8080"}, "127.0.0.1:8080"},
		{"port overrides", []string{"--listen-addr", "127.0.0.1:8080", "--port", "9000"}, "127.0.0.1:9000"},
		{"port alone", []string{"--port", "8000"}, "0.0.0.0:8000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			err := runApp(t, tt.args, func(cCtx *cli.Context) error {
				got = ListenAddr(cCtx)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListenAddr_PortFromEnv(t *testing.T) {
	t.Setenv("PORT", "8081")
	var got string
	require.NoError(t, runApp(t, nil, func(cCtx *cli.Context) error {
		got = ListenAddr(cCtx)
		return nil
	}))
	assert.Equal(t, "0.0.0.0:8081", got)
}

func TestCeremonyConfig_Defaults(t *testing.T) {
	var cfg config.Ceremony
	require.NoError(t, runApp(t, nil, func(cCtx *cli.Context) (err error) {
		cfg, err = CeremonyConfig(cCtx)
		return err
	}))
	assert.Equal(t, config.Default(), cfg)
}

func TestCeremonyConfig_Overrides(t *testing.T) {
	t.Setenv("STORE_PATH", "/var/lib/ceremony")
	t.Setenv("YOU_INDICIES", "1,3")

	var cfg config.Ceremony
	require.NoError(t, runApp(t, []string{
		"--capacity", "10",
		"--start-time", "2030-01-02T15:04:05Z",
		"--turn-timeout", "90s",
		"--artifact-store", "file:///tmp/a",
		"--artifact-store", "ipfs://localhost:5001/ceremony",
	}, func(cCtx *cli.Context) (err error) {
		cfg, err = CeremonyConfig(cCtx)
		return err
	}))

	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC), cfg.StartTime.UTC())
	assert.Equal(t, 90*time.Second, cfg.TurnTimeout)
	assert.Equal(t, "/var/lib/ceremony", cfg.StorePath)
	assert.Equal(t, []int{1, 3}, cfg.YouIndices)
	assert.Equal(t, []string{"file:///tmp/a", "ipfs://localhost:5001/ceremony"}, cfg.ArtifactStores)
}

func TestCeremonyConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ceremony.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ceremony]
capacity = 7
store_path = "/from/file"
`), 0644))

	var cfg config.Ceremony
	require.NoError(t, runApp(t, []string{"--config", path, "--capacity", "3"}, func(cCtx *cli.Context) (err error) {
		cfg, err = CeremonyConfig(cCtx)
		return err
	}))
	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, "/from/file", cfg.StorePath)
}

func TestCeremonyConfig_Invalid(t *testing.T) {
	err := runApp(t, []string{"--you-indices", "1,x"}, func(cCtx *cli.Context) error {
		_, err := CeremonyConfig(cCtx)
		return err
	})
	assert.Error(t, err)

	err = runApp(t, []string{"--capacity=-1"}, func(cCtx *cli.Context) error {
		_, err := CeremonyConfig(cCtx)
		return err
	})
	assert.Error(t, err)
}
