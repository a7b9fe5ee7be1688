package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ceremony.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[ceremony]
capacity = 3
start_time = 2026-10-18T12:00:00Z
store_path = "/var/lib/ceremony"
artifact_stores = ["file:///tmp/a", "ipfs://127.0.0.1:5001/ceremony"]
you_indices = [0, 2]
turn_timeout = "90s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), cfg.StartTime.UTC())
	assert.Equal(t, DefaultStartDelay, cfg.StartDelay)
	assert.Equal(t, "/var/lib/ceremony", cfg.StorePath)
	assert.Equal(t, []string{"file:///tmp/a", "ipfs://127.0.0.1:5001/ceremony"}, cfg.ArtifactStores)
	assert.Equal(t, []int{0, 2}, cfg.YouIndices)
	assert.Equal(t, 90*time.Second, cfg.TurnTimeout)

	now := time.Now()
	assert.True(t, cfg.ScheduledStart(now).Equal(cfg.StartTime))
}

func TestLoad_DefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[ceremony]\nstart_delay = \"1m\"\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultCapacity, cfg.Capacity)
	assert.Equal(t, DefaultStorePath, cfg.StorePath)
	assert.Equal(t, time.Minute, cfg.StartDelay)

	now := time.Now()
	assert.Equal(t, now.Add(time.Minute), cfg.ScheduledStart(now))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", "[ceremony\n"},
		{"unknown key", "[ceremony]\ncapcity = 3\n"},
		{"zero capacity", "[ceremony]\ncapacity = 0\n"},
		{"bad duration", "[ceremony]\nturn_timeout = \"soon\"\n"},
		{"index outside roster", "[ceremony]\ncapacity = 2\nyou_indices = [2]\n"},
		{"empty store path", "[ceremony]\nstore_path = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseIndices(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "0", want: []int{0}},
		{in: "1, 4,7", want: []int{1, 4, 7}},
		{in: "2,,3,", want: []int{2, 3}},
		{in: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseIndices(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
