package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "millisecond", cfg.Root)
	assert.Equal(t, 10, cfg.PollMS)
	assert.Len(t, cfg.Stages, 3)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
root: tick
poll_ms: 5
stages:
  - name: slot
    scale: 16
  - name: frame
    scale: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tick", cfg.Root)
	assert.Equal(t, 5, cfg.PollMS)
	assert.Equal(t, []StageConfig{{Name: "slot", Scale: 16}, {Name: "frame", Scale: 4}}, cfg.Stages)
}

func TestLoadClamps(t *testing.T) {
	cfg, err := Load(writeConfig(t, "root: \"\"\npoll_ms: -3\n"))
	require.NoError(t, err)
	assert.Equal(t, "millisecond", cfg.Root)
	assert.Equal(t, 10, cfg.PollMS)

	cfg, err = Load(writeConfig(t, "poll_ms: 1000000\nstages:\n  - name: tick\n    scale: 65535\n"))
	require.NoError(t, err)
	assert.Equal(t, maxPollMS, cfg.PollMS)
}

func TestLoadClampsPollToFinestStage(t *testing.T) {
	cfg, err := Load(writeConfig(t, "poll_ms: 1000\n"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxStep())
	assert.Equal(t, 100, cfg.PollMS)

	cfg, err = Load(writeConfig(t, `
poll_ms: 40
stages:
  - name: slot
    scale: 16
`))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.PollMS)

	cfg, err = Load(writeConfig(t, "poll_ms: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PollMS)
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "stages: [\n"))
	assert.Error(t, err)
}
