package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert.Equal(t, LowerConfig{}, Default())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wgslow.yaml")
	writeFile(t, path, "enable_f16: true\nenable_subgroups: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.EnableF16)
	assert.True(t, cfg.EnableSubgroups)
	assert.False(t, cfg.EnableRayQuery)
	assert.False(t, cfg.EnableDualSourceBlending)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "enable_f16: [this is not a bool]")

	_, err := Load(path)
	require.Error(t, err)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
