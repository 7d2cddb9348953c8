package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPluginManifestDefaultsSymbol(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Qobs.toml")
	require.NoError(t, os.WriteFile(path, []byte("abiVersion = 1\n"), 0o644))

	m, err := LoadPluginManifest(path)
	require.NoError(t, err)
	require.Equal(t, "build", m.Symbol)
	require.Equal(t, 1, m.ABIVersion)
}

func TestLoadPluginManifestHonorsExplicitSymbol(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Qobs.toml")
	require.NoError(t, os.WriteFile(path, []byte("symbol = \"qobs_build\"\nabiVersion = 2\n"), 0o644))

	m, err := LoadPluginManifest(path)
	require.NoError(t, err)
	require.Equal(t, "qobs_build", m.Symbol)
}
