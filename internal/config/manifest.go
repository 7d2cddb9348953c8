package config

import (
	"os"

	"github.com/modbuild/modbuild/internal/errs"
	"github.com/pelletier/go-toml/v2"
)

// PluginManifest describes a loadable build script's own metadata —
// the handful of settings the dev build-script ABI (spec §6) needs
// before the core ever calls into the compiled plugin: which symbol to
// load, and what ABI version it was built against. Kept as TOML, the
// same format the teacher's plugin manifest uses, distinct from the
// project description's JSON.
type PluginManifest struct {
	Symbol     string `toml:"symbol"`
	ABIVersion int    `toml:"abiVersion"`
}

// LoadPluginManifest reads a Qobs.toml-shaped manifest sitting alongside
// a dev.buildFile.
func LoadPluginManifest(path string) (*PluginManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Detail: "reading plugin manifest " + path, Err: err}
	}

	var m PluginManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &errs.ConfigError{Detail: "parsing plugin manifest " + path, Err: err}
	}
	if m.Symbol == "" {
		m.Symbol = "build"
	}
	return &m, nil
}
