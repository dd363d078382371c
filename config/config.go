// Package config holds the lowering session's optional configuration,
// loaded from a YAML file so the CLI (and tests) can toggle WGSL
// extensions without editing shader source -- mirroring what WGSL's own
// `enable`/`requires` directives do inside a shader, but as an operator
// knob for the whole compilation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LowerConfig controls which optional WGSL language extensions the
// lowering pass accepts.
type LowerConfig struct {
	// EnableF16 allows f16 scalar/vector/matrix types and arithmetic.
	EnableF16 bool `yaml:"enable_f16"`
	// EnableSubgroups allows subgroup built-in functions and statements.
	EnableSubgroups bool `yaml:"enable_subgroups"`
	// EnableRayQuery allows ray_query/acceleration_structure types and
	// their built-in functions.
	EnableRayQuery bool `yaml:"enable_ray_query"`
	// EnableDualSourceBlending allows the @blend_src attribute.
	EnableDualSourceBlending bool `yaml:"enable_dual_source_blending"`
}

// Default returns the configuration a bare `wgslowc` invocation runs
// with: no optional extension enabled, matching a shader with no
// `enable` directives.
func Default() LowerConfig {
	return LowerConfig{}
}

// Load reads a LowerConfig from a YAML file at path.
func Load(path string) (LowerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LowerConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return LowerConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
