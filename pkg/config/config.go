// Package config loads pipeprobe settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".pipeprobe.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PIPEPROBE_"

// Keys names the structural keys of the configuration format.
type Keys struct {
	Target     string `mapstructure:"target" yaml:"target" validate:"required"`
	Params     string `mapstructure:"params" yaml:"params" validate:"required"`
	Transforms string `mapstructure:"transforms" yaml:"transforms" validate:"required"`
}

// Settings is everything an entry point needs to extract and probe datasets.
type Settings struct {
	// Interpreter is a registry name, an executable on PATH or a path.
	Interpreter string `mapstructure:"interpreter" yaml:"interpreter"`
	// InterpretersFile is a registry of named interpreters.
	InterpretersFile string `mapstructure:"interpreters_file" yaml:"interpreters_file"`
	// Discover looks up python3 and python when no interpreter is set.
	Discover bool `mapstructure:"discover" yaml:"discover"`

	TimeoutSeconds       float64 `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
	KillGraceSeconds     float64 `mapstructure:"kill_grace_seconds" yaml:"kill_grace_seconds" validate:"gt=0"`
	CompleteGraceSeconds float64 `mapstructure:"complete_grace_seconds" yaml:"complete_grace_seconds" validate:"gte=0"`

	// SearchPaths are prepended to the interpreter's module search path.
	SearchPaths []string `mapstructure:"search_paths" yaml:"search_paths"`

	BaseDataset   string   `mapstructure:"base_dataset" yaml:"base_dataset" validate:"required"`
	SymbolIndex   string   `mapstructure:"symbol_index" yaml:"symbol_index"`
	IndexModules  []string `mapstructure:"index_modules" yaml:"index_modules"`
	Keys          Keys     `mapstructure:"keys" yaml:"keys"`
	DataRootKeys  []string `mapstructure:"data_root_keys" yaml:"data_root_keys" validate:"min=1,dive,required"`
	PreviewLength int      `mapstructure:"preview_length" yaml:"preview_length" validate:"gt=0"`

	// TensorDir receives side artifacts of snapshots; empty disables them.
	TensorDir string `mapstructure:"tensor_dir" yaml:"tensor_dir"`
	// Script replaces the embedded probe script.
	Script string `mapstructure:"script" yaml:"script"`

	// RedisAddr enables cross-process session locks.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr" validate:"omitempty,hostname_port"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Discover:             true,
		TimeoutSeconds:       120,
		KillGraceSeconds:     5,
		CompleteGraceSeconds: 5,
		BaseDataset:          topology.DefaultBaseDataset,
		SymbolIndex:          ".pipeprobe/symbols.yaml",
		Keys: Keys{
			Target:     domain.KeyTarget,
			Params:     domain.KeyParams,
			Transforms: domain.KeyTransforms,
		},
		DataRootKeys:  append([]string(nil), topology.DefaultDataRootKeys...),
		PreviewLength: topology.DefaultPreviewLength,
		LogLevel:      "info",
	}
}

// Load reads settings from path on top of the defaults, then applies
// PIPEPROBE_* environment overrides and validates the result. An empty path
// tries DefaultFile; a missing file is not an error.
func Load(path string) (Settings, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	raw := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Settings{}, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	for key, value := range fromEnv(os.Environ()) {
		raw[key] = value
	}

	s, err := Decode(raw)
	if err != nil {
		return Settings{}, err
	}
	if explicit {
		s.resolvePaths(filepath.Dir(path))
	}
	return s, s.Validate()
}

// Decode overlays raw onto the defaults. Unknown keys are rejected and
// scalar strings are converted, so environment values decode like file values.
func Decode(raw map[string]any) (Settings, error) {
	s := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(string(os.PathListSeparator)),
	})
	if err != nil {
		return Settings{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

var validate = validator.New()

// Validate checks the settings' constraints.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Timeout returns the per-run timeout.
func (s Settings) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

// KillGrace returns how long a stopped process may take to exit.
func (s Settings) KillGrace() time.Duration {
	return seconds(s.KillGraceSeconds)
}

// CompleteGrace returns how long a process may linger after completing.
func (s Settings) CompleteGrace() time.Duration {
	return seconds(s.CompleteGraceSeconds)
}

// ExtractorOptions configures a topology extractor from the settings.
func (s Settings) ExtractorOptions() []topology.Option {
	return []topology.Option{
		topology.WithBaseDataset(s.BaseDataset),
		topology.WithKeys(s.Keys.Target, s.Keys.Params, s.Keys.Transforms),
		topology.WithDataRootKeys(s.DataRootKeys...),
		topology.WithPreviewLength(s.PreviewLength),
	}
}

// resolvePaths makes file settings relative to the settings file's directory.
func (s *Settings) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	s.InterpretersFile = abs(s.InterpretersFile)
	s.SymbolIndex = abs(s.SymbolIndex)
	s.TensorDir = abs(s.TensorDir)
	s.Script = abs(s.Script)
	for i, p := range s.SearchPaths {
		s.SearchPaths[i] = abs(p)
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// fromEnv maps PIPEPROBE_TIMEOUT_SECONDS=30 to timeout_seconds: "30".
func fromEnv(environ []string) map[string]any {
	out := map[string]any{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if _, known := envKeys[name]; known {
			out[name] = value
		}
	}
	return out
}

var envKeys = map[string]struct{}{
	"interpreter":            {},
	"interpreters_file":      {},
	"discover":               {},
	"timeout_seconds":        {},
	"kill_grace_seconds":     {},
	"complete_grace_seconds": {},
	"search_paths":           {},
	"base_dataset":           {},
	"symbol_index":           {},
	"tensor_dir":             {},
	"script":                 {},
	"redis_addr":             {},
	"log_level":              {},
}
