package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// InterpreterConfig describes a named interpreter. An entry names either an
// executable (Command) or a virtualenv directory (Venv) whose python is used.
type InterpreterConfig struct {
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Command     string            `yaml:"command" json:"command" validate:"required_without=Venv,excluded_with=Venv"`
	Venv        string            `yaml:"venv" json:"venv"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	PythonPath  []string          `yaml:"pythonpath" json:"pythonpath"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of interpreters.yaml
type ConfigFile struct {
	Interpreters []InterpreterConfig `yaml:"interpreters" json:"interpreters" validate:"dive"`
}

var validateRegistry = validator.New()

// LoadInterpreters reads a registry file (YAML or JSON) and returns interpreters by name.
//
// Relative commands, virtualenvs and pythonpath entries are resolved against the
// registry's directory, so a registry checked into a project works from any
// working directory. Environment values may reference ${VENV}, ${REGISTRY_DIR}
// and the inherited environment.
func LoadInterpreters(path string) (map[string]InterpreterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing registry means no named interpreters.
			return map[string]InterpreterConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read interpreter registry: %w", err)
	}

	var cfg ConfigFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse interpreter registry %s: %w", path, err)
	}
	if err := validateRegistry.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid interpreter registry %s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	registry := make(map[string]InterpreterConfig, len(cfg.Interpreters))
	for _, it := range cfg.Interpreters {
		if _, dup := registry[it.Name]; dup {
			return nil, fmt.Errorf("invalid interpreter registry %s: duplicate interpreter %q", path, it.Name)
		}
		registry[it.Name] = it.resolve(dir)
	}
	return registry, nil
}

// resolve anchors relative paths at dir and expands environment references.
func (c InterpreterConfig) resolve(dir string) InterpreterConfig {
	if c.Venv != "" {
		c.Venv = anchor(dir, c.Venv)
		c.Command = venvPython(c.Venv)
	} else if strings.ContainsRune(c.Command, '/') || strings.ContainsRune(c.Command, filepath.Separator) {
		// Bare names stay as they are and are looked up on PATH.
		c.Command = anchor(dir, c.Command)
	}

	vars := func(key string) string {
		switch key {
		case "VENV":
			return c.Venv
		case "REGISTRY_DIR":
			return dir
		}
		return os.Getenv(key)
	}
	if len(c.Environment) > 0 {
		env := make(map[string]string, len(c.Environment))
		for k, v := range c.Environment {
			env[k] = os.Expand(v, vars)
		}
		c.Environment = env
	}

	paths := make([]string, 0, len(c.PythonPath))
	for _, p := range c.PythonPath {
		paths = append(paths, anchor(dir, os.Expand(p, vars)))
	}
	c.PythonPath = paths
	return c
}

func anchor(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func venvPython(venv string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venv, "Scripts", "python.exe")
	}
	return filepath.Join(venv, "bin", "python")
}
