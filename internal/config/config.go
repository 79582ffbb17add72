// Package config loads the orchestrator configuration: config.json,
// the JSON contract shared with worker processes, and the optional
// crew.yaml role catalog layered on top of it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults applied by Load when config.json omits a field.
const (
	DefaultMaxIterations = 3
	DefaultTrunk         = "main"
	DefaultSession       = "workflow"
)

// DefaultWorkers is the implementation role set scaffolded by init.
var DefaultWorkers = []string{"backend", "frontend", "tests"}

// Config mirrors .workflow/config.json. Workers read this file too, so
// field names are part of the on-disk contract.
type Config struct {
	// MaxIterations bounds the refine loop; exceeding it escalates to
	// the operator instead of looping again.
	MaxIterations int `json:"maxIterations"`
	// Trunk is the branch feature branches are cut from.
	Trunk string `json:"trunk"`
	// Session is the tmux session workers run in.
	Session string `json:"session"`
	// Workers lists the implementation roles that must each publish a
	// completion signal before review can start.
	Workers []string `json:"workers"`
	// ReviewChecks maps check names to shell commands the reviewer is
	// asked to run. Advisory: the orchestrator never runs them itself.
	ReviewChecks map[string]string `json:"reviewChecks"`
}

// Default returns the configuration init writes.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads config.json at path and fills in defaults for anything
// omitted. A missing file is an error: config.json is created by init
// and its absence means the directory was never initialized.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Save writes cfg to path as indented JSON so operators can edit it.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills zero values with the built-in defaults.
func applyDefaults(cfg *Config) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Trunk == "" {
		cfg.Trunk = DefaultTrunk
	}
	if cfg.Session == "" {
		cfg.Session = DefaultSession
	}
	if len(cfg.Workers) == 0 {
		cfg.Workers = append([]string(nil), DefaultWorkers...)
	}
	if cfg.ReviewChecks == nil {
		cfg.ReviewChecks = map[string]string{}
	}
}

// ValidationError is a single problem found in a loaded configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports structural problems Load's defaulting cannot fix.
// Returns all errors found, empty if the config is usable.
func Validate(cfg Config) []ValidationError {
	var errs []ValidationError
	seen := map[string]bool{}
	for i, role := range cfg.Workers {
		field := fmt.Sprintf("workers[%d]", i)
		if role == "" {
			errs = append(errs, ValidationError{Field: field, Message: "role name is empty"})
			continue
		}
		if seen[role] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate role %q", role)})
		}
		seen[role] = true
		for _, reserved := range []string{"plan", "review", "compound", "publish"} {
			if role == reserved {
				errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("%q is a reserved signal name", role)})
			}
		}
	}
	for name, cmd := range cfg.ReviewChecks {
		if cmd == "" {
			errs = append(errs, ValidationError{Field: "reviewChecks." + name, Message: "command is empty"})
		}
	}
	return errs
}
