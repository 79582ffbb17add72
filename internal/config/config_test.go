package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"workers": ["api"]}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.MaxIterations)
	}
	if cfg.Trunk != "main" || cfg.Session != "workflow" {
		t.Errorf("unexpected defaults: trunk=%q session=%q", cfg.Trunk, cfg.Session)
	}
	if !reflect.DeepEqual(cfg.Workers, []string{"api"}) {
		t.Errorf("Workers = %v, explicit value was overridden", cfg.Workers)
	}
	if cfg.ReviewChecks == nil {
		t.Error("ReviewChecks not defaulted to an empty map")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "config.json")); err == nil {
		t.Fatal("expected error for missing config.json")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"workers": [`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := Default()
	want.MaxIterations = 5
	want.ReviewChecks = map[string]string{"unit": "go test ./..."}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErrs int
	}{
		{"default config is valid", func(cfg *Config) {}, 0},
		{"duplicate role", func(cfg *Config) { cfg.Workers = []string{"api", "api"} }, 1},
		{"reserved role name", func(cfg *Config) { cfg.Workers = []string{"review"} }, 1},
		{"empty role name", func(cfg *Config) { cfg.Workers = []string{""} }, 1},
		{"empty check command", func(cfg *Config) { cfg.ReviewChecks = map[string]string{"lint": ""} }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if errs := Validate(cfg); len(errs) != tt.wantErrs {
				t.Errorf("Validate() returned %d errors (%v), want %d", len(errs), errs, tt.wantErrs)
			}
		})
	}
}

func TestLoadCrewMissingFileDerivesFromConfig(t *testing.T) {
	cfg := Default()
	crew, err := LoadCrew(filepath.Join(t.TempDir(), "crew.yaml"), cfg)
	if err != nil {
		t.Fatalf("LoadCrew: %v", err)
	}
	if len(crew.Roles) != 3 {
		t.Fatalf("expected 3 derived roles, got %d", len(crew.Roles))
	}
	backend, ok := crew.Role("backend")
	if !ok {
		t.Fatal("backend role missing")
	}
	if backend.Pane != "workflow:backend" {
		t.Errorf("Pane = %q", backend.Pane)
	}
	if backend.Signal != "backend" {
		t.Errorf("Signal = %q", backend.Signal)
	}
	if backend.Template != "tasks/backend.md" {
		t.Errorf("Template = %q", backend.Template)
	}
	if backend.RefineTemplate != "tasks/refine.md" {
		t.Errorf("RefineTemplate = %q", backend.RefineTemplate)
	}
	if crew.Reviewer.Signal != "review" || crew.Reviewer.Pane != "workflow:review" {
		t.Errorf("reviewer not defaulted: %+v", crew.Reviewer)
	}
	if crew.Compound.Signal != "compound" {
		t.Errorf("compound not defaulted: %+v", crew.Compound)
	}
}

func TestLoadCrewOverrides(t *testing.T) {
	cfg := Default()
	cfg.Workers = []string{"backend", "frontend"}
	path := writeFile(t, t.TempDir(), "crew.yaml", `
roles:
  - name: backend
    pane: dev:left
    scope: ["internal/server/**", "internal/store/**"]
reviewer:
  pane: dev:review
`)

	crew, err := LoadCrew(path, cfg)
	if err != nil {
		t.Fatalf("LoadCrew: %v", err)
	}
	backend, _ := crew.Role("backend")
	if backend.Pane != "dev:left" {
		t.Errorf("override lost: Pane = %q", backend.Pane)
	}
	if len(backend.Scope) != 2 {
		t.Errorf("Scope = %v", backend.Scope)
	}
	// Roles present in config.json but absent from crew.yaml are
	// appended with derived defaults.
	frontend, ok := crew.Role("frontend")
	if !ok {
		t.Fatal("frontend role not derived")
	}
	if frontend.Pane != "workflow:frontend" {
		t.Errorf("frontend Pane = %q", frontend.Pane)
	}
	if crew.Reviewer.Pane != "dev:review" || crew.Reviewer.Signal != "review" {
		t.Errorf("reviewer merge wrong: %+v", crew.Reviewer)
	}
}

func TestLoadCrewRejectsBadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "crew.yaml", "roles: [\n")
	if _, err := LoadCrew(path, Default()); err == nil {
		t.Fatal("expected parse error")
	}
}
