package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Role describes one worker: where its instructions go, what part of
// the tree it is asked to stay inside, and the signal it publishes
// when done. Scope is advisory text folded into the instruction; the
// orchestrator does not enforce it.
type Role struct {
	Name     string   `yaml:"name"`
	Pane     string   `yaml:"pane"`
	Scope    []string `yaml:"scope"`
	Signal   string   `yaml:"signal"`
	Template string   `yaml:"template"`
	// RefineTemplate is rendered instead of Template when the role is
	// re-dispatched to fix review findings.
	RefineTemplate string `yaml:"refineTemplate"`
}

// Crew is the optional crew.yaml catalog: per-role overrides for the
// implementation workers plus the reviewer and compound stations.
// Anything omitted is derived from config.json.
type Crew struct {
	Roles    []Role `yaml:"roles"`
	Reviewer Role   `yaml:"reviewer"`
	Compound Role   `yaml:"compound"`
}

// LoadCrew reads crew.yaml at path, layering it over the defaults
// derived from cfg. A missing file is not an error: the derived
// defaults are the crew.
func LoadCrew(path string, cfg Config) (Crew, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCrew(cfg), nil
		}
		return Crew{}, fmt.Errorf("reading crew file: %w", err)
	}
	var crew Crew
	if err := yaml.Unmarshal(data, &crew); err != nil {
		return Crew{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyCrewDefaults(&crew, cfg)
	return crew, nil
}

// DefaultCrew derives the crew entirely from config.json: one role per
// configured worker, panes named after the roles inside cfg.Session.
func DefaultCrew(cfg Config) Crew {
	var crew Crew
	for _, name := range cfg.Workers {
		crew.Roles = append(crew.Roles, Role{Name: name})
	}
	applyCrewDefaults(&crew, cfg)
	return crew
}

// Role returns the implementation role with the given name.
func (c Crew) Role(name string) (Role, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// applyCrewDefaults fills omitted role fields: signal defaults to the
// role name, pane to session:name, template to tasks/<name>.md. Roles
// listed in config.json but absent from crew.yaml are appended.
func applyCrewDefaults(crew *Crew, cfg Config) {
	have := map[string]bool{}
	for _, r := range crew.Roles {
		have[r.Name] = true
	}
	for _, name := range cfg.Workers {
		if !have[name] {
			crew.Roles = append(crew.Roles, Role{Name: name})
		}
	}
	for i := range crew.Roles {
		defaultRole(&crew.Roles[i], crew.Roles[i].Name, cfg)
	}
	defaultRole(&crew.Reviewer, "review", cfg)
	defaultRole(&crew.Compound, "compound", cfg)
}

func defaultRole(r *Role, name string, cfg Config) {
	if r.Name == "" {
		r.Name = name
	}
	if r.Signal == "" {
		r.Signal = r.Name
	}
	if r.Pane == "" {
		r.Pane = cfg.Session + ":" + r.Name
	}
	if r.Template == "" {
		r.Template = "tasks/" + r.Name + ".md"
	}
	if r.RefineTemplate == "" {
		r.RefineTemplate = "tasks/refine.md"
	}
}
