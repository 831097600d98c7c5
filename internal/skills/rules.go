package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is a named tool chain that may require external connections.
type Workflow struct {
	ID                  string   `yaml:"id" json:"id"`
	Name                string   `yaml:"name" json:"name"`
	RequiredConnections []string `yaml:"required_connections" json:"requiredConnections"`
	Steps               []string `yaml:"steps" json:"steps"`
}

// AutonomyRule forces a task to run unattended when every keyword appears
// in the task text.
type AutonomyRule struct {
	Keywords    []string `yaml:"keywords" json:"keywords"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

// Matches reports whether every keyword occurs in text, case-insensitively.
func (r AutonomyRule) Matches(text string) bool {
	if len(r.Keywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range r.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || !strings.Contains(lower, k) {
			return false
		}
	}
	return true
}

// ProjectSeed registers a known project at startup.
type ProjectSeed struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Rules is the user-maintained rules.yaml.
type Rules struct {
	Autonomy    []AutonomyRule `yaml:"autonomy"`
	Connections []string       `yaml:"connections"`
	Workflows   []Workflow     `yaml:"workflows"`
	Projects    []ProjectSeed  `yaml:"projects"`
}

// LoadRules reads rules.yaml. A missing file yields empty rules.
func LoadRules(path string) (*Rules, error) {
	rules := &Rules{}
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return rules, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i, w := range rules.Workflows {
		if w.ID == "" {
			return nil, fmt.Errorf("workflow %d has no id", i)
		}
	}
	return rules, nil
}

// Workflow looks up a workflow by id.
func (r *Rules) Workflow(id string) (Workflow, bool) {
	for _, w := range r.Workflows {
		if strings.EqualFold(w.ID, id) {
			return w, true
		}
	}
	return Workflow{}, false
}

// MissingConnection returns the first required connection of w that is not
// configured, or "" when all are met.
func (r *Rules) MissingConnection(w Workflow) string {
	have := make(map[string]bool, len(r.Connections))
	for _, c := range r.Connections {
		have[strings.ToLower(strings.TrimSpace(c))] = true
	}
	for _, c := range w.RequiredConnections {
		if !have[strings.ToLower(strings.TrimSpace(c))] {
			return c
		}
	}
	return ""
}

// MatchAutonomy returns the first autonomy rule matching text.
func (r *Rules) MatchAutonomy(text string) (AutonomyRule, bool) {
	for _, rule := range r.Autonomy {
		if rule.Matches(text) {
			return rule, true
		}
	}
	return AutonomyRule{}, false
}
