package skills

import (
	"sort"
	"strings"
)

// GeneralID is the fallback skill that passes the task prompt through.
const GeneralID = "general"

// Skill is a named, templated prompt configuration, optionally bound to a
// workflow.
type Skill struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Workflow    string   `json:"workflow,omitempty"`
	Template    Template `json:"-"`
	Path        string   `json:"path,omitempty"`
}

// Registry is the set of known skills. It always contains GeneralID.
type Registry struct {
	skills map[string]Skill
}

func NewRegistry(list []Skill) *Registry {
	general, _ := ParseTemplate("{{prompt}}", []Slot{SlotPrompt})
	r := &Registry{skills: map[string]Skill{
		GeneralID: {ID: GeneralID, Description: "Carry out the task as described.", Template: general},
	}}
	for _, s := range list {
		r.skills[strings.ToLower(s.ID)] = s
	}
	return r
}

// Get looks a skill up by id, case-insensitively.
func (r *Registry) Get(id string) (Skill, bool) {
	s, ok := r.skills[strings.ToLower(strings.TrimSpace(id))]
	return s, ok
}

// Resolve returns the named skill, or the general skill when unknown.
func (r *Registry) Resolve(id string) Skill {
	if s, ok := r.Get(id); ok {
		return s
	}
	return r.skills[GeneralID]
}

// List returns every skill sorted by id.
func (r *Registry) List() []Skill {
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
