package skills

import (
	"fmt"
	"regexp"
	"strings"
)

// Slot is a named placeholder a skill template may use.
type Slot string

const (
	SlotTitle   Slot = "title"
	SlotPrompt  Slot = "prompt"
	SlotProject Slot = "project"
	SlotDate    Slot = "date"
)

// Slots is the full set of placeholders a template may reference.
var Slots = []Slot{SlotTitle, SlotPrompt, SlotProject, SlotDate}

func (s Slot) IsValid() bool {
	for _, v := range Slots {
		if v == s {
			return true
		}
	}
	return false
}

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*\}\}`)

// Template is a prompt body with {{slot}} placeholders, checked against a
// declared slot set when parsed.
type Template struct {
	body  string
	slots []Slot
}

// ParseTemplate rejects placeholders outside the declared set.
func ParseTemplate(body string, declared []Slot) (Template, error) {
	allowed := make(map[Slot]bool, len(declared))
	for _, s := range declared {
		allowed[s] = true
	}
	for _, m := range placeholder.FindAllStringSubmatch(body, -1) {
		slot := Slot(strings.ToLower(m[1]))
		if !allowed[slot] {
			return Template{}, fmt.Errorf("template uses undeclared slot %q", m[1])
		}
	}
	return Template{body: body, slots: append([]Slot(nil), declared...)}, nil
}

// Slots returns the declared slots.
func (t Template) Slots() []Slot { return t.slots }

// Values fills template slots.
type Values map[Slot]string

// Render substitutes every placeholder. Missing values render empty.
func (t Template) Render(v Values) string {
	return placeholder.ReplaceAllStringFunc(t.body, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return v[Slot(strings.ToLower(name))]
	})
}
