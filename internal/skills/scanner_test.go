package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     SkillMeta
		wantBody string
		wantErr  bool
	}{
		{
			name: "simple frontmatter",
			input: `---
name: book-travel
description: Book flights and hotels
workflow: travel
slots: [title, prompt, date]
---

Today is {{date}}. {{prompt}}
`,
			want: SkillMeta{
				Name:        "book-travel",
				Description: "Book flights and hotels",
				Workflow:    "travel",
				Slots:       []string{"title", "prompt", "date"},
			},
			wantBody: "Today is {{date}}. {{prompt}}",
		},
		{
			name: "folded scalar description",
			input: `---
name: code-fix
description: >
  Fix a bug in the bound project. Use when the user mentions
  something broken.
---
`,
			want: SkillMeta{
				Name:        "code-fix",
				Description: "Fix a bug in the bound project. Use when the user mentions something broken.",
			},
		},
		{
			name:    "no frontmatter",
			input:   "# Just a markdown file\n\nNo frontmatter here.",
			wantErr: true,
		},
		{
			name:    "no closing delimiter",
			input:   "---\nname: broken\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, body, err := parseFrontmatter([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != tt.want.Name || got.Workflow != tt.want.Workflow {
				t.Errorf("meta = %+v, want %+v", got, tt.want)
			}
			if got.Description != tt.want.Description {
				t.Errorf("description = %q, want %q", got.Description, tt.want.Description)
			}
			if len(got.Slots) != len(tt.want.Slots) {
				t.Errorf("slots = %v, want %v", got.Slots, tt.want.Slots)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	d := filepath.Join(dir, name)
	os.MkdirAll(d, 0o755)
	if err := os.WriteFile(filepath.Join(d, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill: %v", err)
	}
}

func TestScanSkills(t *testing.T) {
	dir := t.TempDir()

	writeSkill(t, dir, "book-travel", `---
name: book-travel
description: Book travel
workflow: travel
slots: [prompt, date]
---
On {{date}}: {{prompt}}
`)
	writeSkill(t, dir, "no-name", `---
description: Skill without a name
---
`)
	writeSkill(t, dir, "empty-desc", `---
name: empty-desc
description:
---
`)
	os.MkdirAll(filepath.Join(dir, "not-a-skill"), 0o755)

	skills, err := ScanSkills([]string{dir, "/nonexistent/path"})
	if err != nil {
		t.Fatalf("ScanSkills error: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}

	reg := NewRegistry(skills)
	travel, ok := reg.Get("Book-Travel")
	if !ok || travel.Workflow != "travel" || travel.Path == "" {
		t.Fatalf("unexpected skill: %+v", travel)
	}
	if got := travel.Template.Render(Values{SlotDate: "2026-10-18", SlotPrompt: "fly to Bangalore"}); got != "On 2026-10-18: fly to Bangalore" {
		t.Fatalf("unexpected render: %q", got)
	}

	fallback, ok := reg.Get("no-name")
	if !ok {
		t.Fatal("expected directory name fallback")
	}
	if got := fallback.Template.Render(Values{SlotPrompt: "do it"}); got != "do it" {
		t.Fatalf("empty body should render the prompt, got %q", got)
	}
}

func TestScanSkillsRejectsUndeclaredSlot(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "bad", `---
name: bad
description: Uses a slot it did not declare
slots: [prompt]
---
{{prompt}} for {{project}}
`)
	if _, err := ScanSkills([]string{dir}); err == nil {
		t.Fatal("expected error for undeclared slot")
	}
}

func TestRegistry_ResolveFallsBackToGeneral(t *testing.T) {
	reg := NewRegistry(nil)
	s := reg.Resolve("does-not-exist")
	if s.ID != GeneralID {
		t.Fatalf("expected general, got %s", s.ID)
	}
	if got := s.Template.Render(Values{SlotPrompt: "ship it"}); got != "ship it" {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestParseTemplate(t *testing.T) {
	if _, err := ParseTemplate("{{ nope }}", Slots); err == nil {
		t.Fatal("expected error for unknown slot")
	}
	tmpl, err := ParseTemplate("[{{ Title }}] {{prompt}}", []Slot{SlotTitle, SlotPrompt})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tmpl.Render(Values{SlotTitle: "T", SlotPrompt: "P"}); got != "[T] P" {
		t.Fatalf("unexpected render %q", got)
	}
}
