package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillMeta holds parsed metadata from a SKILL.md frontmatter.
type SkillMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Workflow    string   `yaml:"workflow"`
	Slots       []string `yaml:"slots"`
	Path        string   `yaml:"-"` // absolute path to SKILL.md
}

// ScanSkills walks each directory in dirs looking for */SKILL.md files,
// parses their YAML frontmatter and compiles the body as a prompt template.
func ScanSkills(dirs []string) ([]Skill, error) {
	var skills []Skill

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read skill dir %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			skillPath := filepath.Join(dir, entry.Name(), "SKILL.md")
			data, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}

			meta, body, err := parseFrontmatter(data)
			if err != nil {
				continue
			}

			if meta.Name == "" {
				meta.Name = entry.Name()
			}
			meta.Path = skillPath

			if meta.Description == "" {
				continue
			}

			skill, err := compile(meta, body)
			if err != nil {
				return nil, fmt.Errorf("skill %s: %w", meta.Name, err)
			}
			skills = append(skills, skill)
		}
	}

	return skills, nil
}

// parseFrontmatter extracts YAML frontmatter from a SKILL.md file and
// returns the markdown body that follows it.
func parseFrontmatter(data []byte) (SkillMeta, string, error) {
	trimmed := strings.TrimSpace(string(data))

	if !strings.HasPrefix(trimmed, "---") {
		return SkillMeta{}, "", fmt.Errorf("no frontmatter found")
	}

	rest := trimmed[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return SkillMeta{}, "", fmt.Errorf("no closing frontmatter delimiter")
	}

	var meta SkillMeta
	if err := yaml.Unmarshal([]byte(rest[:idx]), &meta); err != nil {
		return SkillMeta{}, "", fmt.Errorf("parse yaml: %w", err)
	}

	// yaml > folded scalars keep a trailing newline
	meta.Description = strings.TrimSpace(meta.Description)

	body := strings.TrimSpace(rest[idx+len("\n---"):])
	return meta, body, nil
}

func compile(meta SkillMeta, body string) (Skill, error) {
	declared := make([]Slot, 0, len(meta.Slots))
	for _, s := range meta.Slots {
		slot := Slot(strings.TrimSpace(s))
		if !slot.IsValid() {
			return Skill{}, fmt.Errorf("unknown slot %q", s)
		}
		declared = append(declared, slot)
	}
	if len(declared) == 0 {
		declared = []Slot{SlotPrompt}
	}
	if body == "" {
		body = "{{prompt}}"
	}

	tmpl, err := ParseTemplate(body, declared)
	if err != nil {
		return Skill{}, err
	}
	return Skill{
		ID:          meta.Name,
		Description: meta.Description,
		Workflow:    meta.Workflow,
		Template:    tmpl,
		Path:        meta.Path,
	}, nil
}
