package knowledge

import (
	"sort"
	"strings"
	"sync"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/models"
)

// Drop reasons recorded by the tolerant parsers.
const (
	DropTooFewFields      = "too_few_fields"
	DropInvalidRelevance  = "invalid_relevance"
	DropEmptyContent      = "empty_content"
	DropMissingTag        = "missing_tag"
	DropMalformedCollapse = "malformed_collapse"
	DropUnknownKeepID     = "unknown_keep_id"
	DropNoValidDrops      = "no_valid_drops"
)

// Diagnostics counts why model output lines were dropped.
type Diagnostics struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{counts: make(map[string]int)}
}

func (d *Diagnostics) Add(reason string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.counts[reason]++
	d.mu.Unlock()
}

// Count returns the number of drops recorded for reason.
func (d *Diagnostics) Count(reason string) int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[reason]
}

// Snapshot copies the current counters.
func (d *Diagnostics) Snapshot() map[string]int {
	out := make(map[string]int)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// ClassifiedLine is one valid `relevance|bucket|type|priority|content` line.
type ClassifiedLine struct {
	Relevance    models.Relevance
	Bucket       models.Bucket
	Type         models.ItemType
	Priority     models.Priority
	Content      string
	SourcePhrase string
}

// ParseClassification parses the pipe-delimited classification format.
// Empty lines are skipped; invalid lines are dropped and counted.
func ParseClassification(text string, diag *Diagnostics) []ClassifiedLine {
	var out []ClassifiedLine
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimLeft(line, "-*• ")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 5 {
			diag.Add(DropTooFewFields)
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		rel := models.Relevance(strings.ToLower(fields[0]))
		if !rel.IsValid() {
			diag.Add(DropInvalidRelevance)
			continue
		}
		content := fields[4]
		if content == "" {
			diag.Add(DropEmptyContent)
			continue
		}

		bucket := models.Bucket(strings.ToLower(fields[1]))
		if !bucket.IsValid() {
			bucket = models.BucketOther
		}
		itemType := models.ItemTypeFact
		if strings.EqualFold(fields[2], string(models.ItemTypeTodo)) {
			itemType = models.ItemTypeTodo
		}

		cl := ClassifiedLine{
			Relevance: rel,
			Bucket:    bucket,
			Type:      itemType,
			Priority:  parsePriority(fields[3]),
			Content:   content,
		}
		if len(fields) > 5 {
			cl.SourcePhrase = strings.Join(fields[5:], "|")
		}
		out = append(out, cl)
	}
	return out
}

func parsePriority(s string) models.Priority {
	p := models.Priority(strings.ToUpper(strings.TrimSpace(s)))
	if p == "-" || !p.IsValid() {
		return models.PriorityNone
	}
	return p
}

// ExtractTag returns the text between <tag> and </tag>. Both tags must be
// present with the open tag first.
func ExtractTag(text, tag string) (string, bool) {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	end := strings.Index(text[start+len(open):], closeTag)
	if end < 0 {
		return "", false
	}
	body := text[start+len(open) : start+len(open)+end]
	return strings.TrimSpace(body), true
}

// CollapseGroup is one verified duplicate group.
type CollapseGroup struct {
	Canonical string
	KeepID    string
	DropIDs   []string
}

// ParseCollapse parses `canonical | keep-id | drop-id,drop-id` lines and
// verifies every id against known. Lines with an unknown keep-id, or with
// no surviving drop ids, are skipped. An id consumed by an earlier group is
// not reused.
func ParseCollapse(text string, known map[string]bool, diag *Diagnostics) []CollapseGroup {
	var out []CollapseGroup
	consumed := make(map[string]bool)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "-*• "))
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 3 {
			diag.Add(DropMalformedCollapse)
			continue
		}
		n := len(fields)
		canonical := strings.TrimSpace(strings.Join(fields[:n-2], "|"))
		keep := strings.TrimSpace(fields[n-2])
		if !known[keep] || consumed[keep] {
			diag.Add(DropUnknownKeepID)
			continue
		}

		var drops []string
		seen := make(map[string]bool)
		for _, id := range strings.Split(fields[n-1], ",") {
			id = strings.TrimSpace(id)
			if id == "" || id == keep || !known[id] || consumed[id] || seen[id] {
				continue
			}
			seen[id] = true
			drops = append(drops, id)
		}
		if len(drops) == 0 {
			diag.Add(DropNoValidDrops)
			continue
		}
		sort.Strings(drops)

		consumed[keep] = true
		for _, id := range drops {
			consumed[id] = true
		}
		out = append(out, CollapseGroup{Canonical: canonical, KeepID: keep, DropIDs: drops})
	}
	return out
}
