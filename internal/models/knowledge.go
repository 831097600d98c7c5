package models

// ItemType distinguishes durable facts from actionable todos.
type ItemType string

const (
	ItemTypeFact ItemType = "fact"
	ItemTypeTodo ItemType = "todo"
)

// Bucket is the topical category of a knowledge item.
type Bucket string

const (
	BucketProjects    Bucket = "projects"
	BucketPeople      Bucket = "people"
	BucketPlans       Bucket = "plans"
	BucketPreferences Bucket = "preferences"
	BucketDecisions   Bucket = "decisions"
	BucketOther       Bucket = "other"
)

// Buckets lists every bucket in the order documents group them.
var Buckets = []Bucket{
	BucketProjects,
	BucketPeople,
	BucketPlans,
	BucketPreferences,
	BucketDecisions,
	BucketOther,
}

func (b Bucket) IsValid() bool {
	for _, v := range Buckets {
		if v == b {
			return true
		}
	}
	return false
}

// Priority is an optional urgency marker. The empty value means none.
type Priority string

const (
	PriorityNone   Priority = ""
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityNone, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Relevance is the model's (or user's) acceptance decision for an item.
type Relevance string

const (
	RelevanceRelevant    Relevance = "relevant"
	RelevanceNonrelevant Relevance = "nonrelevant"
	RelevanceUncertain   Relevance = "uncertain"
)

func (r Relevance) IsValid() bool {
	return r == RelevanceRelevant || r == RelevanceNonrelevant || r == RelevanceUncertain
}

// KnowledgeItem is one classified idea extracted from a transcript chunk.
type KnowledgeItem struct {
	ID           string     `json:"id"`
	ChunkIndex   int        `json:"chunkIndex"`
	SessionLabel string     `json:"sessionLabel"`
	CreatedAt    int64      `json:"createdAt"`
	SourcePhrase string     `json:"sourcePhrase"`
	Content      string     `json:"content"`
	Type         ItemType   `json:"type"`
	Bucket       Bucket     `json:"bucket"`
	Priority     Priority   `json:"priority,omitempty"`
	Decision     Relevance  `json:"decision"`
	Override     *Relevance `json:"override,omitempty"`
	Applied      bool       `json:"applied"`
}

// EffectiveState is the user override when present, else the model decision.
func (k *KnowledgeItem) EffectiveState() Relevance {
	if k.Override != nil {
		return *k.Override
	}
	return k.Decision
}

// IsPendingAccepted reports whether the item still needs to be folded into
// the canonical documents.
func (k *KnowledgeItem) IsPendingAccepted() bool {
	return !k.Applied && k.EffectiveState() == RelevanceRelevant
}

// KnowledgeCounts summarizes the knowledge table.
type KnowledgeCounts struct {
	Total           int `json:"total"`
	PendingAccepted int `json:"pendingAccepted"`
	Applied         int `json:"applied"`
}

// UpdateItemRequest carries user edits from the review surface.
type UpdateItemRequest struct {
	Override      *Relevance `json:"override,omitempty"`
	ClearOverride bool       `json:"clearOverride,omitempty"`
	Bucket        *Bucket    `json:"bucket,omitempty"`
}
