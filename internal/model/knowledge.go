package model

const (
	SourceConversation = "conversation"
	SourceFile         = "file"
	SourceManual       = "manual"
	SourceExtracted    = "extracted"
)

const CategoryFact = "fact"

const DefaultImportance = 0.5

// KnowledgeRecord is one retrievable unit of memory. Embedding is nil until
// computed; a record without an embedding is only reachable via keyword search.
type KnowledgeRecord struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	SourceType string    `json:"source_type"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"-"`
	Ctime      int64     `json:"ctime"`
}

func (r *KnowledgeRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

func ValidSourceType(s string) bool {
	switch s {
	case SourceConversation, SourceFile, SourceManual, SourceExtracted:
		return true
	}
	return false
}

func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SearchFilter narrows the candidate set before any scoring happens.
// Zero values mean "no constraint". Ctime bounds are unix seconds.
type SearchFilter struct {
	SourceType    string   `json:"source_type"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
	MinImportance float64  `json:"min_importance"`
	CtimeFrom     int64    `json:"date_from"`
	CtimeTo       int64    `json:"date_to"`
}

type KnowledgeStats struct {
	Total             int64            `json:"total"`
	BySourceType      map[string]int64 `json:"by_source_type"`
	ByCategory        map[string]int64 `json:"by_category"`
	WithEmbedding     int64            `json:"with_embedding"`
	EmbeddingCoverage float64          `json:"embedding_coverage"`
}
