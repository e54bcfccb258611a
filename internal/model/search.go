package model

type MatchMode string

const (
	MatchVector  MatchMode = "vector"
	MatchKeyword MatchMode = "keyword"
	MatchHybrid  MatchMode = "hybrid"
)

func ValidMatchMode(m string) bool {
	switch MatchMode(m) {
	case MatchVector, MatchKeyword, MatchHybrid:
		return true
	}
	return false
}

// SearchResult is a transient projection of a KnowledgeRecord plus its
// computed relevance. Similarity is only meaningful for vector hits;
// keyword hits carry zero and rank by importance alone.
type SearchResult struct {
	Record     KnowledgeRecord `json:"record"`
	Mode       MatchMode       `json:"mode"`
	Similarity float64         `json:"similarity,omitempty"`
	Relevance  float64         `json:"relevance"`
}
