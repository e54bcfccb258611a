package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/ai"
	"github.com/knowdhq/knowd/internal/model"
	appErr "github.com/knowdhq/knowd/internal/pkg/errors"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

// SimilarityFloor is the relevance cutoff: vector hits at or below it are
// discarded as noise.
const SimilarityFloor = 0.3

const minTokenLen = 3

// SearchStore provides the filtered candidate sets both search modes rank.
type SearchStore interface {
	ListCandidates(ctx context.Context, ownerID string, f model.SearchFilter, limit uint) ([]model.KnowledgeRecord, error)
}

type SearchService struct {
	knowledge SearchStore
	embedder  ai.IEmbedder
}

func NewSearchService(knowledge SearchStore, embedder ai.IEmbedder) *SearchService {
	return &SearchService{knowledge: knowledge, embedder: embedder}
}

// Search dispatches one of the three modes. Provider and storage failures
// degrade to an empty result set; only validation problems surface.
func (s *SearchService) Search(ctx context.Context, ownerID string, mode model.MatchMode, query string, f model.SearchFilter, limit int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, appErr.ErrInvalid
	}
	if limit <= 0 {
		return nil, appErr.ErrInvalid
	}
	var results []model.SearchResult
	var err error
	switch mode {
	case model.MatchVector:
		results, err = s.VectorSearch(ctx, ownerID, query, f, limit)
	case model.MatchKeyword:
		results, err = s.KeywordSearch(ctx, ownerID, query, f, limit)
	case model.MatchHybrid:
		results, err = s.HybridSearch(ctx, ownerID, query, f, limit)
	default:
		return nil, appErr.ErrInvalid
	}
	if err != nil {
		logutil.GetLogger(ctx).Warn("search degraded to empty result",
			zap.String("owner_id", ownerID),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		return []model.SearchResult{}, nil
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	return results, nil
}

// VectorSearch embeds the query (through the cache and budget gate) and
// ranks embedded candidates by cosine similarity. Records without an
// embedding never appear here.
func (s *SearchService) VectorSearch(ctx context.Context, ownerID, query string, f model.SearchFilter, limit int) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []model.SearchResult{}, nil
	}
	ctx = ownerctx.WithOwner(ctx, ownerID)
	queryEmb, err := s.embedder.Embed(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	candidates, err := s.knowledge.ListCandidates(ctx, ownerID, f, 0)
	if err != nil {
		return nil, err
	}
	return rankByEmbedding(queryEmb, candidates, limit), nil
}

func rankByEmbedding(queryEmb []float32, candidates []model.KnowledgeRecord, limit int) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(candidates))
	for _, rec := range candidates {
		if !rec.HasEmbedding() {
			continue
		}
		sim := cosineSimilarity(queryEmb, rec.Embedding)
		if sim <= SimilarityFloor {
			continue
		}
		results = append(results, model.SearchResult{
			Record:     rec,
			Mode:       model.MatchVector,
			Similarity: sim,
			Relevance:  sim,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Record.Ctime > results[j].Record.Ctime
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// KeywordSearch is an OR across query tokens: one matching token is enough.
// Ordering is importance only; token density does not rank higher. That
// mirrors the behavior callers depend on, though it is a likely enhancement
// target.
func (s *SearchService) KeywordSearch(ctx context.Context, ownerID, query string, f model.SearchFilter, limit int) ([]model.SearchResult, error) {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return []model.SearchResult{}, nil
	}
	candidates, err := s.knowledge.ListCandidates(ctx, ownerID, f, 0)
	if err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(candidates))
	for _, rec := range candidates {
		if !matchesAnyToken(rec, tokens) {
			continue
		}
		results = append(results, model.SearchResult{
			Record:    rec,
			Mode:      model.MatchKeyword,
			Relevance: rec.Importance,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Record.Importance != results[j].Record.Importance {
			return results[i].Record.Importance > results[j].Record.Importance
		}
		return results[i].Record.Ctime > results[j].Record.Ctime
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func tokenizeQuery(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) < minTokenLen {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

func matchesAnyToken(rec model.KnowledgeRecord, tokens []string) bool {
	title := strings.ToLower(rec.Title)
	content := strings.ToLower(rec.Content)
	for _, token := range tokens {
		if strings.Contains(title, token) || strings.Contains(content, token) {
			return true
		}
	}
	return false
}

// HybridSearch fans out to both modes concurrently, each asked for half the
// final limit, then merges. A failed sub-search only shrinks the merge
// input; the request itself never fails on provider or storage errors.
func (s *SearchService) HybridSearch(ctx context.Context, ownerID, query string, f model.SearchFilter, limit int) ([]model.SearchResult, error) {
	subLimit := (limit + 1) / 2

	var (
		wg            sync.WaitGroup
		vecRes, kwRes []model.SearchResult
		vecErr, kwErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vecRes, vecErr = s.VectorSearch(ctx, ownerID, query, f, subLimit)
	}()
	go func() {
		defer wg.Done()
		kwRes, kwErr = s.KeywordSearch(ctx, ownerID, query, f, subLimit)
	}()
	wg.Wait()

	logger := logutil.GetLogger(ctx).With(zap.String("owner_id", ownerID))
	if vecErr != nil {
		if appErr.IsBudgetExceeded(vecErr) {
			logger.Debug("vector search skipped: budget exceeded")
		} else {
			logger.Warn("vector search failed, merging keyword results only", zap.Error(vecErr))
		}
	}
	if kwErr != nil {
		logger.Warn("keyword search failed, merging vector results only", zap.Error(kwErr))
	}
	return mergeHybrid(vecRes, kwRes, limit), nil
}

// mergeHybrid dedupes by record id in vector-then-keyword order, so a
// record found by both modes keeps its similarity score. The composite
// relevance is similarity plus importance.
func mergeHybrid(vecRes, kwRes []model.SearchResult, limit int) []model.SearchResult {
	seen := make(map[string]struct{}, len(vecRes)+len(kwRes))
	merged := make([]model.SearchResult, 0, len(vecRes)+len(kwRes))
	for _, res := range append(append([]model.SearchResult{}, vecRes...), kwRes...) {
		if _, ok := seen[res.Record.ID]; ok {
			continue
		}
		seen[res.Record.ID] = struct{}{}
		res.Mode = model.MatchHybrid
		res.Relevance = res.Similarity + res.Record.Importance
		merged = append(merged, res)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Relevance != merged[j].Relevance {
			return merged[i].Relevance > merged[j].Relevance
		}
		return merged[i].Record.Ctime > merged[j].Record.Ctime
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
