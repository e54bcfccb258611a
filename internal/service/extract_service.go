package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/ai"
	"github.com/knowdhq/knowd/internal/model"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

// Extraction never blocks the chat response path: a turn with nothing
// memorable, a denied budget, and a provider failure all end the same way,
// with no record and no error.
const (
	minExtractChars      = 10
	extractOutputTokens  = 512
	extractImportance    = 0.75
	noFactsMarker        = "NONE"
	extractEmbedTaskType = "RETRIEVAL_DOCUMENT"
)

type ExtractStore interface {
	Create(ctx context.Context, rec *model.KnowledgeRecord) error
}

type ExtractService struct {
	generator ai.IGenerator
	embedder  ai.IEmbedder
	knowledge ExtractStore
	budget    *BudgetService
	pricing   PriceTable
}

func NewExtractService(generator ai.IGenerator, embedder ai.IEmbedder, knowledge ExtractStore, budget *BudgetService, pricing PriceTable) *ExtractService {
	return &ExtractService{
		generator: generator,
		embedder:  embedder,
		knowledge: knowledge,
		budget:    budget,
		pricing:   pricing,
	}
}

// ExtractFromTurn distills a finished user/assistant exchange into a
// durable knowledge record. Best effort: every failure is logged and
// swallowed, and a nil return is a normal outcome.
func (s *ExtractService) ExtractFromTurn(ctx context.Context, ownerID, userMessage, assistantResponse string) *model.KnowledgeRecord {
	logger := logutil.GetLogger(ctx).With(zap.String("owner_id", ownerID))
	if strings.TrimSpace(userMessage) == "" && strings.TrimSpace(assistantResponse) == "" {
		return nil
	}
	ctx = ownerctx.WithOwner(ctx, ownerID)

	prompt := buildExtractionPrompt(userMessage, assistantResponse)
	estimate := s.pricing.EstimateCost(s.generator.ModelName(), len(prompt), extractOutputTokens)
	allowed, err := s.budget.Authorize(ctx, ownerID, estimate)
	if err != nil {
		logger.Warn("extraction skipped: budget check failed", zap.Error(err))
		return nil
	}
	if !allowed {
		logger.Debug("extraction skipped: budget exceeded")
		return nil
	}

	res, err := s.generator.Generate(ctx, prompt, ai.GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   extractOutputTokens,
	})
	if err != nil {
		logger.Warn("extraction model call failed", zap.Error(err))
		return nil
	}
	s.optional(ctx, "record_spend", func() error {
		return s.budget.RecordSpend(ctx, ownerID, "extraction", s.pricing.CostOf(s.generator.ModelName(), res.Usage))
	})

	text := strings.TrimSpace(res.Text)
	if text == noFactsMarker || len(text) <= minExtractChars {
		logger.Debug("extraction produced nothing worth storing")
		return nil
	}

	rec := &model.KnowledgeRecord{
		ID:         newID(),
		OwnerID:    ownerID,
		SourceType: model.SourceExtracted,
		Category:   model.CategoryFact,
		Title:      extractTitle(text),
		Content:    text,
		Importance: extractImportance,
		Ctime:      time.Now().Unix(),
	}
	// Missing embeddings are backfilled later by the cron job.
	s.optional(ctx, "embed", func() error {
		emb, err := s.embedder.Embed(ctx, fmt.Sprintf("%s\n%s", rec.Title, rec.Content), extractEmbedTaskType)
		if err != nil {
			return err
		}
		rec.Embedding = emb
		return nil
	})
	if !s.optional(ctx, "store", func() error { return s.knowledge.Create(ctx, rec) }) {
		return nil
	}
	logger.Info("extracted knowledge stored", zap.String("record_id", rec.ID))
	return rec
}

// optional runs a non-critical step, logging and continuing on failure.
func (s *ExtractService) optional(ctx context.Context, step string, fn func() error) bool {
	if err := fn(); err != nil {
		logutil.GetLogger(ctx).Warn("extraction step failed", zap.String("step", step), zap.Error(err))
		return false
	}
	return true
}

func buildExtractionPrompt(userMessage, assistantResponse string) string {
	return fmt.Sprintf(`You are a memory extraction assistant.
From the conversation turn below, extract durable factual statements worth remembering about the user or their world.
- Output plain factual sentences, one per line.
- Only include stable facts (preferences, biography, projects, decisions), not small talk.
- Do not add headings, bullets or explanations.
- If there is nothing worth remembering, output exactly NONE.

USER:
%s

ASSISTANT:
%s`, userMessage, assistantResponse)
}

func extractTitle(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	runes := []rune(strings.TrimSpace(line))
	if len(runes) > 80 {
		runes = runes[:80]
	}
	return string(runes)
}
