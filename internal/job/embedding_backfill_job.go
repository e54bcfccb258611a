package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/ai"
	"github.com/knowdhq/knowd/internal/model"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

type backfillStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]model.KnowledgeRecord, error)
	SetEmbedding(ctx context.Context, ownerID, id string, embedding []float32) error
}

// EmbeddingBackfillJob completes records that were stored without a vector
// because the provider was down or the owner's budget was exhausted at
// write time. Each record is billed to its own owner.
type EmbeddingBackfillJob struct {
	store    backfillStore
	embedder ai.IEmbedder
	batch    int
}

func NewEmbeddingBackfillJob(store backfillStore, embedder ai.IEmbedder, batch int) *EmbeddingBackfillJob {
	if batch <= 0 {
		batch = 50
	}
	return &EmbeddingBackfillJob{store: store, embedder: embedder, batch: batch}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	records, err := j.store.ListMissingEmbeddings(ctx, j.batch)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	var filled int
	for _, rec := range records {
		octx := ownerctx.WithOwner(ctx, rec.OwnerID)
		emb, err := j.embedder.Embed(octx, fmt.Sprintf("%s\n%s", rec.Title, rec.Content), "RETRIEVAL_DOCUMENT")
		if err != nil {
			logger.Warn("backfill embedding failed",
				zap.String("record_id", rec.ID),
				zap.String("owner_id", rec.OwnerID),
				zap.Error(err),
			)
			continue
		}
		if err := j.store.SetEmbedding(ctx, rec.OwnerID, rec.ID, emb); err != nil {
			logger.Warn("backfill save failed", zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		filled++
	}
	if filled > 0 {
		logger.Info("embedding backfill completed", zap.Int("filled", filled), zap.Int("candidates", len(records)))
	}
	return nil
}
