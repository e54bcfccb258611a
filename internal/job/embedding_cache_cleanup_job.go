package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type cacheCleaner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// EmbeddingCacheCleanupJob trims persistent cache entries older than the
// retention window.
type EmbeddingCacheCleanupJob struct {
	cache         cacheCleaner
	retentionDays int
}

func NewEmbeddingCacheCleanupJob(cache cacheCleaner, retentionDays int) *EmbeddingCacheCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &EmbeddingCacheCleanupJob{cache: cache, retentionDays: retentionDays}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays).Unix()
	removed, err := j.cache.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("embedding cache cleaned", zap.Int64("removed", removed))
	}
	return nil
}
