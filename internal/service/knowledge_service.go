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
	appErr "github.com/knowdhq/knowd/internal/pkg/errors"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

type KnowledgeStore interface {
	Create(ctx context.Context, rec *model.KnowledgeRecord) error
	Get(ctx context.Context, ownerID, id string) (*model.KnowledgeRecord, error)
	Delete(ctx context.Context, ownerID, id string) error
	Stats(ctx context.Context, ownerID string) (*model.KnowledgeStats, error)
}

// KnowledgeService is the ingestion surface: manual notes, conversation
// excerpts and file-derived records enter the corpus here.
type KnowledgeService struct {
	knowledge KnowledgeStore
	embedder  ai.IEmbedder
	activity  *ActivityService
}

func NewKnowledgeService(knowledge KnowledgeStore, embedder ai.IEmbedder, activity *ActivityService) *KnowledgeService {
	return &KnowledgeService{knowledge: knowledge, embedder: embedder, activity: activity}
}

type CreateKnowledgeParams struct {
	SourceType string
	Category   string
	Title      string
	Content    string
	Tags       []string
	Importance float64
}

// Create validates and persists a record. The embedding is a best-effort
// step: when the provider is down or the budget is exhausted the record is
// stored without a vector and the backfill job completes it later.
func (s *KnowledgeService) Create(ctx context.Context, ownerID string, params CreateKnowledgeParams) (*model.KnowledgeRecord, error) {
	if ownerID == "" || strings.TrimSpace(params.Content) == "" {
		return nil, appErr.ErrInvalid
	}
	sourceType := params.SourceType
	if sourceType == "" {
		sourceType = model.SourceManual
	}
	if !model.ValidSourceType(sourceType) {
		return nil, appErr.ErrInvalid
	}
	rec := &model.KnowledgeRecord{
		ID:         newID(),
		OwnerID:    ownerID,
		SourceType: sourceType,
		Category:   strings.TrimSpace(params.Category),
		Title:      strings.TrimSpace(params.Title),
		Content:    params.Content,
		Tags:       params.Tags,
		Importance: model.ClampImportance(params.Importance),
		Ctime:      time.Now().Unix(),
	}
	octx := ownerctx.WithOwner(ctx, ownerID)
	emb, err := s.embedder.Embed(octx, fmt.Sprintf("%s\n%s", rec.Title, rec.Content), "RETRIEVAL_DOCUMENT")
	if err != nil {
		logutil.GetLogger(ctx).Warn("record stored without embedding",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	} else {
		rec.Embedding = emb
	}
	if err := s.knowledge.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *KnowledgeService) Get(ctx context.Context, ownerID, id string) (*model.KnowledgeRecord, error) {
	if id == "" {
		return nil, appErr.ErrInvalid
	}
	return s.knowledge.Get(ctx, ownerID, id)
}

func (s *KnowledgeService) Delete(ctx context.Context, ownerID, id string) error {
	if id == "" {
		return appErr.ErrInvalid
	}
	return s.knowledge.Delete(ctx, ownerID, id)
}

type KnowledgeOverview struct {
	Stats          *model.KnowledgeStats  `json:"stats"`
	RecentActivity []model.SearchActivity `json:"recent_activity"`
}

// Overview backs the stats endpoint: corpus aggregates plus the latest
// search activity. Activity read failures degrade to an empty list.
func (s *KnowledgeService) Overview(ctx context.Context, ownerID string) (*KnowledgeOverview, error) {
	stats, err := s.knowledge.Stats(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	recent, err := s.activity.Recent(ctx, ownerID, 10)
	if err != nil {
		logutil.GetLogger(ctx).Warn("failed to load recent activity", zap.Error(err))
		recent = []model.SearchActivity{}
	}
	return &KnowledgeOverview{Stats: stats, RecentActivity: recent}, nil
}
