package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowdhq/knowd/internal/model"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

type fakeBackfillStore struct {
	missing []model.KnowledgeRecord
	saved   map[string][]float32
	saveErr map[string]error
}

func (f *fakeBackfillStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]model.KnowledgeRecord, error) {
	if limit < len(f.missing) {
		return f.missing[:limit], nil
	}
	return f.missing, nil
}

func (f *fakeBackfillStore) SetEmbedding(ctx context.Context, ownerID, id string, embedding []float32) error {
	if err := f.saveErr[id]; err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string][]float32{}
	}
	f.saved[id] = embedding
	return nil
}

type ownerAwareEmbedder struct {
	vec     []float32
	failFor string
	owners  []string
}

func (e *ownerAwareEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	owner := ownerctx.OwnerID(ctx)
	e.owners = append(e.owners, owner)
	if owner == e.failFor {
		return nil, errors.New("budget exceeded")
	}
	return e.vec, nil
}

func (e *ownerAwareEmbedder) ModelName() string {
	return "test-embed"
}

func TestEmbeddingBackfillJob_FillsMissingPerOwner(t *testing.T) {
	store := &fakeBackfillStore{missing: []model.KnowledgeRecord{
		{ID: "rec-1", OwnerID: "owner-a", Title: "t1", Content: "c1"},
		{ID: "rec-2", OwnerID: "owner-b", Title: "t2", Content: "c2"},
	}}
	emb := &ownerAwareEmbedder{vec: []float32{1, 2}}
	job := NewEmbeddingBackfillJob(store, emb, 50)

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, store.saved, 2)
	require.Equal(t, []float32{1, 2}, store.saved["rec-1"])
	// Each record is embedded on behalf of its own owner.
	require.Equal(t, []string{"owner-a", "owner-b"}, emb.owners)
}

func TestEmbeddingBackfillJob_FailedRecordDoesNotStopBatch(t *testing.T) {
	store := &fakeBackfillStore{missing: []model.KnowledgeRecord{
		{ID: "rec-1", OwnerID: "broke-owner", Title: "t1", Content: "c1"},
		{ID: "rec-2", OwnerID: "owner-b", Title: "t2", Content: "c2"},
	}}
	emb := &ownerAwareEmbedder{vec: []float32{1}, failFor: "broke-owner"}
	job := NewEmbeddingBackfillJob(store, emb, 50)

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, store.saved, 1)
	require.Contains(t, store.saved, "rec-2")
}
