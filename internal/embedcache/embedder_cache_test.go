package embedcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/knowdhq/knowd/internal/pkg/errors"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

type countingEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func (c *countingEmbedder) ModelName() string {
	return "test-embed"
}

func TestLruEmbedder_SecondCallHitsCache(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1, 2, 3}}
	embedder := WrapLruCacheToEmbedder(provider, 16, time.Minute)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "favorite color is blue", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "favorite color is blue", "RETRIEVAL_QUERY")
	require.NoError(t, err)

	require.Equal(t, 1, provider.calls)
	require.Equal(t, first, second)
}

func TestLruEmbedder_TaskTypeSeparatesEntries(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1}}
	embedder := WrapLruCacheToEmbedder(provider, 16, time.Minute)
	ctx := context.Background()

	_, err := embedder.Embed(ctx, "same text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	_, err = embedder.Embed(ctx, "same text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)

	require.Equal(t, 2, provider.calls)
}

func TestLruEmbedder_TruncatedTextsShareEntry(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1}}
	embedder := WrapLruCacheToEmbedder(provider, 16, time.Minute)
	ctx := context.Background()

	base := strings.Repeat("x", MaxInputChars)
	_, err := embedder.Embed(ctx, base+"tail one", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	_, err = embedder.Embed(ctx, base+"a completely different tail", "RETRIEVAL_QUERY")
	require.NoError(t, err)

	// Divergence past the input ceiling is invisible to the cache key.
	require.Equal(t, 1, provider.calls)
}

func TestLruEmbedder_FailureIsNotCached(t *testing.T) {
	provider := &countingEmbedder{err: errors.New("provider down")}
	embedder := WrapLruCacheToEmbedder(provider, 16, time.Minute)
	ctx := context.Background()

	_, err := embedder.Embed(ctx, "text", "RETRIEVAL_QUERY")
	require.Error(t, err)

	provider.err = nil
	provider.vec = []float32{1}
	got, err := embedder.Embed(ctx, "text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, got)
	require.Equal(t, 2, provider.calls)
}

func TestLruEmbedder_CallersGetPrivateCopies(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1, 2, 3}}
	embedder := WrapLruCacheToEmbedder(provider, 16, time.Minute)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	first[0] = 99

	second, err := embedder.Embed(ctx, "text", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, float32(1), second[0])
}

type fakeGate struct {
	allow      bool
	authorized int
	recorded   []float64
}

func (f *fakeGate) Authorize(ctx context.Context, ownerID string, estimatedCostUSD float64) (bool, error) {
	f.authorized++
	return f.allow, nil
}

func (f *fakeGate) RecordSpend(ctx context.Context, ownerID string, kind string, costUSD float64) error {
	f.recorded = append(f.recorded, costUSD)
	return nil
}

func TestBudgetEmbedder_DeniedCallNeverReachesProvider(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1}}
	gate := &fakeGate{allow: false}
	meter := &Meter{}
	embedder := WrapBudgetToEmbedder(provider, gate, 0.0001, meter)
	ctx := ownerctx.WithOwner(context.Background(), "owner-1")

	_, err := embedder.Embed(ctx, "text", "RETRIEVAL_QUERY")

	require.ErrorIs(t, err, appErr.ErrBudgetExceeded)
	require.Zero(t, provider.calls)
	require.Zero(t, meter.Calls())
	require.Empty(t, gate.recorded)
}

func TestBudgetEmbedder_AllowedCallIsBilledAndMetered(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1}}
	gate := &fakeGate{allow: true}
	meter := &Meter{}
	embedder := WrapBudgetToEmbedder(provider, gate, 0.1, meter)
	ctx := ownerctx.WithOwner(context.Background(), "owner-1")

	text := strings.Repeat("a", 4000) // 1000 estimated tokens
	_, err := embedder.Embed(ctx, text, "RETRIEVAL_QUERY")

	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, int64(1), meter.Calls())
	require.Equal(t, 1, gate.authorized)
	require.Equal(t, []float64{0.1}, gate.recorded)
}

func TestBudgetEmbedder_NoOwnerBypassesGate(t *testing.T) {
	provider := &countingEmbedder{vec: []float32{1}}
	gate := &fakeGate{allow: false}
	embedder := WrapBudgetToEmbedder(provider, gate, 0.0001, &Meter{})

	_, err := embedder.Embed(context.Background(), "text", "RETRIEVAL_QUERY")

	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)
	require.Zero(t, gate.authorized)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("ab"))
	require.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestTruncate(t *testing.T) {
	short := "short text"
	require.Equal(t, short, Truncate(short))

	long := strings.Repeat("x", MaxInputChars+500)
	require.Len(t, Truncate(long), MaxInputChars)
}
