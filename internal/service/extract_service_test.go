package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knowdhq/knowd/internal/ai"
	"github.com/knowdhq/knowd/internal/model"
)

type fakeGenerator struct {
	text  string
	usage ai.Usage
	err   error
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (*ai.GenerateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResult{Text: f.text, Usage: f.usage}, nil
}

func (f *fakeGenerator) ModelName() string {
	return "fake-model"
}

type fakeExtractStore struct {
	created []*model.KnowledgeRecord
	err     error
}

func (f *fakeExtractStore) Create(ctx context.Context, rec *model.KnowledgeRecord) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, rec)
	return nil
}

func newExtractFixture(gen *fakeGenerator, emb *fakeEmbedder, store *fakeExtractStore, budgetUSD float64) (*ExtractService, *fakeBudgetStore) {
	budgetStore := newFakeBudgetStore()
	budgetStore.budgets["owner-1"] = budgetUSD
	budget := NewBudgetService(budgetStore, 5)
	budget.now = fixedClock(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	pricing := NewPriceTable(nil, ModelPrice{InputPer1KUSD: 0.001, OutputPer1KUSD: 0.002})
	return NewExtractService(gen, emb, store, budget, pricing), budgetStore
}

func TestExtractFromTurn_StoresFact(t *testing.T) {
	gen := &fakeGenerator{
		text:  "The user's favorite color is blue.\nThey live in Lisbon.",
		usage: ai.Usage{PromptTokens: 200, OutputTokens: 30},
	}
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	store := &fakeExtractStore{}
	svc, budgetStore := newExtractFixture(gen, emb, store, 10)

	rec := svc.ExtractFromTurn(context.Background(), "owner-1", "my favorite color is blue", "noted!")

	require.NotNil(t, rec)
	require.Len(t, store.created, 1)
	require.Equal(t, model.SourceExtracted, rec.SourceType)
	require.Equal(t, model.CategoryFact, rec.Category)
	require.Equal(t, 0.75, rec.Importance)
	require.Equal(t, "The user's favorite color is blue.", rec.Title)
	require.Equal(t, gen.text, rec.Content)
	require.Equal(t, []float32{0.1, 0.2}, rec.Embedding)
	require.NotEmpty(t, rec.ID)
	require.Positive(t, budgetStore.spend["owner-1|2026-08"])
}

func TestExtractFromTurn_BudgetExhaustedSkipsModelCall(t *testing.T) {
	gen := &fakeGenerator{text: "The user's favorite color is blue."}
	store := &fakeExtractStore{}
	svc, budgetStore := newExtractFixture(gen, &fakeEmbedder{}, store, 1)
	budgetStore.spend["owner-1|2026-08"] = 1

	rec := svc.ExtractFromTurn(context.Background(), "owner-1", "hello", "hi")

	require.Nil(t, rec)
	require.Zero(t, gen.calls)
	require.Empty(t, store.created)
}

func TestExtractFromTurn_EmptyTurnSkipped(t *testing.T) {
	gen := &fakeGenerator{text: "something"}
	svc, _ := newExtractFixture(gen, &fakeEmbedder{}, &fakeExtractStore{}, 10)

	rec := svc.ExtractFromTurn(context.Background(), "owner-1", "  ", "")

	require.Nil(t, rec)
	require.Zero(t, gen.calls)
}

func TestExtractFromTurn_SwallowsGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	store := &fakeExtractStore{}
	svc, _ := newExtractFixture(gen, &fakeEmbedder{}, store, 10)

	rec := svc.ExtractFromTurn(context.Background(), "owner-1", "hello", "hi")

	require.Nil(t, rec)
	require.Empty(t, store.created)
}

func TestExtractFromTurn_NothingWorthStoring(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "no facts marker", text: "NONE"},
		{name: "too short", text: "ok cool"},
		{name: "whitespace only", text: "   \n  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: tt.text}
			store := &fakeExtractStore{}
			svc, _ := newExtractFixture(gen, &fakeEmbedder{}, store, 10)

			rec := svc.ExtractFromTurn(context.Background(), "owner-1", "hello", "hi")

			require.Nil(t, rec)
			require.Empty(t, store.created)
		})
	}
}

func TestExtractFromTurn_EmbedFailureStillStores(t *testing.T) {
	gen := &fakeGenerator{text: "The user's favorite color is blue."}
	emb := &fakeEmbedder{err: errors.New("embed down")}
	store := &fakeExtractStore{}
	svc, _ := newExtractFixture(gen, emb, store, 10)

	rec := svc.ExtractFromTurn(context.Background(), "owner-1", "hello", "hi")

	require.NotNil(t, rec)
	require.Len(t, store.created, 1)
	require.Empty(t, rec.Embedding)
}

func TestExtractFromTurn_StoreFailureReturnsNil(t *testing.T) {
	gen := &fakeGenerator{text: "The user's favorite color is blue."}
	store := &fakeExtractStore{err: errors.New("db down")}
	svc, _ := newExtractFixture(gen, &fakeEmbedder{vec: []float32{1}}, store, 10)

	rec := svc.ExtractFromTurn(context.Background(), "owner-1", "hello", "hi")

	require.Nil(t, rec)
}

func TestExtractTitle(t *testing.T) {
	require.Equal(t, "first line", extractTitle("first line\nsecond line"))
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcdefghij"
	}
	require.Len(t, []rune(extractTitle(long)), 80)
}
