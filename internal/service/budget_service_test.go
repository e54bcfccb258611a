package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knowdhq/knowd/internal/model"
)

type fakeBudgetStore struct {
	budgets map[string]float64
	spend   map[string]float64
	alerts  map[string]int
}

func newFakeBudgetStore() *fakeBudgetStore {
	return &fakeBudgetStore{
		budgets: map[string]float64{},
		spend:   map[string]float64{},
		alerts:  map[string]int{},
	}
}

func (f *fakeBudgetStore) GetMonthlyBudget(ctx context.Context, ownerID string) (float64, bool, error) {
	budget, ok := f.budgets[ownerID]
	return budget, ok, nil
}

func (f *fakeBudgetStore) SetMonthlyBudget(ctx context.Context, ownerID string, budgetUSD float64, mtime int64) error {
	f.budgets[ownerID] = budgetUSD
	return nil
}

func (f *fakeBudgetStore) AddSpend(ctx context.Context, ownerID, month, kind string, costUSD float64, ctime int64) error {
	f.spend[ownerID+"|"+month] += costUSD
	return nil
}

func (f *fakeBudgetStore) MonthSpend(ctx context.Context, ownerID, month string) (float64, error) {
	return f.spend[ownerID+"|"+month], nil
}

func (f *fakeBudgetStore) TryMarkAlert(ctx context.Context, ownerID, month string, thresholdPct int, ctime int64) (bool, error) {
	key := ownerID + "|" + month + "|" + strconv.Itoa(thresholdPct)
	f.alerts[key]++
	return f.alerts[key] == 1, nil
}

func (f *fakeBudgetStore) alertCount() int {
	total := 0
	for _, n := range f.alerts {
		total += n
	}
	return total
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBudgetService_AuthorizeUntilExhausted(t *testing.T) {
	store := newFakeBudgetStore()
	svc := NewBudgetService(store, 5)
	svc.now = fixedClock(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	allowed, err := svc.Authorize(ctx, "owner-1", 0.01)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, svc.RecordSpend(ctx, "owner-1", "extraction", 4.99))
	// Still strictly below budget: the next call is admitted even though it
	// may overshoot.
	allowed, err = svc.Authorize(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, svc.RecordSpend(ctx, "owner-1", "extraction", 0.01))
	allowed, err = svc.Authorize(ctx, "owner-1", 0.0001)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestBudgetService_StateDerivation(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		budget float64
		spend  float64
		want   string
	}{
		{name: "fresh month", budget: 10, spend: 0, want: model.BudgetUnder},
		{name: "below warning", budget: 10, spend: 7.99, want: model.BudgetUnder},
		{name: "at warning", budget: 10, spend: 8, want: model.BudgetNearLimit},
		{name: "exhausted", budget: 10, spend: 10, want: model.BudgetOver},
		{name: "past exhausted", budget: 10, spend: 12, want: model.BudgetOver},
		{name: "zero budget disables gating", budget: 0, spend: 99, want: model.BudgetUnder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeBudgetStore()
			store.budgets["owner-1"] = tt.budget
			store.spend["owner-1|2026-08"] = tt.spend
			svc := NewBudgetService(store, 5)
			svc.now = fixedClock(now)

			state, err := svc.State(context.Background(), "owner-1")
			require.NoError(t, err)
			require.Equal(t, tt.want, state.State)
			require.Equal(t, "2026-08", state.Month)
			require.Equal(t, tt.spend, state.CurrentSpendUSD)
		})
	}
}

func TestBudgetService_DefaultBudgetWhenUnset(t *testing.T) {
	store := newFakeBudgetStore()
	svc := NewBudgetService(store, 3.5)
	svc.now = fixedClock(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))

	state, err := svc.State(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, 3.5, state.MonthlyBudgetUSD)
}

func TestBudgetService_AlertsFireOncePerMonth(t *testing.T) {
	store := newFakeBudgetStore()
	store.budgets["owner-1"] = 10
	svc := NewBudgetService(store, 5)
	svc.now = fixedClock(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, svc.RecordSpend(ctx, "owner-1", "embedding", 8.5))
	require.Len(t, store.alerts, 1) // 80% marker only

	require.NoError(t, svc.RecordSpend(ctx, "owner-1", "embedding", 2))
	require.Len(t, store.alerts, 2) // 80% and 100% markers

	// Repeated spend re-checks the markers but each threshold stays one-shot.
	require.NoError(t, svc.RecordSpend(ctx, "owner-1", "embedding", 1))
	require.Len(t, store.alerts, 2)
}

func TestBudgetService_AlertsResetAtMonthRollover(t *testing.T) {
	store := newFakeBudgetStore()
	store.budgets["owner-1"] = 10
	svc := NewBudgetService(store, 5)
	ctx := context.Background()

	svc.now = fixedClock(time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, svc.RecordSpend(ctx, "owner-1", "extraction", 12))

	svc.now = fixedClock(time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC))
	allowed, err := svc.Authorize(ctx, "owner-1", 0.01)
	require.NoError(t, err)
	require.True(t, allowed, "new month starts with a clean ledger")
}

func TestBudgetService_RecordSpendSkipsNonPositive(t *testing.T) {
	store := newFakeBudgetStore()
	svc := NewBudgetService(store, 5)

	require.NoError(t, svc.RecordSpend(context.Background(), "owner-1", "embedding", 0))
	require.Empty(t, store.spend)
	require.Zero(t, store.alertCount())
}
