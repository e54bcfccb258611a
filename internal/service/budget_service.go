package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/model"
)

// BudgetStore is the persistence surface the gate needs: settings, a
// month-keyed spend ledger, and one-shot alert markers.
type BudgetStore interface {
	GetMonthlyBudget(ctx context.Context, ownerID string) (float64, bool, error)
	SetMonthlyBudget(ctx context.Context, ownerID string, budgetUSD float64, mtime int64) error
	AddSpend(ctx context.Context, ownerID, month, kind string, costUSD float64, ctime int64) error
	MonthSpend(ctx context.Context, ownerID, month string) (float64, error)
	TryMarkAlert(ctx context.Context, ownerID, month string, thresholdPct int, ctime int64) (bool, error)
}

// BudgetService is the admission gate in front of every paid model call.
// State is re-derived from the ledger on each check so concurrent writers
// are always visible; authorize -> call -> recordSpend is deliberately not
// atomic across the external call, so concurrent requests can overshoot the
// budget by one call's worth. Accepted soft limit.
type BudgetService struct {
	store            BudgetStore
	defaultBudgetUSD float64
	now              func() time.Time
}

func NewBudgetService(store BudgetStore, defaultBudgetUSD float64) *BudgetService {
	return &BudgetService{
		store:            store,
		defaultBudgetUSD: defaultBudgetUSD,
		now:              time.Now,
	}
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (s *BudgetService) monthlyBudget(ctx context.Context, ownerID string) (float64, error) {
	budget, ok, err := s.store.GetMonthlyBudget(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.defaultBudgetUSD, nil
	}
	return budget, nil
}

// State derives the owner's current position for the running month.
// A budget <= 0 disables gating entirely.
func (s *BudgetService) State(ctx context.Context, ownerID string) (*model.BudgetState, error) {
	month := monthKey(s.now())
	budget, err := s.monthlyBudget(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	spend, err := s.store.MonthSpend(ctx, ownerID, month)
	if err != nil {
		return nil, err
	}
	state := model.BudgetUnder
	if budget > 0 {
		switch {
		case spend >= budget:
			state = model.BudgetOver
		case spend >= budget*float64(model.AlertThresholdNear)/100:
			state = model.BudgetNearLimit
		}
	}
	return &model.BudgetState{
		OwnerID:          ownerID,
		Month:            month,
		MonthlyBudgetUSD: budget,
		CurrentSpendUSD:  spend,
		State:            state,
	}, nil
}

// Authorize admits a paid call while the month's spend is still below
// budget. The estimate is logged for attribution but does not tighten the
// decision: a call that pushes past the ceiling is accepted once.
func (s *BudgetService) Authorize(ctx context.Context, ownerID string, estimatedCostUSD float64) (bool, error) {
	state, err := s.State(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if state.State == model.BudgetOver {
		logutil.GetLogger(ctx).Debug("budget gate denied paid call",
			zap.String("owner_id", ownerID),
			zap.Float64("estimated_cost_usd", estimatedCostUSD),
			zap.Float64("spend_usd", state.CurrentSpendUSD),
			zap.Float64("budget_usd", state.MonthlyBudgetUSD),
		)
		return false, nil
	}
	return true, nil
}

// RecordSpend appends the settled cost of a completed call and re-checks
// the alert thresholds.
func (s *BudgetService) RecordSpend(ctx context.Context, ownerID, kind string, costUSD float64) error {
	if costUSD <= 0 {
		return nil
	}
	now := s.now()
	if err := s.store.AddSpend(ctx, ownerID, monthKey(now), kind, costUSD, now.Unix()); err != nil {
		return err
	}
	s.CheckThresholds(ctx, ownerID)
	return nil
}

// CheckThresholds fires the 80% and 100% alerts at most once per owner per
// calendar month. The marker rows reset naturally at month rollover.
func (s *BudgetService) CheckThresholds(ctx context.Context, ownerID string) {
	logger := logutil.GetLogger(ctx).With(zap.String("owner_id", ownerID))
	state, err := s.State(ctx, ownerID)
	if err != nil {
		logger.Warn("budget threshold check failed", zap.Error(err))
		return
	}
	if state.MonthlyBudgetUSD <= 0 {
		return
	}
	fire := func(pct int, msg string) {
		fired, err := s.store.TryMarkAlert(ctx, ownerID, state.Month, pct, s.now().Unix())
		if err != nil {
			logger.Warn("budget alert marker failed", zap.Int("threshold_pct", pct), zap.Error(err))
			return
		}
		if fired {
			logger.Warn(msg,
				zap.Int("threshold_pct", pct),
				zap.Float64("spend_usd", state.CurrentSpendUSD),
				zap.Float64("budget_usd", state.MonthlyBudgetUSD),
			)
		}
	}
	switch state.State {
	case model.BudgetOver:
		fire(model.AlertThresholdNear, "monthly ai budget near limit")
		fire(model.AlertThresholdOver, "monthly ai budget exhausted")
	case model.BudgetNearLimit:
		fire(model.AlertThresholdNear, "monthly ai budget near limit")
	}
}

func (s *BudgetService) SetMonthlyBudget(ctx context.Context, ownerID string, budgetUSD float64) error {
	return s.store.SetMonthlyBudget(ctx, ownerID, budgetUSD, s.now().Unix())
}
