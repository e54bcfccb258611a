package embedcache

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/knowdhq/knowd/internal/ai"
	appErr "github.com/knowdhq/knowd/internal/pkg/errors"
	"github.com/knowdhq/knowd/internal/pkg/ownerctx"
)

// Gate is the budget admission surface. Authorize runs before the provider
// call, RecordSpend after it with the settled amount. The sequence is not
// atomic across the call; concurrent requests can overshoot the budget by
// one call's worth, which is an accepted soft limit.
type Gate interface {
	Authorize(ctx context.Context, ownerID string, estimatedCostUSD float64) (bool, error)
	RecordSpend(ctx context.Context, ownerID string, kind string, costUSD float64) error
}

// WrapBudgetToEmbedder sits below the cache layers so only true provider
// calls are billed: cache hits never reach it. The owner is carried in ctx.
func WrapBudgetToEmbedder(e ai.IEmbedder, gate Gate, pricePer1KTokensUSD float64, meter *Meter) ai.IEmbedder {
	if e == nil || gate == nil {
		return e
	}
	return &budgetEmbedder{next: e, gate: gate, price: pricePer1KTokensUSD, meter: meter}
}

type budgetEmbedder struct {
	next  ai.IEmbedder
	gate  Gate
	price float64
	meter *Meter
}

func (b *budgetEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	text = Truncate(text)
	owner := ownerctx.OwnerID(ctx)
	cost := EstimateCost(text, b.price)
	if owner != "" {
		allowed, err := b.gate.Authorize(ctx, owner, cost)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, appErr.ErrBudgetExceeded
		}
	}
	res, err := b.next.Embed(ctx, text, taskType)
	b.meter.Inc()
	if err != nil {
		return nil, err
	}
	if owner != "" {
		if serr := b.gate.RecordSpend(ctx, owner, "embedding", cost); serr != nil {
			logutil.GetLogger(ctx).Warn("failed to record embedding spend", zap.Error(serr))
		}
	}
	return res, nil
}

func (b *budgetEmbedder) ModelName() string {
	if b == nil || b.next == nil {
		return ""
	}
	return b.next.ModelName()
}

// EstimateTokens is the usual rough chars/4 heuristic. Embedding APIs do
// not report usage, so the estimate is also the settled amount.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

func EstimateCost(text string, pricePer1KTokensUSD float64) float64 {
	return float64(EstimateTokens(text)) / 1000 * pricePer1KTokensUSD
}
