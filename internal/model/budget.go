package model

const (
	BudgetUnder     = "under_budget"
	BudgetNearLimit = "near_limit"
	BudgetOver      = "over_budget"
)

const (
	AlertThresholdNear = 80
	AlertThresholdOver = 100
)

// BudgetState is re-derived from the month's spend ledger on every check,
// never cached across requests.
type BudgetState struct {
	OwnerID          string  `json:"owner_id"`
	Month            string  `json:"month"`
	MonthlyBudgetUSD float64 `json:"monthly_budget_usd"`
	CurrentSpendUSD  float64 `json:"current_spend_usd"`
	State            string  `json:"state"`
}

// SpendEntry is one row of the append-only spend ledger.
type SpendEntry struct {
	OwnerID string  `json:"owner_id"`
	Month   string  `json:"month"`
	Kind    string  `json:"kind"`
	CostUSD float64 `json:"cost_usd"`
	Ctime   int64   `json:"ctime"`
}
