package service

import "github.com/knowdhq/knowd/internal/ai"

// ModelPrice is USD per 1K tokens, split by direction the way every
// provider bills completions.
type ModelPrice struct {
	InputPer1KUSD  float64 `json:"input_per_1k_usd"`
	OutputPer1KUSD float64 `json:"output_per_1k_usd"`
}

type PriceTable struct {
	Models  map[string]ModelPrice
	Default ModelPrice
}

func NewPriceTable(models map[string]ModelPrice, fallback ModelPrice) PriceTable {
	if models == nil {
		models = map[string]ModelPrice{}
	}
	return PriceTable{Models: models, Default: fallback}
}

func (t PriceTable) price(model string) ModelPrice {
	if p, ok := t.Models[model]; ok {
		return p
	}
	return t.Default
}

// CostOf settles a completion from measured token usage.
func (t PriceTable) CostOf(model string, usage ai.Usage) float64 {
	p := t.price(model)
	return float64(usage.PromptTokens)/1000*p.InputPer1KUSD +
		float64(usage.OutputTokens)/1000*p.OutputPer1KUSD
}

// EstimateCost prices a prompt before the call using the chars/4 heuristic,
// assuming the output ceiling is reached.
func (t PriceTable) EstimateCost(model string, promptChars, maxOutputTokens int) float64 {
	p := t.price(model)
	promptTokens := promptChars / 4
	return float64(promptTokens)/1000*p.InputPer1KUSD +
		float64(maxOutputTokens)/1000*p.OutputPer1KUSD
}
