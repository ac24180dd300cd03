package providers

import (
	"math"
	"strings"
)

// ModelPricing is USD per 1M tokens. The chat API reports usage but not
// cost, so spend is computed locally from this table.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

var modelPricing = map[string]ModelPricing{
	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":     {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini": {
		InputPer1M: 0.40, OutputPer1M: 1.60,
	},
	"gpt-4.1-nano": {InputPer1M: 0.10, OutputPer1M: 0.40},
}

// defaultPricing covers unknown models so spend never silently reads zero.
var defaultPricing = ModelPricing{InputPer1M: 2.50, OutputPer1M: 10.00}

// PricingFor returns the per-token pricing for a model. Versioned model
// names fall back to their base model's entry.
func PricingFor(model string) ModelPricing {
	model = strings.ToLower(strings.TrimSpace(model))
	if p, ok := modelPricing[model]; ok {
		return p
	}
	for name, p := range modelPricing {
		if strings.HasPrefix(model, name+"-") {
			return p
		}
	}
	return defaultPricing
}

// CostUSD computes the dollar cost of a call from its token usage.
func CostUSD(model string, promptTokens, completionTokens int) float64 {
	p := PricingFor(model)
	return float64(promptTokens)*(p.InputPer1M/1_000_000.0) +
		float64(completionTokens)*(p.OutputPer1M/1_000_000.0)
}

// EstimateTextTokens approximates the token count of a text block. Used by
// the selector to budget prompts before the real usage comes back.
func EstimateTextTokens(text string) int {
	runes := len([]rune(strings.TrimSpace(text)))
	if runes == 0 {
		return 0
	}
	return int(math.Ceil(float64(runes) / 4.0))
}
