package quality

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

var defaultExplanations = map[model.AnomalyType]string{
	model.AnomalyDuplicate:        "This entry looks like a duplicate of another one. Check that the same source was not entered twice.",
	model.AnomalyOutlier:          "This value differs significantly from similar entries. Check the quantity and the unit.",
	model.AnomalyUnitInconsistent: "Different units are used for the same kind of source. Standardize units to make entries comparable.",
	model.AnomalyMissingCategory:  "This category is usually present in carbon inventories. If it does not apply to your activity you can ignore it.",
}

// DefaultExplanation returns the canned explanation for an anomaly type.
func DefaultExplanation(t model.AnomalyType) string {
	if e, ok := defaultExplanations[t]; ok {
		return e
	}
	return "Review this entry to make sure it is correct."
}

// Explain describes why record may be wrong. It asks the AI gateway when
// available and falls back to the canned explanation.
func (c *Checker) Explain(ctx context.Context, r model.Record, t model.AnomalyType) string {
	if c.ai == nil || !c.ai.Available() {
		return DefaultExplanation(t)
	}

	prompt := fmt.Sprintf(`Briefly explain why this emission entry may be incorrect.

Issue type: %s
Source: %s
Quantity: %g %s
Emissions: %.2f kgCO2e

Give a short explanation (at most 2 sentences) and a suggested correction.`,
		t, r.Description, r.Quantity, r.Unit, r.EmissionKgCO2e)

	text, ok := c.ai.Prompt(ctx, prompt, "", "")
	if !ok || text == "" {
		return DefaultExplanation(t)
	}
	return text
}
