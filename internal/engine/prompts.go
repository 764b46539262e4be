package engine

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

const classificationSystemPrompt = `You are a carbon footprint categorization expert. Your task is to categorize business transactions into GHG Protocol emission categories.

Focus on:
- Scope 1: Direct emissions (fuel for company vehicles, heating)
- Scope 2: Indirect energy (electricity, heating/cooling)
- Scope 3: Other indirect (business travel, purchased goods, employee commuting)

Always respond with valid JSON in this format:
{
    "category_code": "string",
    "confidence": 0.0-1.0,
    "reasoning": "brief explanation"
}

If the transaction should be excluded from carbon accounting (like salaries, internal transfers, taxes), use category_code "excluded".`

const disambiguationSystemPrompt = `You select the most appropriate emission factor for an activity. Respond only with JSON: {"best_factor_id": "id", "reasoning": "brief explanation"}.`

func classificationPrompt(s model.Subject) string {
	var sb strings.Builder
	sb.WriteString("Categorize this business transaction:\n\n")
	fmt.Fprintf(&sb, "Merchant/Counterparty: %s\n", s.MerchantName)
	fmt.Fprintf(&sb, "Description: %s\n", s.Description)
	if s.Amount != nil {
		fmt.Fprintf(&sb, "Amount: %.2f %s\n", *s.Amount, s.Currency)
	}
	if !s.Date.IsZero() {
		fmt.Fprintf(&sb, "Date: %s\n", s.Date.Format("2006-01-02"))
	}
	if s.MerchantCode != "" {
		fmt.Fprintf(&sb, "MCC Code: %s\n", s.MerchantCode)
	}

	sb.WriteString("\nAvailable categories:\n")
	for _, c := range model.AllCategories() {
		info := c.Info()
		if c.IsExcluded() {
			fmt.Fprintf(&sb, "- %s: %s\n", c, info.Name)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s (Scope %d)\n", c, info.Name, int(info.Scope))
	}
	sb.WriteString("\nWhich category best matches this transaction? Respond with JSON.")
	return sb.String()
}

func disambiguationPrompt(s model.Subject, category model.Category, candidates []model.ScoredFactor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Activity: %s\n", s.Text())
	fmt.Fprintf(&sb, "Category: %s\n", category.Info().Name)
	if s.Unit != "" {
		fmt.Fprintf(&sb, "Unit: %s\n", s.Unit)
	}
	sb.WriteString("\nCandidate emission factors:\n")
	for _, c := range candidates {
		f := c.Factor
		fmt.Fprintf(&sb, "- id=%s | %s | %g kgCO2e/%s | %s %s\n", f.ID, f.Name, f.KgCO2ePerUnit, f.Unit, f.Source, f.Country)
	}
	sb.WriteString("\nWhich factor fits this activity best?")
	return sb.String()
}
