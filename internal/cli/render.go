package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/the-carbon-must-flow/internal/engine"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/quality"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Headers(headers...)
}

func kg(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// RenderBatchReport prints the per-tier summary of a classification run.
func RenderBatchReport(w io.Writer, r engine.BatchReport) error {
	tiers := []model.Tier{model.TierLearnedRule, model.TierCodeLookup, model.TierPattern, model.TierAI, model.TierDefault}
	t := newTable("Tier", "Subjects")
	for _, tier := range tiers {
		t.Row(string(tier), strconv.Itoa(r.ByTier[tier]))
	}

	var total float64
	quantified := 0
	for _, a := range r.Assignments {
		if a.EmissionKgCO2e != nil {
			total += *a.EmissionKgCO2e
			quantified++
		}
	}

	summary := fmt.Sprintf("%s\n\n  • Classified: %d of %d\n  • Needs review: %d\n  • Failed: %d\n  • Duration: %s",
		t.Render(), len(r.Assignments), r.Total, r.NeedsReview, len(r.Failures), r.Duration.Round(time.Millisecond))
	if quantified > 0 {
		summary += fmt.Sprintf("\n  • Emissions: %.2f kgCO2e over %d subjects", total, quantified)
	}
	if _, err := fmt.Fprintln(w, RenderBox(ChartIcon+" Classification complete", summary)); err != nil {
		return err
	}
	for _, f := range r.Failures {
		if _, err := fmt.Fprintln(w, FormatError(fmt.Sprintf("%s: %v", f.SubjectID, f.Err))); err != nil {
			return err
		}
	}
	return nil
}

// RenderAssignment prints one subject with its assignment.
func RenderAssignment(w io.Writer, s model.Subject, a model.Assignment) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", SubtleStyle.Render(s.Date.Format("2006-01-02")), BoldStyle.Render(s.Text()))
	if s.Amount != nil {
		fmt.Fprintf(&b, "Amount:     %.2f %s\n", *s.Amount, s.Currency)
	}
	if s.MerchantCode != "" {
		fmt.Fprintf(&b, "Code:       %s\n", s.MerchantCode)
	}
	fmt.Fprintf(&b, "Category:   %s (%s, %s)\n", a.Category, a.Category.Info().Name, FormatScope(a.Scope))
	fmt.Fprintf(&b, "Tier:       %s at %.0f%%\n", a.Tier, a.Confidence*100)
	if a.Rationale != "" {
		fmt.Fprintf(&b, "Rationale:  %s\n", a.Rationale)
	}
	if a.FactorID != "" {
		fmt.Fprintf(&b, "Factor:     %s (%s kgCO2e)\n", a.FactorID, kg(a.EmissionKgCO2e))
	}
	_, err := fmt.Fprintln(w, RenderBox(s.ID, strings.TrimRight(b.String(), "\n")))
	return err
}

// RenderFactors prints ranked factor candidates.
func RenderFactors(w io.Writer, results []model.ScoredFactor) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No matching emission factors"))
		return err
	}
	t := newTable("ID", "Name", "kgCO2e/unit", "Unit", "Category", "Scope", "Country", "Source", "Score")
	for _, r := range results {
		f := r.Factor
		t.Row(f.ID, f.Name, strconv.FormatFloat(f.KgCO2ePerUnit, 'g', 6, 64), f.Unit, string(f.Category),
			strconv.Itoa(int(f.Scope)), f.Country, f.Source, fmt.Sprintf("%.2f", r.Score))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderRules prints an organization's learned rules.
func RenderRules(w io.Writer, rules []model.LearnedRule) error {
	if len(rules) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No learned rules"))
		return err
	}
	t := newTable("Key", "Category", "Confidence", "Source", "By", "Updated")
	for _, r := range rules {
		t.Row(r.MerchantKey, string(r.Category), fmt.Sprintf("%.2f", r.Confidence), string(r.Source),
			r.CreatedBy, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// RenderQualityReport prints category totals followed by the anomalies,
// errors first.
func RenderQualityReport(w io.Writer, r quality.Report) error {
	totals := newTable("Category", "Scope", "Records", "kgCO2e")
	var grand float64
	for _, s := range r.Summaries {
		totals.Row(string(s.Category), FormatScope(s.Category.Scope()), strconv.Itoa(s.Count), fmt.Sprintf("%.2f", s.TotalKg))
		grand += s.TotalKg
	}
	totals.Row("total", "", "", fmt.Sprintf("%.2f", grand))
	if _, err := fmt.Fprintln(w, totals.Render()); err != nil {
		return err
	}

	if len(r.Anomalies) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("No anomalies found"))
		return err
	}

	anomalies := make([]model.Anomaly, len(r.Anomalies))
	copy(anomalies, r.Anomalies)
	rank := map[model.Severity]int{model.SeverityError: 0, model.SeverityWarning: 1, model.SeverityInfo: 2}
	sort.SliceStable(anomalies, func(i, j int) bool {
		return rank[anomalies[i].Severity] < rank[anomalies[j].Severity]
	})

	t := newTable("Severity", "Type", "Record", "Category", "Source", "Message")
	for _, a := range anomalies {
		t.Row(SeverityStyle(a.Severity).Render(string(a.Severity)), string(a.Type), a.RecordID,
			string(a.Category), string(a.Source), a.Message)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
