// Package quality runs anomaly checks over a batch of quantified records
// for one reporting period.
package quality

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/llm"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// Outlier thresholds on the absolute z-score.
const (
	OutlierZ      = 2.5
	OutlierErrorZ = 3.0
	minGroupSize  = 3
	summaryItems  = 3
)

// DefaultExpected are the categories nearly every organization reports.
var DefaultExpected = []model.Category{model.CategoryElectricity, model.CategoryEmployeeCommuting}

// Inference is the part of the AI gateway used for the augmented pass and
// issue explanations.
type Inference interface {
	Available() bool
	JSON(ctx context.Context, prompt, system, model string) (map[string]any, bool)
	Prompt(ctx context.Context, prompt, system, model string) (string, bool)
}

// CategorySummary aggregates the records of one category.
type CategorySummary struct {
	Category model.Category `json:"-"`
	Items    []summaryItem  `json:"items"`
	Count    int            `json:"count"`
	TotalKg  float64        `json:"total_kg"`
}

type summaryItem struct {
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Quantity float64 `json:"quantity"`
	KgCO2e   float64 `json:"co2e_kg"`
}

// Report is the outcome of Detect.
type Report struct {
	Summaries []CategorySummary
	Anomalies []model.Anomaly
}

// Count returns the number of anomalies of type t.
func (r Report) Count(t model.AnomalyType) int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Type == t {
			n++
		}
	}
	return n
}

// Option configures a Checker.
type Option func(*Checker)

// WithInference enables the AI-augmented pass.
func WithInference(ai Inference) Option { return func(c *Checker) { c.ai = ai } }

// WithExpected overrides the expected category list.
func WithExpected(cats ...model.Category) Option {
	return func(c *Checker) { c.expected = cats }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = common.LoggerOrDefault(l) }
}

// Checker detects anomalies. It is stateless and safe for concurrent use.
type Checker struct {
	ai       Inference
	logger   *slog.Logger
	expected []model.Category
}

// NewChecker creates a checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{expected: DefaultExpected, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detect runs every rule-based check and, when inference is available, the
// AI pass. AI findings are appended as returned, without deduplication.
func (c *Checker) Detect(ctx context.Context, records []model.Record) Report {
	groups := groupByCategory(records)

	var report Report
	report.Anomalies = append(report.Anomalies, duplicates(records)...)
	for _, cat := range sortedCategories(groups) {
		report.Anomalies = append(report.Anomalies, outliers(groups[cat])...)
	}
	report.Anomalies = append(report.Anomalies, unitInconsistencies(records)...)
	report.Anomalies = append(report.Anomalies, missingCategories(groups, c.expected)...)
	report.Summaries = summarize(groups)

	if len(records) > 0 && c.ai != nil && c.ai.Available() {
		report.Anomalies = append(report.Anomalies, c.aiAnomalies(ctx, report.Summaries)...)
	}
	return report
}

func groupByCategory(records []model.Record) map[model.Category][]model.Record {
	groups := make(map[model.Category][]model.Record)
	for _, r := range records {
		groups[r.Category] = append(groups[r.Category], r)
	}
	return groups
}

func sortedCategories(groups map[model.Category][]model.Record) []model.Category {
	cats := make([]model.Category, 0, len(groups))
	for c := range groups {
		cats = append(cats, c)
	}
	slices.Sort(cats)
	return cats
}

func duplicateKey(r model.Record) string {
	desc := strings.Join(strings.Fields(common.FoldText(r.Description)), " ")
	return fmt.Sprintf("%s|%g|%s", desc, r.Quantity, strings.ToLower(strings.TrimSpace(r.Unit)))
}

// duplicates flags every member of a group sharing description, quantity
// and unit.
func duplicates(records []model.Record) []model.Anomaly {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[duplicateKey(r)]++
	}

	var out []model.Anomaly
	for _, r := range records {
		n := counts[duplicateKey(r)]
		if n < 2 {
			continue
		}
		out = append(out, model.Anomaly{
			Type:     model.AnomalyDuplicate,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("possible duplicate (%d entries): %s", n, r.Description),
			RecordID: r.ID,
			FactorID: r.FactorID,
			Category: r.Category,
			Source:   model.AnomalySourceRules,
		})
	}
	return out
}

// outliers scores each record against the mean and sample standard
// deviation of the rest of its group, so one extreme value cannot mask
// itself by inflating the spread.
func outliers(group []model.Record) []model.Anomaly {
	if len(group) < minGroupSize {
		return nil
	}
	values := make([]float64, len(group))
	for i, r := range group {
		values[i] = r.EmissionKgCO2e
	}
	groupMean, groupStd := meanStd(values)
	if groupStd == 0 {
		return nil
	}

	var out []model.Anomaly
	others := make([]float64, 0, len(values)-1)
	for i, r := range group {
		others = append(others[:0], values[:i]...)
		others = append(others, values[i+1:]...)
		mean, std := meanStd(others)

		if std == 0 {
			// the rest of the group is flat; score against the whole group
			mean, std = groupMean, groupStd
		}
		z := math.Abs(values[i]-mean) / std
		if z <= OutlierZ {
			continue
		}

		severity := model.SeverityWarning
		if z > OutlierErrorZ {
			severity = model.SeverityError
		}
		out = append(out, model.Anomaly{
			Type:     model.AnomalyOutlier,
			Severity: severity,
			Message:  fmt.Sprintf("unusual value: %s (%.2f kgCO2e, typical %.2f)", r.Description, values[i], mean),
			RecordID: r.ID,
			FactorID: r.FactorID,
			Category: r.Category,
			Source:   model.AnomalySourceRules,
			ZScore:   z,
		})
	}
	return out
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)-1))
}

// unitInconsistencies reports factors used with more than one unit.
func unitInconsistencies(records []model.Record) []model.Anomaly {
	units := make(map[string][]string)
	var order []string
	for _, r := range records {
		if r.FactorID == "" {
			continue
		}
		u := strings.TrimSpace(r.Unit)
		if _, ok := units[r.FactorID]; !ok {
			order = append(order, r.FactorID)
		}
		if !slices.ContainsFunc(units[r.FactorID], func(s string) bool { return strings.EqualFold(s, u) }) {
			units[r.FactorID] = append(units[r.FactorID], u)
		}
	}

	var out []model.Anomaly
	for _, id := range order {
		if len(units[id]) < 2 {
			continue
		}
		out = append(out, model.Anomaly{
			Type:     model.AnomalyUnitInconsistent,
			Severity: model.SeverityWarning,
			Message:  "different units for the same factor: " + strings.Join(units[id], ", "),
			FactorID: id,
			Source:   model.AnomalySourceRules,
		})
	}
	return out
}

func missingCategories(groups map[model.Category][]model.Record, expected []model.Category) []model.Anomaly {
	var out []model.Anomaly
	for _, cat := range expected {
		if len(groups[cat]) > 0 {
			continue
		}
		out = append(out, model.Anomaly{
			Type:     model.AnomalyMissingCategory,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("common category not reported: %s %s", cat.Info().GHGCode, cat.Info().Name),
			Category: cat,
			Source:   model.AnomalySourceRules,
		})
	}
	return out
}

func summarize(groups map[model.Category][]model.Record) []CategorySummary {
	out := make([]CategorySummary, 0, len(groups))
	for _, cat := range sortedCategories(groups) {
		s := CategorySummary{Category: cat, Count: len(groups[cat])}
		for i, r := range groups[cat] {
			s.TotalKg += r.EmissionKgCO2e
			if i < summaryItems {
				s.Items = append(s.Items, summaryItem{Name: r.Description, Quantity: r.Quantity, Unit: r.Unit, KgCO2e: r.EmissionKgCO2e})
			}
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b CategorySummary) int { return cmp.Compare(b.TotalKg, a.TotalKg) })
	return out
}

const anomalySystemPrompt = "You review corporate carbon inventories for data quality problems. Respond only with JSON."

func (c *Checker) aiAnomalies(ctx context.Context, summaries []CategorySummary) []model.Anomaly {
	byCode := make(map[string]CategorySummary, len(summaries))
	for _, s := range summaries {
		byCode[string(s.Category)] = s
	}
	data, err := json.MarshalIndent(byCode, "", "  ")
	if err != nil {
		c.logger.Warn("failed to encode category summary", "error", err)
		return nil
	}

	prompt := "Analyse this carbon inventory and identify potential anomalies.\n\nData by category:\n```json\n" +
		string(data) + "\n```\n\n" +
		`Respond ONLY with JSON:
{
    "anomalies": [
        {"type": "anomaly_type", "message": "description of the problem", "severity": "warning|error", "category": "category_code"}
    ]
}

Look for:
- Abnormally high or low values
- Unusual missing categories
- Inconsistencies between related categories`

	resp, ok := c.ai.JSON(ctx, prompt, anomalySystemPrompt, "")
	if !ok {
		return nil
	}
	items, _ := resp["anomalies"].([]any)

	out := make([]model.Anomaly, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msg := llm.String(obj, "message")
		if msg == "" {
			continue
		}
		a := model.Anomaly{
			Type:     model.AnomalyAI,
			Severity: model.SeverityWarning,
			Message:  msg,
			Source:   model.AnomalySourceAI,
		}
		if llm.String(obj, "severity") == string(model.SeverityError) {
			a.Severity = model.SeverityError
		}
		if cat, err := model.ParseCategory(llm.String(obj, "category")); err == nil {
			a.Category = cat
		}
		if t := llm.String(obj, "type"); t != "" {
			a.Message = t + ": " + msg
		}
		out = append(out, a)
	}
	return out
}
