package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/engine"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/quality"
)

func TestRenderBatchReport(t *testing.T) {
	fuel := model.NewAssignment("a", model.CategoryFuel, model.TierCodeLookup, 0.85, "code")
	fuel.EmissionKgCO2e = model.Float(63.2)
	report := engine.BatchReport{
		Total:       3,
		ByTier:      map[model.Tier]int{model.TierCodeLookup: 1, model.TierDefault: 1},
		Assignments: []model.Assignment{fuel, model.NewAssignment("b", model.CategoryPurchasedGoods, model.TierDefault, 0.3, "")},
		Failures:    []engine.BatchFailure{{SubjectID: "c", Err: errors.New("database is locked")}},
		NeedsReview: 1,
		Duration:    1500 * time.Millisecond,
	}

	var out bytes.Buffer
	require.NoError(t, RenderBatchReport(&out, report))
	s := out.String()
	assert.Contains(t, s, "code-lookup")
	assert.Contains(t, s, "Classified: 2 of 3")
	assert.Contains(t, s, "Needs review: 1")
	assert.Contains(t, s, "63.20 kgCO2e over 1 subjects")
	assert.Contains(t, s, "c: database is locked")
}

func TestRenderQualityReport(t *testing.T) {
	report := quality.Report{
		Summaries: []quality.CategorySummary{{Category: model.CategoryFuel, Count: 2, TotalKg: 100}},
		Anomalies: []model.Anomaly{
			{Type: model.AnomalyMissingCategory, Severity: model.SeverityInfo, Message: "no electricity", Source: model.AnomalySourceRules},
			{Type: model.AnomalyOutlier, Severity: model.SeverityError, RecordID: "r9", Message: "way off", Source: model.AnomalySourceRules},
		},
	}

	var out bytes.Buffer
	require.NoError(t, RenderQualityReport(&out, report))
	s := out.String()
	assert.Contains(t, s, "fuel")
	assert.Contains(t, s, "100.00")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("way off")), bytes.Index(out.Bytes(), []byte("no electricity")))

	out.Reset()
	require.NoError(t, RenderQualityReport(&out, quality.Report{}))
	assert.Contains(t, out.String(), "No anomalies found")
}

func TestRenderFactorsAndRules(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RenderFactors(&out, nil))
	assert.Contains(t, out.String(), "No matching emission factors")

	out.Reset()
	require.NoError(t, RenderFactors(&out, []model.ScoredFactor{{
		Factor: model.EmissionFactor{ID: "fx-diesel", Name: "Gazole", Unit: "L", KgCO2ePerUnit: 3.16, Category: model.CategoryFuel, Scope: model.Scope1},
		Score:  0.9,
	}}))
	assert.Contains(t, out.String(), "fx-diesel")
	assert.Contains(t, out.String(), "3.16")

	out.Reset()
	require.NoError(t, RenderRules(&out, []model.LearnedRule{{MerchantKey: "garage dupont", Category: model.CategoryUpstreamTransport, Confidence: 0.95, Source: model.RuleSourceManual}}))
	assert.Contains(t, out.String(), "garage dupont")
	assert.Contains(t, out.String(), "upstream_transport")
}

func TestFormatScope(t *testing.T) {
	tests := []struct {
		scope model.Scope
		want  string
	}{
		{model.Scope1, "scope 1"},
		{model.Scope2, "scope 2"},
		{model.Scope3, "scope 3"},
		{model.ScopeNone, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Contains(t, FormatScope(tt.scope), tt.want)
		})
	}
}

func TestSeverityStyle(t *testing.T) {
	for _, sev := range []model.Severity{model.SeverityError, model.SeverityWarning, model.SeverityInfo} {
		assert.Contains(t, SeverityStyle(sev).Render(string(sev)), string(sev))
	}
}
