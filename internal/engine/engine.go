// Package engine resolves a category for each classification subject by
// walking the resolution tiers in order, then optionally attaches an
// emission factor and computes the emission.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/llm"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// ClassifiedBy is recorded on automatic assignments.
const ClassifiedBy = "pipeline"

// Settings tunes tier confidences and acceptance.
type Settings struct {
	Model             string // AI model override; empty uses the provider default
	AIThreshold       float64
	CodeConfidence    float64
	PatternConfidence float64
	DefaultConfidence float64
	DisambiguateTopN  int
	Disambiguate      bool
}

// DefaultSettings returns the stock thresholds.
func DefaultSettings() Settings {
	return Settings{
		AIThreshold:       0.5,
		CodeConfidence:    0.85,
		PatternConfidence: 0.8,
		DefaultConfidence: 0.3,
		DisambiguateTopN:  5,
		Disambiguate:      true,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules enables the learned rule tier.
func WithRules(r RuleStore) Option { return func(e *Engine) { e.rules = r } }

// WithCodes enables the code lookup tier.
func WithCodes(c CodeTable) Option { return func(e *Engine) { e.codes = c } }

// WithPatterns enables the pattern tier.
func WithPatterns(p PatternMatcher) Option { return func(e *Engine) { e.patterns = p } }

// WithInference enables the AI tier and factor disambiguation.
func WithInference(ai Inference) Option { return func(e *Engine) { e.ai = ai } }

// WithFactors enables factor matching.
func WithFactors(f FactorSearcher) Option { return func(e *Engine) { e.factors = f } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = common.LoggerOrDefault(l) }
}

// Engine is the categorization orchestrator. Every dependency is optional;
// a missing one makes its tier unresolved. It is safe for concurrent use.
type Engine struct {
	rules    RuleStore
	codes    CodeTable
	patterns PatternMatcher
	ai       Inference
	factors  FactorSearcher
	logger   *slog.Logger
	settings Settings
}

type tier struct {
	run  func(context.Context, model.Subject) TierResult
	name model.Tier
}

// New creates an orchestrator.
func New(settings Settings, opts ...Option) *Engine {
	e := &Engine{settings: settings, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the engine settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

func (e *Engine) tiers() []tier {
	return []tier{
		{name: model.TierLearnedRule, run: e.ruleTier},
		{name: model.TierCodeLookup, run: e.codeTier},
		{name: model.TierPattern, run: e.patternTier},
		{name: model.TierAI, run: e.aiTier},
	}
}

// Classify resolves the category of one subject. The only error returned is
// an invalid subject; tier failures are logged and the next tier runs, so a
// valid subject always gets an assignment.
func (e *Engine) Classify(ctx context.Context, s model.Subject) (model.Assignment, error) {
	if err := s.Validate(); err != nil {
		return model.Assignment{}, err
	}

	for _, t := range e.tiers() {
		res := t.run(ctx, s)
		switch res.Status {
		case Resolved:
			return e.finish(res.Assignment), nil
		case Failed:
			e.logger.Warn("tier failed",
				"subject_id", s.ID,
				"tier", t.name,
				"error", res.Err)
		case Unresolved:
			e.logger.Debug("tier unresolved", "subject_id", s.ID, "tier", t.name)
		}
	}

	return e.finish(e.defaultTier(s)), nil
}

func (e *Engine) finish(a model.Assignment) model.Assignment {
	a.ClassifiedBy = ClassifiedBy
	if a.Confidence < e.settings.AIThreshold {
		a.NeedsReview = true
	}
	return a
}

func (e *Engine) ruleTier(ctx context.Context, s model.Subject) TierResult {
	if e.rules == nil {
		return unresolved()
	}
	rule, ok, err := e.rules.Find(ctx, s.OrganizationID, s.Text())
	if err != nil {
		return failed(err)
	}
	if !ok {
		return unresolved()
	}
	return resolved(model.NewAssignment(s.ID, rule.Category, model.TierLearnedRule, rule.Confidence,
		fmt.Sprintf("learned rule %q", rule.MerchantKey)))
}

func (e *Engine) codeTier(_ context.Context, s model.Subject) TierResult {
	if e.codes == nil || strings.TrimSpace(s.MerchantCode) == "" {
		return unresolved()
	}
	category, ok := e.codes.Lookup(s.MerchantCode)
	if !ok {
		return unresolved()
	}
	return resolved(model.NewAssignment(s.ID, category, model.TierCodeLookup, e.settings.CodeConfidence,
		fmt.Sprintf("merchant code %s", strings.TrimSpace(s.MerchantCode))))
}

func (e *Engine) patternTier(_ context.Context, s model.Subject) TierResult {
	if e.patterns == nil {
		return unresolved()
	}
	m, ok := e.patterns.Match(s.Text())
	if !ok {
		return unresolved()
	}
	return resolved(model.NewAssignment(s.ID, m.Category, model.TierPattern, e.settings.PatternConfidence,
		fmt.Sprintf("pattern %s", m.PatternName)))
}

func (e *Engine) aiTier(ctx context.Context, s model.Subject) TierResult {
	if e.ai == nil || !e.ai.Available() {
		return unresolved()
	}

	resp, ok := e.ai.JSON(ctx, classificationPrompt(s), classificationSystemPrompt, e.settings.Model)
	if !ok {
		return failed(fmt.Errorf("%w: no usable AI response", common.ErrClassificationFailed))
	}

	category, err := model.ParseCategory(llm.String(resp, "category_code"))
	if err != nil {
		return failed(fmt.Errorf("%w: %w", common.ErrClassificationFailed, err))
	}
	confidence, ok := llm.Float(resp, "confidence")
	if !ok {
		return failed(fmt.Errorf("%w: missing confidence", common.ErrClassificationFailed))
	}
	if confidence < e.settings.AIThreshold {
		e.logger.Debug("AI confidence below threshold",
			"subject_id", s.ID,
			"category", category,
			"confidence", confidence)
		return unresolved()
	}

	rationale := llm.String(resp, "reasoning")
	if rationale == "" {
		rationale = "AI classification"
	}
	return resolved(model.NewAssignment(s.ID, category, model.TierAI, confidence, rationale))
}

func (e *Engine) defaultTier(s model.Subject) model.Assignment {
	category, rationale := model.CategoryExcluded, "no outflow signal"
	if s.IsOutflow() {
		category, rationale = model.CategoryPurchasedGoods, "default for outgoing payments"
	}
	a := model.NewAssignment(s.ID, category, model.TierDefault, e.settings.DefaultConfidence, rationale)
	a.NeedsReview = true
	return a
}

// MatchFactor finds emission factor candidates for a classified subject,
// filtered by the assigned category and scope. When enabled and more than
// one candidate is found, the AI gateway may move its pick to the top.
// Excluded subjects get an empty match.
func (e *Engine) MatchFactor(ctx context.Context, s model.Subject, a model.Assignment) (model.FactorMatch, error) {
	match := model.FactorMatch{SubjectID: s.ID}
	if e.factors == nil || a.Category.IsExcluded() {
		return match, nil
	}

	query := strings.TrimSpace(s.Description)
	if query == "" {
		query = s.Text()
	}
	filters := model.FactorFilters{Category: a.Category, Scope: a.Scope, Unit: s.Unit}
	candidates, err := e.factors.Search(ctx, query, filters)
	if err != nil {
		return match, fmt.Errorf("factor search failed: %w", err)
	}
	if len(candidates) == 0 && filters.Unit != "" {
		filters.Unit = ""
		if candidates, err = e.factors.Search(ctx, query, filters); err != nil {
			return match, fmt.Errorf("factor search failed: %w", err)
		}
	}
	match.Rationale = "search ranking"
	if len(candidates) == 0 {
		// bank descriptions rarely share words with factor names; the
		// category alone still narrows the catalog
		if candidates, err = e.factors.Search(ctx, "", filters); err != nil {
			return match, fmt.Errorf("factor search failed: %w", err)
		}
		match.Rationale = "category ranking"
	}
	match.Candidates = candidates

	if len(candidates) > 1 && e.settings.Disambiguate && e.ai != nil && e.ai.Available() {
		e.disambiguate(ctx, s, a, &match)
	}
	return match, nil
}

func (e *Engine) disambiguate(ctx context.Context, s model.Subject, a model.Assignment, match *model.FactorMatch) {
	topN := e.settings.DisambiguateTopN
	if topN <= 0 || topN > len(match.Candidates) {
		topN = len(match.Candidates)
	}

	resp, ok := e.ai.JSON(ctx, disambiguationPrompt(s, a.Category, match.Candidates[:topN]), disambiguationSystemPrompt, e.settings.Model)
	if !ok {
		return
	}
	best := llm.String(resp, "best_factor_id")
	for i := range topN {
		if match.Candidates[i].Factor.ID != best {
			continue
		}
		if i > 0 {
			picked := match.Candidates[i]
			copy(match.Candidates[1:i+1], match.Candidates[:i])
			match.Candidates[0] = picked
		}
		match.Rationale = "AI selection"
		if r := llm.String(resp, "reasoning"); r != "" {
			match.Rationale = r
		}
		return
	}
	e.logger.Debug("AI picked an unknown factor", "subject_id", s.ID, "factor_id", best)
}

// Quantified is a classified subject with its factor and emission.
type Quantified struct {
	Match      model.FactorMatch
	Assignment model.Assignment
}

// Quantify classifies s, matches a factor and computes quantity times the
// selected factor. A failed factor search leaves the emission unset.
func (e *Engine) Quantify(ctx context.Context, s model.Subject, quantity float64) (Quantified, error) {
	a, err := e.Classify(ctx, s)
	if err != nil {
		return Quantified{}, err
	}
	out := Quantified{Assignment: a}

	match, err := e.MatchFactor(ctx, s, a)
	if err != nil {
		e.logger.Warn("factor match failed", "subject_id", s.ID, "error", err)
		return out, nil
	}
	out.Match = match

	if f, ok := match.Selected(); ok {
		emission := quantity * f.KgCO2ePerUnit
		out.Assignment.FactorID = f.ID
		out.Assignment.EmissionKgCO2e = &emission
		out.Assignment.Quantity = &quantity
	}
	return out, nil
}

// Correct records a user correction: the returned assignment is pinned at
// full confidence and a learned rule is stored for the subject's merchant
// text, which also triggers the reclassification sweep.
func (e *Engine) Correct(ctx context.Context, s model.Subject, category model.Category, user string) (model.Assignment, error) {
	if err := s.Validate(); err != nil {
		return model.Assignment{}, err
	}
	if !category.Valid() {
		return model.Assignment{}, fmt.Errorf("%w: %q", common.ErrUnknownCategory, category)
	}

	a := model.NewAssignment(s.ID, category, model.TierManual, 1, "user correction")
	a.ClassifiedBy = user
	a.Pinned = true

	if e.rules == nil {
		return a, nil
	}
	text := s.MerchantName
	if strings.TrimSpace(text) == "" {
		text = s.Description
	}
	if _, err := e.rules.Upsert(ctx, s.OrganizationID, text, category, model.DefaultRuleConfidence, user); err != nil {
		return a, fmt.Errorf("failed to store learned rule: %w", err)
	}
	return a, nil
}

// IsInvalidSubject reports whether err rejected a subject before classification.
func IsInvalidSubject(err error) bool {
	return errors.Is(err, common.ErrInvalidSubject)
}
