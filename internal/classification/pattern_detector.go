// Package classification matches subject text against an ordered table of
// regular expressions.
package classification

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// Pattern maps a regular expression to a category.
type Pattern struct {
	Name     string
	Regex    string
	Category model.Category
}

// CompiledPattern holds a compiled regex pattern with metadata.
type CompiledPattern struct {
	compiledRegex *regexp.Regexp
	Pattern
}

// Match is the pattern that resolved a text.
type Match struct {
	PatternName string
	Category    model.Category
}

// Excluded reports whether the match carries the excluded marker.
func (m Match) Excluded() bool {
	return m.Category.IsExcluded()
}

// PatternDetector evaluates patterns in list order; the first match wins.
// Order is significant: a specific pattern must come before any broader
// pattern that would also match.
type PatternDetector struct {
	patterns []CompiledPattern
	mu       sync.RWMutex
}

// NewPatternDetector compiles patterns, keeping their order.
func NewPatternDetector(patterns []Pattern) (*PatternDetector, error) {
	compiled, err := compile(patterns)
	if err != nil {
		return nil, err
	}
	return &PatternDetector{patterns: compiled}, nil
}

// NewDefaultDetector returns a detector over DefaultPatterns.
func NewDefaultDetector() *PatternDetector {
	pd, err := NewPatternDetector(DefaultPatterns())
	if err != nil {
		panic(fmt.Sprintf("default patterns do not compile: %v", err))
	}
	return pd
}

func compile(patterns []Pattern) ([]CompiledPattern, error) {
	compiled := make([]CompiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if !p.Category.Valid() {
			return nil, fmt.Errorf("pattern %s: %w: %q", p.Name, common.ErrUnknownCategory, p.Category)
		}

		regexStr := p.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, CompiledPattern{
			Pattern:       p,
			compiledRegex: regex,
		})
	}
	return compiled, nil
}

// Match returns the first pattern matching text. Matching ignores case and
// diacritics, so "Électricité" and "ELECTRICITE" behave the same.
func (pd *PatternDetector) Match(text string) (Match, bool) {
	folded := common.FoldText(text)
	if strings.TrimSpace(folded) == "" {
		return Match{}, false
	}

	pd.mu.RLock()
	defer pd.mu.RUnlock()

	for _, p := range pd.patterns {
		if p.compiledRegex.MatchString(folded) {
			return Match{PatternName: p.Name, Category: p.Category}, true
		}
	}
	return Match{}, false
}

// Classify matches the subject's merchant name and description.
func (pd *PatternDetector) Classify(_ context.Context, subject model.Subject) (Match, bool) {
	return pd.Match(subject.Text())
}

// UpdatePatterns replaces the pattern table.
func (pd *PatternDetector) UpdatePatterns(patterns []Pattern) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	pd.mu.Lock()
	pd.patterns = compiled
	pd.mu.Unlock()

	return nil
}

// Patterns returns the pattern table in evaluation order.
func (pd *PatternDetector) Patterns() []Pattern {
	pd.mu.RLock()
	defer pd.mu.RUnlock()

	out := make([]Pattern, len(pd.patterns))
	for i, p := range pd.patterns {
		out[i] = p.Pattern
	}
	return out
}

// PatternCount returns the number of loaded patterns.
func (pd *PatternDetector) PatternCount() int {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return len(pd.patterns)
}
