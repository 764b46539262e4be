// Package codes maps standardized merchant category codes to emission categories.
package codes

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

//go:embed mcc.yaml
var defaultData []byte

var codePattern = regexp.MustCompile(`^\d{3,4}$`)

type codeEntry struct {
	Code        string `yaml:"code"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

type rangeEntry struct {
	Category string `yaml:"category"`
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
}

type suggestionEntry struct {
	Pattern string `yaml:"pattern"`
	Code    string `yaml:"code"`
}

type document struct {
	Descriptions map[string]string `yaml:"descriptions"`
	Codes        []codeEntry       `yaml:"codes"`
	Ranges       []rangeEntry      `yaml:"ranges"`
	Suggestions  []suggestionEntry `yaml:"suggestions"`
}

// Range maps an inclusive numeric code interval to a category.
type Range struct {
	Category model.Category
	Start    int
	End      int
}

type suggestion struct {
	re   *regexp.Regexp
	code string
}

// Table is an immutable code lookup table.
type Table struct {
	exact        map[string]model.Category
	descriptions map[string]string
	ranges       []Range
	suggestions  []suggestion
}

// Parse builds a table from YAML data.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse code table: %w", err)
	}

	t := &Table{
		exact:        make(map[string]model.Category, len(doc.Codes)),
		descriptions: make(map[string]string, len(doc.Codes)+len(doc.Descriptions)),
		ranges:       make([]Range, 0, len(doc.Ranges)),
	}

	for _, e := range doc.Codes {
		cat, err := model.ParseCategory(e.Category)
		if err != nil {
			return nil, fmt.Errorf("code %s: %w", e.Code, err)
		}
		if !codePattern.MatchString(e.Code) {
			return nil, fmt.Errorf("invalid code %q", e.Code)
		}
		t.exact[e.Code] = cat
		if e.Description != "" {
			t.descriptions[e.Code] = e.Description
		}
	}
	for code, desc := range doc.Descriptions {
		t.descriptions[code] = desc
	}

	for _, r := range doc.Ranges {
		cat, err := model.ParseCategory(r.Category)
		if err != nil {
			return nil, fmt.Errorf("range %d-%d: %w", r.Start, r.End, err)
		}
		if r.End < r.Start {
			return nil, fmt.Errorf("range %d-%d: end before start", r.Start, r.End)
		}
		t.ranges = append(t.ranges, Range{Start: r.Start, End: r.End, Category: cat})
	}

	for _, s := range doc.Suggestions {
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("suggestion %q: %w", s.Pattern, err)
		}
		t.suggestions = append(t.suggestions, suggestion{re: re, code: s.Code})
	}

	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the table built from the embedded data file.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultData)
		if err != nil {
			panic(fmt.Sprintf("embedded code table is invalid: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup returns the category for code. Exact codes win over ranges and
// the first matching range wins. Malformed codes are simply not found.
func (t *Table) Lookup(code string) (model.Category, bool) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return "", false
	}

	if cat, ok := t.exact[code]; ok {
		return cat, true
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return "", false
	}
	for _, r := range t.ranges {
		if n >= r.Start && n <= r.End {
			return r.Category, true
		}
	}
	return "", false
}

// Ranges returns the range table in evaluation order.
func (t *Table) Ranges() []Range {
	out := make([]Range, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Description returns a human-readable description of code.
func (t *Table) Description(code string) (string, bool) {
	d, ok := t.descriptions[strings.TrimSpace(code)]
	return d, ok
}

// SuggestCode guesses a merchant category code from a merchant name.
func (t *Table) SuggestCode(merchant string) (string, bool) {
	for _, s := range t.suggestions {
		if s.re.MatchString(merchant) {
			return s.code, true
		}
	}
	return "", false
}

// CodesByCategory groups the exact codes by category, sorted.
func (t *Table) CodesByCategory() map[model.Category][]string {
	out := make(map[model.Category][]string)
	for code, cat := range t.exact {
		out[cat] = append(out[cat], code)
	}
	for _, codes := range out {
		sort.Strings(codes)
	}
	return out
}
