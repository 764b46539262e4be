package rules

import (
	"strings"
	"unicode"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

// legalSuffixes are company-form tokens dropped from merchant keys.
var legalSuffixes = map[string]struct{}{
	"sas":  {},
	"sarl": {},
	"sa":   {},
	"gmbh": {},
	"ag":   {},
	"ltd":  {},
	"inc":  {},
	"corp": {},
	"llc":  {},
	"bv":   {},
}

// Normalize turns merchant text into a rule key: folded to lowercase ASCII,
// legal-entity tokens removed, punctuation removed and whitespace collapsed.
func Normalize(text string) string {
	folded := common.FoldText(text)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		case r == '.' || r == ',' || r == '-' || r == '/' || r == '*' || r == '\'':
			// separators become spaces so "S.A." and "foo-bar" split cleanly
			return ' '
		default:
			return -1
		}
	}, folded)

	fields := collapseInitials(strings.Fields(cleaned))
	out := fields[:0]
	for i, f := range fields {
		if _, ok := legalSuffixes[f]; ok && i > 0 {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// collapseInitials rejoins dotted abbreviations that separator splitting
// broke apart, so "S.N.C.F" keys the same as "SNCF" and "S.A." as "sa".
func collapseInitials(fields []string) []string {
	out := make([]string, 0, len(fields))
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, f := range fields {
		if len(f) == 1 {
			run.WriteString(f)
			continue
		}
		flush()
		out = append(out, f)
	}
	flush()
	return out
}
