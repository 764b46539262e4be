package factors

import (
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

// Intent changes how keyword results are ranked.
type Intent string

// Intents detected from query phrasing.
const (
	IntentDefault     Intent = ""
	IntentComparison  Intent = "comparison"
	IntentCheapest    Intent = "cheapest"
	IntentSpecific    Intent = "specific"
	IntentApproximate Intent = "approximate"
)

// specificLimit caps results when the query asks for one precise factor.
const specificLimit = 3

// intentTable is checked in order; the first intent with a matching phrase wins.
var intentTable = []struct {
	intent  Intent
	phrases []string
}{
	{IntentComparison, []string{"comparer", "compare", "comparison", "versus", "vs", "difference", "alternative", "vergleich"}},
	{IntentCheapest, []string{"moins cher", "economique", "moins polluant", "plus vert", "cheapest", "greenest", "lowest", "gunstigste"}},
	{IntentSpecific, []string{"exactement", "precis", "specifique", "exact", "exactly"}},
	{IntentApproximate, []string{"environ", "approximatif", "estimation", "moyen", "approximately", "average", "ungefahr"}},
}

var stopWords = map[string]struct{}{
	// French
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {}, "de": {}, "du": {},
	"et": {}, "ou": {}, "en": {}, "a": {}, "pour": {}, "par": {}, "sur": {}, "dans": {},
	"avec": {}, "sans": {}, "aux": {},
	// English
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {}, "per": {}, "of": {},
	// German
	"der": {}, "die": {}, "das": {}, "und": {}, "fur": {}, "mit": {}, "von": {}, "ein": {}, "eine": {},
}

// tokenize folds text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	folded := common.FoldText(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
}

// NormalizeQuery folds and collapses a query for use in cache keys.
func NormalizeQuery(query string) string {
	return strings.Join(tokenize(query), " ")
}

// DetectIntent returns the ranking intent expressed by the query.
func DetectIntent(query string) Intent {
	padded := " " + NormalizeQuery(query) + " "
	for _, entry := range intentTable {
		for _, phrase := range entry.phrases {
			if strings.Contains(padded, " "+phrase+" ") {
				return entry.intent
			}
		}
	}
	return IntentDefault
}

// ExtractKeywords returns the distinct search terms of a query: stop words,
// intent phrases and tokens shorter than three characters are dropped.
func ExtractKeywords(query string) []string {
	intentWords := make(map[string]struct{})
	for _, entry := range intentTable {
		for _, phrase := range entry.phrases {
			if !strings.Contains(phrase, " ") {
				intentWords[phrase] = struct{}{}
			}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenize(query) {
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		if _, ok := intentWords[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
