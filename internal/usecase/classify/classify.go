// Package classify labels user queries to drive prompt shaping. A wrong
// label degrades prompt quality but never errors.
package classify

import (
	"strings"

	"github.com/harborview-labs/insight/internal/domain"
)

// rule is one entry of the ordered decision list; the first matching rule
// wins.
type rule struct {
	label domain.Label
	match func(q query) bool
}

// query pre-computes the lowered message and its word split once per call.
type query struct {
	text       string
	words      []string
	hasHistory bool
}

var followUpPhrases = []string{
	"what about", "how about", "and", "also", "then", "so", "therefore",
	"but what if", "why", "could you", "additionally", "furthermore",
}

var pronouns = []string{"it", "they", "them", "this", "that", "these", "those"}

var comparativePhrases = []string{
	"versus", "compare", "comparison", "difference", "vs", "better",
	"advantages", "disadvantages", "pros and cons", "relative to",
}

var analyticalPhrases = []string{
	"analyze", "analysis", "evaluate", "assessment", "outlook",
	"perspective", "implications", "impact", "effects", "strategy",
	"recommend", "opportunity", "risk", "potential", "forecast",
}

var factualPhrases = []string{
	"what is", "how much", "when did", "where is", "who is",
	"data", "statistics", "numbers", "percentage", "rate", "figure",
	"amount", "total", "count", "value",
}

var marketPhrases = []string{
	"market", "industry", "sector", "overview", "landscape",
	"trends", "growth", "expansion", "decline", "outlook",
}

var overviewPhrases = []string{"overview", "summary", "landscape", "state of"}

var companyIndicators = []string{" inc", " corp", " ltd", " llc"}

var rules = []rule{
	{domain.LabelFollowUp, func(q query) bool {
		if !q.hasHistory {
			return false
		}
		if containsAny(q.text, followUpPhrases) {
			return true
		}
		return len(q.words) < 5 && hasAnyWord(q.words, pronouns)
	}},
	{domain.LabelComparative, func(q query) bool {
		return containsAny(q.text, comparativePhrases)
	}},
	{domain.LabelAnalytical, func(q query) bool {
		return containsAny(q.text, analyticalPhrases)
	}},
	{domain.LabelFactual, func(q query) bool {
		return containsAny(q.text, factualPhrases)
	}},
	{domain.LabelMarketOverview, func(q query) bool {
		return containsAny(q.text, marketPhrases) && containsAny(q.text, overviewPhrases)
	}},
	{domain.LabelCompanyProfile, func(q query) bool {
		if len(q.words) >= 15 {
			return false
		}
		return strings.Contains(q.text, "company") || containsAny(q.text, companyIndicators)
	}},
}

// Classify labels a query by the first matching rule of the ordered
// decision list. Matching is case-insensitive substring containment;
// pronoun detection is exact-word. Falls through to LabelGeneral.
func Classify(userMessage string, history []domain.Turn) domain.Label {
	q := query{
		text:       strings.ToLower(userMessage),
		hasHistory: len(history) > 0,
	}
	q.words = strings.Fields(q.text)

	for _, r := range rules {
		if r.match(q) {
			return r.label
		}
	}
	return domain.LabelGeneral
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func hasAnyWord(words, targets []string) bool {
	for _, w := range words {
		for _, t := range targets {
			if w == t {
				return true
			}
		}
	}
	return false
}
