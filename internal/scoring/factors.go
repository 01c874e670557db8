package scoring

import "strings"

// KeywordFactor maps a named set of trigger keywords to a multiplier.
// Factors are data, not code: adding a new risk or impact category is a
// table entry, not a branch.
type KeywordFactor struct {
	Name       string
	Keywords   []string
	Multiplier float64
}

// riskFactors are multiplied into the risk component when any keyword
// matches the story text. Risk is capped at maxRisk.
var riskFactors = []KeywordFactor{
	{Name: "new-tech", Keywords: []string{"new technology", "new framework", "prototype", "experimental", "unfamiliar"}, Multiplier: 1.5},
	{Name: "external-integration", Keywords: []string{"integration", "external", "third-party", "webhook", "api client"}, Multiplier: 1.3},
	{Name: "complex-logic", Keywords: []string{"algorithm", "complex", "calculation", "business logic"}, Multiplier: 1.4},
	{Name: "state-management", Keywords: []string{"state management", "state", "cache", "session"}, Multiplier: 1.2},
	{Name: "critical-path", Keywords: []string{"critical", "blocker", "urgent"}, Multiplier: 2.0},
	{Name: "customer-facing", Keywords: []string{"customer", "client-facing", "user-facing"}, Multiplier: 1.6},
	{Name: "data-integrity", Keywords: []string{"data integrity", "migration", "consistency", "data loss"}, Multiplier: 1.8},
	{Name: "security", Keywords: []string{"security", "auth", "encryption", "vulnerability"}, Multiplier: 1.7},
}

// businessImpactFactors are multiplied into the business impact
// component when any keyword matches the story text.
var businessImpactFactors = []KeywordFactor{
	{Name: "revenue", Keywords: []string{"revenue", "sales", "monetization", "billing", "conversion"}, Multiplier: 1.8},
	{Name: "ux", Keywords: []string{"ux", "usability", "user experience", "accessibility"}, Multiplier: 1.4},
	{Name: "performance", Keywords: []string{"performance", "latency", "speed", "optimization"}, Multiplier: 1.3},
	{Name: "compliance", Keywords: []string{"compliance", "regulatory", "gdpr", "audit"}, Multiplier: 1.6},
}

// maxRisk caps the accumulated risk multiplier.
const maxRisk = 5.0

// applyFactors runs the any-keyword-present reducer: for each factor
// whose keyword set matches the text, the multiplier is applied once.
// Returns the product and the names of the factors that fired.
func applyFactors(text string, factors []KeywordFactor) (float64, []string) {
	product := 1.0
	var matched []string
	for _, f := range factors {
		if anyKeyword(text, f.Keywords) {
			product *= f.Multiplier
			matched = append(matched, f.Name)
		}
	}
	return product, matched
}

// anyKeyword reports whether any keyword appears in the text.
// Matching is case-insensitive substring search; callers pass text that
// is already lowercased.
func anyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
