package safety

import "strings"

// defaultBlockedTerms flag content that must never flow into tool calls or
// memory unexamined. Matching is case-insensitive substring.
var defaultBlockedTerms = []string{
	"rm -rf",
	"token leak",
}

// Policy scans inbound text for blocked terms. It only annotates; flagged
// turns still run end to end.
type Policy struct {
	terms []string
}

func NewPolicy(extraTerms ...string) *Policy {
	terms := make([]string, 0, len(defaultBlockedTerms)+len(extraTerms))
	terms = append(terms, defaultBlockedTerms...)
	for _, term := range extraTerms {
		if trimmed := strings.ToLower(strings.TrimSpace(term)); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	return &Policy{terms: terms}
}

// Scan returns one "blocked-term:<term>" flag per matched term, in policy order.
func (p *Policy) Scan(content string) []string {
	lower := strings.ToLower(content)

	var flags []string
	for _, term := range p.terms {
		if strings.Contains(lower, term) {
			flags = append(flags, "blocked-term:"+term)
		}
	}
	return flags
}
