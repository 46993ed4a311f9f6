package services

import "strings"

// Verdict is the outcome of a relevance classification
type Verdict int

const (
	InDomain Verdict = iota
	OutOfDomain
)

func (v Verdict) String() string {
	if v == InDomain {
		return "in_domain"
	}
	return "out_of_domain"
}

// Decision carries the verdict plus the signal that produced it, so callers
// are forced to branch on the variant rather than a side-encoded bool.
type Decision struct {
	Verdict Verdict
	Signal  string // matched keyword for in-domain decisions
}

// Classifier decides whether a prompt is within the defense/government
// research domain. Implementations must be deterministic for a fixed prompt
// and never fail on malformed but non-empty text.
type Classifier interface {
	Classify(prompt string) Decision
}

// KeywordClassifier classifies prompts by scanning for defense, government,
// and policy signal terms. The boundary is fuzzy by nature; unmatched prompts
// are out-of-domain here, but the orchestrator still treats follow-ups inside
// an existing conversation as in-domain.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier creates a classifier with the built-in signal list
// plus any extra configured keywords.
func NewKeywordClassifier(extra []string) *KeywordClassifier {
	kws := make([]string, 0, len(domainKeywords)+len(extra))
	kws = append(kws, domainKeywords...)
	for _, kw := range extra {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	return &KeywordClassifier{keywords: kws}
}

// Classify scans the prompt for domain signal
func (c *KeywordClassifier) Classify(prompt string) Decision {
	p := strings.ToLower(prompt)
	for _, kw := range c.keywords {
		if strings.Contains(p, kw) {
			return Decision{Verdict: InDomain, Signal: kw}
		}
	}
	return Decision{Verdict: OutOfDomain}
}

// domainKeywords is the built-in defense/government/policy signal list.
// Topics, named entities, program names, agencies, and commands.
var domainKeywords = []string{
	"defense", "military", "dod", "government", "program executive officer", "market size",
	"mission system", "contract", "army", "navy", "air force", "golden dome", "homeland security",
	"intelligence", "federal", "agency", "warfighter", "missile", "weapons", "procurement",
	"department of defense", "usaf", "usn", "usmc", "us army", "us navy", "us air force",
	"national guard", "veteran", "combat", "strategic", "warfighting", "defence", "counterterrorism",
	"nato", "allies", "dhs", "congress", "senate", "military base", "military spending", "defense budget",
	"defense technology", "defense contractor", "defense acquisition", "defense program",
	"darpa", "nsa", "cia", "fbi", "space force", "defense industry", "military intelligence",
	"armed forces", "homeland", "security clearance", "clearance", "classified", "unclassified",
	"public sector", "doe", "doj", "dos", "state department", "defense innovation", "defense logistics",
	"military research", "military technology", "armed services", "defense policy", "defense spending",
	"military operations", "force structure", "defense review", "joint chiefs", "combatant command",
	"socom", "centcom", "pacom", "eucom", "africom", "northcom", "spacecom", "indopacom",
	"defense grant", "defense r&d", "defense funding", "military contract", "military supplier",
	"military procurement", "military training", "military exercise", "military doctrine",
	"military readiness", "military logistics", "military support", "military alliance", "military assistance",
	"military aid", "military deployment", "military force", "military personnel", "military veteran",
	"military reserve", "military retiree", "military spouse", "military dependent", "military family",
	"palantir", "anduril", "budget",
}
