package domain

import (
	"fmt"
	"strings"
	"time"
)

// AllowRuleKind defines how an allowlist rule matches domains.
//
// exact  - matches the name only
// suffix - matches the name and any subdomain (apex-inclusive suffix)
type AllowRuleKind uint8

const (
	// AllowRuleExact matches only the exact domain.
	AllowRuleExact AllowRuleKind = iota
	// AllowRuleSuffix matches the domain and all its subdomains (apex-inclusive).
	AllowRuleSuffix
)

// String returns a stable string representation of the rule kind.
func (k AllowRuleKind) String() string {
	switch k {
	case AllowRuleExact:
		return "exact"
	case AllowRuleSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("AllowRuleKind(%d)", k)
	}
}

// AllowRule suppresses notifications for a domain.
//
// Name is canonical and without a trailing dot. Source identifies where the
// rule came from (e.g. "config").
type AllowRule struct {
	Name    string
	Kind    AllowRuleKind
	Source  string
	AddedAt time.Time
}

// ParseAllowRule converts an allowlist entry into a rule. A leading "*." or
// "." makes it a suffix rule; anything else is exact.
func ParseAllowRule(entry, source string, addedAt time.Time) (AllowRule, error) {
	s := strings.ToLower(strings.TrimSpace(entry))
	kind := AllowRuleExact
	switch {
	case strings.HasPrefix(s, "*."):
		kind = AllowRuleSuffix
		s = s[2:]
	case strings.HasPrefix(s, "."):
		kind = AllowRuleSuffix
		s = s[1:]
	}
	s = strings.TrimRight(s, ".")
	r := AllowRule{Name: s, Kind: kind, Source: strings.TrimSpace(source), AddedAt: addedAt}
	if err := r.Validate(); err != nil {
		return AllowRule{}, fmt.Errorf("allowlist entry %q: %w", entry, err)
	}
	return r, nil
}

// Validate checks the AllowRule for required fields and supported values.
func (r AllowRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if strings.ContainsAny(r.Name, " *") {
		return fmt.Errorf("rule name %q contains invalid characters", r.Name)
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	switch r.Kind {
	case AllowRuleExact, AllowRuleSuffix:
	default:
		return fmt.Errorf("unsupported AllowRuleKind: %d", r.Kind)
	}
	return nil
}

// IsExact returns true when the rule kind is exact.
func (r AllowRule) IsExact() bool { return r.Kind == AllowRuleExact }

// IsSuffix returns true when the rule kind is suffix (apex-inclusive).
func (r AllowRule) IsSuffix() bool { return r.Kind == AllowRuleSuffix }

// AllowDecision represents the outcome of evaluating a domain against the allowlist.
type AllowDecision struct {
	Allowed     bool   // true if notifications for the name are suppressed
	MatchedRule string // rule name that matched
	Source      string
	Kind        AllowRuleKind
}

// EmptyDecision returns a not-allowed decision.
func EmptyDecision() AllowDecision { return AllowDecision{} }
