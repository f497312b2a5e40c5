package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/blockwatch/internal/dns/common/utils"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// ruleKindFromRaw decides the AllowRuleKind based on the raw, uncanonicalized input.
// Returns AllowRuleSuffix if the name begins with "*." or ".", otherwise AllowRuleExact.
func ruleKindFromRaw(raw string) domain.AllowRuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.AllowRuleSuffix
	}
	return domain.AllowRuleExact
}

// isValidFQDN checks whether the provided string is a usable domain name:
//   - The total length must not exceed 255 characters.
//   - The name must contain at least two labels.
//   - Each label must be between 1 and 63 characters long.
//   - The first label must start with a letter, number, or wildcard character.
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
	}
	runes := []rune(labels[0])
	if !isAlphaNumeric(runes[0]) && !isWildcard(runes[0]) {
		return false
	}
	return true
}

// normalizeDomainName trims whitespace, removes a leading "*." or "." marker
// and returns the canonical name.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isWildcard(r rune) bool {
	return r == '*'
}
