package utils

import "strings"

// CanonicalDNSName folds a domain from the query log or the allowlist into
// the form both sides are compared in: trimmed, lowercased, and without
// trailing dots. FTL stores names without the root dot while allowlist
// entries are often written fully qualified.
func CanonicalDNSName(name string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(name)), ".")
}
