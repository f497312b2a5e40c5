package utils

import "golang.org/x/net/idna"

// ASCIIName returns the canonical A-label (punycode) form of name, suitable for
// use in URLs and API lookups. Names that fail IDNA conversion are returned in
// canonical form unchanged so callers can still attempt the lookup.
func ASCIIName(name string) string {
	name = CanonicalDNSName(name)
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return name
	}
	return ascii
}
