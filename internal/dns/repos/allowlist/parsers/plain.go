package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

const bom = "\uFEFF"

// ParsePlainList reads one allowlist entry per line. A leading "*." or "."
// makes an entry a suffix rule covering the apex and every subdomain;
// anything else is exact. "#" starts a comment. Invalid and repeated entries
// are skipped. Every rule is attributed to source and stamped with now.
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.AllowRule, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	var out []domain.AllowRule

	skip := func(line int, entry, reason string) {
		logger.Debug(map[string]any{"source": source, "line": line, "entry": entry, "reason": reason}, "allowlist entry skipped")
	}

	for lineNum := 1; scanner.Scan(); lineNum++ {
		entry := scanner.Text()
		if lineNum == 1 {
			entry = strings.TrimPrefix(entry, bom)
		}
		if idx := strings.IndexByte(entry, '#'); idx >= 0 {
			entry = entry[:idx]
		}
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		kind := ruleKindFromRaw(entry)
		name := normalizeDomainName(entry)
		if !isValidFQDN(name) {
			skip(lineNum, entry, "not a domain name")
			continue
		}

		key := name + "|" + kind.String()
		if _, dup := seen[key]; dup {
			skip(lineNum, entry, "duplicate")
			continue
		}

		rule := domain.AllowRule{Name: name, Kind: kind, Source: source, AddedAt: now}
		if err := rule.Validate(); err != nil {
			skip(lineNum, entry, err.Error())
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rule)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "rules": len(out)}, "allowlist file parsed")
	return out, nil
}
