package notifier

import (
	"strings"
	"time"

	"github.com/haukened/blockwatch/internal/dns/domain"
)

const (
	reportHeader = "DNS lookup(s) blocked by upstream server:"
	reportTime   = "2006-01-02 15:04:05"
)

// RenderReport renders the plain-text mail body for events, with times in
// the local timezone.
func RenderReport(events []domain.BlockEvent) string {
	return renderReport(events, time.Local)
}

func renderReport(events []domain.BlockEvent, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(reportHeader)
	b.WriteString("\n\n")
	for _, ev := range events {
		b.WriteString("- ")
		b.WriteString(ev.Time().In(loc).Format(reportTime))
		b.WriteString(" ")
		b.WriteString(ev.Domain)
		b.WriteString(" (from ")
		b.WriteString(ev.Client)
		b.WriteString(")\n")
		b.WriteString(strings.TrimRight("  Categories: "+strings.Join(ev.Categories, ", "), " "))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
