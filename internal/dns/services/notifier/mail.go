package notifier

import (
	"context"

	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/common/metrics"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

// DefaultSubject is used when no mail subject is configured.
const DefaultSubject = "DNS Block"

// MailSettings holds the envelope for report mails.
type MailSettings struct {
	Sender     string
	Recipients []string
	Subject    string
}

// MailSink mails one report per non-empty batch.
type MailSink struct {
	transport Transport
	settings  MailSettings
	logger    log.Logger
}

func NewMailSink(t Transport, settings MailSettings, logger log.Logger) *MailSink {
	if settings.Subject == "" {
		settings.Subject = DefaultSubject
	}
	return &MailSink{transport: t, settings: settings, logger: logger}
}

func (s *MailSink) Name() string { return "mail" }

func (s *MailSink) Notify(ctx context.Context, events []domain.BlockEvent) {
	if len(events) == 0 {
		return
	}
	body := RenderReport(events)
	s.logger.Debug(map[string]any{"body": body}, "mail report rendered")
	err := s.transport.Send(ctx, s.settings.Recipients, s.settings.Sender, s.settings.Subject, body)
	if err != nil {
		metrics.IncMailFailure()
		s.logger.Error(map[string]any{"error": err, "events": len(events)}, "error sending mail")
		return
	}
	s.logger.Info(map[string]any{"events": len(events), "recipients": len(s.settings.Recipients)}, "report mailed")
}
