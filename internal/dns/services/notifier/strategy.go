package notifier

import (
	"fmt"

	"github.com/haukened/blockwatch/internal/dns/common/log"
)

// Strategy selects the notification pipeline.
type Strategy string

const (
	StrategyAuto         Strategy = "auto"
	StrategyConsole      Strategy = "console"
	StrategyMail         Strategy = "mail"
	StrategyEnrichedMail Strategy = "enriched-mail"
)

// ParseStrategy accepts the configured strategy name; empty means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyConsole, StrategyMail, StrategyEnrichedMail:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown notify strategy %q", s)
	}
}

// Options carries everything Build may wire. Transport and Enricher are nil
// when their credentials are not configured.
type Options struct {
	Strategy  Strategy
	Logger    log.Logger
	Transport Transport
	Mail      MailSettings
	Enricher  Enricher
	// Allowlist wraps the pipeline when non-nil.
	Allowlist Allowlist
}

// Resolve turns auto into a concrete strategy based on what is configured.
func Resolve(s Strategy, hasTransport, hasEnricher bool) Strategy {
	if s != StrategyAuto && s != "" {
		return s
	}
	switch {
	case hasTransport && hasEnricher:
		return StrategyEnrichedMail
	case hasTransport:
		return StrategyMail
	default:
		return StrategyConsole
	}
}

// Build assembles the sink for opts.
//
//	console       -> Console
//	mail          -> Multi(Console, Mail)
//	enriched-mail -> Enriching(Multi(Console, Mail))
func Build(opts Options) (Sink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	strategy := Resolve(opts.Strategy, opts.Transport != nil, opts.Enricher != nil)

	var sink Sink
	switch strategy {
	case StrategyConsole:
		sink = NewConsoleSink(logger)
	case StrategyMail, StrategyEnrichedMail:
		if opts.Transport == nil {
			return nil, fmt.Errorf("strategy %s requires a mail transport", strategy)
		}
		sink = NewMultiSink(logger, NewConsoleSink(logger), NewMailSink(opts.Transport, opts.Mail, logger))
		if strategy == StrategyEnrichedMail {
			if opts.Enricher == nil {
				return nil, fmt.Errorf("strategy %s requires a category enricher", strategy)
			}
			sink = NewEnrichingSink(opts.Enricher, sink, logger)
		}
	default:
		return nil, fmt.Errorf("unknown notify strategy %q", strategy)
	}

	if opts.Allowlist != nil {
		sink = NewAllowlistSink(opts.Allowlist, sink, logger)
	}
	return sink, nil
}
