package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/blockwatch/internal/dns/common/clock"
	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/common/metrics"
	"github.com/haukened/blockwatch/internal/dns/config"
	"github.com/haukened/blockwatch/internal/dns/domain"
	"github.com/haukened/blockwatch/internal/dns/gateways/intel"
	"github.com/haukened/blockwatch/internal/dns/gateways/mail"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist/bloom"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist/bolt"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist/lru"
	"github.com/haukened/blockwatch/internal/dns/repos/allowlist/parsers"
	"github.com/haukened/blockwatch/internal/dns/repos/ftl"
	"github.com/haukened/blockwatch/internal/dns/services/monitor"
	"github.com/haukened/blockwatch/internal/dns/services/notifier"
)

const (
	// allowlist bloom filter false-positive target
	allowlistFPRate = 0.01
	configSource    = "config"
)

// Application holds all the components of the monitor.
type Application struct {
	config    *config.AppConfig
	monitor   *monitor.Monitor
	allowlist allowlist.Repository
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	store, err := ftl.New(cfg.FTL.DBFile)
	if err != nil {
		return nil, fmt.Errorf("%w: ftl.db_file: %w", monitor.ErrConfig, err)
	}

	allow, err := buildAllowlist(cfg.Allowlist, logger, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	var filter notifier.Allowlist
	if allow != nil {
		filter = allow
	}
	sink, err := buildSink(cfg, filter)
	if err != nil {
		if allow != nil {
			_ = allow.Close()
		}
		return nil, err
	}

	mon := monitor.New(monitor.Options{
		Source:   store,
		Sink:     sink,
		Clock:    clock.RealClock{},
		Interval: cfg.FTL.PollInterval,
		Logger:   logger,
	})

	return &Application{config: cfg, monitor: mon, allowlist: allow}, nil
}

// buildSink creates the gateways the configuration enables and assembles the
// notification pipeline.
func buildSink(cfg *config.AppConfig, allow notifier.Allowlist) (notifier.Sink, error) {
	logger := log.GetLogger()

	strategy, err := notifier.ParseStrategy(cfg.Notify.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	opts := notifier.Options{
		Strategy:  strategy,
		Logger:    logger,
		Allowlist: allow,
		Mail: notifier.MailSettings{
			Sender:     cfg.SMTP.Sender,
			Recipients: cfg.SMTP.Recipients,
			Subject:    cfg.SMTP.Subject,
		},
	}

	if cfg.SMTP.Configured() {
		t, err := mail.NewTransport(mail.Options{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: smtp: %w", errConfig, err)
		}
		opts.Transport = t
		log.Info(map[string]any{
			"host":       cfg.SMTP.Host,
			"port":       cfg.SMTP.Port,
			"recipients": len(cfg.SMTP.Recipients),
		}, "mail transport configured")
	}

	if cfg.Cloudflare.Configured() {
		c, err := intel.NewClient(intel.Options{
			APIKey:    cfg.Cloudflare.APIKey,
			AccountID: cfg.Cloudflare.AccountID,
			Timeout:   cfg.Cloudflare.Timeout,
			Rate:      cfg.Cloudflare.Rate,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: cloudflare: %w", errConfig, err)
		}
		opts.Enricher = c
		log.Info(map[string]any{"rate": cfg.Cloudflare.Rate}, "category lookups configured")
	}

	sink, err := notifier.Build(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	log.Info(map[string]any{"sink": sink.Name(), "allowlist": allow != nil}, "notifier configured")
	return sink, nil
}

// buildAllowlist loads the configured allowlist into the bolt store. It
// returns nil when no entries are configured.
func buildAllowlist(cfg config.AllowlistConfig, logger log.Logger, now time.Time) (allowlist.Repository, error) {
	rules, err := loadAllowRules(cfg, logger, now)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o750); err != nil {
		return nil, fmt.Errorf("allowlist db directory: %w", err)
	}
	store, err := bolt.New(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open allowlist db: %w", err)
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("allowlist cache: %w", err)
	}

	repo := allowlist.NewRepository(store, cache, bloom.NewFactory(), allowlistFPRate)
	if err := repo.UpdateAll(rules, uint64(len(rules)), now.Unix()); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("load allowlist: %w", err)
	}
	log.Info(map[string]any{"rules": len(rules), "db": cfg.DB}, "allowlist loaded")
	return repo, nil
}

// loadAllowRules merges configured domains and the optional list file,
// skipping invalid and duplicate entries.
func loadAllowRules(cfg config.AllowlistConfig, logger log.Logger, now time.Time) ([]domain.AllowRule, error) {
	seen := make(map[string]struct{})
	var rules []domain.AllowRule
	add := func(r domain.AllowRule) {
		key := r.Name + "|" + r.Kind.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		rules = append(rules, r)
	}

	for _, entry := range cfg.Domains {
		r, err := domain.ParseAllowRule(entry, configSource, now)
		if err != nil {
			logger.Warn(map[string]any{"entry": entry, "error": err}, "invalid allowlist entry skipped")
			continue
		}
		add(r)
	}

	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open allowlist file: %w", err)
		}
		defer func() { _ = f.Close() }()
		fileRules, err := parsers.ParsePlainList(f, cfg.File, logger, now)
		if err != nil {
			return nil, fmt.Errorf("parse allowlist file: %w", err)
		}
		for _, r := range fileRules {
			add(r)
		}
	}
	return rules, nil
}

// Run starts the monitor, and the metrics endpoint when enabled, and blocks
// until ctx is cancelled or either of them fails.
func (app *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := app.config.Metrics.Addr; addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		g.Go(func() error {
			log.Info(map[string]any{"address": addr}, "metrics endpoint started")
			return metrics.Serve(gctx, addr)
		})
	}

	g.Go(func() error {
		return app.monitor.Run(gctx)
	})

	return g.Wait()
}

// Close releases the allowlist store.
func (app *Application) Close() {
	if app.allowlist == nil {
		return
	}
	if err := app.allowlist.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "error closing allowlist")
	}
}
