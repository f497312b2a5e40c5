package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/blockwatch/internal/dns/common/log"
	"github.com/haukened/blockwatch/internal/dns/config"
	"github.com/haukened/blockwatch/internal/dns/domain"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "blockwatchd"

	defaultTestDomain = "google.com"
	defaultTestClient = "1.2.3.4"
)

// errConfig marks failures that should not be retried by a supervisor.
var errConfig = errors.New("configuration error")

// seams for tests
var (
	loadConfig   = config.Load
	configureLog = log.Configure
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command is the same
// as "run".
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Notify about DNS lookups blocked by the upstream resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMonitor,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Watch the Pi-hole query log and send notifications",
		RunE:  runMonitor,
	}

	var domainName, client string
	testNotify := &cobra.Command{
		Use:   "test-notify",
		Short: "Send one synthetic block event through the configured notifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTestNotify(cmd.Context(), domainName, client)
		},
	}
	testNotify.Flags().StringVar(&domainName, "domain", defaultTestDomain, "domain to report")
	testNotify.Flags().StringVar(&client, "client", defaultTestClient, "client address to report")

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}

	root.AddCommand(run, testNotify, ver)
	return root
}

// setup loads configuration and configures global logging.
func setup() (*config.AppConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if err := configureLog(cfg.Env, cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	log.Info(map[string]any{
		"version":  version,
		"env":      cfg.Env,
		"ftl_db":   cfg.FTL.DBFile,
		"interval": cfg.FTL.PollInterval.String(),
		"strategy": cfg.Notify.Strategy,
		"metrics":  cfg.Metrics.Addr,
	}, "===== blockwatch startup =====")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Error(map[string]any{"error": err}, "failed to build application")
		return err
	}
	defer app.Close()

	if err := app.Run(cmd.Context()); err != nil {
		log.Error(map[string]any{"error": err}, "blockwatch stopped with error")
		return err
	}
	log.Info(nil, "blockwatch stopped gracefully")
	return nil
}

func runTestNotify(ctx context.Context, domainName, client string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	sink, err := buildSink(cfg, nil)
	if err != nil {
		return err
	}

	ev := domain.BlockEvent{
		ID:        1,
		Timestamp: time.Now().Unix(),
		Status:    domain.StatusBlockedUpstream,
		Domain:    domainName,
		Client:    client,
	}
	log.Info(map[string]any{"sink": sink.Name(), "domain": domainName, "client": client}, "sending test notification")
	sink.Notify(ctx, []domain.BlockEvent{ev})
	return nil
}
