package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

// isolate points the dotenv and secrets lookups at files that do not exist.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(dotenvFileVar, filepath.Join(dir, "missing.env"))
	t.Setenv(secretsFileVar, filepath.Join(dir, "missing-secrets"))
	t.Setenv(EnvPrefix+secretsFileVar, "")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected Log.Level=info, got %q", cfg.Log.Level)
	}
	if cfg.FTL.PollInterval != 60*time.Second {
		t.Errorf("expected FTL.PollInterval=60s, got %v", cfg.FTL.PollInterval)
	}
	if cfg.FTL.DBFile != "" {
		t.Errorf("expected FTL.DBFile empty, got %q", cfg.FTL.DBFile)
	}
	if cfg.Notify.Strategy != "auto" {
		t.Errorf("expected Notify.Strategy=auto, got %q", cfg.Notify.Strategy)
	}
	if cfg.SMTP.Port != 465 {
		t.Errorf("expected SMTP.Port=465, got %d", cfg.SMTP.Port)
	}
	if cfg.SMTP.Subject != "DNS Block" {
		t.Errorf("expected SMTP.Subject=DNS Block, got %q", cfg.SMTP.Subject)
	}
	if cfg.SMTP.Configured() {
		t.Errorf("expected SMTP not configured by default")
	}
	if cfg.Cloudflare.Configured() {
		t.Errorf("expected Cloudflare not configured by default")
	}
	if cfg.Cloudflare.Rate != 4 {
		t.Errorf("expected Cloudflare.Rate=4, got %v", cfg.Cloudflare.Rate)
	}
	if cfg.Allowlist.DB != "/var/lib/blockwatch/allowlist.db" {
		t.Errorf("expected Allowlist.DB default, got %q", cfg.Allowlist.DB)
	}
	if cfg.Allowlist.CacheSize != 1000 {
		t.Errorf("expected Allowlist.CacheSize=1000, got %d", cfg.Allowlist.CacheSize)
	}
	if len(cfg.Allowlist.Domains) != 0 {
		t.Errorf("expected no allowlist domains, got %v", cfg.Allowlist.Domains)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("expected metrics disabled, got %q", cfg.Metrics.Addr)
	}
}

func TestLoad_BareEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FTL_DB_FILE", "/etc/pihole/pihole-FTL.db")
	t.Setenv("POLL_INTERVAL", "15s")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2465")
	t.Setenv("SMTP_USERNAME", "mailer")
	t.Setenv("SMTP_PASSWORD", "pass with spaces")
	t.Setenv("MAIL_SENDER", "pihole@example.com")
	t.Setenv("MAIL_RECIPIENTS", "a@example.com, b@example.com")
	t.Setenv("WHITELIST", "example.com,*.cdn.example.net")
	t.Setenv("CLOUDFLARE_RATE", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected env/log: %q/%q", cfg.Env, cfg.Log.Level)
	}
	if cfg.FTL.DBFile != "/etc/pihole/pihole-FTL.db" {
		t.Errorf("unexpected FTL.DBFile %q", cfg.FTL.DBFile)
	}
	if cfg.FTL.PollInterval != 15*time.Second {
		t.Errorf("expected 15s poll interval, got %v", cfg.FTL.PollInterval)
	}
	if cfg.SMTP.Port != 2465 {
		t.Errorf("expected port 2465, got %d", cfg.SMTP.Port)
	}
	if cfg.SMTP.Password != "pass with spaces" {
		t.Errorf("password must not be split, got %q", cfg.SMTP.Password)
	}
	want := []string{"a@example.com", "b@example.com"}
	if strings.Join(cfg.SMTP.Recipients, "|") != strings.Join(want, "|") {
		t.Errorf("expected recipients %v, got %v", want, cfg.SMTP.Recipients)
	}
	if !cfg.SMTP.Configured() {
		t.Errorf("expected SMTP configured")
	}
	if strings.Join(cfg.Allowlist.Domains, "|") != "example.com|*.cdn.example.net" {
		t.Errorf("unexpected allowlist domains %v", cfg.Allowlist.Domains)
	}
	if cfg.Cloudflare.Rate != 2.5 {
		t.Errorf("expected rate 2.5, got %v", cfg.Cloudflare.Rate)
	}
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	isolate(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("BLOCKWATCH_LOG_LEVEL", "error")
	t.Setenv("BLOCKWATCH_ALLOWLIST_CACHE_SIZE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected prefixed LOG_LEVEL to win, got %q", cfg.Log.Level)
	}
	if cfg.Allowlist.CacheSize != 0 {
		t.Errorf("expected cache size 0, got %d", cfg.Allowlist.CacheSize)
	}
}

func TestLoad_EmptyEnvKeepsDefault(t *testing.T) {
	isolate(t)
	t.Setenv("SMTP_PORT", "")
	t.Setenv("LOG_LEVEL", "   ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SMTP.Port != 465 || cfg.Log.Level != "info" {
		t.Errorf("expected defaults, got port=%d level=%q", cfg.SMTP.Port, cfg.Log.Level)
	}
}

func TestLoad_Dotenv(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "blockwatch.env", "LOG_LEVEL=debug\nSMTP_HOST=dotenv.example.com\nUNRELATED=1\n")
	t.Setenv(dotenvFileVar, path)
	t.Setenv("SMTP_HOST", "env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level from dotenv, got %q", cfg.Log.Level)
	}
	if cfg.SMTP.Host != "env.example.com" {
		t.Errorf("expected environment to override dotenv, got %q", cfg.SMTP.Host)
	}
	if _, ok := os.LookupEnv("UNRELATED"); ok {
		t.Errorf("dotenv must not modify the process environment")
	}
}

func TestLoad_SecretsJSONWinsOverEnv(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "notifier_config", `{
		"SMTP_HOST": "secret.example.com",
		"SMTP_PASSWORD": "s3cret",
		"MAIL_SENDER": "pihole@example.com",
		"MAIL_RECIPIENTS": ["ops@example.com"],
		"NOTIFY_STRATEGY": "mail",
		"IGNORED_KEY": "x"
	}`)
	t.Setenv(secretsFileVar, path)
	t.Setenv("SMTP_HOST", "env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SMTP.Host != "secret.example.com" {
		t.Errorf("expected secrets file to win, got %q", cfg.SMTP.Host)
	}
	if cfg.SMTP.Password != "s3cret" {
		t.Errorf("unexpected password %q", cfg.SMTP.Password)
	}
	if len(cfg.SMTP.Recipients) != 1 || cfg.SMTP.Recipients[0] != "ops@example.com" {
		t.Errorf("unexpected recipients %v", cfg.SMTP.Recipients)
	}
	if cfg.Notify.Strategy != "mail" {
		t.Errorf("unexpected strategy %q", cfg.Notify.Strategy)
	}
}

func TestLoad_SecretsYAMLNested(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "secrets.yaml", "cloudflare:\n  api_key: key\n  account_id: acct\nWHITELIST: a.example.com b.example.com\n")
	t.Setenv("BLOCKWATCH_SECRETS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.Cloudflare.Configured() {
		t.Errorf("expected cloudflare configured, got %+v", cfg.Cloudflare)
	}
	if strings.Join(cfg.Allowlist.Domains, "|") != "a.example.com|b.example.com" {
		t.Errorf("unexpected allowlist %v", cfg.Allowlist.Domains)
	}
}

func TestLoad_SecretsTOML(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "secrets.toml", "SMTP_USERNAME = \"toml-user\"\n")
	t.Setenv(secretsFileVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SMTP.Username != "toml-user" {
		t.Errorf("unexpected username %q", cfg.SMTP.Username)
	}
}

func TestLoad_SecretsMalformed(t *testing.T) {
	dir := isolate(t)
	t.Setenv(secretsFileVar, writeFile(t, dir, "notifier_config", "{not json"))

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error loading secrets") {
		t.Fatalf("expected secrets error, got %v", err)
	}
}

func TestLoad_MailStrategyRequiresSMTP(t *testing.T) {
	isolate(t)
	t.Setenv("NOTIFY_STRATEGY", "mail")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"smtp.host", "smtp.sender", "smtp.recipients"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s in error, got %v", field, err)
		}
	}
}

func TestLoad_EnrichedMailRequiresCloudflare(t *testing.T) {
	isolate(t)
	t.Setenv("NOTIFY_STRATEGY", "enriched-mail")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("MAIL_SENDER", "pihole@example.com")
	t.Setenv("MAIL_RECIPIENTS", "ops@example.com")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "cloudflare.api_key") || !strings.Contains(err.Error(), "cloudflare.account_id") {
		t.Errorf("expected cloudflare fields in error, got %v", err)
	}

	t.Setenv("CLOUDFLARE_API_KEY", "key")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	if _, err := Load(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	isolate(t)
	orig := defaultLoader
	defer func() { defaultLoader = orig }()
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("fail default") }

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error loading default config") {
		t.Errorf("expected default config load error, got %v", err)
	}
}

func TestLoad_WhenDotenvLoadFails(t *testing.T) {
	isolate(t)
	orig := dotenvLoader
	defer func() { dotenvLoader = orig }()
	dotenvLoader = func(k *koanf.Koanf) error { return errors.New("fail dotenv") }

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error loading dotenv") {
		t.Errorf("expected dotenv load error, got %v", err)
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	isolate(t)
	orig := envLoader
	defer func() { envLoader = orig }()
	envLoader = func(k *koanf.Koanf) error { return errors.New("fail env") }

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error loading env") {
		t.Errorf("expected env load error, got %v", err)
	}
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	isolate(t)
	orig := registerValidation
	defer func() { registerValidation = orig }()
	registerValidation = func(v *validator.Validate) error { return errors.New("fail validation") }

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "error registering validation") {
		t.Errorf("expected registration error, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"env", "APP_ENV", "staging"},
		{"log level", "LOG_LEVEL", "notalevel"},
		{"strategy", "NOTIFY_STRATEGY", "pager"},
		{"port high", "SMTP_PORT", "70000"},
		{"port nan", "SMTP_PORT", "abc"},
		{"interval", "POLL_INTERVAL", "0s"},
		{"interval nan", "POLL_INTERVAL", "soon"},
		{"recipient", "MAIL_RECIPIENTS", "not-an-address"},
		{"sender", "MAIL_SENDER", "nobody"},
		{"cache size", "ALLOWLIST_CACHE_SIZE", "-1"},
		{"metrics addr", "METRICS_ADDR", "no-port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestConfigKey(t *testing.T) {
	tests := map[string]string{
		"SMTP_HOST":            "smtp.host",
		"BLOCKWATCH_SMTP_HOST": "smtp.host",
		"smtp_host":            "smtp.host",
		"smtp.host":            "smtp.host",
		"WHITELIST":            "allowlist.domains",
		"ALLOWLIST":            "allowlist.domains",
		"PATH":                 "",
	}
	for in, want := range tests {
		if got := configKey(in); got != want {
			t.Errorf("configKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParserFor(t *testing.T) {
	if parserFor("/run/secrets/notifier_config") == nil {
		t.Fatal("expected a parser")
	}
	// yaml accepts what json rejects
	if _, err := parserFor("x.yml").Unmarshal([]byte("a: 1")); err != nil {
		t.Errorf("expected yaml parser, got %v", err)
	}
	if _, err := parserFor("x").Unmarshal([]byte("a: 1")); err == nil {
		t.Errorf("expected json parser for extensionless file")
	}
	if _, err := parserFor("x.TOML").Unmarshal([]byte("a = 1")); err != nil {
		t.Errorf("expected toml parser, got %v", err)
	}
}

func TestDefaultLoader_InvalidDefault_ValidationFails(t *testing.T) {
	isolate(t)
	orig := DEFAULT_APP_CONFIG
	defer func() { DEFAULT_APP_CONFIG = orig }()
	DEFAULT_APP_CONFIG.Allowlist.DB = ""

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for empty allowlist db")
	}
}
