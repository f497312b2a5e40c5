package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is optional on every variable; prefixed variables win.
	EnvPrefix = "BLOCKWATCH_"

	// DefaultSecretsFile is where a Docker secret named notifier_config is mounted.
	DefaultSecretsFile = "/run/secrets/notifier_config"
	DefaultDotenvFile  = ".env"

	secretsFileVar = "SECRETS_FILE"
	dotenvFileVar  = EnvPrefix + "DOTENV"
)

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env        string           `koanf:"env" validate:"required,oneof=dev prod"`
	Log        LogConfig        `koanf:"log"`
	FTL        FTLConfig        `koanf:"ftl"`
	Notify     NotifyConfig     `koanf:"notify"`
	SMTP       SMTPConfig       `koanf:"smtp"`
	Cloudflare CloudflareConfig `koanf:"cloudflare"`
	Allowlist  AllowlistConfig  `koanf:"allowlist"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	// File, when set, receives a rotated copy of the log.
	File string `koanf:"file"`
}

type FTLConfig struct {
	// DBFile is the Pi-hole FTL database. Checked by the monitor at startup.
	DBFile       string        `koanf:"db_file"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
}

type NotifyConfig struct {
	Strategy string `koanf:"strategy" validate:"required,oneof=auto console mail enriched-mail"`
}

type SMTPConfig struct {
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port" validate:"gte=1,lte=65535"`
	Username   string        `koanf:"username"`
	Password   string        `koanf:"password"`
	Sender     string        `koanf:"sender" validate:"omitempty,email"`
	Recipients []string      `koanf:"recipients" validate:"dive,email"`
	Subject    string        `koanf:"subject" validate:"required"`
	Timeout    time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Configured reports whether enough is set to send mail.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Sender != "" && len(c.Recipients) > 0
}

type CloudflareConfig struct {
	APIKey    string        `koanf:"api_key"`
	AccountID string        `koanf:"account_id"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	// Rate is the maximum number of lookups per second.
	Rate float64 `koanf:"rate" validate:"gt=0"`
}

// Configured reports whether category lookups are possible.
func (c CloudflareConfig) Configured() bool {
	return c.APIKey != "" && c.AccountID != ""
}

type AllowlistConfig struct {
	// Domains are exact names or "*.suffix" entries never notified about.
	Domains   []string `koanf:"domains"`
	File      string   `koanf:"file"`
	DB        string   `koanf:"db" validate:"required"`
	CacheSize int      `koanf:"cache_size" validate:"gte=0"`
}

type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set.
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG holds the defaults applied before any other source.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:    "prod",
	Log:    LogConfig{Level: "info"},
	FTL:    FTLConfig{PollInterval: 60 * time.Second},
	Notify: NotifyConfig{Strategy: "auto"},
	SMTP: SMTPConfig{
		Port:    465,
		Subject: "DNS Block",
		Timeout: 30 * time.Second,
	},
	Cloudflare: CloudflareConfig{
		Timeout: 10 * time.Second,
		Rate:    4,
	},
	Allowlist: AllowlistConfig{
		DB:        "/var/lib/blockwatch/allowlist.db",
		CacheSize: 1000,
	},
}

// envKeys maps variable names (without EnvPrefix) to config keys. The bare
// names are the ones the notifier has always read.
var envKeys = map[string]string{
	"APP_ENV":               "env",
	"LOG_LEVEL":             "log.level",
	"LOG_FILE":              "log.file",
	"FTL_DB_FILE":           "ftl.db_file",
	"POLL_INTERVAL":         "ftl.poll_interval",
	"NOTIFY_STRATEGY":       "notify.strategy",
	"SMTP_HOST":             "smtp.host",
	"SMTP_PORT":             "smtp.port",
	"SMTP_USERNAME":         "smtp.username",
	"SMTP_PASSWORD":         "smtp.password",
	"MAIL_SENDER":           "smtp.sender",
	"MAIL_RECIPIENTS":       "smtp.recipients",
	"MAIL_SUBJECT":          "smtp.subject",
	"SMTP_TIMEOUT":          "smtp.timeout",
	"CLOUDFLARE_API_KEY":    "cloudflare.api_key",
	"CLOUDFLARE_ACCOUNT_ID": "cloudflare.account_id",
	"CLOUDFLARE_TIMEOUT":    "cloudflare.timeout",
	"CLOUDFLARE_RATE":       "cloudflare.rate",
	"WHITELIST":             "allowlist.domains",
	"ALLOWLIST":             "allowlist.domains",
	"ALLOWLIST_FILE":        "allowlist.file",
	"ALLOWLIST_DB":          "allowlist.db",
	"ALLOWLIST_CACHE_SIZE":  "allowlist.cache_size",
	"METRICS_ADDR":          "metrics.addr",
}

// listKeys are split on commas and whitespace when given as a string.
var listKeys = map[string]bool{
	"smtp.recipients":   true,
	"allowlist.domains": true,
}

// configKey maps an environment-style name or a config key to a config key.
// Unknown names return "".
func configKey(name string) string {
	if k, ok := envKeys[strings.TrimPrefix(strings.ToUpper(name), EnvPrefix)]; ok {
		return k
	}
	lower := strings.ToLower(name)
	for _, k := range envKeys {
		if k == lower {
			return k
		}
	}
	return ""
}

// normalizeValue trims strings and splits list values.
func normalizeValue(key string, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(s)
	if listKeys[key] {
		return strings.FieldsFunc(s, func(r rune) bool {
			return r == ' ' || r == ','
		})
	}
	return s
}

// translate maps a flat source map onto config keys, dropping unknown and
// empty entries.
func translate(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for name, v := range in {
		key := configKey(name)
		if key == "" {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out[key] = normalizeValue(key, v)
	}
	return out
}

// envTransform is the env provider's transform; returning "" skips a variable.
func envTransform(key, value string) (string, any) {
	k := configKey(key)
	if k == "" || strings.TrimSpace(value) == "" {
		return "", nil
	}
	return k, normalizeValue(k, value)
}

// defaultLoader loads DEFAULT_APP_CONFIG using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// dotenvLoader loads a .env file when present. Variables in the file do not
// touch the process environment.
var dotenvLoader = func(k *koanf.Koanf) error {
	path := os.Getenv(dotenvFileVar)
	if path == "" {
		path = DefaultDotenvFile
	}
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	flat := make(map[string]any, len(vals))
	for name, v := range vals {
		flat[name] = v
	}
	return k.Load(confmap.Provider(translate(flat), "."), nil)
}

// envLoader loads bare variables first and EnvPrefix variables second, so
// prefixed ones win.
var envLoader = func(k *koanf.Koanf) error {
	bare := env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if strings.HasPrefix(key, EnvPrefix) {
				return "", nil
			}
			return envTransform(key, value)
		},
	})
	if err := k.Load(bare, nil); err != nil {
		return err
	}
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
	}), nil)
}

// secretsLoader loads the secrets file, which wins over the environment.
// A missing file is not an error.
var secretsLoader = func(k *koanf.Koanf) error {
	path := os.Getenv(EnvPrefix + secretsFileVar)
	if path == "" {
		path = os.Getenv(secretsFileVar)
	}
	if path == "" {
		path = DefaultSecretsFile
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	tmp := koanf.New(".")
	if err := tmp.Load(file.Provider(path), parserFor(path)); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return k.Load(confmap.Provider(translate(tmp.All()), "."), nil)
}

// parserFor picks a parser by file extension. Files without a known
// extension are JSON.
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return json.Parser()
	}
}

// validateStrategy requires the credentials a notify strategy depends on.
func validateStrategy(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(AppConfig)
	switch cfg.Notify.Strategy {
	case "mail", "enriched-mail":
		if cfg.SMTP.Host == "" {
			sl.ReportError(cfg.SMTP.Host, "smtp.host", "Host", "required_for_mail", cfg.Notify.Strategy)
		}
		if cfg.SMTP.Sender == "" {
			sl.ReportError(cfg.SMTP.Sender, "smtp.sender", "Sender", "required_for_mail", cfg.Notify.Strategy)
		}
		if len(cfg.SMTP.Recipients) == 0 {
			sl.ReportError(cfg.SMTP.Recipients, "smtp.recipients", "Recipients", "required_for_mail", cfg.Notify.Strategy)
		}
	}
	if cfg.Notify.Strategy == "enriched-mail" {
		if cfg.Cloudflare.APIKey == "" {
			sl.ReportError(cfg.Cloudflare.APIKey, "cloudflare.api_key", "APIKey", "required_for_enrichment", cfg.Notify.Strategy)
		}
		if cfg.Cloudflare.AccountID == "" {
			sl.ReportError(cfg.Cloudflare.AccountID, "cloudflare.account_id", "AccountID", "required_for_enrichment", cfg.Notify.Strategy)
		}
	}
}

// registerValidation registers the cross-field strategy rule.
var registerValidation = func(v *validator.Validate) error {
	v.RegisterStructValidation(validateStrategy, AppConfig{})
	return nil
}

// Load reads defaults, an optional .env file, the environment and an
// optional secrets file, in that order of precedence, then validates.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := dotenvLoader(k); err != nil {
		return nil, fmt.Errorf("error loading dotenv: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}
	if err := secretsLoader(k); err != nil {
		return nil, fmt.Errorf("error loading secrets: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}
