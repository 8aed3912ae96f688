package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the DueVoice server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir    string
	HTTPPort   int
	PublicHost string // externally reachable host for the media-stream websocket URL
	LogLevel   string
	LogFormat  string // log output format: "text" or "json"

	CORSOrigins string
	JWTSecret   string // hex-encoded 32-byte secret for admin API JWT signing

	EngineURL            string // websocket URL of the conversational voice engine
	EngineAPIKey         string
	EngineVoiceID        string
	EngineConnectTimeout time.Duration // deadline for establishing the engine connection
	BridgeReadTimeout    time.Duration // per-read deadline on both bridge websockets

	// SMTP settings for payment confirmation emails. Emails are disabled
	// when the host is empty.
	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      string // "none", "starttls", "tls"

	// Negotiation business parameters. Defaults match the current
	// collections policy; exposed as configuration because the discount,
	// the overdue threshold, and the plan term are set independently.
	MaxVerifyAttempts     int
	SettlementDiscountPct int // percent off the balance for a settlement offer
	SettlementMinOverdue  int // days overdue before a settlement is offered
	PaymentPlanMonths     int
}

// defaults
const (
	defaultDataDir              = "./data"
	defaultHTTPPort             = 8080
	defaultLogLevel             = "info"
	defaultLogFormat            = "text"
	defaultEngineConnectTimeout = 10 * time.Second
	defaultBridgeReadTimeout    = 30 * time.Second
	defaultMaxVerifyAttempts    = 2
	defaultSettlementDiscount   = 30
	defaultSettlementMinOverdue = 90
	defaultPaymentPlanMonths    = 6
)

// envPrefix is the prefix for all DueVoice environment variables.
const envPrefix = "DUEVOICE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("duevoice", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database and file storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.PublicHost, "public-host", "", "externally reachable host used to build the media-stream websocket URL (e.g. voice.example.com)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for admin API JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.EngineURL, "engine-url", "", "websocket URL of the conversational voice engine")
	fs.StringVar(&cfg.EngineAPIKey, "engine-api-key", "", "API key for the voice engine")
	fs.StringVar(&cfg.EngineVoiceID, "engine-voice-id", "", "voice identifier passed in the engine session handshake")
	fs.DurationVar(&cfg.EngineConnectTimeout, "engine-connect-timeout", defaultEngineConnectTimeout, "timeout for establishing the voice engine connection")
	fs.DurationVar(&cfg.BridgeReadTimeout, "bridge-read-timeout", defaultBridgeReadTimeout, "per-read deadline on bridge websockets")
	fs.StringVar(&cfg.SMTPHost, "smtp-host", "", "SMTP server hostname for payment confirmation emails (empty disables email)")
	fs.StringVar(&cfg.SMTPPort, "smtp-port", "587", "SMTP server port")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", "", "From address for outgoing email")
	fs.StringVar(&cfg.SMTPUsername, "smtp-username", "", "SMTP auth username")
	fs.StringVar(&cfg.SMTPPassword, "smtp-password", "", "SMTP auth password")
	fs.StringVar(&cfg.SMTPTLS, "smtp-tls", "starttls", "SMTP TLS mode (none, starttls, tls)")
	fs.IntVar(&cfg.MaxVerifyAttempts, "max-verify-attempts", defaultMaxVerifyAttempts, "failed identity verification attempts allowed before the call is ended")
	fs.IntVar(&cfg.SettlementDiscountPct, "settlement-discount-pct", defaultSettlementDiscount, "settlement discount as a percentage of the balance")
	fs.IntVar(&cfg.SettlementMinOverdue, "settlement-min-overdue", defaultSettlementMinOverdue, "days overdue before a settlement offer is made")
	fs.IntVar(&cfg.PaymentPlanMonths, "payment-plan-months", defaultPaymentPlanMonths, "term length in months for payment plan offers")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":                envPrefix + "DATA_DIR",
		"http-port":               envPrefix + "HTTP_PORT",
		"public-host":             envPrefix + "PUBLIC_HOST",
		"log-level":               envPrefix + "LOG_LEVEL",
		"log-format":              envPrefix + "LOG_FORMAT",
		"cors-origins":            envPrefix + "CORS_ORIGINS",
		"jwt-secret":              envPrefix + "JWT_SECRET",
		"engine-url":              envPrefix + "ENGINE_URL",
		"engine-api-key":          envPrefix + "ENGINE_API_KEY",
		"engine-voice-id":         envPrefix + "ENGINE_VOICE_ID",
		"engine-connect-timeout":  envPrefix + "ENGINE_CONNECT_TIMEOUT",
		"bridge-read-timeout":     envPrefix + "BRIDGE_READ_TIMEOUT",
		"smtp-host":               envPrefix + "SMTP_HOST",
		"smtp-port":               envPrefix + "SMTP_PORT",
		"smtp-from":               envPrefix + "SMTP_FROM",
		"smtp-username":           envPrefix + "SMTP_USERNAME",
		"smtp-password":           envPrefix + "SMTP_PASSWORD",
		"smtp-tls":                envPrefix + "SMTP_TLS",
		"max-verify-attempts":     envPrefix + "MAX_VERIFY_ATTEMPTS",
		"settlement-discount-pct": envPrefix + "SETTLEMENT_DISCOUNT_PCT",
		"settlement-min-overdue":  envPrefix + "SETTLEMENT_MIN_OVERDUE",
		"payment-plan-months":     envPrefix + "PAYMENT_PLAN_MONTHS",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "public-host":
			cfg.PublicHost = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "engine-url":
			cfg.EngineURL = val
		case "engine-api-key":
			cfg.EngineAPIKey = val
		case "engine-voice-id":
			cfg.EngineVoiceID = val
		case "engine-connect-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.EngineConnectTimeout = v
			}
		case "bridge-read-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.BridgeReadTimeout = v
			}
		case "smtp-host":
			cfg.SMTPHost = val
		case "smtp-port":
			cfg.SMTPPort = val
		case "smtp-from":
			cfg.SMTPFrom = val
		case "smtp-username":
			cfg.SMTPUsername = val
		case "smtp-password":
			cfg.SMTPPassword = val
		case "smtp-tls":
			cfg.SMTPTLS = val
		case "max-verify-attempts":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MaxVerifyAttempts = v
			}
		case "settlement-discount-pct":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SettlementDiscountPct = v
			}
		case "settlement-min-overdue":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SettlementMinOverdue = v
			}
		case "payment-plan-months":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PaymentPlanMonths = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.EngineURL != "" && !strings.HasPrefix(c.EngineURL, "ws://") && !strings.HasPrefix(c.EngineURL, "wss://") {
		return fmt.Errorf("engine-url must be a ws:// or wss:// URL, got %q", c.EngineURL)
	}
	// Without a public host the incoming-call webhook would hand the
	// provider a stream URL with an empty authority.
	if c.EngineURL != "" && c.PublicHost == "" {
		return fmt.Errorf("public-host is required when engine-url is set")
	}
	if c.EngineConnectTimeout <= 0 {
		return fmt.Errorf("engine-connect-timeout must be positive, got %s", c.EngineConnectTimeout)
	}
	if c.BridgeReadTimeout <= 0 {
		return fmt.Errorf("bridge-read-timeout must be positive, got %s", c.BridgeReadTimeout)
	}
	if c.MaxVerifyAttempts < 1 {
		return fmt.Errorf("max-verify-attempts must be at least 1, got %d", c.MaxVerifyAttempts)
	}
	if c.SettlementDiscountPct < 0 || c.SettlementDiscountPct > 100 {
		return fmt.Errorf("settlement-discount-pct must be between 0 and 100, got %d", c.SettlementDiscountPct)
	}
	if c.SettlementMinOverdue < 0 {
		return fmt.Errorf("settlement-min-overdue must not be negative, got %d", c.SettlementMinOverdue)
	}
	if c.PaymentPlanMonths < 1 {
		return fmt.Errorf("payment-plan-months must be at least 1, got %d", c.PaymentPlanMonths)
	}

	validTLS := map[string]bool{"none": true, "starttls": true, "tls": true}
	if c.SMTPTLS != "" && !validTLS[strings.ToLower(c.SMTPTLS)] {
		return fmt.Errorf("smtp-tls must be one of none, starttls, tls; got %q", c.SMTPTLS)
	}
	c.SMTPTLS = strings.ToLower(c.SMTPTLS)

	return nil
}

// StreamURL returns the websocket URL the telephony provider should connect
// its media stream to. The scheme is always wss; providers require TLS for
// media streams.
func (c *Config) StreamURL() string {
	host := strings.TrimPrefix(strings.TrimPrefix(c.PublicHost, "https://"), "wss://")
	return fmt.Sprintf("wss://%s/ws/stream", host)
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
