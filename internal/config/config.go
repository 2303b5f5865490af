// Package config manages gonat64 daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and compiled-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gonat64 configuration.
type Config struct {
	Control   ControlConfig   `koanf:"control"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Translate TranslateConfig `koanf:"translate"`
	Pool4     []string        `koanf:"pool4"`
}

// ControlConfig holds the JSON-over-HTTP control API listen address
// (internal/controlapi).
type ControlConfig struct {
	// Addr is the control API listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// TranslateConfig holds the translation core's parameters: the five
// session expiry-class timeouts, the IPv6 embedding prefix length used
// to recover the destination IPv4 address, and the simultaneous-open
// policy for unsolicited inbound SYNs.
type TranslateConfig struct {
	// PrefixLen is the RFC 6052 §2.2 prefix length embedding IPv4
	// addresses in IPv6 (one of 32, 40, 48, 56, 64, 96).
	PrefixLen int `koanf:"prefix_len"`

	// AllowIncomingSYN enables provisional-session creation on an
	// unsolicited IPv4-ingress SYN (RFC 6146 §3.5.2.2 simultaneous
	// open). Disabled by default.
	AllowIncomingSYN bool `koanf:"allow_incoming_syn"`

	UDPTimeout            time.Duration `koanf:"udp_timeout"`
	ICMPTimeout           time.Duration `koanf:"icmp_timeout"`
	TCPEstTimeout         time.Duration `koanf:"tcp_est_timeout"`
	TCPTransTimeout       time.Duration `koanf:"tcp_trans_timeout"`
	TCPIncomingSynTimeout time.Duration `koanf:"tcp_incoming_syn_timeout"`

	// SweepInterval is how often the expiry sweep walks the five
	// timeout queues.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Pool4Addrs parses the Pool4 string list as netip.Addr values.
func (c Config) Pool4Addrs() ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(c.Pool4))
	for _, s := range c.Pool4 {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse pool4 address %q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults,
// following the RFC 6146 §4 recommended minimum session lifetimes.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Translate: TranslateConfig{
			PrefixLen:             96,
			AllowIncomingSYN:      false,
			UDPTimeout:            5 * time.Minute,
			ICMPTimeout:           1 * time.Minute,
			TCPEstTimeout:         2*time.Hour + 4*time.Minute,
			TCPTransTimeout:       4 * time.Minute,
			TCPIncomingSynTimeout: 6 * time.Second,
			SweepInterval:         1 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gonat64 configuration.
// Variables are named GONAT64_<section>_<key>, e.g., GONAT64_CONTROL_ADDR.
const envPrefix = "GONAT64_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GONAT64_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GONAT64_CONTROL_ADDR             -> control.addr
//	GONAT64_METRICS_ADDR             -> metrics.addr
//	GONAT64_METRICS_PATH             -> metrics.path
//	GONAT64_LOG_LEVEL                -> log.level
//	GONAT64_LOG_FORMAT               -> log.format
//	GONAT64_TRANSLATE_PREFIX_LEN     -> translate.prefix_len
//	GONAT64_TRANSLATE_UDP_TIMEOUT    -> translate.udp_timeout
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GONAT64_TRANSLATE_UDP_TIMEOUT ->
// translate.udp_timeout. Strips the GONAT64_ prefix, lowercases, and
// replaces the first _ (the section separator) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"control.addr":                       defaults.Control.Addr,
		"metrics.addr":                       defaults.Metrics.Addr,
		"metrics.path":                       defaults.Metrics.Path,
		"log.level":                          defaults.Log.Level,
		"log.format":                         defaults.Log.Format,
		"translate.prefix_len":               defaults.Translate.PrefixLen,
		"translate.allow_incoming_syn":       defaults.Translate.AllowIncomingSYN,
		"translate.udp_timeout":              defaults.Translate.UDPTimeout.String(),
		"translate.icmp_timeout":             defaults.Translate.ICMPTimeout.String(),
		"translate.tcp_est_timeout":          defaults.Translate.TCPEstTimeout.String(),
		"translate.tcp_trans_timeout":        defaults.Translate.TCPTransTimeout.String(),
		"translate.tcp_incoming_syn_timeout": defaults.Translate.TCPIncomingSynTimeout.String(),
		"translate.sweep_interval":           defaults.Translate.SweepInterval.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyControlAddr indicates the control API listen address is empty.
	ErrEmptyControlAddr = errors.New("control.addr must not be empty")

	// ErrInvalidPrefixLen indicates translate.prefix_len is not an
	// RFC 6052 §2.2 well-known length.
	ErrInvalidPrefixLen = errors.New("translate.prefix_len must be one of 32, 40, 48, 56, 64, 96")

	// ErrInvalidTimeout indicates one of the five timeout classes is
	// not strictly positive.
	ErrInvalidTimeout = errors.New("translate timeout values must be > 0")

	// ErrInvalidPool4Addr indicates a pool4 entry failed to parse as
	// an IPv4 address.
	ErrInvalidPool4Addr = errors.New("pool4 entry is not a valid IPv4 address")

	// ErrDuplicatePool4Addr indicates the same address appears twice
	// in the pool4 list.
	ErrDuplicatePool4Addr = errors.New("duplicate pool4 address")
)

var validPrefixLengths = map[int]bool{32: true, 40: true, 48: true, 56: true, 64: true, 96: true}

// Validate checks the configuration for logical errors. Returns the
// first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Control.Addr == "" {
		return ErrEmptyControlAddr
	}
	if !validPrefixLengths[cfg.Translate.PrefixLen] {
		return ErrInvalidPrefixLen
	}
	for _, d := range []time.Duration{
		cfg.Translate.UDPTimeout, cfg.Translate.ICMPTimeout,
		cfg.Translate.TCPEstTimeout, cfg.Translate.TCPTransTimeout,
		cfg.Translate.TCPIncomingSynTimeout,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	return validatePool4(cfg.Pool4)
}

func validatePool4(addrs []string) error {
	seen := make(map[string]struct{}, len(addrs))
	for i, s := range addrs {
		addr, err := netip.ParseAddr(s)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("pool4[%d] %q: %w", i, s, ErrInvalidPool4Addr)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("pool4[%d] %q: %w", i, s, ErrDuplicatePool4Addr)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
