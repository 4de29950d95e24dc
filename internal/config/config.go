// Package config loads the gateway's YAML configuration and environment
// overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/verifier"
)

const (
	EnvProduction         = "production"
	DefaultFacilitatorURL = "https://x402.org/facilitator"
)

// Config mirrors the YAML file.
type Config struct {
	Environment string `yaml:"environment"`
	// PublicBaseURL is the externally visible origin used to build resource
	// URLs. When empty it is derived from each request.
	PublicBaseURL  string `yaml:"publicBaseURL"`
	MaxRequestBody int64  `yaml:"maxRequestBody"`

	Verifier struct {
		Mode           string   `yaml:"mode"`
		FacilitatorURL string   `yaml:"facilitatorURL"`
		Timeout        string   `yaml:"timeout"`
		Tokens         []string `yaml:"tokens"`
		CDP            struct {
			KeyID     string `yaml:"keyID"`
			KeySecret string `yaml:"keySecret"`
		} `yaml:"cdp"`
	} `yaml:"verifier"`

	Pricing struct {
		DefaultPrice   string `yaml:"defaultPrice"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
		FreeForHumans  bool   `yaml:"freeForHumans"`
		PathPrices     []struct {
			Pattern string `yaml:"pattern"`
			Price   string `yaml:"price"`
		} `yaml:"pathPrices"`
	} `yaml:"pricing"`

	License struct {
		// Source is kube, postgres or static.
		Source       string   `yaml:"source"`
		AllowUnknown bool     `yaml:"allowUnknown"`
		Active       []string `yaml:"active"`
	} `yaml:"license"`

	Fetcher struct {
		UserAgent    string `yaml:"userAgent"`
		Timeout      string `yaml:"timeout"`
		MaxBodyBytes int64  `yaml:"maxBodyBytes"`
	} `yaml:"fetcher"`

	Audit struct {
		QueueSize    int    `yaml:"queueSize"`
		Workers      int    `yaml:"workers"`
		WriteTimeout string `yaml:"writeTimeout"`
		LogRecords   bool   `yaml:"logRecords"`
	} `yaml:"audit"`

	Ledger struct {
		Brokers       []string `yaml:"brokers"`
		Topic         string   `yaml:"topic"`
		BatchSize     int      `yaml:"batchSize"`
		SweepInterval string   `yaml:"sweepInterval"`
	} `yaml:"ledger"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
}

// Parsed holds a validated Config with its durations resolved.
type Parsed struct {
	Config
	Mode              verifier.Mode
	VerifierTimeout   time.Duration
	FetchTimeout      time.Duration
	AuditWriteTimeout time.Duration
	SweepInterval     time.Duration
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.Environment = "development"
	cfg.MaxRequestBody = 1 << 20
	cfg.Verifier.Mode = string(verifier.ModeSettlement)
	cfg.Verifier.FacilitatorURL = DefaultFacilitatorURL
	cfg.Verifier.Timeout = "5s"
	cfg.Pricing.TimeoutSeconds = int(pricing.DefaultTimeout)
	cfg.License.Source = "kube"
	cfg.Fetcher.Timeout = "30s"
	cfg.Audit.WriteTimeout = "5s"
	cfg.Ledger.Topic = "crawl-ledger"
	cfg.Ledger.SweepInterval = "1m"
	return cfg
}

// Load reads .env if present, then path (if non-empty) over the defaults,
// then environment overrides, and validates the result.
func Load(path string) (*Parsed, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	return Parse(cfg)
}

func applyEnv(cfg *Config) {
	if v := env("X402_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := env("X402_VERIFIER_MODE"); v != "" {
		cfg.Verifier.Mode = v
	}
	if v := env("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := env("FACILITATOR_URL"); v != "" {
		cfg.Verifier.FacilitatorURL = v
	}
	if v := env("CDP_API_KEY"); v != "" {
		cfg.Verifier.CDP.KeyID = v
	}
	if v := env("CDP_API_KEY_SECRET"); v != "" {
		cfg.Verifier.CDP.KeySecret = v
	}
	if v := env("KAFKA_BROKERS"); v != "" {
		cfg.Ledger.Brokers = splitList(v)
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse resolves durations and validates cfg.
func Parse(cfg Config) (*Parsed, error) {
	p := &Parsed{Config: cfg, Mode: verifier.Mode(strings.ToLower(cfg.Verifier.Mode))}

	var errs []string
	duration := func(name, raw string, dst *time.Duration) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Sprintf("invalid %s %q", name, raw))
			return
		}
		*dst = d
	}
	duration("verifier.timeout", cfg.Verifier.Timeout, &p.VerifierTimeout)
	duration("fetcher.timeout", cfg.Fetcher.Timeout, &p.FetchTimeout)
	duration("audit.writeTimeout", cfg.Audit.WriteTimeout, &p.AuditWriteTimeout)
	duration("ledger.sweepInterval", cfg.Ledger.SweepInterval, &p.SweepInterval)

	errs = append(errs, validate(p)...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	// Unknown publishers are only served by deployments that never settle.
	if p.Mode != verifier.ModeAllowList {
		p.License.AllowUnknown = false
	}
	return p, nil
}

func validate(p *Parsed) []string {
	var errs []string

	switch p.Mode {
	case verifier.ModeAllowList:
		if p.Environment == EnvProduction {
			errs = append(errs, "verifier.mode allowlist is not permitted in production")
		}
	case verifier.ModeSettlement, verifier.ModeHybrid:
		if p.Verifier.FacilitatorURL != "" {
			if u, err := url.Parse(p.Verifier.FacilitatorURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Sprintf("invalid verifier.facilitatorURL %q", p.Verifier.FacilitatorURL))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("verifier.mode must be one of allowlist, settlement, hybrid; got %q", p.Verifier.Mode))
	}

	if p.PublicBaseURL != "" {
		if u, err := url.Parse(p.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid publicBaseURL %q", p.PublicBaseURL))
		}
	}
	if p.Pricing.DefaultPrice != "" {
		if _, err := pricing.ParseAmount(p.Pricing.DefaultPrice, pricing.DefaultDecimals); err != nil {
			errs = append(errs, fmt.Sprintf("invalid pricing.defaultPrice: %v", err))
		}
	}
	for i, pp := range p.Pricing.PathPrices {
		if pp.Pattern == "" {
			errs = append(errs, fmt.Sprintf("pricing.pathPrices[%d].pattern is required", i))
		}
		if _, err := pricing.ParseAmount(pp.Price, pricing.DefaultDecimals); err != nil {
			errs = append(errs, fmt.Sprintf("invalid pricing.pathPrices[%d].price: %v", i, err))
		}
	}
	if p.Pricing.TimeoutSeconds < 0 {
		errs = append(errs, "pricing.timeoutSeconds must not be negative")
	}

	switch p.License.Source {
	case "kube", "static":
	case "postgres":
		if p.Database.URL == "" {
			errs = append(errs, "license.source postgres requires database.url")
		}
	default:
		errs = append(errs, fmt.Sprintf("license.source must be one of kube, postgres, static; got %q", p.License.Source))
	}

	if len(p.Ledger.Brokers) > 0 {
		if p.Ledger.Topic == "" {
			errs = append(errs, "ledger.topic is required when brokers are set")
		}
		if p.Database.URL == "" {
			errs = append(errs, "ledger.brokers requires database.url so every replica's records reach the ledger")
		}
	}
	if p.MaxRequestBody < 0 || p.Fetcher.MaxBodyBytes < 0 {
		errs = append(errs, "body limits must not be negative")
	}
	return errs
}

// Prices returns the configured caller-supplied pricing functions in order.
func (p *Parsed) Prices() []pricing.PriceFunc {
	var funcs []pricing.PriceFunc
	if p.Pricing.FreeForHumans {
		funcs = append(funcs, pricing.HumanBrowsersFree())
	}
	for _, pp := range p.Pricing.PathPrices {
		funcs = append(funcs, pricing.PathPrice(pp.Pattern, pp.Price))
	}
	return funcs
}
