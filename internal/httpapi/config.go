package httpapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DriverType is the configuration token for the HTTP ingress driver.
const DriverType = "http"

const (
	defaultListenAddr        = ":8080"
	defaultWebhookHeader     = "Authorization"
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultSummaryTimeout    = 2 * time.Minute
	defaultPublishTimeout    = 2 * time.Second
)

// Config contains the parsed HTTP surface settings.
type Config struct {
	// ListenAddr is the TCP address the server binds.
	ListenAddr string
	// APIToken guards the tag routes with a bearer token when set.
	APIToken string
	// WebhookSecret guards the webhook ingress when set.
	WebhookSecret string
	// WebhookHeader names the header carrying WebhookSecret.
	WebhookHeader string
	// ReadHeaderTimeout bounds request header reads.
	ReadHeaderTimeout time.Duration
	// ShutdownTimeout bounds graceful server shutdown.
	ShutdownTimeout time.Duration
	// SummaryTimeout bounds one queued tag summary refresh.
	SummaryTimeout time.Duration
	// PublishTimeout bounds one webhook event publish into the kernel.
	PublishTimeout time.Duration
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        defaultListenAddr,
		WebhookHeader:     defaultWebhookHeader,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
		SummaryTimeout:    defaultSummaryTimeout,
		PublishTimeout:    defaultPublishTimeout,
	}
}

type runtimeConfig struct {
	ListenAddr        string `json:"listen_addr"`
	APIToken          string `json:"api_token"`
	WebhookSecret     string `json:"webhook_secret"`
	WebhookHeader     string `json:"webhook_header"`
	ReadHeaderTimeout string `json:"read_header_timeout"`
	ShutdownTimeout   string `json:"shutdown_timeout"`
	SummaryTimeout    string `json:"summary_timeout"`
	PublishTimeout    string `json:"publish_timeout"`
}

// ParseConfig decodes one driver JSON payload over DefaultConfig.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(raw) == 0 {
		return cfg, nil
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	if addr := strings.TrimSpace(parsed.ListenAddr); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.APIToken = strings.TrimSpace(parsed.APIToken)
	cfg.WebhookSecret = strings.TrimSpace(parsed.WebhookSecret)
	if header := strings.TrimSpace(parsed.WebhookHeader); header != "" {
		cfg.WebhookHeader = header
	}

	durations := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{name: "read_header_timeout", value: parsed.ReadHeaderTimeout, target: &cfg.ReadHeaderTimeout},
		{name: "shutdown_timeout", value: parsed.ShutdownTimeout, target: &cfg.ShutdownTimeout},
		{name: "summary_timeout", value: parsed.SummaryTimeout, target: &cfg.SummaryTimeout},
		{name: "publish_timeout", value: parsed.PublishTimeout, target: &cfg.PublishTimeout},
	}
	for _, duration := range durations {
		value := strings.TrimSpace(duration.value)
		if value == "" {
			continue
		}
		parsedDuration, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", duration.name, err)
		}
		if parsedDuration <= 0 {
			return Config{}, fmt.Errorf("parse %s: must be > 0", duration.name)
		}
		*duration.target = parsedDuration
	}

	return cfg, nil
}
