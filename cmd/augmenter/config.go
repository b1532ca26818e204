package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ex-augmenter/internal/driver"
	"ex-augmenter/internal/httpapi"
	"ex-augmenter/internal/store"
	"ex-augmenter/internal/store/strapi"
	"ex-augmenter/modules/searchindex"
	"ex-augmenter/pkg/augmenter"
	"ex-augmenter/pkg/github"
	llmconfig "ex-augmenter/pkg/llm/config"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	envConfigFile             = "AUGMENTER_CONFIG_FILE"
	defaultEnvFile            = ".env"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 15 * time.Second
	defaultHandlerTimeout     = 2 * time.Minute
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
	defaultNeighbourLimit     = 5
)

var defaultConfigFilePaths = []string{
	"config/augmenter.yaml",
	"config/augmenter.yml",
	"config/augmenter.toml",
	"config/augmenter.json",
}

// lookupFunc reads one environment variable.
type lookupFunc func(name string) (string, bool)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	store   store.Definition
	drivers []driver.Definition

	llm             llmconfig.Config
	slackWebhookURL string
	github          github.Config
	algolia         algoliaConfig
	neighbourLimit  int
	sweep           sweepConfig
}

type algoliaConfig struct {
	appID   string
	apiKey  string
	baseURL string
	indexes map[augmenter.ContentType]string
}

type sweepConfig struct {
	enabled     bool
	schedule    string
	location    *time.Location
	lookback    time.Duration
	concurrency int
}

type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	Store    *fileStoreConfig  `json:"store"`
	Drivers  []fileDriverEntry `json:"drivers"`
	LLM      json.RawMessage   `json:"llm"`
	Slack    fileSlackConfig   `json:"slack"`
	GitHub   fileGitHubConfig  `json:"github"`
	Algolia  fileAlgoliaConfig `json:"algolia"`
	Related  fileRelatedConfig `json:"related"`
	Sweep    fileSweepConfig   `json:"sweep"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileStoreConfig struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileSlackConfig struct {
	WebhookURL string `json:"webhook_url"`
}

type fileGitHubConfig struct {
	Token      string `json:"token"`
	Repository string `json:"repository"`
	EventType  string `json:"event_type"`
	APIURL     string `json:"api_url"`
	Timeout    string `json:"timeout"`
}

type fileAlgoliaConfig struct {
	AppID   string            `json:"app_id"`
	APIKey  string            `json:"api_key"`
	BaseURL string            `json:"base_url"`
	Indexes map[string]string `json:"indexes"`
}

type fileRelatedConfig struct {
	NeighbourLimit *int `json:"neighbour_limit"`
}

type fileSweepConfig struct {
	Enabled     *bool  `json:"enabled"`
	Schedule    string `json:"schedule"`
	Timezone    string `json:"timezone"`
	Lookback    string `json:"lookback"`
	Concurrency *int   `json:"concurrency"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		store: store.Definition{Type: strapi.StoreType, Config: []byte(`{}`)},
		drivers: []driver.Definition{
			{Name: httpapi.DriverType, Type: httpapi.DriverType, Enabled: true, Config: []byte(`{}`)},
		},

		llm:            llmconfig.Default(),
		algolia:        algoliaConfig{indexes: maps.Clone(searchindex.DefaultIndexes)},
		neighbourLimit: defaultNeighbourLimit,
		sweep: sweepConfig{
			enabled:  true,
			location: time.Local,
		},
	}
}

// loadEnvFile loads dotenv variables without overriding the real environment.
// A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}

// loadConfig resolves, decodes and validates configuration. Without any
// config file the defaults plus environment overrides apply.
func loadConfig(flagPath string, lookup lookupFunc) (appConfig, error) {
	cfg := defaultAppConfig()

	path, err := resolveConfigFilePath(flagPath, lookup)
	if err != nil {
		return appConfig{}, err
	}
	if path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return appConfig{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return appConfig{}, fmt.Errorf("apply environment: %w", err)
	}

	return cfg, nil
}

func resolveConfigFilePath(flagPath string, lookup lookupFunc) (string, error) {
	if path := strings.TrimSpace(flagPath); path != "" {
		return path, nil
	}
	if path, ok := lookup(envConfigFile); ok && strings.TrimSpace(path) != "" {
		return strings.TrimSpace(path), nil
	}

	for _, candidate := range defaultConfigFilePaths {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", nil
}

func applyConfigFile(cfg *appConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	normalized, err := normalizeConfigDocument(path, data)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()
	var parsed fileConfig
	if err := decoder.Decode(&parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := applyFileConfig(cfg, parsed); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	return nil
}

// normalizeConfigDocument converts YAML and TOML documents to JSON so that one
// strict decoder validates every format.
func normalizeConfigDocument(path string, data []byte) ([]byte, error) {
	var document map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	case ".json":
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	if document == nil {
		document = map[string]any{}
	}

	normalized, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("normalize to json: %w", err)
	}

	return normalized, nil
}

func applyFileConfig(cfg *appConfig, parsed fileConfig) error {
	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	durations := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{name: "kernel.module_hook_timeout", value: parsed.Kernel.ModuleHookTimeout, target: &cfg.moduleHookTimeout},
		{name: "kernel.shutdown_timeout", value: parsed.Kernel.ShutdownTimeout, target: &cfg.shutdownTimeout},
		{name: "kernel.handler_timeout", value: parsed.Kernel.HandlerTimeout, target: &cfg.handlerTimeout},
		{name: "sweep.lookback", value: parsed.Sweep.Lookback, target: &cfg.sweep.lookback},
		{name: "github.timeout", value: parsed.GitHub.Timeout, target: &cfg.github.Timeout},
	}
	for _, duration := range durations {
		if err := parsePositiveDuration(duration.name, duration.value, duration.target); err != nil {
			return err
		}
	}

	positives := []struct {
		name   string
		value  *int
		target *int
	}{
		{name: "kernel.subscription_buffer", value: parsed.Kernel.SubscriptionBuffer, target: &cfg.subscriptionBuffer},
		{name: "kernel.subscription_workers", value: parsed.Kernel.SubscriptionWorkers, target: &cfg.subscriptionWorkers},
		{name: "related.neighbour_limit", value: parsed.Related.NeighbourLimit, target: &cfg.neighbourLimit},
		{name: "sweep.concurrency", value: parsed.Sweep.Concurrency, target: &cfg.sweep.concurrency},
	}
	for _, positive := range positives {
		if positive.value == nil {
			continue
		}
		if *positive.value <= 0 {
			return fmt.Errorf("parse %s: must be > 0", positive.name)
		}
		*positive.target = *positive.value
	}

	if parsed.Store != nil {
		storeType := strings.TrimSpace(parsed.Store.Type)
		if storeType == "" {
			return fmt.Errorf("store.type is required")
		}
		cfg.store = store.Definition{Type: storeType, Config: cloneRaw(parsed.Store.Config)}
	}

	if parsed.Drivers != nil {
		cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
		for index, entry := range parsed.Drivers {
			enabled := true
			if entry.Enabled != nil {
				enabled = *entry.Enabled
			}
			definition := driver.Definition{
				Name:    strings.TrimSpace(entry.Name),
				Type:    strings.TrimSpace(entry.Type),
				Enabled: enabled,
				Config:  cloneRaw(entry.Config),
			}
			if definition.Name == "" {
				return fmt.Errorf("drivers[%d].name is required", index)
			}
			if definition.Type == "" {
				return fmt.Errorf("drivers[%s].type is required", definition.Name)
			}
			cfg.drivers = append(cfg.drivers, definition)
		}
	}

	llmCfg, err := llmconfig.Parse(parsed.LLM)
	if err != nil {
		return err
	}
	cfg.llm = llmCfg

	cfg.slackWebhookURL = strings.TrimSpace(parsed.Slack.WebhookURL)
	cfg.github.Token = parsed.GitHub.Token
	cfg.github.Repository = parsed.GitHub.Repository
	cfg.github.EventType = parsed.GitHub.EventType
	cfg.github.APIURL = parsed.GitHub.APIURL

	cfg.algolia.appID = strings.TrimSpace(parsed.Algolia.AppID)
	cfg.algolia.apiKey = strings.TrimSpace(parsed.Algolia.APIKey)
	cfg.algolia.baseURL = strings.TrimSpace(parsed.Algolia.BaseURL)
	if parsed.Algolia.Indexes != nil {
		cfg.algolia.indexes = make(map[augmenter.ContentType]string, len(parsed.Algolia.Indexes))
		for contentType, index := range parsed.Algolia.Indexes {
			if strings.TrimSpace(index) == "" {
				return fmt.Errorf("algolia.indexes[%s]: empty index name", contentType)
			}
			cfg.algolia.indexes[augmenter.ContentType(strings.TrimSpace(contentType))] = strings.TrimSpace(index)
		}
	}

	if parsed.Sweep.Enabled != nil {
		cfg.sweep.enabled = *parsed.Sweep.Enabled
	}
	cfg.sweep.schedule = strings.TrimSpace(parsed.Sweep.Schedule)
	if timezone := strings.TrimSpace(parsed.Sweep.Timezone); timezone != "" {
		location, err := time.LoadLocation(timezone)
		if err != nil {
			return fmt.Errorf("parse sweep.timezone: %w", err)
		}
		cfg.sweep.location = location
	}

	return nil
}

// applyEnv overlays the secrets and endpoints deployments provide through the
// environment.
func applyEnv(cfg *appConfig, lookup lookupFunc) error {
	cfg.llm.ApplyEnv(lookup)
	if err := cfg.llm.Validate(); err != nil {
		return err
	}

	overrides := []struct {
		name   string
		target *string
	}{
		{name: "SLACK_INCOMING_WEBHOOK_URL", target: &cfg.slackWebhookURL},
		{name: "ALGOLIA_PROVIDER_APP_ID", target: &cfg.algolia.appID},
		{name: "ALGOLIA_PROVIDER_ADMIN_API_KEY", target: &cfg.algolia.apiKey},
		{name: "GITHUB_TOKEN", target: &cfg.github.Token},
		{name: "GITHUB_REPOSITORY", target: &cfg.github.Repository},
	}
	for _, override := range overrides {
		if value, ok := lookup(override.name); ok && strings.TrimSpace(value) != "" {
			*override.target = strings.TrimSpace(value)
		}
	}

	if cfg.store.Type == strapi.StoreType {
		values := map[string]string{}
		if value, ok := lookup("STRAPI_URL"); ok && strings.TrimSpace(value) != "" {
			values["base_url"] = strings.TrimSpace(value)
		}
		if value, ok := lookup("STRAPI_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
			values["api_token"] = strings.TrimSpace(value)
		}
		merged, err := overlayJSON(cfg.store.Config, values)
		if err != nil {
			return fmt.Errorf("store.config: %w", err)
		}
		cfg.store.Config = merged
	}

	return nil
}

// overlayJSON sets string fields on one JSON object payload.
func overlayJSON(raw []byte, values map[string]string) ([]byte, error) {
	if len(values) == 0 {
		return raw, nil
	}

	object := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &object); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	for key, value := range values {
		object[key] = value
	}

	merged, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return merged, nil
}

func parsePositiveDuration(name string, raw string, target *time.Duration) error {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("parse %s: must be > 0", name)
	}
	*target = parsed

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func cloneRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	return append([]byte(nil), raw...)
}
