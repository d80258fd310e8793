package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const envPrefix = "QUERYLENS_"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	DataSource    DataSourceConfig
	Query         QueryConfig
	AI            AIConfig
	Script        ScriptConfig
	Archive       ArchiveConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DataSourceConfig describes the connection opened at startup. An empty DSN
// means the service starts disconnected and waits for a connect call.
type DataSourceConfig struct {
	Dialect         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

type QueryConfig struct {
	MaxRows int
	Explain bool
	Timeout time.Duration
}

type AIConfig struct {
	Provider         string
	BaseURL          string
	APIKey           string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	SQLModels        []string
	ChartModel       string
	InsightModel     string
	SQLTemperature   float64
	ExtractTemp      float64
	ExtractMaxTokens int
	ChartTemp        float64
	ChartMaxTokens   int
	InsightTemp      float64
	InsightMaxTokens int
	Timeout          time.Duration
}

type ScriptConfig struct {
	MaxSteps int
}

type ArchiveConfig struct {
	Enabled bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadFromEnv reads the process environment, layered over the YAML file named
// by QUERYLENS_CONFIG_FILE when it is set.
func LoadFromEnv(serviceName string) (Config, error) {
	lookup := LookupFunc(os.LookupEnv)
	if path, ok := os.LookupEnv(envPrefix + "CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		fileLookup, err := LoadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, err
		}
		lookup = Layered(lookup, fileLookup)
	}
	return Load(serviceName, lookup)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []error{
		applyString(lookup, "SERVICE_NAME", &cfg.Service.Name),
		applyString(lookup, "HTTP_ADDR", &cfg.HTTP.Address),
		applyDuration(lookup, "HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, "HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, "HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),
		applyString(lookup, "DB_DIALECT", &cfg.DataSource.Dialect),
		applyString(lookup, "DB_DSN", &cfg.DataSource.DSN),
		applyInt(lookup, "DB_MAX_OPEN_CONNS", &cfg.DataSource.MaxOpenConns),
		applyInt(lookup, "DB_MAX_IDLE_CONNS", &cfg.DataSource.MaxIdleConns),
		applyDuration(lookup, "DB_CONN_MAX_IDLE_TIME", &cfg.DataSource.ConnMaxIdleTime),
		applyDuration(lookup, "DB_CONN_MAX_LIFETIME", &cfg.DataSource.ConnMaxLifetime),
		applyDuration(lookup, "DB_CONNECT_TIMEOUT", &cfg.DataSource.ConnectTimeout),
		applyInt(lookup, "QUERY_MAX_ROWS", &cfg.Query.MaxRows),
		applyBool(lookup, "QUERY_EXPLAIN", &cfg.Query.Explain),
		applyDuration(lookup, "QUERY_TIMEOUT", &cfg.Query.Timeout),
		applyString(lookup, "AI_PROVIDER", &cfg.AI.Provider),
		applyString(lookup, "AI_BASE_URL", &cfg.AI.BaseURL),
		applyString(lookup, "AI_API_KEY", &cfg.AI.APIKey),
		applyString(lookup, "AI_ANTHROPIC_API_KEY", &cfg.AI.AnthropicAPIKey),
		applyString(lookup, "AI_ANTHROPIC_BASE_URL", &cfg.AI.AnthropicBaseURL),
		applyList(lookup, "AI_SQL_MODELS", &cfg.AI.SQLModels),
		applyString(lookup, "AI_CHART_MODEL", &cfg.AI.ChartModel),
		applyString(lookup, "AI_INSIGHT_MODEL", &cfg.AI.InsightModel),
		applyFloat(lookup, "AI_SQL_TEMPERATURE", &cfg.AI.SQLTemperature),
		applyFloat(lookup, "AI_EXTRACT_TEMPERATURE", &cfg.AI.ExtractTemp),
		applyInt(lookup, "AI_EXTRACT_MAX_TOKENS", &cfg.AI.ExtractMaxTokens),
		applyFloat(lookup, "AI_CHART_TEMPERATURE", &cfg.AI.ChartTemp),
		applyInt(lookup, "AI_CHART_MAX_TOKENS", &cfg.AI.ChartMaxTokens),
		applyFloat(lookup, "AI_INSIGHT_TEMPERATURE", &cfg.AI.InsightTemp),
		applyInt(lookup, "AI_INSIGHT_MAX_TOKENS", &cfg.AI.InsightMaxTokens),
		applyDuration(lookup, "AI_TIMEOUT", &cfg.AI.Timeout),
		applyInt(lookup, "SCRIPT_MAX_STEPS", &cfg.Script.MaxSteps),
		applyBool(lookup, "ARCHIVE_ENABLED", &cfg.Archive.Enabled),
		applyString(lookup, "OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint),
		applyString(lookup, "OBJECTSTORE_REGION", &cfg.ObjectStore.Region),
		applyString(lookup, "OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket),
		applyString(lookup, "OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID),
		applyString(lookup, "OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey),
		applyBool(lookup, "OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL),
		applyString(lookup, "OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix),
		applyBool(lookup, "OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket),
		applyBool(lookup, "LOG_JSON", &cfg.Observability.LogJSON),
		applyLogLevel(lookup, "LOG_LEVEL", &cfg.Observability.LogLevel),
		applyBool(lookup, "AUTH_REQUIRED", &cfg.Auth.Required),
		applyString(lookup, "AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys),
	}
	for _, err := range steps {
		if err != nil {
			return Config{}, err
		}
	}

	cfg.DataSource.Dialect = strings.ToLower(cfg.DataSource.Dialect)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if len(cfg.AI.SQLModels) == 0 {
		return Config{}, fmt.Errorf("at least one sql model is required")
	}
	if cfg.Script.MaxSteps <= 0 {
		return Config{}, fmt.Errorf("script max steps must be positive")
	}
	if cfg.Query.MaxRows < 0 {
		return Config{}, fmt.Errorf("query max rows must not be negative")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "querylens-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		DataSource: DataSourceConfig{
			Dialect:         "mysql",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Query: QueryConfig{
			MaxRows: 100000,
			Explain: true,
			Timeout: 60 * time.Second,
		},
		AI: AIConfig{
			Provider:         "openai",
			BaseURL:          "https://api.openai.com",
			AnthropicBaseURL: "https://api.anthropic.com/v1",
			SQLModels:        []string{"gpt-4o", "gpt-4", "gpt-4o-mini", "gpt-3.5-turbo"},
			ChartModel:       "gpt-4",
			InsightModel:     "gpt-4o-mini",
			SQLTemperature:   0.3,
			ExtractTemp:      0.5,
			ExtractMaxTokens: 800,
			ChartTemp:        0.1,
			ChartMaxTokens:   1500,
			InsightTemp:      0.3,
			InsightMaxTokens: 300,
			Timeout:          30 * time.Second,
		},
		Script: ScriptConfig{
			MaxSteps: 5_000_000,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "querylens",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
		cfg.Query.Explain = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fmt.Errorf("invalid %s%s: empty list", envPrefix, key)
	}
	*dst = out
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s%s: %q", envPrefix, key, raw)
	}
	return nil
}
