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

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Schema        SchemaConfig
	Query         QueryConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Session       SessionConfig
	AI            AIConfig
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

type DatabaseConfig struct {
	Driver          string
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ExecTimeout     time.Duration
}

type SchemaConfig struct {
	CacheTTL time.Duration
}

type QueryConfig struct {
	PreviewRows   int
	ChunkSize     int
	Workers       int
	ColumnBinding string
}

type ExportConfig struct {
	ScratchDir    string
	PublicBaseURL string
	MaxFiles      int
	MaxAge        time.Duration
	SweepInterval time.Duration
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	KeepLocal        bool
}

type SessionConfig struct {
	MaxTurns int
	IdleTTL  time.Duration
}

type AIConfig struct {
	Enabled        bool
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	SummaryEnabled bool
	SummaryTimeout time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("NL2SQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid NL2SQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "NL2SQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "NL2SQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "NL2SQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "NL2SQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "NL2SQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "NL2SQL_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "NL2SQL_DB_URL", &cfg.Database.DSN) },
		func() error { return applyString(lookup, "NL2SQL_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "NL2SQL_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "NL2SQL_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "NL2SQL_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "NL2SQL_DB_NAME", &cfg.Database.Name) },
		func() error { return applyInt(lookup, "NL2SQL_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "NL2SQL_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "NL2SQL_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "NL2SQL_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyDuration(lookup, "NL2SQL_DB_DIAL_TIMEOUT", &cfg.Database.DialTimeout) },
		func() error { return applyDuration(lookup, "NL2SQL_DB_EXEC_TIMEOUT", &cfg.Database.ExecTimeout) },
		func() error { return applyDuration(lookup, "NL2SQL_SCHEMA_CACHE_TTL", &cfg.Schema.CacheTTL) },
		func() error { return applyInt(lookup, "NL2SQL_QUERY_PREVIEW_ROWS", &cfg.Query.PreviewRows) },
		func() error { return applyInt(lookup, "NL2SQL_QUERY_CHUNK_SIZE", &cfg.Query.ChunkSize) },
		func() error { return applyInt(lookup, "NL2SQL_QUERY_WORKERS", &cfg.Query.Workers) },
		func() error { return applyString(lookup, "NL2SQL_QUERY_COLUMN_BINDING", &cfg.Query.ColumnBinding) },
		func() error { return applyString(lookup, "NL2SQL_EXPORT_SCRATCH_DIR", &cfg.Export.ScratchDir) },
		func() error { return applyString(lookup, "NL2SQL_EXPORT_PUBLIC_BASE_URL", &cfg.Export.PublicBaseURL) },
		func() error { return applyInt(lookup, "NL2SQL_EXPORT_MAX_FILES", &cfg.Export.MaxFiles) },
		func() error { return applyDuration(lookup, "NL2SQL_EXPORT_MAX_AGE", &cfg.Export.MaxAge) },
		func() error { return applyDuration(lookup, "NL2SQL_EXPORT_SWEEP_INTERVAL", &cfg.Export.SweepInterval) },
		func() error { return applyBool(lookup, "NL2SQL_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "NL2SQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "NL2SQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "NL2SQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "NL2SQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "NL2SQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "NL2SQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "NL2SQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "NL2SQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "NL2SQL_OBJECTSTORE_KEEP_LOCAL", &cfg.ObjectStore.KeepLocal) },
		func() error { return applyInt(lookup, "NL2SQL_SESSION_MAX_TURNS", &cfg.Session.MaxTurns) },
		func() error { return applyDuration(lookup, "NL2SQL_SESSION_IDLE_TTL", &cfg.Session.IdleTTL) },
		func() error { return applyBool(lookup, "NL2SQL_AI_ENABLED", &cfg.AI.Enabled) },
		func() error { return applyString(lookup, "NL2SQL_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "NL2SQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "NL2SQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "NL2SQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "NL2SQL_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "NL2SQL_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "NL2SQL_AI_SUMMARY_ENABLED", &cfg.AI.SummaryEnabled) },
		func() error { return applyDuration(lookup, "NL2SQL_AI_SUMMARY_TIMEOUT", &cfg.AI.SummaryTimeout) },
		func() error { return applyBool(lookup, "NL2SQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "NL2SQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "NL2SQL_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "NL2SQL_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	cfg.Query.ColumnBinding = strings.ToLower(cfg.Query.ColumnBinding)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Database.Driver {
	case "mysql", "postgres", "duckdb":
	default:
		return fmt.Errorf("invalid NL2SQL_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if cfg.Query.PreviewRows <= 0 {
		return fmt.Errorf("NL2SQL_QUERY_PREVIEW_ROWS must be > 0")
	}
	if cfg.Query.ChunkSize <= 0 {
		return fmt.Errorf("NL2SQL_QUERY_CHUNK_SIZE must be > 0")
	}
	if cfg.Query.Workers <= 0 {
		return fmt.Errorf("NL2SQL_QUERY_WORKERS must be > 0")
	}
	switch cfg.Query.ColumnBinding {
	case "relaxed", "strict":
	default:
		return fmt.Errorf("invalid NL2SQL_QUERY_COLUMN_BINDING: %q", cfg.Query.ColumnBinding)
	}
	if cfg.Export.ScratchDir == "" {
		return fmt.Errorf("export scratch dir is required")
	}
	if cfg.Session.MaxTurns < 0 {
		return fmt.Errorf("NL2SQL_SESSION_MAX_TURNS must be >= 0")
	}
	switch cfg.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid NL2SQL_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "nl2sql-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			Host:            "127.0.0.1",
			Port:            3306,
			User:            "root",
			Name:            "tpch",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			DialTimeout:     10 * time.Minute,
			ExecTimeout:     10 * time.Minute,
		},
		Schema: SchemaConfig{
			CacheTTL: time.Minute,
		},
		Query: QueryConfig{
			PreviewRows:   50,
			ChunkSize:     50000,
			Workers:       8,
			ColumnBinding: "relaxed",
		},
		Export: ExportConfig{
			ScratchDir:    "data",
			PublicBaseURL: "http://127.0.0.1:8080",
			MaxFiles:      200,
			MaxAge:        6 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "nl2sql-exports",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Session: SessionConfig{
			MaxTurns: 50,
			IdleTTL:  24 * time.Hour,
		},
		AI: AIConfig{
			Enabled:        false,
			Provider:       "openai",
			BaseURL:        "",
			Model:          "",
			Temperature:    0.1,
			Timeout:        60 * time.Second,
			SummaryEnabled: true,
			SummaryTimeout: 30 * time.Second,
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
		cfg.Schema.CacheTTL = 0
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
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
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
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
