package config

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Manifest   ManifestConfig   `yaml:"manifest" mapstructure:"manifest"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ManifestConfig configures the deduplication ledger backend.
type ManifestConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"` // file, sqlite or postgres
	Path        string        `yaml:"path" mapstructure:"path"`
	Backups     int           `yaml:"backups" mapstructure:"backups"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker     BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker around ledger saves. A
// non-positive threshold disables it.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutMs   int `yaml:"reset_timeout_ms" mapstructure:"reset_timeout_ms"`
}

// RetryConfig configures ledger write retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// TemporalConfig configures freshness decay and age buckets.
type TemporalConfig struct {
	HalfLifeDays      float64 `yaml:"half_life_days" mapstructure:"half_life_days"`
	AgeThresholdsDays []int   `yaml:"age_thresholds_days" mapstructure:"age_thresholds_days"`
}

// ConfidenceConfig configures query-time confidence synthesis.
type ConfidenceConfig struct {
	ConflictVarianceThreshold float64            `yaml:"conflict_variance_threshold" mapstructure:"conflict_variance_threshold"`
	DefaultSourceConfidence   float64            `yaml:"default_source_confidence" mapstructure:"default_source_confidence"`
	PenaltyFloor              float64            `yaml:"penalty_floor" mapstructure:"penalty_floor"`
	SourceWeights             map[string]float64 `yaml:"source_weights" mapstructure:"source_weights"`
	PolicyPath                string             `yaml:"policy_path" mapstructure:"policy_path"`
}

// IngestConfig configures the ingestion worker pool.
type IngestConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
	// DeadLetterPath, when set, receives the items that failed so they can
	// be re-ingested with `ingest --input`.
	DeadLetterPath string `yaml:"dead_letter_path" mapstructure:"dead_letter_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("manifest.driver", "file")
	v.SetDefault("manifest.path", "manifest.json")
	v.SetDefault("manifest.backups", 5)
	v.SetDefault("manifest.retry.max_attempts", 3)
	v.SetDefault("manifest.retry.initial_backoff_ms", 50)
	v.SetDefault("manifest.retry.max_backoff_ms", 2000)
	v.SetDefault("manifest.breaker.failure_threshold", 5)
	v.SetDefault("manifest.breaker.reset_timeout_ms", 30000)
	v.SetDefault("temporal.half_life_days", 30.0)
	v.SetDefault("temporal.age_thresholds_days", []int{7, 30, 90})
	v.SetDefault("confidence.conflict_variance_threshold", 0.10)
	v.SetDefault("confidence.default_source_confidence", 0.7)
	v.SetDefault("confidence.penalty_floor", 0.5)
	v.SetDefault("confidence.source_weights", map[string]float64{
		"sec":     1.0,
		"api":     0.9,
		"news":    0.7,
		"email":   0.6,
		"unknown": 0.1,
	})
	v.SetDefault("ingest.max_concurrent_documents", 4)
	v.SetDefault("ingest.dead_letter_path", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides honors the unprefixed tuning variables documented for
// operators. They win over the file and EVIDENCE_* values.
func applyEnvOverrides(cfg *Config) error {
	if raw, ok := os.LookupEnv("HALF_LIFE_DAYS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return eris.Wrap(err, "config: parse HALF_LIFE_DAYS")
		}
		cfg.Temporal.HalfLifeDays = f
	}
	if raw, ok := os.LookupEnv("CONFLICT_VARIANCE_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return eris.Wrap(err, "config: parse CONFLICT_VARIANCE_THRESHOLD")
		}
		cfg.Confidence.ConflictVarianceThreshold = f
	}
	if raw, ok := os.LookupEnv("DEFAULT_SOURCE_CONFIDENCE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return eris.Wrap(err, "config: parse DEFAULT_SOURCE_CONFIDENCE")
		}
		cfg.Confidence.DefaultSourceConfidence = f
	}
	if raw, ok := os.LookupEnv("SOURCE_WEIGHT_TABLE"); ok {
		weights, err := ParseWeightTable(raw)
		if err != nil {
			return err
		}
		if cfg.Confidence.SourceWeights == nil {
			cfg.Confidence.SourceWeights = make(map[string]float64, len(weights))
		}
		for k, w := range weights {
			cfg.Confidence.SourceWeights[k] = w
		}
	}
	if raw, ok := os.LookupEnv("AGE_CATEGORY_THRESHOLDS_DAYS"); ok {
		parts := strings.Split(raw, ",")
		days := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return eris.Wrapf(err, "config: parse AGE_CATEGORY_THRESHOLDS_DAYS %q", raw)
			}
			days = append(days, n)
		}
		cfg.Temporal.AgeThresholdsDays = days
	}
	return nil
}

// ParseWeightTable parses "sec=1.0,api=0.9" into a weight map. Keys are
// lower-cased.
func ParseWeightTable(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, eris.Errorf("config: weight entry %q is not key=value", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "config: weight for %q", k)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = w
	}
	return out, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Manifest.Driver {
	case "file":
		if c.Manifest.Path == "" {
			return eris.New("config: manifest.path is required for the file driver")
		}
	case "sqlite":
		if c.Manifest.Path == "" && c.Manifest.DatabaseURL == "" {
			return eris.New("config: manifest.path or manifest.database_url is required for the sqlite driver")
		}
	case "postgres":
		if c.Manifest.DatabaseURL == "" {
			return eris.New("config: manifest.database_url is required for the postgres driver (EVIDENCE_MANIFEST_DATABASE_URL)")
		}
	default:
		return eris.Errorf("config: unsupported manifest driver %q", c.Manifest.Driver)
	}

	if c.Temporal.HalfLifeDays <= 0 {
		return eris.Errorf("config: temporal.half_life_days must be positive (got %v)", c.Temporal.HalfLifeDays)
	}
	if len(c.Temporal.AgeThresholdsDays) != 3 {
		return eris.Errorf("config: temporal.age_thresholds_days needs 3 values (got %d)", len(c.Temporal.AgeThresholdsDays))
	}
	if !sort.IntsAreSorted(c.Temporal.AgeThresholdsDays) || c.Temporal.AgeThresholdsDays[0] <= 0 ||
		c.Temporal.AgeThresholdsDays[0] == c.Temporal.AgeThresholdsDays[1] ||
		c.Temporal.AgeThresholdsDays[1] == c.Temporal.AgeThresholdsDays[2] {
		return eris.Errorf("config: temporal.age_thresholds_days must be strictly increasing and positive (got %v)", c.Temporal.AgeThresholdsDays)
	}

	if c.Confidence.ConflictVarianceThreshold <= 0 {
		return eris.Errorf("config: confidence.conflict_variance_threshold must be positive (got %v)", c.Confidence.ConflictVarianceThreshold)
	}
	if c.Confidence.DefaultSourceConfidence < 0 || c.Confidence.DefaultSourceConfidence > 1 {
		return eris.Errorf("config: confidence.default_source_confidence must be in [0,1] (got %v)", c.Confidence.DefaultSourceConfidence)
	}
	if c.Confidence.PenaltyFloor < 0 || c.Confidence.PenaltyFloor > 1 {
		return eris.Errorf("config: confidence.penalty_floor must be in [0,1] (got %v)", c.Confidence.PenaltyFloor)
	}
	for k, w := range c.Confidence.SourceWeights {
		if w < 0 {
			return eris.Errorf("config: source weight for %q must not be negative (got %v)", k, w)
		}
	}

	if c.Ingest.MaxConcurrentDocuments <= 0 {
		return eris.Errorf("config: ingest.max_concurrent_documents must be positive (got %d)", c.Ingest.MaxConcurrentDocuments)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
