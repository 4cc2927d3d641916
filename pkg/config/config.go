package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arnavshah/slot-assignment-api/pkg/database"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// Config is the service configuration.
type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	Database database.Config

	JWTSecret     string
	MasterSecret  string
	AdminUsername string
	AdminPassword string

	Engine scheduler.Config

	RateLimitPerSec float64
	RateLimitBurst  int
	ActorCacheTTL   time.Duration
}

// EngineFile is the YAML engine tuning file. Unset fields keep their defaults.
type EngineFile struct {
	Weights               *models.WeightOverrides `yaml:"weights"`
	AutoApprovalThreshold *int                    `yaml:"auto_approval_threshold"`
	ConfidenceFloor       *int                    `yaml:"confidence_floor"`
	ConfidenceCap         *int                    `yaml:"confidence_cap"`
	RepositoryTimeoutMS   int                     `yaml:"repository_timeout_ms"`
	RetryBackoffMS        *int                    `yaml:"retry_backoff_ms"`
	MaxWorkers            int                     `yaml:"max_workers"`
}

// LoadDotEnv loads the first .env found in the working directory or its parents.
func LoadDotEnv() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// FromEnv reads the configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:     getenv("PORT", "8000"),
		GinMode:  os.Getenv("GIN_MODE"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Database: database.Config{
			DSN:          os.Getenv("DATABASE_URL"),
			DataPath:     getenv("DATA_PATH", "assignments.db"),
			SQLiteDriver: getenv("SQLITE_DRIVER", "mattn"),
		},
		JWTSecret:     os.Getenv("JWT_SECRET"),
		MasterSecret:  os.Getenv("API_MASTER_SECRET"),
		AdminUsername: getenv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	var err error
	if cfg.RateLimitPerSec, err = floatEnv("RATE_LIMIT_PER_SEC", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.ActorCacheTTL, err = durationEnv("ACTOR_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Engine, err = LoadEngine(os.Getenv("ENGINE_CONFIG")); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set; admin login is disabled")
	}
	if cfg.MasterSecret == "" {
		slog.Warn("API_MASTER_SECRET is not set; API keys cannot be verified")
	}
	return cfg, nil
}

// LoadEngine reads the engine tuning file at path over the defaults. An
// empty path yields the defaults.
func LoadEngine(path string) (scheduler.Config, error) {
	cfg := scheduler.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	var file EngineFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg = file.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Apply overlays the set fields of f onto cfg.
func (f EngineFile) Apply(cfg scheduler.Config) scheduler.Config {
	cfg.Weights = cfg.Weights.Apply(f.Weights)
	if f.AutoApprovalThreshold != nil {
		cfg.AutoApprovalThreshold = *f.AutoApprovalThreshold
	}
	if f.ConfidenceFloor != nil {
		cfg.ConfidenceFloor = *f.ConfidenceFloor
	}
	if f.ConfidenceCap != nil {
		cfg.ConfidenceCap = *f.ConfidenceCap
	}
	if f.RepositoryTimeoutMS > 0 {
		cfg.RepositoryTimeout = time.Duration(f.RepositoryTimeoutMS) * time.Millisecond
	}
	if f.RetryBackoffMS != nil {
		cfg.RetryBackoff = time.Duration(*f.RetryBackoffMS) * time.Millisecond
	}
	if f.MaxWorkers > 0 {
		cfg.MaxWorkers = f.MaxWorkers
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
