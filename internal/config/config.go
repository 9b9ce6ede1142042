package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr" validate:"required"`
	Store         string        `yaml:"store" validate:"oneof=git postgres redis minio badger memory"`
	DataDir       string        `yaml:"data_dir"`
	DatabaseURL   string        `yaml:"database_url" validate:"required_if=Store postgres"`
	MigrationsDir string        `yaml:"migrations_dir"`
	RedisURL      string        `yaml:"redis_url" validate:"required_if=Store redis,required_if=Lock redis"`
	Lock          string        `yaml:"lock" validate:"oneof=local redis"`
	LockTTL       time.Duration `yaml:"lock_ttl" validate:"gte=0"`

	MinioEndpoint  string `yaml:"minio_endpoint" validate:"required_if=Store minio"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	MeiliURL       string `yaml:"meili_url" validate:"omitempty,url"`
	MeiliMasterKey string `yaml:"meili_master_key"`

	MainThreshold float64 `yaml:"main_threshold" validate:"gte=0,lte=1"`
	MaxSubtopics  int     `yaml:"max_subtopics" validate:"gte=1,lte=20"`

	LLMAPIKey         string        `yaml:"llm_api_key"`
	LLMBaseURL        string        `yaml:"llm_base_url" validate:"omitempty,url"`
	LLMModel          string        `yaml:"llm_model"`
	LLMEmbeddingModel string        `yaml:"llm_embedding_model"`
	LLMTimeout        time.Duration `yaml:"llm_timeout"`

	APIKey     string `yaml:"api_key"`
	APIKeyHash string `yaml:"api_key_hash"`
	ReadAPIKey string `yaml:"read_api_key"`
	CORSOrigin string `yaml:"cors_origin"`

	LogMode  string `yaml:"log_mode" validate:"oneof=dev prod"`
	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Addr:              ":8787",
		Store:             "git",
		DataDir:           "./data/trees",
		MigrationsDir:     "./db/migrations",
		Lock:              "local",
		LockTTL:           30 * time.Second,
		MinioBucket:       "topictree",
		MainThreshold:     0.5,
		MaxSubtopics:      4,
		LLMBaseURL:        "https://api.mistral.ai/v1",
		LLMModel:          "mistral-small",
		LLMEmbeddingModel: "mistral-embed",
		LLMTimeout:        30 * time.Second,
		CORSOrigin:        "*",
		LogMode:           "dev",
	}
}

// Load starts from the defaults, overlays the YAML file named by
// TOPICTREE_CONFIG when set, then applies environment variables, and
// validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("TOPICTREE_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("API_ADDR", cfg.Addr)
	cfg.Store = getenv("TOPICTREE_STORE", cfg.Store)
	cfg.DataDir = getenv("TOPICTREE_DATA_DIR", cfg.DataDir)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = getenv("TOPICTREE_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.Lock = getenv("TOPICTREE_LOCK", cfg.Lock)
	cfg.LockTTL = time.Duration(getenvInt("TOPICTREE_LOCK_TTL_SECONDS", int(cfg.LockTTL/time.Second))) * time.Second

	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getenv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getenvBool("MINIO_USE_SSL", cfg.MinioUseSSL)

	cfg.MeiliURL = getenv("MEILI_URL", cfg.MeiliURL)
	cfg.MeiliMasterKey = getenv("MEILI_MASTER_KEY", cfg.MeiliMasterKey)

	cfg.MainThreshold = getenvFloat("TOPICTREE_MAIN_THRESHOLD", cfg.MainThreshold)
	cfg.MaxSubtopics = getenvInt("TOPICTREE_MAX_SUBTOPICS", cfg.MaxSubtopics)

	cfg.LLMAPIKey = getenv("LLM_API_KEY", getenv("MISTRAL_API_KEY", cfg.LLMAPIKey))
	cfg.LLMBaseURL = getenv("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = getenv("LLM_MODEL", cfg.LLMModel)
	cfg.LLMEmbeddingModel = getenv("LLM_EMBEDDING_MODEL", cfg.LLMEmbeddingModel)
	cfg.LLMTimeout = time.Duration(getenvInt("LLM_TIMEOUT_SECONDS", int(cfg.LLMTimeout/time.Second))) * time.Second

	cfg.APIKey = getenv("TOPICTREE_API_KEY", cfg.APIKey)
	cfg.APIKeyHash = getenv("TOPICTREE_API_KEY_HASH", cfg.APIKeyHash)
	cfg.ReadAPIKey = getenv("TOPICTREE_READ_API_KEY", cfg.ReadAPIKey)
	cfg.CORSOrigin = getenv("TOPICTREE_CORS_ORIGIN", cfg.CORSOrigin)

	cfg.LogMode = getenv("LOG_MODE", cfg.LogMode)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// AuthEnabled reports whether any API key is configured.
func (c Config) AuthEnabled() bool {
	return c.APIKey != "" || c.APIKeyHash != "" || c.ReadAPIKey != ""
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
