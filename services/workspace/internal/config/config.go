package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	defaultPort           = "8080"
	defaultMaxUploadBytes = 4_718_592 // 4.5 MiB
	defaultAIModel        = "gpt-4o-mini"
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultOllamaBaseURL  = "http://localhost:11434"
	defaultRateLimit      = 20
	defaultAITimeout      = 120
	defaultPresignExpiry  = 900
	defaultAdminOrgRole   = "org:admin"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioPublicURL string `yaml:"minioPublicURL"`

	AIProvider       string `yaml:"aiProvider"`
	AIModel          string `yaml:"aiModel"`
	AIBaseURL        string `yaml:"aiBaseURL"`
	AIAPIKey         string `yaml:"aiApiKey"`
	AITimeoutSeconds int    `yaml:"aiTimeoutSeconds"`

	RedisAddr               string `yaml:"redisAddr"`
	RedisPassword           string `yaml:"redisPassword"`
	TutorRateLimitPerMinute int    `yaml:"tutorRateLimitPerMinute"`

	AuthJWKSURL  string `yaml:"authJwksURL"`
	JWTIssuer    string `yaml:"jwtIssuer"`
	JWTAudience  string `yaml:"jwtAudience"`
	AdminOrgRole string `yaml:"adminOrgRole"`

	MaxUploadBytes       int64    `yaml:"maxUploadBytes"`
	PresignExpirySeconds int      `yaml:"presignExpirySeconds"`
	PdftotextPath        string   `yaml:"pdftotextPath"`
	CORSAllowedOrigins   []string `yaml:"corsAllowedOrigins"`
	TrustedProxies       []string `yaml:"trustedProxies"`
}

// AITimeout returns the tutor call timeout.
func (c FileConfig) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

// PresignExpiry returns the lifetime of document URLs.
func (c FileConfig) PresignExpiry() time.Duration {
	return time.Duration(c.PresignExpirySeconds) * time.Second
}

// RateLimitEnabled reports whether tutor endpoints are throttled.
func (c FileConfig) RateLimitEnabled() bool {
	return c.TutorRateLimitPerMinute > 0
}

// Load reads config from path (defaults to config.yaml), applies environment
// overrides and defaults, then validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("MINIO_PUBLIC_URL"); v != "" {
		cfg.MinioPublicURL = v
	}
	if v := os.Getenv("ESOL_AI_PROVIDER"); v != "" {
		cfg.AIProvider = v
	}
	if v := os.Getenv("ESOL_AI_MODEL"); v != "" {
		cfg.AIModel = v
	}
	if v := os.Getenv("ESOL_AI_BASE_URL"); v != "" {
		cfg.AIBaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AIAPIKey = v
	}
	if v := os.Getenv("ESOL_AI_API_KEY"); v != "" {
		cfg.AIAPIKey = v
	}
	if v := os.Getenv("ESOL_AI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AITimeoutSeconds = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("ESOL_TUTOR_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TutorRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("ESOL_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("ESOL_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}
	if v := os.Getenv("ESOL_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}
}

// applyDefaults fills zero values. A negative rate limit disables throttling.
func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = defaultPort
	}
	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	if cfg.AIProvider == "" {
		cfg.AIProvider = ProviderOpenAI
	}
	if strings.TrimSpace(cfg.AIModel) == "" {
		cfg.AIModel = defaultAIModel
	}
	if strings.TrimSpace(cfg.AIBaseURL) == "" {
		if cfg.AIProvider == ProviderOllama {
			cfg.AIBaseURL = defaultOllamaBaseURL
		} else {
			cfg.AIBaseURL = defaultOpenAIBaseURL
		}
	}
	if cfg.AITimeoutSeconds <= 0 {
		cfg.AITimeoutSeconds = defaultAITimeout
	}
	if cfg.TutorRateLimitPerMinute == 0 {
		cfg.TutorRateLimitPerMinute = defaultRateLimit
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.PresignExpirySeconds <= 0 {
		cfg.PresignExpirySeconds = defaultPresignExpiry
	}
	if strings.TrimSpace(cfg.AdminOrgRole) == "" {
		cfg.AdminOrgRole = defaultAdminOrgRole
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
		return errors.New("config: minio endpoint/accessKey/secretKey/bucket are required (set in config.yaml or MINIO_*)")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	switch cfg.AIProvider {
	case ProviderOpenAI:
		if cfg.AIAPIKey == "" {
			return errors.New("config: aiApiKey is required for the openai provider (set in config.yaml or OPENAI_API_KEY)")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("config: unsupported aiProvider %q (want openai or ollama)", cfg.AIProvider)
	}
	if cfg.RateLimitEnabled() && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when the tutor rate limit is enabled (set in config.yaml or REDIS_ADDR)")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
