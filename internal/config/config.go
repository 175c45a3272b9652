package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderVertex = "vertex"
	ProviderTask   = "task"
)

// Config aggregates runtime configuration for the API server and its
// collaborators.
type Config struct {
	HTTPListenAddr string
	MySQLDSN       string
	LogLevel       string

	JWTSecret   string
	JWTTTL      time.Duration
	BcryptCost  int
	FreeCredits int
	DefaultPlan string

	GenerationProvider string
	GenerationTimeout  time.Duration
	GCPProjectID       string
	VertexRegion       string
	VertexModel        string
	TaskAPIKey         string
	TaskBaseURL        string
	TaskModel          string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	AdminUsername string
	AdminPassword string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3LinkTTL      time.Duration
	S3UsePathStyle bool
	S3Prefix       string
}

// ExportEnabled reports whether documents can be uploaded to object storage.
func (c Config) ExportEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultTaskBaseURL = "https://api.kie.ai"

	cfg := Config{
		HTTPListenAddr:     getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MySQLDSN:           os.Getenv("MYSQL_DSN"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTTTL:             time.Minute * time.Duration(getInt("JWT_TTL_MINUTES", 60)),
		BcryptCost:         getInt("BCRYPT_COST", 0),
		FreeCredits:        getInt("FREE_CREDITS", 3),
		DefaultPlan:        getEnv("DEFAULT_PLAN_CODE", "free"),
		GenerationProvider: strings.ToLower(getEnv("GENERATION_PROVIDER", ProviderVertex)),
		GenerationTimeout:  time.Second * time.Duration(getInt("GENERATION_TIMEOUT_SECONDS", 90)),
		GCPProjectID:       os.Getenv("GCP_PROJECT_ID"),
		VertexRegion:       getEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:        getEnv("VERTEX_MODEL", "gemini-2.0-flash"),
		TaskAPIKey:         os.Getenv("TASK_API_KEY"),
		TaskBaseURL:        normalizeBaseURL(getEnv("TASK_BASE_URL", defaultTaskBaseURL), defaultTaskBaseURL),
		TaskModel:          getEnv("TASK_MODEL", "gemini-2.5-flash"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		SessionTTL:         time.Minute * time.Duration(getInt("SESSION_TTL_MINUTES", 24*60)),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3LinkTTL:          time.Minute * time.Duration(getInt("S3_LINK_TTL_MINUTES", 15)),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:           getEnv("S3_PREFIX", "letters"),
	}

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch cfg.GenerationProvider {
	case ProviderVertex:
		if cfg.GCPProjectID == "" {
			missing = append(missing, "GCP_PROJECT_ID")
		}
	case ProviderTask:
		if cfg.TaskAPIKey == "" {
			missing = append(missing, "TASK_API_KEY")
		}
	default:
		return Config{}, fmt.Errorf("unknown GENERATION_PROVIDER %q", cfg.GenerationProvider)
	}
	if cfg.ExportEnabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if cfg.FreeCredits < 0 {
		cfg.FreeCredits = 0
	}

	return cfg, nil
}

// normalizeBaseURL adds a scheme to bare hosts and moves the root kie.ai
// domain to its API host, which is the one that answers JSON.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first env file found. Running without one is fine:
// containers usually get their configuration from the environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
