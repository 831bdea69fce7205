package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppAddr            string
	BaseURL            string
	CORSOrigins        []string
	LogLevel           string
	LogFormat          string
	JWTSecret          string
	JWTTTL             time.Duration
	DBDriver           string
	DBDSN              string
	DBHost             string
	DBPort             string
	DBUser             string
	DBPass             string
	DBName             string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	StorageDriver      string
	MinioHost          string
	MinioPort          string
	MinioUsername      string
	MinioPassword      string
	MinioUseSSL        bool
	BucketName         string
	S3Endpoint         string
	S3Region           string
	S3AccessKey        string
	S3SecretKey        string
	RabbitMQURL        string
	RabbitMQPrefetch   int
	AuditDriver        string
	AuditConcurrency   int
	AuditRate          float64
	AuditBurst         int
	AuditRetryMax      int
	AuditRetryDelays   []time.Duration
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	SMTPFrom           string
	ActivationRequired bool
	ActivationTTL      time.Duration
	SweepInterval      time.Duration
	ShareRate          float64
	ShareBurst         int
	MaxUploadBytes     int64
}

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Load reads a .env file when present and builds a Config from the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env failed", "error", err)
	}

	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(getEnv("RABBITMQ_USER", "guest")),
			url.PathEscape(getEnv("RABBITMQ_PASSWORD", "guest")),
			getEnv("RABBITMQ_HOST", "localhost"),
			getEnv("RABBITMQ_PORT", "5672"),
			url.PathEscape(getEnv("RABBITMQ_VHOST", "/")),
		)
	}

	return Config{
		AppAddr:            getEnv("APP_ADDR", ":8000"),
		BaseURL:            strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8000"), "/"),
		CORSOrigins:        getEnvList("CORS_ORIGINS"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		JWTSecret:          getEnv("JWT_SECRET", "l=ax+b"),
		JWTTTL:             getEnvDuration("JWT_TTL", 24*time.Hour),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBDSN:              getEnv("DB_DSN", ""),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBUser:             getEnv("DB_USER", "root"),
		DBPass:             getEnv("DB_PASS", "root"),
		DBName:             getEnv("DB_NAME", "PanShare"),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", "minio")),
		MinioHost:          getEnv("MINIO_HOST", "localhost"),
		MinioPort:          getEnv("MINIO_PORT", "9000"),
		MinioUsername:      getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword:      getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		BucketName:         getEnv("BUCKET_NAME", "panshare"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           getEnv("S3_REGION", "auto"),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
		RabbitMQURL:        rabbitURL,
		RabbitMQPrefetch:   getEnvInt("RABBITMQ_PREFETCH", 8),
		AuditDriver:        strings.ToLower(getEnv("AUDIT_DRIVER", "db")),
		AuditConcurrency:   getEnvInt("AUDIT_WORKER_CONCURRENCY", 4),
		AuditRate:          getEnvFloat("AUDIT_RATE", 50),
		AuditBurst:         getEnvInt("AUDIT_BURST", 100),
		AuditRetryMax:      getEnvInt("AUDIT_RETRY_MAX", 5),
		AuditRetryDelays:   getEnvDurationList("AUDIT_RETRY_DELAYS", []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute}),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvInt("SMTP_PORT", 587),
		SMTPUser:           getEnv("SMTP_USER", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:           getEnv("SMTP_FROM", ""),
		ActivationRequired: getEnvBool("ACTIVATION_REQUIRED", false),
		ActivationTTL:      getEnvDuration("ACTIVATION_TTL", 24*time.Hour),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Minute),
		ShareRate:          getEnvFloat("SHARE_RATE", 5),
		ShareBurst:         getEnvInt("SHARE_BURST", 20),
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", 1<<30),
	}
}

// InitConfig loads configuration into AppConfig.
func InitConfig() {
	AppConfig = Load()
}
