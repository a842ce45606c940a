package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Challenge   ChallengeConfig
	DeviceTrust DeviceTrustConfig
	Delivery    DeliveryConfig
	Audit       AuditConfig
	MinIO       MinIOConfig
	RateLimit   RateLimitConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ServerConfig struct {
	Port string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
	DigestSecret    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ChallengeConfig struct {
	CodeTTL        time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	RetentionDays  int
	ReapInterval   time.Duration
}

type DeviceTrustConfig struct {
	GrantDays    int
	MaxGrantDays int
}

type DeliveryConfig struct {
	SendTimeout time.Duration

	SMSEndpoint string
	SMSAPIKey   string
	SMSSender   string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	WhatsAppEndpoint string
	WhatsAppToken    string
}

type AuditConfig struct {
	ExportInterval time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "verify"),
			Password: getEnv("DB_PASSWORD", "verify_secret"),
			Name:     getEnv("DB_NAME", "verify"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
			DigestSecret:    getEnv("DIGEST_SECRET", "change-me-in-production"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Challenge: ChallengeConfig{
			CodeTTL:        getEnvAsDuration("CHALLENGE_CODE_TTL", 10*time.Minute),
			MaxAttempts:    getEnvAsInt("CHALLENGE_MAX_ATTEMPTS", 5),
			ResendCooldown: getEnvAsDuration("CHALLENGE_RESEND_COOLDOWN", 60*time.Second),
			RetentionDays:  getEnvAsInt("CHALLENGE_RETENTION_DAYS", 90),
			ReapInterval:   getEnvAsDuration("CHALLENGE_REAP_INTERVAL", 1*time.Hour),
		},
		DeviceTrust: DeviceTrustConfig{
			GrantDays:    getEnvAsInt("DEVICE_TRUST_GRANT_DAYS", 30),
			MaxGrantDays: getEnvAsInt("DEVICE_TRUST_MAX_GRANT_DAYS", 180),
		},
		Delivery: DeliveryConfig{
			SendTimeout:      getEnvAsDuration("DELIVERY_SEND_TIMEOUT", 10*time.Second),
			SMSEndpoint:      getEnv("SMS_ENDPOINT", ""),
			SMSAPIKey:        getEnv("SMS_API_KEY", ""),
			SMSSender:        getEnv("SMS_SENDER", "Schedulo"),
			SMTPHost:         getEnv("SMTP_HOST", "localhost"),
			SMTPPort:         getEnvAsInt("SMTP_PORT", 1025),
			SMTPUser:         getEnv("SMTP_USER", ""),
			SMTPPass:         getEnv("SMTP_PASS", ""),
			SMTPFrom:         getEnv("SMTP_FROM", "no-reply@schedulo.local"),
			WhatsAppEndpoint: getEnv("WHATSAPP_ENDPOINT", ""),
			WhatsAppToken:    getEnv("WHATSAPP_TOKEN", ""),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", 1*time.Hour),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "verify"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "verify_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "verify-audit"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 300),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
