package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/care-auth-api/internal/domain"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	ArchiveBucket string // S3 bucket for purged verification records

	// Verification code policy.
	OTPCipherKey   string // 64-char hex, AES-256
	OTPCodeLength  int
	OTPTTL         time.Duration
	OTPMaxAttempts map[domain.Purpose]int
	OTPRetention   time.Duration
	PurgeInterval  time.Duration

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// Bearer credential lifetime per guard.
	TokenTTL map[domain.OwnerKind]time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion string

	AllowedOrigins []string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Clients     string
	Workers     string
	Admins      string
	OTPs        string
	Credentials string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Clients:     getEnv("DYNAMO_TABLE_CLIENTS", "clients"),
			Workers:     getEnv("DYNAMO_TABLE_WORKERS", "care_workers"),
			Admins:      getEnv("DYNAMO_TABLE_ADMINS", "admins"),
			OTPs:        getEnv("DYNAMO_TABLE_OTPS", "otps"),
			Credentials: getEnv("DYNAMO_TABLE_CREDENTIALS", "credentials"),
		},

		ArchiveBucket: getEnv("OTP_ARCHIVE_BUCKET", "care-auth-otp-archive"),

		OTPCipherKey:  getEnv("OTP_CIPHER_KEY", ""),
		OTPCodeLength: getEnvInt("OTP_CODE_LENGTH", 6),
		OTPTTL:        time.Duration(getEnvInt("OTP_TTL_MINUTES", 10)) * time.Minute,
		OTPMaxAttempts: map[domain.Purpose]int{
			domain.PurposeAccountVerification: getEnvInt("OTP_MAX_ATTEMPTS", 3),
			domain.PurposePasswordReset:       getEnvInt("OTP_MAX_ATTEMPTS", 3),
			domain.PurposeEmailUpdate:         getEnvInt("OTP_MAX_ATTEMPTS", 3),
			domain.PurposePhoneUpdate:         getEnvInt("OTP_MAX_ATTEMPTS", 3),
		},
		OTPRetention:  time.Duration(getEnvInt("OTP_RETENTION_DAYS", 30)) * 24 * time.Hour,
		PurgeInterval: time.Duration(getEnvInt("OTP_PURGE_INTERVAL_MINUTES", 60)) * time.Minute,

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_MINUTES", 60)) * time.Minute,

		TokenTTL: map[domain.OwnerKind]time.Duration{
			domain.KindClient: time.Duration(getEnvInt("CLIENT_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
			domain.KindWorker: time.Duration(getEnvInt("WORKER_TOKEN_TTL_DAYS", 14)) * 24 * time.Hour,
			domain.KindAdmin:  time.Duration(getEnvInt("ADMIN_TOKEN_TTL_DAYS", 1)) * 24 * time.Hour,
		},

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
