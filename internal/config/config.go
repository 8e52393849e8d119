package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Gateway GatewayConfig
	Signer  SignerConfig
	Email   EmailConfig
	Redis   RedisConfig
	Kafka   KafkaConfig

	Housekeeping HousekeepingConfig
	Telemetry    TelemetryConfig

	AdminEmails    []string
	CheckoutTTL    time.Duration
	MigrateOnStart bool
}

type GatewayConfig struct {
	APIKey     string
	BaseURL    string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

type SignerConfig struct {
	APIKey        string
	BaseURL       string
	ApproverEmail string
	ApproverRole  string
	CustomerRole  string
	Timeout       time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DiscountAttemptRate  float64
	DiscountAttemptBurst int
	CallbackLockTTL      time.Duration
}

type HousekeepingConfig struct {
	Enabled           bool
	Interval          time.Duration
	StalePaymentAfter time.Duration
	BatchSize         int
	Jobs              []string
}

// TelemetryConfig uses the OTEL_* names so collectors configure it the usual way.
type TelemetryConfig struct {
	Enabled       bool
	LogLevel      string
	LogFormat     string
	OTLPProtocol  string
	SamplingRatio float64
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cfg := Config{
		AppName:      getenv("APP_SERVICE", "orderflow"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "orderflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Gateway: GatewayConfig{
			APIKey:     strings.TrimSpace(getenv("GATEWAY_API_KEY", "")),
			BaseURL:    strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.stripe.com"), "/"),
			SuccessURL: getenv("GATEWAY_SUCCESS_URL", "http://localhost:8080/api/payments/{payment_id}/callback?status=successful"),
			CancelURL:  getenv("GATEWAY_CANCEL_URL", "http://localhost:8080/api/payments/{payment_id}/callback?status=cancelled"),
			Timeout:    getenvDuration("GATEWAY_TIMEOUT", 12*time.Second),
		},
		Signer: SignerConfig{
			APIKey:        strings.TrimSpace(getenv("SIGNER_API_KEY", "")),
			BaseURL:       strings.TrimRight(getenv("SIGNER_BASE_URL", "https://api.docuseal.com"), "/"),
			ApproverEmail: strings.TrimSpace(getenv("SIGNER_APPROVER_EMAIL", "")),
			ApproverRole:  getenv("SIGNER_APPROVER_ROLE", "Doctor"),
			CustomerRole:  getenv("SIGNER_CUSTOMER_ROLE", "Patient"),
			Timeout:       getenvDuration("SIGNER_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 1025)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "orders@pinksky.example"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),

			DiscountAttemptRate:  getenvFloat("DISCOUNT_ATTEMPT_RATE", 0.2),
			DiscountAttemptBurst: int(getenvInt64("DISCOUNT_ATTEMPT_BURST", 5)),
			CallbackLockTTL:      getenvDuration("PAYMENT_CALLBACK_LOCK_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_NOTIFICATION_TOPIC", "orderflow.notifications"),
		},
		Housekeeping: HousekeepingConfig{
			Enabled:           getenvBool("HOUSEKEEPING_ENABLED", true),
			Interval:          getenvDuration("HOUSEKEEPING_INTERVAL", 5*time.Minute),
			StalePaymentAfter: getenvDuration("HOUSEKEEPING_STALE_PAYMENT_AFTER", 24*time.Hour),
			BatchSize:         int(getenvInt64("HOUSEKEEPING_BATCH_SIZE", 50)),
			Jobs:              splitList(getenv("HOUSEKEEPING_JOBS", "")),
		},
		Telemetry: TelemetryConfig{
			Enabled:       getenvBool("OTEL_ENABLED", strings.EqualFold(environment, "production")),
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", ""),
			OTLPProtocol:  getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0),
		},
		AdminEmails:    splitList(getenv("ADMIN_EMAILS", "")),
		CheckoutTTL:    getenvDuration("CHECKOUT_TTL", 30*time.Minute),
		MigrateOnStart: getenvBool("MIGRATE_ON_START", true),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
