package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Dispatch DispatchConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// GatewayConfig holds the SMS provider endpoint and credentials.
type GatewayConfig struct {
	URL        string
	APIKey     string
	SenderName string
	Timeout    time.Duration
}

// DispatchConfig controls the absence dispatch cycle.
type DispatchConfig struct {
	Interval        time.Duration
	MaxAttempts     int
	WorkerCount     int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	CycleDeadline   time.Duration
	Timezone        string
	SchoolName      string
	MessageTemplate string
}

type AuthConfig struct {
	NotificationsAPIKey string
	DispatchAPIKey      string
}

func Load() *Config {
	// Best effort; real deployments set env vars directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "school"),
			Password: GetEnv("DB_PASSWORD", "school123"),
			DBName:   GetEnv("DB_NAME", "school_admin"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			URL:        GetEnv("SMS_GATEWAY_URL", "https://api.sms-provider.example/v1/send"),
			APIKey:     GetEnv("SMS_GATEWAY_API_KEY", ""),
			SenderName: GetEnv("SMS_SENDER_NAME", ""),
			Timeout:    time.Duration(GetEnvAsInt("SMS_GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Dispatch: DispatchConfig{
			Interval:        GetEnvAsDuration("DISPATCH_INTERVAL", 5*time.Minute),
			MaxAttempts:     GetEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
			WorkerCount:     GetEnvAsInt("DISPATCH_WORKER_COUNT", 4),
			RetryBackoff:    GetEnvAsDuration("DISPATCH_RETRY_BACKOFF", 5*time.Minute),
			MaxRetryBackoff: GetEnvAsDuration("DISPATCH_MAX_RETRY_BACKOFF", 40*time.Minute),
			CycleDeadline:   GetEnvAsDuration("DISPATCH_CYCLE_DEADLINE", 2*time.Minute),
			Timezone:        GetEnv("SCHOOL_TIMEZONE", "Europe/Istanbul"),
			SchoolName:      GetEnv("SCHOOL_NAME", "School"),
			MessageTemplate: GetEnv("ABSENCE_MESSAGE_TEMPLATE",
				"Dear parent, {student} was marked absent today at {school}. Please contact the school office if this is unexpected."),
		},
		Auth: AuthConfig{
			NotificationsAPIKey: GetEnv("NOTIFICATIONS_API_KEY", ""),
			DispatchAPIKey:      GetEnv("DISPATCH_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
