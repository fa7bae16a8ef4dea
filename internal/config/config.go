package config

import (
	"log"
	"os"
	"strconv"
	"strings"

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// InternalTriggerToken guards the internal reset trigger endpoint.
	InternalTriggerToken string

	SeedCatalog bool
}

func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return Config{
		AppName:     getEnv("APP_NAME", "creditledger"),
		AppVersion:  getEnv("APP_VERSION", "dev"),
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		DBType:            getEnv("DB_TYPE", "postgres"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBName:            getEnv("DB_NAME", "creditledger"),
		DBUser:            getEnv("DB_USER", "creditledger"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		DBMaxIdleConn:     getEnvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getEnvInt("DB_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getEnvInt("DB_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		InternalTriggerToken: getEnv("INTERNAL_TRIGGER_TOKEN", ""),

		SeedCatalog: getEnvBool("SEED_CATALOG", true),
	}
}

func getEnv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getEnvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
