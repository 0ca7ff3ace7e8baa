package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT (admin API)
	JWTSecret      string
	JWTExpireHours int

	// Admin API
	APIPort int

	// RADIUS frontend
	RadiusAuthPort int
	RadiusAcctPort int

	// CoA dispatch
	CoAQueueSize int
	CoAInterval  time.Duration
	CoATimeout   time.Duration

	// Lease reclamation
	LeaseStaleAfter   time.Duration
	LeaseReapInterval time.Duration

	// Directory snapshot cache
	SnapshotTTL      time.Duration
	SnapshotStaleMax time.Duration
}

func Load() *Config {
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Println("WARNING: JWT_SECRET not set - using insecure default!")
		jwtSecret = "changeme"
	}

	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "sessiond"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "sessiond"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168),

		APIPort: getEnvInt("API_PORT", 8080),

		RadiusAuthPort: getEnvInt("RADIUS_AUTH_PORT", 1812),
		RadiusAcctPort: getEnvInt("RADIUS_ACCT_PORT", 1813),

		CoAQueueSize: getEnvInt("COA_QUEUE_SIZE", 1024),
		CoAInterval:  getEnvDuration("COA_INTERVAL", 100*time.Millisecond),
		CoATimeout:   getEnvDuration("COA_TIMEOUT", 5*time.Second),

		LeaseStaleAfter:   getEnvDuration("LEASE_STALE_AFTER", 30*time.Minute),
		LeaseReapInterval: getEnvDuration("LEASE_REAP_INTERVAL", 5*time.Minute),

		SnapshotTTL:      getEnvDuration("SNAPSHOT_TTL", time.Second),
		SnapshotStaleMax: getEnvDuration("SNAPSHOT_STALE_MAX", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
