package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ispkit/sessiond/internal/config"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB    *gorm.DB
	Redis *redis.Client
)

const (
	maxConnectAttempts = 30
	connectBackoff     = 2 * time.Second
)

func Connect(cfg *config.Config) error {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Unique violations must surface as gorm.ErrDuplicatedKey: the
		// allocator's lost-race retry and the duplicate-Start fold key off
		// IsUniqueViolation.
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	}

	var err error
	for attempt := 1; ; attempt++ {
		DB, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err == nil {
			break
		}
		if attempt >= maxConnectAttempts {
			return fmt.Errorf("database unreachable after %d attempts: %w", attempt, err)
		}
		log.Printf("Database: connect attempt %d/%d failed: %v", attempt, maxConnectAttempts, err)
		time.Sleep(connectBackoff)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Sized for the RADIUS workers plus the API; allocation transactions
	// are short, so a modest pool keeps Postgres comfortable.
	sqlDB.SetMaxIdleConns(8)
	sqlDB.SetMaxOpenConns(64)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	log.Println("Database connected successfully")

	Redis = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Redis.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("Redis connected successfully")

	return nil
}

func Close() {
	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.Close()
	}
	if Redis != nil {
		Redis.Close()
	}
}
