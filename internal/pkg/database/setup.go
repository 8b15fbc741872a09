package database

import (
	"fmt"
	"log"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.MembershipProduct{},
		&models.PaymentOrder{},
		&models.RedemptionCode{},
		&models.PaymentSettings{},
		&models.PaymentNotification{},
		&models.StoredFile{},
	}
}

func SetupDatabase() {
	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	logLevel := logger.Warn
	if env.IsDev() {
		logLevel = logger.Info
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			Logger:         logger.Default.LogMode(logLevel),
			TranslateError: true,
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			// Production schema is owned by cmd/migrate.
			if env.GetEnvBool("DB_AUTO_MIGRATE", env.IsDev()) {
				if err := DB.AutoMigrate(Models()...); err != nil {
					log.Printf("AutoMigrate failed: %v", err)
				}
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the shared connection, or nil before SetupDatabase ran.
func GetDB() *gorm.DB {
	return DB
}
