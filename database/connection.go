package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/talka-ai/talka-backend/internal/config"
)

var DB *gorm.DB

// Connect opens the postgres connection and stores it in DB
func Connect(cfg config.Database) {
	if cfg.InstanceConnectionName != "" {
		log.Printf("Connecting to Cloud SQL via socket: %s", cfg.InstanceConnectionName)
	} else {
		log.Println("Connecting to local PostgreSQL")
	}

	var err error
	DB, err = gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{})
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		panic(err)
	}

	log.Println("✅ Database connected successfully!")
}

// buildDSN connects through the Cloud SQL unix socket when an instance
// connection name is configured, otherwise over local TCP
func buildDSN(cfg config.Database) string {
	if cfg.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.User, cfg.Pass, cfg.Name)
	}
	return fmt.Sprintf("host=localhost user=%s password=%s dbname=%s port=5432 sslmode=disable",
		cfg.User, cfg.Pass, cfg.Name)
}
