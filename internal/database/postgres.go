package database

import (
	"fmt"
	"log"

	"github.com/paperhub/backend-go/internal/config"
	"github.com/paperhub/backend-go/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db); err != nil {
		log.Printf("database migration warning: %v", err)
	}

	DB = db
	return db, nil
}

// autoMigrate 自动迁移文档与对话相关表（按依赖顺序）
// 生产环境建议用 cmd/migrate 执行SQL迁移，这里兜底保证开发环境可用
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Document{},
		&models.DocumentChunk{},
		&models.DocumentVector{},
		&models.Conversation{},
		&models.ConversationMessage{},
	)
}

func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
