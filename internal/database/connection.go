package database

import (
	"errors"

	"github.com/thereayou/huntart-chat/internal/config"
	"github.com/thereayou/huntart-chat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open подключается к базе по конфигу и прогоняет миграции
func Open(cfg config.DatabaseConfig) (*Database, error) {
	d := &Database{}
	if err := d.Connect(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) Connect(cfg config.DatabaseConfig) error {
	if cfg.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.URL)
	case "postgres", "":
		dialector = postgres.Open(cfg.URL)
	default:
		return errors.New("unsupported database driver: " + cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if cfg.Driver == "sqlite" {
		// in-memory база живёт только внутри одного соединения
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return err
	}

	d.db = db

	return nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Chat{},
		&models.PersonalChatData{},
		&models.GroupChatData{},
		&models.ChatMember{},
		&models.ChatMessage{},
	)
}
