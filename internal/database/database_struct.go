package database

import (
	"errors"
	"fmt"

	"github.com/thereayou/huntart-chat/internal/errs"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// lookupError переводит ошибки gorm в доменные: отсутствие записи -> NotFound,
// всё остальное -> TransientIO.
func lookupError(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("%s not found", what)
	}
	return errs.Transient(err, "failed to load %s", what)
}
