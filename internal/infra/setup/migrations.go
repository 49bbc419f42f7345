package setup

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mrnpal/murojaah/internal/domain"
)

// MigrateDB 使用传入的 GORM 连接执行全部数据库迁移。
// Script 和 Feedback 是 TEXT 列，不参与任何索引，因此 AutoMigrate 足够，
// 无需手写建表 SQL。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.CorrectionLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	return nil
}
