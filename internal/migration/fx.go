package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/jvcardoso/proteamcare-billing/internal/config"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// SQL migrations target postgres; test databases migrate via gorm.
		if cfg.DBType != "postgres" {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
