package migration

import (
	"strings"

	"github.com/smallbiznis/bursar/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBRunMigrations {
			return nil
		}
		if !strings.EqualFold(cfg.DBType, "postgres") {
			log.Warn("skipping migrations, embedded schema targets postgres", zap.String("type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		status, err := RunMigrations(sqlDB)
		if err != nil {
			return err
		}
		log.Info("ledger schema ready",
			zap.Uint("version", status.Version),
			zap.Bool("applied", status.Applied),
			zap.String("table", MigrationsTable),
		)
		return nil
	}),
)
