package migration

import (
	"github.com/pinksky/orderflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			log.Info("schema migrations skipped", zap.Bool("migrate_on_start", false))
			return nil
		}
		if cfg.DBType != "postgres" {
			log.Warn("schema migrations only run on postgres", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		res, err := Apply(sqlDB)
		if err != nil {
			log.Error("schema migrations failed", zap.Uint("from_version", res.From), zap.Error(err))
			return err
		}
		if res.From == res.To {
			log.Info("schema up to date", zap.Uint("version", res.To))
			return nil
		}
		log.Info("schema migrated", zap.Uint("from_version", res.From), zap.Uint("to_version", res.To))
		return nil
	}),
)
