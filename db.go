package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tabungan/config"
	"tabungan/pkg/database"
)

// initDB connects, migrates (unless DB_AUTO_MIGRATE is off) and seeds the
// master roles and the admin user. force migrates regardless of config.
func initDB(cfg *config.Config, log logrus.FieldLogger, force bool) (*gorm.DB, error) {
	gdb, err := database.Open(database.Options{
		DSN:             cfg.DBDSN,
		LogLevel:        cfg.DBLogLevel,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate || force {
		database.Migrate(gdb, log)
	}
	if err := seedDB(gdb, cfg, log); err != nil {
		return nil, err
	}
	ensureUploadBase(cfg.UploadBase, log)
	return gdb, nil
}

func seedDB(gdb *gorm.DB, cfg *config.Config, log logrus.FieldLogger) error {
	if err := database.SeedRoles(gdb); err != nil {
		return err
	}
	created, err := database.SeedAdmin(gdb, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		log.WithField("username", "admin").Warn("seeded admin user, change its password")
	}
	return nil
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase(base string, log logrus.FieldLogger) {
	if err := os.MkdirAll(base, 0755); err != nil {
		log.WithError(err).WithField("dir", base).Warn("failed to create upload base dir")
	}
}
