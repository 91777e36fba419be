// Package bootstrap opens the ledger for the command line tools.
package bootstrap

import (
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tabungan/config"
	"tabungan/pkg/database"
	"tabungan/pkg/receipt"
	"tabungan/pkg/tabungan"
)

// Env is what a tool needs to talk to the ledger.
type Env struct {
	Config *config.Config
	DB     *gorm.DB
	Log    *logrus.Logger
	Svc    *tabungan.Service
}

// MustEnv loads config and connects, exiting on failure. Tools never migrate.
func MustEnv() *Env {
	cfg := config.Load()
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	gdb, err := database.Open(database.Options{
		DSN:      cfg.DBDSN,
		LogLevel: cfg.DBLogLevel,
	})
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	svc := tabungan.NewService(tabungan.NewStore(gdb), log,
		tabungan.WithMinNominal(cfg.MinNominal),
		tabungan.WithMaxNominal(cfg.MaxNominal),
		tabungan.WithReceiptReader(receipt.NewReader(log), cfg.OCRMinConfidence),
	)
	return &Env{Config: cfg, DB: gdb, Log: log, Svc: svc}
}
