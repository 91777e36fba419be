package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tabungan/config"
	"tabungan/pkg/receipt"
	"tabungan/pkg/tabungan"
)

// server carries what the HTTP handlers need.
type server struct {
	db         *gorm.DB
	svc        *tabungan.Service
	log        logrus.FieldLogger
	secret     []byte
	tokenTTL   time.Duration
	uploadBase string
}

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	// `./tabungan migrate` runs AutoMigrate and seeding then exits.
	migrateOnly := len(os.Args) > 1 && os.Args[1] == "migrate"

	gdb, err := initDB(cfg, log, migrateOnly)
	if err != nil {
		log.WithError(err).Fatal("database init failed")
	}
	if migrateOnly {
		log.Info("migration and seeding completed")
		return
	}

	svc, closeDeps := buildService(cfg, gdb, log)
	defer closeDeps()

	sched, err := startReconcileJob(cfg.ReconcileCron, svc, log)
	if err != nil {
		log.WithError(err).Fatal("invalid RECONCILE_CRON")
	}
	if sched != nil {
		defer sched.Stop()
	}

	s := &server{
		db:         gdb,
		svc:        svc,
		log:        log,
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenExpiry,
		uploadBase: cfg.UploadBase,
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("tabungan server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), metricsMiddleware())
	r.MaxMultipartMemory = maxReceiptSize
	s.setupRoutes(r)
	return r
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// buildService wires the optional redis lock, the event bus and the receipt
// reader around the ledger store. The returned func closes what was opened.
func buildService(cfg *config.Config, gdb *gorm.DB, log *logrus.Logger) (*tabungan.Service, func()) {
	var closers []func()
	opts := []tabungan.Option{
		tabungan.WithMinNominal(cfg.MinNominal),
		tabungan.WithMaxNominal(cfg.MaxNominal),
		tabungan.WithReceiptReader(receipt.NewReader(log), cfg.OCRMinConfidence),
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// verification still works, the lock just fails open
			log.WithError(err).Warn("redis unreachable at startup")
		}
		cancel()
		opts = append(opts, tabungan.WithLocker(tabungan.NewRedisLocker(rdb, cfg.VerifyLockTTL)))
		closers = append(closers, func() { _ = rdb.Close() })
	}

	switch cfg.EventBus {
	case "redis":
		if rdb == nil {
			log.Warn("EVENT_BUS=redis but REDIS_ADDR is empty, events disabled")
			break
		}
		opts = append(opts, tabungan.WithPublisher(tabungan.NewRedisPublisher(rdb)))
	case "amqp":
		pub, err := tabungan.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable, events disabled")
			break
		}
		opts = append(opts, tabungan.WithPublisher(pub))
		closers = append(closers, func() { _ = pub.Close() })
	case "", "none":
	default:
		log.WithField("event_bus", cfg.EventBus).Warn("unknown EVENT_BUS, events disabled")
	}

	svc := tabungan.NewService(tabungan.NewStore(gdb), log, opts...)
	return svc, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// startReconcileJob schedules the read-only balance check. An empty schedule
// disables it.
func startReconcileJob(schedule string, svc *tabungan.Service, log logrus.FieldLogger) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		log.Info("running scheduled balance reconciliation")
		if _, err := svc.Reconcile(context.Background()); err != nil {
			log.WithError(err).Error("scheduled reconciliation failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
