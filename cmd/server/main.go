package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/raffle-ledger/internal/config"
	"github.com/iliyamo/raffle-ledger/internal/database"
	"github.com/iliyamo/raffle-ledger/internal/handler"
	"github.com/iliyamo/raffle-ledger/internal/logging"
	"github.com/iliyamo/raffle-ledger/internal/middleware"
	"github.com/iliyamo/raffle-ledger/internal/notify"
	"github.com/iliyamo/raffle-ledger/internal/queue"
	"github.com/iliyamo/raffle-ledger/internal/repository"
	"github.com/iliyamo/raffle-ledger/internal/router"
	"github.com/iliyamo/raffle-ledger/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	defer db.Close()

	seeded, err := database.Init(ctx, db, dialect)
	if err != nil {
		logger.WithError(err).Fatal("initialise ticket pool")
	}
	logger.WithFields(log.Fields{"driver": cfg.DB.Driver, "seeded": seeded}).Info("ticket store ready")

	g, gctx := errgroup.WithContext(ctx)

	// Notifications: with a broker configured the ledger publishes and a
	// consumer feeds the delivery sink; otherwise the dispatcher delivers
	// directly.
	delivery := deliverySink(cfg, logger)
	sink := delivery
	var publisher *queue.Publisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, logger)
		sink = publisher
		consumer := queue.NewConsumer(cfg.RabbitURL, delivery, cfg.Notify.Timeout, logger)
		g.Go(func() error { return consumer.Run(gctx) })
		logger.Info("notifications routed through RabbitMQ")
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Notify.Workers, cfg.Notify.Buffer, cfg.Notify.Timeout, logger)
	dispatcher.Start()

	ledger := service.NewLedger(repository.NewTicketRepo(db, dialect), dispatcher, service.LedgerConfig{
		ReservationTTL: cfg.ReservationTTL,
		TicketPrice:    cfg.TicketPrice,
		RaffleName:     cfg.RaffleName,
	}, logger)
	sweeper := service.NewSweeper(ledger, cfg.SweepInterval, logger)
	g.Go(func() error { return sweeper.Run(gctx) })

	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		logger.WithError(err).Warn("redis unavailable; cache and rate limiter disabled")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("64K"))
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.CORS())

	deps := router.Deps{
		Tickets:   handler.NewTicketHandler(ledger, logger),
		DB:        db,
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Log:       logger,
	}
	router.RegisterRoutes(e, deps)
	router.RegisterTickets(e, deps)

	addr := ":" + cfg.Port
	g.Go(func() error {
		logger.WithFields(log.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
	}
	// drain queued notifications before the sinks go away
	dispatcher.Close()
	if publisher != nil {
		_ = publisher.Close()
	}
	logger.Info("shutdown complete")
}

// deliverySink picks the final delivery channel: SMTP when configured,
// otherwise the log.
func deliverySink(cfg config.Config, logger *log.Logger) notify.Sink {
	if cfg.SMTP.Enabled() {
		return notify.NewMailer(cfg.SMTP, logger)
	}
	logger.Warn("SMTP_HOST not set; notifications are logged only")
	return notify.LogSink{Log: logger}
}
