package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/gateway"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	paymentpg "github.com/frahmantamala/payment-reconciliation/internal/payment/postgres"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
	"github.com/frahmantamala/payment-reconciliation/internal/refund"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/frahmantamala/payment-reconciliation/internal/transport/rest"
	"github.com/frahmantamala/payment-reconciliation/internal/webhook"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle webhooks, verification and refunds`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Logger *slog.Logger

	WebhookHandler        *webhook.Handler
	ReconciliationHandler *reconciliation.Handler
	RefundHandler         *refund.Handler
	Sweeper               *reconciliation.Sweeper
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.WebhookHandler,
		deps.ReconciliationHandler,
		deps.RefundHandler,
		deps.Logger,
	)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// the sweeper shares the server's lifetime
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go func() {
		if err := deps.Sweeper.Run(sweepCtx); err != nil && err != context.Canceled {
			deps.Logger.Error("sweeper stopped with error", "error", err)
		}
	}()

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		stopSweeper()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		stopSweeper()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	redisClient := initRedis(config.Redis, log)

	bus := events.NewEventBus(log)
	registerEventSubscribers(bus, log)

	transactionRepo := paymentpg.NewTransactionRepository(gormDB)
	orderRepo := paymentpg.NewOrderRepository(gormDB)
	ledgerRepo := paymentpg.NewLedgerRepository(gormDB)
	refundRepo := paymentpg.NewRefundRepository(gormDB)

	transactionService := payment.NewTransactionService(transactionRepo, log)
	matcher := payment.NewMatcher(orderRepo, log)
	transitioner := payment.NewTransitioner(transactionRepo, bus, log)

	breaker := gateway.NewBreaker(redisClient, config.Gateway.BreakerThreshold, config.Gateway.BreakerOpenTTL, log)
	gatewayClient := gateway.NewClient(config.Gateway, breaker, log)

	reconciliationService := reconciliation.NewService(
		transactionService, orderRepo, matcher, transitioner,
		gatewayClient, config.Sweeper.StuckThreshold, log)
	refundService := refund.NewService(refundRepo, transactionRepo, gatewayClient, bus, log)

	base := transport.NewBaseHandler(log)
	webhookHandler := webhook.NewHandler(base, ledgerRepo, reconciliationService, refundService, config.Webhook)
	reconciliationHandler := reconciliation.NewHandler(base, reconciliationService, config.Sweeper.BatchSize)
	refundHandler := refund.NewHandler(base, refundService)

	sweeper := reconciliation.NewSweeper(
		reconciliationService, webhookHandler, config.Sweeper.Interval, config.Sweeper.BatchSize, log)

	return &Dependencies{
		Config:                config,
		DB:                    db,
		Router:                chi.NewRouter(),
		Logger:                log,
		WebhookHandler:        webhookHandler,
		ReconciliationHandler: reconciliationHandler,
		RefundHandler:         refundHandler,
		Sweeper:               sweeper,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initRedis connects to redis for breaker state. A missing or unreachable
// redis is not fatal: the breaker fails open without it.
func initRedis(cfg internal.RedisConfig, log *slog.Logger) *redis.Client {
	if cfg.Addr == "" {
		log.Warn("redis not configured, circuit breaker state will not be shared")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, circuit breaker will fail open", "error", err)
	}

	return client
}
