package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/sichrplace/payments/internal/config"
	"github.com/sichrplace/payments/internal/handler"
	"github.com/sichrplace/payments/internal/logging"
	"github.com/sichrplace/payments/internal/middleware"
	"github.com/sichrplace/payments/internal/paypal"
	"github.com/sichrplace/payments/internal/repository"
	"github.com/sichrplace/payments/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("sichrplace-payments", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Process-wide clients, constructed once and injected; handlers never
	// reach for ambient globals.
	gateway := paypal.NewClient(
		cfg.GatewayBaseURL(),
		cfg.PayPalClientID,
		cfg.PayPalClientSecret,
		cfg.PayPalWebhookID,
		time.Duration(cfg.GatewayTimeoutS)*time.Second,
	)

	ledger := service.NewLedger(repository.NewTransactionRepository(db))
	notifier := service.NewNotifier(repository.NewNotificationRepository(db))
	reconciler := service.NewReconciler(ledger, notifier)

	payments := handler.NewPaymentHandler(
		gateway, ledger, notifier,
		cfg.PayPalClientID, cfg.PayPalEnvironment, cfg.IsProduction(),
	)
	webhooks := handler.NewWebhookHandler(gateway, reconciler, cfg.WebhookVerificationEnabled())

	authn := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /api/v1/payments/config", payments.Config)
	mux.Handle("POST /api/v1/payments/create", authn(http.HandlerFunc(payments.Create)))
	mux.Handle("POST /api/v1/payments/capture", authn(http.HandlerFunc(payments.Capture)))
	mux.Handle("GET /api/v1/payments/transactions", authn(http.HandlerFunc(payments.ListTransactions)))
	mux.Handle("GET /api/v1/payments/transactions/{paymentId}", authn(http.HandlerFunc(payments.GetTransaction)))
	mux.HandleFunc("POST /api/v1/payments/webhooks", webhooks.Receive)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "gateway", cfg.GatewayBaseURL(), "verify_webhooks", cfg.WebhookVerificationEnabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
