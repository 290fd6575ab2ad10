package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"blockproof/internal/api"
	"blockproof/internal/config"
	"blockproof/internal/hasher"
	"blockproof/internal/ledger"
	"blockproof/internal/logger"
	"blockproof/internal/messaging"
	"blockproof/internal/oracle"
	"blockproof/internal/repository"
	"blockproof/internal/service"
)

const version = "1.0.0"

func features(cfg *config.Config) []string {
	f := []string{"issue", "verify", "revoke", "fingerprint"}
	if cfg.Oracle.Driver != config.OracleNone {
		f = append(f, "trust_oracle")
	}
	if cfg.Oracle.Cache {
		f = append(f, "oracle_cache")
	}
	if cfg.NATS.URL != "" {
		f = append(f, "events")
	}
	return f
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting BlockProof",
		zap.String("version", version),
		zap.String("ledger", cfg.Ledger.Driver),
		zap.String("oracle", cfg.Oracle.Driver))

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.NeedsDatabase() {
		db, err = pgxpool.New(ctx, cfg.DatabaseDSN())
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		log.Info("Connected to database")

		if err := repository.RunMigrations(ctx, db, cfg.Database.Migrations, log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	var natsConn *nats.Conn
	events := messaging.NewNoopPublisher()
	if cfg.NATS.URL != "" {
		natsConn, err = messaging.Connect(cfg.NATS.URL, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		events = messaging.NewEventPublisher(natsConn, log)

		log.Info("Connected to NATS")
	}
	defer events.Close()

	ledgerClient, err := ledger.New(ctx, cfg, db, log)
	if err != nil {
		log.Fatal("Failed to create ledger client", zap.Error(err))
	}
	defer ledgerClient.Close()

	oracleClient, err := oracle.New(cfg, natsConn, log)
	if err != nil {
		log.Fatal("Failed to create oracle client", zap.Error(err))
	}

	h, err := hasher.New(cfg.Hash.Algorithm)
	if err != nil {
		log.Fatal("Failed to create hasher", zap.Error(err))
	}

	if cfg.Oracle.Cache {
		oracleClient = oracle.NewCachingClient(oracleClient, repository.NewScoreCacheRepository(db, log), h, log)
	}

	certificateService := service.NewCertificateService(ledgerClient, h, events, cfg.Ledger.Timeout, log)
	verificationService := service.NewVerificationService(ledgerClient, oracleClient, h, events, service.VerifyOptions{
		TrustThreshold:    cfg.Verify.TrustThreshold,
		NeutralConfidence: cfg.Verify.NeutralConfidence,
		LedgerTimeout:     cfg.Ledger.Timeout,
		OracleTimeout:     cfg.Oracle.Timeout,
	}, log)

	// Подписываемся на уведомления об отзыве сертификатов
	err = events.SubscribeToRevocations(ctx, func(msg *messaging.RevokedMessage) {
		log.Info("Received certificate revoked notification",
			zap.String("certificate_id", msg.CertificateID),
			zap.String("reason", msg.Reason))
	})
	if err != nil {
		log.Error("Failed to subscribe to revocations", zap.Error(err))
	}

	handler := api.NewHandler(certificateService, verificationService, ledgerClient, oracleClient, api.Info{
		Version:           version,
		HashAlgorithm:     h.Algorithm(),
		TrustThreshold:    cfg.Verify.TrustThreshold,
		NeutralConfidence: cfg.Verify.NeutralConfidence,
		LedgerDriver:      cfg.Ledger.Driver,
		OracleDriver:      cfg.Oracle.Driver,
		Features:          features(cfg),
	}, log)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handler, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Starting server", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
