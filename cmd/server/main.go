package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	emailPkg "percentuais/internal/adapters/email"
	web "percentuais/internal/adapters/http"
	"percentuais/internal/adapters/storage"
	advisorStorePkg "percentuais/internal/adapters/storage/advisor"
	branchStorePkg "percentuais/internal/adapters/storage/branch"
	ledgerStorePkg "percentuais/internal/adapters/storage/ledger"
	otpStorePkg "percentuais/internal/adapters/storage/otp"
	outboxStorePkg "percentuais/internal/adapters/storage/outbox"
	"percentuais/internal/application/notify"
	"percentuais/internal/application/orchestrators"
	"percentuais/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// WAL mode, foreign keys, and busy timeout via DSN pragmas
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialize schema: %v", err)
	}
	log.Println("Database initialized successfully!")

	stores := &web.Stores{
		Ledger:       ledgerStorePkg.NewSQLiteStore(db),
		BranchStore:  branchStorePkg.NewSQLiteStore(db),
		AdvisorStore: advisorStorePkg.NewSQLiteStore(db),
		OTPStore:     otpStorePkg.NewSQLiteStore(db),
		OutboxStore:  outboxStorePkg.NewSQLiteStore(db),
	}

	// Configure email sender
	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.FromAddress)
		log.Println("Email sender configured (Resend)")
	} else {
		sender = emailPkg.NewNoopSender()
		log.Println("Email sender configured (noop, set PERCENTUAIS_RESEND_KEY for real delivery)")
	}

	notifier := &notify.Dispatcher{
		Sender:     sender,
		Outbox:     stores.OutboxStore,
		From:       cfg.FromAddress,
		GenerateID: func() string { return uuid.New().String() },
		Now:        time.Now,
	}

	// Background worker replays notifications whose delivery failed
	outboxStopCh := make(chan struct{})
	processor := orchestrators.NewOutboxProcessor(stores.OutboxStore, sender)
	orchestrators.StartBackgroundWorker(processor, cfg.OutboxRetryInterval, outboxStopCh)
	defer close(outboxStopCh)

	// Expired staged batches are swept in the background; a confirm
	// against an expired session fails on its own either way.
	sweepStopCh := make(chan struct{})
	go sweepExpiredSessions(stores.OTPStore, 5*time.Minute, sweepStopCh)
	defer close(sweepStopCh)

	srv := web.NewServer(stores, notifier, processor, web.Options{
		ReviewBaseURL:     cfg.ReviewBaseURL,
		ComplianceAddress: cfg.ComplianceAddress,
		SessionTTL:        cfg.SessionTTL,
	})
	mux := web.NewMux(srv)

	log.Printf("Percentuais %s starting on %s", version, cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// sweepExpiredSessions periodically deletes staged batches past expiry.
func sweepExpiredSessions(store otpStorePkg.Store, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := store.DeleteExpired(ctx)
			cancel()
			if err != nil {
				slog.Error("otp_sweep_failed", "error", err.Error())
			} else if n > 0 {
				slog.Info("otp_sessions_swept", "removed", n)
			}
		case <-stopCh:
			return
		}
	}
}
