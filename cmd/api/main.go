package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coedit/api/internal/app"
	"coedit/api/internal/archive"
	"coedit/api/internal/collab"
	"coedit/api/internal/config"
	"coedit/api/internal/journal"
	"coedit/api/internal/notify"
	"coedit/api/internal/presence"
	"coedit/api/internal/search"
	"coedit/api/internal/store"
	"coedit/api/internal/transport"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.JournalDir, 0o755); err != nil {
		log.Fatalf("failed to create journal dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	journalService := journal.New(cfg.JournalDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	manager := collab.NewManager(collab.Config{
		IdleTimeout:        cfg.IdleTimeout,
		ConflictWindow:     cfg.ConflictWindow,
		DisableAutoResolve: !cfg.AutoResolve,
	})

	auditors := []collab.Auditor{
		store.NewAudit(dataStore),
		app.NewSearchAuditor(searchService),
		app.NewJournalAuditor(journalService),
	}

	var archiveService *archive.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiveService, err = archive.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: transcript archive disabled: %v", err)
		} else {
			auditors = append(auditors, app.NewArchiveAuditor(archiveService))
		}
	}
	manager.SetAuditor(app.NewAuditFanout(auditors...))

	var mirror *presence.RedisMirror
	if strings.TrimSpace(cfg.RedisURL) != "" {
		mirror, err = presence.NewRedisMirror(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: presence mirror disabled: %v", err)
			mirror = nil
		} else {
			defer mirror.Close()
			manager.SetPresenceMirror(mirror)
		}
	}

	if strings.TrimSpace(cfg.SMTPHost) != "" {
		mailer := notify.NewMailer(notify.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, emailDirectory)
		manager.SetNotifier(mailer)
	}

	hub := transport.NewHub()
	manager.AttachSink(hub)
	manager.StartSweeper(ctx, cfg.SweepInterval)

	service := app.NewService(app.Deps{
		Manager:  manager,
		DB:       db,
		Store:    dataStore,
		Search:   searchService,
		Journal:  journalService,
		Archive:  archiveService,
		Presence: mirror,
	})

	httpServer := app.NewHTTPServer(service, hub, cfg.CORSOrigin)
	// No WriteTimeout: the handler also serves long-lived websockets.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Coedit API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// emailDirectory treats user ids that already look like addresses as
// deliverable. Deployments with a user service replace this.
func emailDirectory(userID string) (string, string, bool) {
	if !strings.Contains(userID, "@") {
		return "", "", false
	}
	name := userID[:strings.Index(userID, "@")]
	return userID, name, true
}
