package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/adops-console/internal/api"
	"github.com/ignite/adops-console/internal/auth"
	"github.com/ignite/adops-console/internal/cache"
	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/reports"
	"github.com/ignite/adops-console/internal/rules"
	"github.com/ignite/adops-console/internal/scheduler"
	"github.com/ignite/adops-console/internal/settings"
	"github.com/ignite/adops-console/internal/webhook"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in
// use, so a stale process fails the boot instead of confusing ops.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()
	log.Println("Database connected")

	settingsStore := settings.NewStore(cfg.Settings.FilePath)
	tokens := auth.NewManager(cfg.Auth)
	users := auth.NewUserStore(db)

	// Bootstrap the first admin account on an empty deployment.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := users.EnsureAdmin(bootCtx, os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		log.Printf("Warning: admin bootstrap failed: %v", err)
	}
	bootCancel()

	metaClient := meta.NewClient(cfg.Meta.BaseURL, cfg.Meta.APIVersion, settingsStore)

	graphBase := fmt.Sprintf("%s/%s", cfg.Meta.BaseURL, cfg.Meta.APIVersion)
	fanout := notify.NewFanout(
		notify.NewSMTPSender(settingsStore),
		notify.NewWhatsAppSender(graphBase, settingsStore, nil),
	)

	rulesStore := rules.NewStore(db)
	engine := rules.NewEngine(rulesStore, metaClient, metaClient, fanout)

	snapshots := cache.New(nil)
	if cfg.Redis.Enabled {
		snapshots = cache.Connect(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	defer snapshots.Close()

	svc := api.Services{
		Jobs:      jobs.NewPool(jobs.NewStore(db), cfg.Worker.Concurrency),
		Recipes:   reports.NewStore(db),
		Rules:     rulesStore,
		Engine:    engine,
		Schedules: scheduler.NewStore(db),
		Meta:      metaClient,
		Settings:  settingsStore,
		Users:     users,
		Tokens:    tokens,
		Webhooks:  webhook.NewHandler(webhook.NewIngestor(settingsStore, fanout)),
		Cache:     snapshots,
	}
	server := api.NewServer(cfg.Server, svc)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Starting API server on %s (env: %s)", addr, cfg.Server.Environment)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
