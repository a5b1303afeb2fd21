package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/adops-console/internal/cache"
	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/pkg/distlock"
	"github.com/ignite/adops-console/internal/scheduler"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	// Redis backs leader election when available; otherwise the lock
	// degrades to a PG advisory lock.
	c := cache.New(nil)
	if cfg.Redis.Enabled {
		c = cache.Connect(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	defer c.Close()

	lockTTL := time.Duration(cfg.Scheduler.LockTTLSeconds) * time.Second
	lock := distlock.NewLock(c.Client(), db, "scheduler-beat", lockTTL)

	store := jobs.NewStore(db)
	pool := jobs.NewPool(store, 1)
	beat := scheduler.NewBeat(cfg.Scheduler, scheduler.NewStore(db), pool, store, lock)

	beat.Start()
	log.Printf("Scheduler started (rule tick: %ds, report tick: %ds, cleanup: %dh)",
		cfg.Scheduler.AlertTickSeconds, cfg.Scheduler.ReportTickSeconds, cfg.Scheduler.CleanupTickHours)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	beat.Stop()
	log.Println("Scheduler stopped")
}
