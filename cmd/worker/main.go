package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/adops-console/internal/ai"
	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/reports"
	"github.com/ignite/adops-console/internal/rules"
	"github.com/ignite/adops-console/internal/scheduler"
	"github.com/ignite/adops-console/internal/settings"
	"github.com/ignite/adops-console/internal/storage"

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

	if err := os.MkdirAll(cfg.Reports.Dir, 0o755); err != nil {
		log.Fatalf("Failed to create reports dir %s: %v", cfg.Reports.Dir, err)
	}

	settingsStore := settings.NewStore(cfg.Settings.FilePath)
	metaClient := meta.NewClient(cfg.Meta.BaseURL, cfg.Meta.APIVersion, settingsStore)
	recipes := reports.NewStore(db)
	materializer := reports.NewMaterializer(metaClient)
	analyzer := ai.New(cfg.AI, settingsStore)

	graphBase := fmt.Sprintf("%s/%s", cfg.Meta.BaseURL, cfg.Meta.APIVersion)
	fanout := notify.NewFanout(
		notify.NewSMTPSender(settingsStore),
		notify.NewWhatsAppSender(graphBase, settingsStore, nil),
	)

	engine := rules.NewEngine(rules.NewStore(db), metaClient, metaClient, fanout)
	schedStore := scheduler.NewStore(db)

	pool := jobs.NewPool(jobs.NewStore(db), cfg.Worker.Concurrency)
	pool.Register(jobs.KindExport,
		jobs.NewExportTask(recipes, materializer, recipes, cfg.Reports.Dir).Run)
	pool.Register(jobs.KindAnalyze,
		jobs.NewAnalyzeTask(recipes, materializer, analyzer, cfg.Reports.Dir).Run)
	pool.Register(jobs.KindScheduledReport,
		scheduler.NewReportTask(schedStore, metaClient, analyzer, fanout).Run)
	pool.Register(jobs.KindRuleCheck,
		scheduler.NewRuleCheckTask(engine).Run)

	if cfg.Storage.Enabled {
		archive, err := storage.NewArchive(context.Background(), cfg.Storage, settingsStore)
		if err != nil {
			log.Printf("Warning: archive storage init failed, archive jobs disabled: %v", err)
		} else {
			pool.Register(jobs.KindArchive,
				jobs.NewArchiveTask(archive, cfg.Reports.Dir, cfg.Storage.Prefix).Run)
			log.Printf("Archive storage enabled (bucket: %s)", cfg.Storage.S3Bucket)
		}
	} else {
		log.Println("Archive storage not configured, archive jobs will fail fast")
	}

	pool.Start()
	log.Printf("Worker started (concurrency: %d, reports dir: %s)", cfg.Worker.Concurrency, cfg.Reports.Dir)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")
	pool.Stop()
	log.Println("Worker stopped")
}
