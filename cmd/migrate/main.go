package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// expectedTables is the schema the console binaries depend on. --check
// compares it against the live database so ops can tell at a glance
// which migrations still need to run.
var expectedTables = []string{
	"jobs",
	"saved_reports",
	"report_files",
	"alert_rules",
	"alert_history",
	"automation_rules",
	"automation_logs",
	"scheduled_reports",
	"scheduled_report_logs",
	"users",
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	checkOnly := false
	for _, a := range os.Args[1:] {
		if a == "--check" || a == "--list" {
			checkOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if checkOnly {
		checkSchema(db)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(content); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
	checkSchema(db)
}

func checkSchema(db *sql.DB) {
	rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public'")
	if err != nil {
		log.Fatalf("schema check: %v", err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			log.Fatalf("schema check: %v", err)
		}
		present[t] = true
	}

	missing := 0
	for _, t := range expectedTables {
		if present[t] {
			fmt.Printf("  %-22s present\n", t)
		} else {
			fmt.Printf("  %-22s MISSING\n", t)
			missing++
		}
	}
	if missing > 0 {
		log.Printf("Schema incomplete: %d of %d tables missing", missing, len(expectedTables))
		os.Exit(1)
	}
	log.Printf("Schema OK: all %d tables present", len(expectedTables))
}
