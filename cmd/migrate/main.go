// Command migrate applies the embedded PostgreSQL schema for the document
// store. Run it once against a fresh database before selecting the postgres
// storage backend.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"gclipool-go/internal/migrations"

	_ "github.com/lib/pq"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL connection string")
	action := flag.String("action", "up", "migration action: up, down, or version")
	steps := flag.Int("steps", 1, "steps to migrate when action=down")
	flag.Parse()

	if err := run(*dsn, *action, *steps); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(dsn, action string, steps int) error {
	if dsn == "" {
		return fmt.Errorf("missing required flag: -dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	switch action {
	case "up":
		if err := migrations.PostgresUp(db); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		if err := migrations.PostgresDown(db, steps); err != nil {
			return err
		}
		fmt.Printf("rolled back %d step(s)\n", steps)
	case "version":
		version, dirty, err := migrations.PostgresVersion(db)
		if err != nil {
			return err
		}
		state := "clean"
		if dirty {
			state = "dirty"
		}
		fmt.Printf("current version: %d (%s)\n", version, state)
	default:
		return fmt.Errorf("unknown action %q (expected up, down, version)", action)
	}
	return nil
}
