// Package main wraps goose for schema management.
//
// Usage:
//
//	migrate up
//	migrate down
//	migrate status
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "up", "down", "status", "version":
	default:
		fmt.Printf("unknown command: %s\n\n", command)
		usage()
		os.Exit(1)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("required environment variable DATABASE_URL not set")
		os.Exit(1)
	}

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "db/migrations"
	}

	cmd := exec.Command("goose", "-dir", dir, "postgres", dsn, command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Printf("goose %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Usage: migrate <command>

Commands:
  up        Apply all pending migrations
  down      Roll back the latest migration
  status    Show migration status
  version   Print the current schema version

Environment:
  DATABASE_URL     Postgres connection string (required)
  MIGRATIONS_DIR   Migration directory (default db/migrations)`)
}
