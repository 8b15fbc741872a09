package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/aifans/aifans/internal/pkg/env"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	dbURL := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true&parseTime=true",
		env.GetEnv("DB_USER", "aifans"),
		env.GetEnv("DB_PASSWORD", "aifans"),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "aifans"),
	)
	log.Printf("Connecting to %s@%s:%s/%s",
		env.GetEnv("DB_USER", "aifans"),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "aifans"),
	)

	m, err := migrate.New("file://"+env.GetEnv("MIGRATIONS_PATH", "migrations"), dbURL)
	if err != nil {
		log.Fatalf("init migrations: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("closing migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Println("No change: database is up to date")
		case err != nil:
			log.Fatalf("migrate up: %v", err)
		default:
			log.Println("Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("roll back last migration: %v", err)
		}
		log.Println("Rolled back last migration")

	case "goto", "force":
		if len(os.Args) < 3 {
			log.Fatalf("%s needs a version number", command)
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("invalid version: %v", err)
		}
		if command == "force" {
			// Clears the dirty flag after a failed migration was fixed by hand.
			if err := m.Force(int(version)); err != nil {
				log.Fatalf("force version %d: %v", version, err)
			}
			log.Printf("Forced version %d", version)
			return
		}
		err = m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Printf("No change: database already at version %d", version)
		case err != nil:
			log.Fatalf("migrate to %d: %v", version, err)
		default:
			log.Printf("Migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Println("No migrations applied yet")
		case err != nil:
			log.Fatalf("read version: %v", err)
		default:
			suffix := ""
			if dirty {
				suffix = " (dirty)"
			}
			log.Printf("Current version: %d%s", version, suffix)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up       apply all pending migrations")
	fmt.Println("  down     roll back the last migration")
	fmt.Println("  goto N   migrate to version N")
	fmt.Println("  force N  set version N without running migrations")
	fmt.Println("  status   print the current version")
}
