package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
)

//go:embed migrations/*
var migrationsFS embed.FS

// RunMigrations applies any pending .sql files under migrations/<dialect>/
// in lexical order, recording each in schema_migrations.
func RunMigrations(rawDB *sql.DB, dialect Dialect) error {
	createTableSQL := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if dialect == DialectPostgres {
		createTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`
	}
	if _, err := rawDB.Exec(createTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	dir := "migrations/" + string(dialect)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		var applied int
		var checkErr error
		if dialect == DialectPostgres {
			checkErr = rawDB.QueryRow("SELECT 1 FROM schema_migrations WHERE version = $1", file).Scan(&applied)
		} else {
			checkErr = rawDB.QueryRow("SELECT 1 FROM schema_migrations WHERE version = ?", file).Scan(&applied)
		}
		if checkErr == nil && applied == 1 {
			continue
		}

		content, err := migrationsFS.ReadFile(dir + "/" + file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := rawDB.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %s: %w", file, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if dialect == DialectPostgres {
			_, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", file)
		} else {
			_, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", file)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
		log.Printf("applied migration: %s", file)
	}
	return nil
}
