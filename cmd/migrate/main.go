package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	traderconfig "golang-news-trader/internal/trader/config"
	pkgconfig "golang-news-trader/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	migrationsPath string
)

func getDSN(dbConfig pkgconfig.Database) string {
	sslMode := dbConfig.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.DBName,
		sslMode)
}

func newMigrate() (*migrate.Migrate, *sql.DB) {
	cfg, err := traderconfig.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", getDSN(cfg.Database))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}
	return m, db
}

func closeMigrate(m *migrate.Migrate, db *sql.DB) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Printf("Migration source error on close: %v\n", srcErr)
	}
	if dbErr != nil {
		log.Printf("Migration database error on close: %v\n", dbErr)
	}
	_ = db.Close()
}

func runMigrations(direction string) {
	m, db := newMigrate()
	defer closeMigrate(m, db)

	var migrationErr error
	switch direction {
	case "up":
		migrationErr = m.Up()
	case "down":
		migrationErr = m.Steps(-1)
	}

	if migrationErr != nil && !errors.Is(migrationErr, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", migrationErr)
	}
	if direction == "up" {
		fmt.Println("Applied migrations successfully.")
	} else {
		fmt.Println("Reverted last migration successfully.")
	}
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all available database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		runMigrations("up")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the last database migration",
	Run: func(cmd *cobra.Command, args []string) {
		runMigrations("down")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Run: func(cmd *cobra.Command, args []string) {
		m, db := newMigrate()
		defer closeMigrate(m, db)

		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied.")
			return
		}
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		fmt.Printf("Schema version %d (dirty: %t)\n", version, dirty)
	},
}

func main() {
	rootCmd := &cobra.Command{Use: "migrate"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-trader.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "Directory holding the SQL migrations")

	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing migrate CLI: %s\n", err)
		os.Exit(1)
	}
}
