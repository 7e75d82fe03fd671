package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/kdimtricp/vslides/internal/config"
	"github.com/kdimtricp/vslides/internal/database"
	"github.com/kdimtricp/vslides/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var (
		dbType         = flag.String("db", "postgres", "Database type (postgres or sqlite)")
		host           = flag.String("host", cfg.DBHost, "Database host")
		port           = flag.Int("port", cfg.DBPort, "Database port")
		user           = flag.String("user", cfg.DBUser, "Database user")
		password       = flag.String("password", cfg.DBPassword, "Database password")
		dbName         = flag.String("name", cfg.DBName, "Database name")
		migrationsPath = flag.String("migrations", cfg.MigrationsPath, "Path to migrations directory")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	logger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	db, err := database.NewDB(database.Config{
		Type:       *dbType,
		Host:       *host,
		Port:       *port,
		User:       *user,
		Password:   *password,
		Name:       *dbName,
		SQLitePath: cfg.DBPath,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	migrator := database.NewMigrator(db.Conn(), *dbType, logger)

	if !*status {
		applied, err := migrator.Run(ctx, *migrationsPath)
		if err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		fmt.Printf("Migrations completed successfully (%d applied)\n", applied)
		return
	}

	if err := migrator.Initialize(ctx); err != nil {
		logger.Fatal("failed to initialize migrator", zap.Error(err))
	}
	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		logger.Fatal("failed to get applied migrations", zap.Error(err))
	}
	migrations, err := migrator.LoadMigrations(*migrationsPath)
	if err != nil {
		logger.Fatal("failed to load migrations", zap.Error(err))
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range migrations {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
}
