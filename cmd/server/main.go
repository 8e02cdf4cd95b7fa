package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	vault "github.com/goliatone/go-vault"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	logger := newZapAdapter(zlog)

	if removed, err := cleanupOldLogs(cfg.LogDir, cfg.LogBackups); err != nil {
		logger.Error("log cleanup failed: %v", err)
	} else if removed > 0 {
		logger.Info("removed %d rotated log files", removed)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger vault.Logger) error {
	if dir := filepath.Dir(databasePath(cfg.DatabaseDSN)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	db, err := vault.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := vault.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := vault.NewRepositoryManager(db)
	repo.MustValidate()

	tokens := vault.NewTokenService(
		[]byte(cfg.SigningKey),
		cfg.TokenHours,
		vault.WithTokenLogger(logger),
	)

	auther := vault.NewAuthenticator(repo, tokens).WithLogger(logger)

	app := fiber.New(fiber.Config{
		AppName:               "vault",
		DisableStartupMessage: cfg.IsProduction(),
	})

	app.Use(recover.New())
	app.Use(cors.New())

	vault.RegisterRoutes(app, auther, repo, logger)

	if _, err := os.Stat(cfg.StaticDir); err == nil {
		app.Static("/", cfg.StaticDir)
		// SPA routes resolve client side; send everything unknown to the shell
		app.Get("/*", func(c *fiber.Ctx) error {
			return c.SendFile(filepath.Join(cfg.StaticDir, "index.html"))
		})
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening on %s", cfg.Address)
		errCh <- app.Listen(cfg.Address)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("received %s, shutting down", sig)
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

// databasePath strips the sqlite DSN down to the file path so the data
// directory can be created ahead of time.
func databasePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	return path
}
