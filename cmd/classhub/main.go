package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classhub/internal/app"
	"classhub/internal/config"
	pkgdatabase "classhub/pkg/database"
)

const usage = `usage: classhub [flags] [serve|migrate up|migrate status|migrate reset]`

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("classhub", flag.ContinueOnError)
	flags.SetOutput(out)
	configPath := flags.String("config", os.Getenv("CLASSHUB_CONFIG_FILE"), "path to a JSON config file")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before the environment is read")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// STEP 1: Load configuration with precedence (file > env > defaults)
	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.LoadConfigWithPrecedence(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rest := flags.Args()
	if len(rest) == 0 {
		rest = []string{"serve"}
	}
	switch rest[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		action := "up"
		if len(rest) > 1 {
			action = rest[1]
		}
		return migrate(ctx, cfg, action, out, logger)
	default:
		return fmt.Errorf("unknown command %q\n%s", rest[0], usage)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// STEP 2: Create application with configuration
	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Start application
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 4: Wait for shutdown signal or application error
	var serveErr error
	select {
	case err, ok := <-application.Errors():
		if ok {
			serveErr = err
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal, shutting down gracefully")
	}

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), application.ShutdownTimeout())
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return errors.Join(serveErr, fmt.Errorf("shutdown error: %w", err))
	}
	return serveErr
}

func migrate(ctx context.Context, cfg *config.Config, action string, out io.Writer, logger *zap.Logger) error {
	db, err := pkgdatabase.Open(cfg.DatabaseSettings())
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := pkgdatabase.NewMigrator(db.DB, cfg.Database.Driver, logger.Named("migrations"))
	switch action {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			return err
		}
		if err := pkgdatabase.NewSchemaValidator(db.DB, cfg.Database.Driver).Validate(); err != nil {
			return fmt.Errorf("schema incomplete after migration: %w", err)
		}
	case "reset":
		if err := migrator.Reset(ctx); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q\n%s", action, usage)
	}

	version, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d\n", version)
	return nil
}
