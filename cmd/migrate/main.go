package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"soapstock/backend/internal/config"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/migration"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/store/local"
	pgstore "soapstock/backend/internal/store/postgres"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "command: up|down|status|version|legacy|legacy-status|legacy-reset")
	version := flag.String("version", "", "target version for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	if cfg.Remote.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "SOAPSTOCK_DATABASE_URL is required")
		os.Exit(1)
	}
	remote, err := pgstore.New(ctx, cfg.Remote.DatabaseURL, pgstore.Pool{MaxOpenConns: 2, MaxIdleConns: 1})
	requireResource(ctx, logg, "database", err)
	defer remote.Close()

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status":
		if err := pgstore.Migrate(ctx, remote.DB(), *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "version":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing -version for version command")
			os.Exit(1)
		}
		if err := pgstore.Migrate(ctx, remote.DB(), "up-to", *version); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "legacy", "legacy-status", "legacy-reset":
		kv, err := local.Open(cfg.Local.Path)
		requireResource(ctx, logg, "local store", err)
		defer kv.Close()

		runner := migration.NewRunner(kv, remote, network.New(network.WithInitialState(true)), logg)
		if err := runLegacy(ctx, runner, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmd, err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

// runLegacy copies the browser-era collections held in the local store into
// the remote database and prints the outcome as JSON.
func runLegacy(ctx context.Context, runner *migration.Runner, cmd string) error {
	var out any
	switch cmd {
	case "legacy":
		summary := runner.Run(ctx)
		if !summary.Success {
			printJSON(summary)
			return fmt.Errorf("%s", summary.Message)
		}
		out = summary
	case "legacy-status":
		status, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		out = status
	case "legacy-reset":
		if err := runner.Reset(ctx); err != nil {
			return err
		}
		out = map[string]bool{"reset": true}
	}
	printJSON(out)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
