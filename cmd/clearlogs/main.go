// Command clearlogs purges all access-log rows and their stored
// snapshots. Maintenance tool for operators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	yes := flag.Bool("yes", false, "skip confirmation prompt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, "text")

	if !*yes {
		fmt.Print("Delete ALL access logs and snapshots? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return
		}
	}

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	deleted, err := db.PurgeAccessLogs(ctx)
	if err != nil {
		slog.Error("purge access logs", "error", err)
		os.Exit(1)
	}

	keys, err := minioStore.ListObjects(ctx, "access/")
	if err != nil {
		slog.Warn("list snapshots", "error", err)
	} else if len(keys) > 0 {
		if err := minioStore.DeleteObjects(ctx, keys); err != nil {
			slog.Warn("delete snapshots", "error", err)
		}
	}

	slog.Info("access logs purged", "rows", deleted, "snapshots", len(keys))
}
