package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/alert"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/gateway"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
)

const workerCount = 4

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate side-effect worker", "workers", workerCount)

	// Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Mailer
	mailer, err := alert.NewMailer(cfg.Alert.SMTPHost, cfg.Alert.SMTPPort, cfg.Alert.SettingsFile, nil)
	if err != nil {
		slog.Error("init mailer", "error", err)
		os.Exit(1)
	}

	direct := gateway.NewDirect(db, minioStore)

	// NATS
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeJobs(ctx, "side-effect-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var job models.SideEffectJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			slog.Error("unmarshal job", "error", err)
			return nil // don't retry on unmarshal errors
		}

		switch job.Kind {
		case models.JobAccessLog:
			return direct.AppendAccessLog(ctx, job.UserID, job.Status, job.Image, job.Confidence)
		case models.JobUnauthorized:
			return direct.AppendUnauthorized(ctx, job.Image, job.Confidence)
		case models.JobAlert:
			if err := mailer.SendUnauthorizedAlert(job.Image, job.Confidence, job.Timestamp); err != nil {
				observability.SideEffectFailures.WithLabelValues("alert").Inc()
				return fmt.Errorf("send alert: %w", err)
			}
			return nil
		default:
			slog.Warn("unknown job kind", "kind", job.Kind)
			return nil
		}
	}, workerCount)
	if err != nil {
		slog.Error("start job consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
