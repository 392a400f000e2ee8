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
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/alert"
	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/gateway"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
	"github.com/your-org/facegate/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate", "port", cfg.Server.Port, "camera", cfg.Camera.Device)

	// ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	detector, err := vision.NewDetector(
		filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx"),
		float32(cfg.Vision.DetectionThreshold))
	if err != nil {
		slog.Error("init detector", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	embedder, err := vision.NewEmbedder(filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx"))
	if err != nil {
		slog.Error("init embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

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
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Mailer (settings panel only; alert delivery runs in the worker)
	mailer, err := alert.NewMailer(cfg.Alert.SMTPHost, cfg.Alert.SMTPPort, cfg.Alert.SettingsFile, nil)
	if err != nil {
		slog.Error("init mailer", "error", err)
		os.Exit(1)
	}

	collector := observability.NewCollector(1000)

	// The engine's side effects go through the work queue so a tick
	// never waits on Postgres, MinIO, or SMTP.
	queued := gateway.NewQueued(producer)

	engine, err := auth.NewEngine(auth.EngineConfig{
		AcceptanceThreshold:   float32(cfg.Auth.AcceptanceThreshold),
		RequiredDetectionTime: cfg.Auth.RequiredDetectionTime,
		UnauthorizedTime:      cfg.Auth.UnauthorizedTime,
		LogThrottleWindow:     cfg.Auth.LogThrottleWindow,
		FailedMetricInterval:  cfg.Auth.FailedMetricInterval,
	}, detector, embedder, db, db, queued, queued, collector, nil)
	if err != nil {
		slog.Error("init engine", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := auth.NewController(engine, db, auth.TimerScheduler{}, cfg.Auth.CommitDelay, nil)
	controller.OnVerified = func(id int64, name string) {
		publishSessionEvent(ctx, producer, models.SessionEvent{
			Type:      "session.verified",
			Timestamp: time.Now(),
			UserID:    id,
			UserName:  name,
		})
	}
	controller.OnAuthenticated = func(u *models.User) {
		publishSessionEvent(ctx, producer, models.SessionEvent{
			Type:      "session.handoff",
			Timestamp: time.Now(),
			UserID:    u.ID,
			UserName:  u.Name,
			Role:      u.Role,
		})
	}
	controller.OnError = func(err error) {
		publishSessionEvent(ctx, producer, models.SessionEvent{
			Type:      "session.error",
			Timestamp: time.Now(),
			Message:   err.Error(),
		})
	}
	controller.OnLogout = func() {
		publishSessionEvent(ctx, producer, models.SessionEvent{
			Type:      "session.logout",
			Timestamp: time.Now(),
		})
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Broadcast session events (from this process and any other gate)
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create session consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeSessionEvents(ctx, "gate-sessions", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.SessionEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			return nil // don't retry on unmarshal errors
		}
		hub.Broadcast(dto.WSTypeSession, ev)
		return nil
	})
	if err != nil {
		slog.Warn("start session consumer", "error", err)
	}

	// Camera and tick loop
	mailbox := capture.NewMailbox()
	camera := capture.NewCamera(cfg.Camera.Device, cfg.Camera.FPS, cfg.Camera.Width, mailbox, nil)

	go func() {
		if err := camera.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("camera stopped", "error", err)
		}
	}()

	session := auth.NewSession(engine, controller, mailbox, cfg.Auth.TickInterval)
	session.OnDecision = func(dec auth.Decision) {
		hub.Broadcast(dto.WSTypeTick, dec)
	}
	go func() {
		if err := session.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("session loop stopped", "error", err)
		}
	}()

	// Queue depth gauge
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// HTTP API
	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
		Hub:        hub,
		Engine:     engine,
		Controller: controller,
		Mailer:     mailer,
		Collector:  collector,
		EmbedFn:    enrollEmbedFn(detector, embedder),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")
	cancel()
	camera.Stop()
	controller.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("facegate stopped")
}

func publishSessionEvent(ctx context.Context, producer *queue.Producer, ev models.SessionEvent) {
	if err := producer.PublishSessionEvent(ctx, ev); err != nil {
		slog.Error("publish session event", "type", ev.Type, "error", err)
	}
}

// enrollEmbedFn builds the embedding extractor the enrollment API
// uses: decode, detect, crop the first face, embed.
func enrollEmbedFn(detector *vision.Detector, embedder *vision.Embedder) func([]byte) ([]float32, error) {
	return func(imageData []byte) ([]float32, error) {
		img, err := vision.DecodeImage(imageData)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}

		detections, err := detector.DetectFaces(img)
		if err != nil {
			return nil, fmt.Errorf("detect faces: %w", err)
		}
		if len(detections) == 0 {
			return nil, fmt.Errorf("no face found in image")
		}

		face := vision.CropFace(img, detections[0].Box)
		if face == nil {
			return nil, fmt.Errorf("face region out of bounds")
		}
		return embedder.Embed(face)
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
