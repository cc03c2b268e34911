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
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceclock/internal/attendance"
	"github.com/your-org/faceclock/internal/audit"
	"github.com/your-org/faceclock/internal/config"
	"github.com/your-org/faceclock/internal/identity"
	"github.com/your-org/faceclock/internal/ingest"
	"github.com/your-org/faceclock/internal/liveness"
	"github.com/your-org/faceclock/internal/models"
	"github.com/your-org/faceclock/internal/observability"
	"github.com/your-org/faceclock/internal/queue"
	"github.com/your-org/faceclock/internal/recognition"
	"github.com/your-org/faceclock/internal/session"
	"github.com/your-org/faceclock/internal/storage"
	"github.com/your-org/faceclock/internal/vision"
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

	slog.Info("starting faceclock recognition worker",
		"workers", cfg.Recognition.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Identity index, loaded once at startup and refreshed only when the API
	// requests it after an enrollment change. Never reloaded on a timer.
	index := identity.NewIndex()
	if err := reloadIndex(ctx, db, index); err != nil {
		slog.Error("load identity index", "error", err)
		os.Exit(1)
	}

	reloader := identity.NewReloader(index, db.LoadActiveIdentities)
	go reloader.Run(ctx)

	// One ONNX encoder per pool worker. Encoder sessions are not reentrant,
	// so each pool goroutine owns its encoder exclusively.
	encoders := make([]recognition.Embedder, 0, cfg.Recognition.WorkerCount)
	for i := 0; i < cfg.Recognition.WorkerCount; i++ {
		enc, err := vision.NewFaceEncoder(cfg.Recognition.ModelsDir, float32(cfg.Recognition.DetectionThreshold), nil)
		if err != nil {
			slog.Error("init face encoder", "error", err, "worker", i)
			os.Exit(1)
		}
		defer enc.Close()
		encoders = append(encoders, enc)
	}

	pool := session.NewPool(encoders)

	auditLogger := audit.NewLogger(db, slog.Default())
	gate := attendance.NewMachine(db, auditLogger, attendance.Config{
		ConfidenceThreshold: cfg.Attendance.ConfidenceThreshold,
	})

	manager := session.NewManager(index, gate, pool, producer, minioStore, db,
		recognition.Config{
			Tolerance:    cfg.Recognition.Tolerance,
			ScaleFactor:  cfg.Recognition.ScaleFactor,
			SkipFrames:   cfg.Recognition.SkipFrames,
			CacheTimeout: cfg.Recognition.CacheTimeout,
		},
		liveness.Config{
			ClosedEARThreshold: cfg.Liveness.ClosedEARThreshold,
			MinClosedFrames:    cfg.Liveness.MinClosedFrames,
			SessionWindow:      cfg.Liveness.SessionWindow,
		},
	)

	slog.Info("recognition pipeline initialized", "index_size", index.Size())

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	// Start consuming frame tasks
	err = consumer.ConsumeFrames(ctx, "recognition-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.FrameTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal frame task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		if err := manager.HandleTask(ctx, task); err != nil {
			return fmt.Errorf("process frame %s: %w", task.FrameID, err)
		}

		return nil
	})
	if err != nil {
		slog.Error("start frame consumer", "error", err)
		os.Exit(1)
	}

	// Tear down a camera's session when it is stopped so the next start
	// begins with fresh liveness state.
	_, err = consumer.SubscribeControl(func(data []byte) {
		cmd, err := ingest.ParseCommand(data)
		if err != nil || cmd.Action != "stop" {
			return
		}
		id, err := uuid.Parse(cmd.CameraID)
		if err != nil {
			return
		}
		manager.EndSession(id)
	})
	if err != nil {
		slog.Warn("subscribe to control", "error", err)
	}

	// Reload the identity index when the API announces enrollment changes.
	_, err = consumer.SubscribeIdentityReload(reloader.Notify)
	if err != nil {
		slog.Warn("subscribe to identity control", "error", err)
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

	// Periodically report queue depth
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

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	pool.Close()
	auditLogger.Close()
	slog.Info("worker stopped")
}

func reloadIndex(ctx context.Context, db *storage.PostgresStore, index *identity.Index) error {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identities, err := db.LoadActiveIdentities(loadCtx)
	if err != nil {
		return err
	}
	index.Load(identities)
	return nil
}

// getONNXLibPath returns the ONNX Runtime shared library path
// based on the operating system.
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
