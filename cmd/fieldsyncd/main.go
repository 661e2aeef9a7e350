// Package main provides the fieldsync daemon: it owns the offline store,
// the connectivity monitor and the sync coordinator, and exposes a small
// localhost status surface for the dashboard shell.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gridworks/fieldsync/internal/api"
	"github.com/gridworks/fieldsync/internal/cache"
	"github.com/gridworks/fieldsync/internal/connectivity"
	"github.com/gridworks/fieldsync/internal/logging"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/service"
	"github.com/gridworks/fieldsync/internal/store"
	"github.com/gridworks/fieldsync/internal/syncer"
)

type config struct {
	dataDir       string
	apiURL        string
	listenAddr    string
	logLevel      string
	logFile       string
	drainInterval time.Duration
	probeInterval time.Duration
	retryDelay    time.Duration
}

func main() {
	cfg := config{}

	root := &cobra.Command{
		Use:   "fieldsyncd",
		Short: "Offline-first persistence and sync daemon for field operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.dataDir, "data-dir", envOr("FIELDSYNC_DATA_DIR", "./data"), "directory for the local store")
	flags.StringVar(&cfg.apiURL, "api-url", envOr("FIELDSYNC_API_URL", "http://localhost:8080"), "remote API base URL")
	flags.StringVar(&cfg.listenAddr, "listen", envOr("FIELDSYNC_LISTEN", "127.0.0.1:8090"), "status endpoint listen address")
	flags.StringVar(&cfg.logLevel, "log-level", envOr("FIELDSYNC_LOG_LEVEL", "INFO"), "minimum log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&cfg.logFile, "log-file", os.Getenv("FIELDSYNC_LOG_FILE"), "log file path (stdout when empty)")
	flags.DurationVar(&cfg.drainInterval, "drain-interval", time.Minute, "how often to attempt a queue drain")
	flags.DurationVar(&cfg.probeInterval, "probe-interval", 30*time.Second, "how often to probe connectivity")
	flags.DurationVar(&cfg.retryDelay, "retry-delay", syncer.DefaultRetryDelay, "base pacing delay between sync retries")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, cfg config) error {
	initLogging(cfg)

	st := store.New(store.NewSQLitePort(cfg.dataDir))
	if err := st.Init(ctx); err != nil {
		logging.Error("store initialization failed", err)
		return err
	}
	defer st.Close()

	client := api.NewHTTPClient(cfg.apiURL, nil)
	monitor := connectivity.NewMonitor(client, connectivity.Options{})
	coordinator := syncer.New(st, client, syncer.Options{RetryDelay: cfg.retryDelay})
	unsubscribe := coordinator.AttachMonitor(monitor)
	defer unsubscribe()

	ttl := cache.New(st)
	svc := service.New(st, ttl, monitor, coordinator)

	server := statusServer(ctx, cfg.listenAddr, st, svc, monitor, coordinator)

	// Initial probe so the first drain doesn't wait for a transition.
	monitor.TestConnection(ctx)

	drainTicker := time.NewTicker(cfg.drainInterval)
	defer drainTicker.Stop()
	probeTicker := time.NewTicker(cfg.probeInterval)
	defer probeTicker.Stop()

	logging.Info("fieldsyncd started", map[string]interface{}{
		"data_dir": cfg.dataDir,
		"api_url":  cfg.apiURL,
		"listen":   cfg.listenAddr,
	})

	for {
		select {
		case <-ctx.Done():
			logging.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			return nil

		case <-probeTicker.C:
			monitor.TestConnection(ctx)

		case <-drainTicker.C:
			if err := st.HealthCheck(ctx); err != nil {
				logging.Error("store health check failed", err)
				continue
			}
			if monitor.IsOffline() {
				continue
			}
			if _, err := coordinator.Drain(ctx); err != nil {
				logging.Error("scheduled drain failed", err)
			}
		}
	}
}

func initLogging(cfg config) {
	level := logging.LogLevel(cfg.logLevel)
	switch level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		level = logging.LevelInfo
	}

	if cfg.logFile != "" {
		logging.Init(&lumberjack.Logger{
			Filename:   cfg.logFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		}, level)
		return
	}
	logging.Init(os.Stdout, level)
}

// statusServer serves the localhost health and stats endpoints.
func statusServer(ctx context.Context, addr string, st *store.Store, svc *service.Service, monitor *connectivity.Monitor, coordinator *syncer.Coordinator) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := "ok"
		code := http.StatusOK
		if err := st.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":  status,
			"service": "fieldsyncd",
			"offline": monitor.IsOffline(),
			"quality": monitor.Quality(),
		})
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, err := svc.GetSyncStats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var lastDrain int64
		if t := coordinator.LastDrain(); !t.IsZero() {
			lastDrain = t.UnixMilli()
		}
		writeJSON(w, http.StatusOK, struct {
			models.SyncStats
			LastDrain int64 `json:"last_drain,omitempty"` // 0 = no pass yet
			Draining  bool  `json:"draining"`
		}{stats, lastDrain, coordinator.Draining()})
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("status server failed", err)
		}
	}()
	return server
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
