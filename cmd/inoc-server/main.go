// Package main is the entry point for the inoculation simulation server.
// It only wires dependencies and starts the listeners.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/inocsim/server/internal/engine"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/infra/storage"
	"github.com/inocsim/server/internal/network"
	"github.com/inocsim/server/internal/platform/config"
	"github.com/inocsim/server/internal/platform/logger"
	"github.com/inocsim/server/internal/platform/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	bootLog := logger.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(os.Stderr, cfg.Server.LogLevel)
	if err != nil {
		bootLog.Error("invalid log level", "level", cfg.Server.LogLevel, "err", err)
		os.Exit(1)
	}
	appLogger.Info("starting inoculation server", "preset", cfg.Preset, "hosts", cfg.Simulation.Hosts, "addr", cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.Get()
	runID := uuid.NewString()

	var (
		db        *sql.DB
		persist   events.EventPersister
		eventRepo *storage.SQLiteEventRepository
		snapRepo  *storage.SQLiteSnapshotRepository
	)
	if cfg.Server.DBPath != "" {
		appLogger.Info("initializing SQLite ledger", "path", cfg.Server.DBPath)
		db, err = storage.InitSQLite(cfg.Server.DBPath, cfg.Tuning.DBMaxOpenConns)
		if err != nil {
			appLogger.Error("failed to initialize SQLite", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := createRun(ctx, storage.NewSQLiteRunRepository(db), runID, cfg); err != nil {
			appLogger.Error("failed to register run", "err", err)
			os.Exit(1)
		}
		eventRepo = storage.NewSQLiteEventRepository(db)
		snapRepo = storage.NewSQLiteSnapshotRepository(db)
		persist = storage.NewLedgerPersister(eventRepo, runID, m)
	}

	eventLog := events.NewEventLog(persist)
	eventLog.SetRetention(cfg.Tuning.EventRetention)
	eventLog.OnPersistError(func(ev events.SimEvent, err error) {
		appLogger.Warn("ledger write failed", "seq", ev.Seq, "type", ev.Type, "err", err)
	})

	eng, err := engine.NewEngine(cfg.EngineOptions(), eventLog, appLogger)
	if err != nil {
		appLogger.Error("failed to build engine", "err", err)
		os.Exit(1)
	}
	if _, err := eng.Seed(cfg.Simulation.Hosts); err != nil {
		appLogger.Error("failed to seed hosts", "err", err)
		os.Exit(1)
	}

	hub := network.NewHub(eng, network.Options{
		BroadcastBuffer:  cfg.Tuning.BroadcastBuffer,
		ClientSendBuffer: cfg.Tuning.ClientSendBuffer,
		MaxClients:       cfg.Tuning.MaxClients,
	}, appLogger, m)
	go hub.Run(ctx)

	runner := engine.NewRunner(eng, appLogger, cfg.Simulation.FrameInterval).WithMetrics(m)
	runner.OnTick(hub.OnTick())

	// Everything that appends events runs in workers so the log can be
	// drained only after they are gone.
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		runner.Start(ctx)
	}()

	if snapRepo != nil && cfg.Tuning.SnapshotInterval > 0 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			backupSnapshots(ctx, snapRepo, eng, runID, cfg.Tuning.SnapshotInterval, appLogger)
		}()
	}

	mux := http.NewServeMux()
	api := network.NewAPI(eng, hub, appLogger)
	if eventRepo != nil {
		api.WithLedger(storage.NewReconstructor(eventRepo), runID).
			WithEventStore(eventRepo).
			WithSnapshots(snapRepo)
	}
	api.RegisterRoutes(mux)
	network.NewReplayHandler(eventLog, appLogger).RegisterRoutes(mux)

	mux.HandleFunc("GET /metrics", m.Handler())
	mux.HandleFunc("GET /metrics/prometheus", m.PrometheusHandler())
	mux.HandleFunc("GET /metrics/recommendations", cfg.RecommendationsHandler(m.Snapshot))
	mux.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info("HTTP API and WS server listening", "addr", cfg.Server.Addr, "run", runID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", "err", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	appLogger.Info("shutting down", "day", eng.Day(), "frames", runner.Frames())
	runner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP shutdown incomplete", "err", err)
	}
	cancel()
	workers.Wait()

	// Flush queued ledger writes while the database is still open.
	eventLog.Close()
	appLogger.Info("ledger flushed", "last_seq", eventLog.LastSeq())
}

func createRun(ctx context.Context, repo storage.RunRepository, runID string, cfg *config.Config) error {
	p, err := json.Marshal(cfg.Params)
	if err != nil {
		return err
	}
	return repo.Create(ctx, storage.Run{
		ID:        runID,
		StartedAt: time.Now(),
		Seed:      cfg.Simulation.Seed,
		Hosts:     cfg.Simulation.Hosts,
		Params:    string(p),
	})
}

// backupSnapshots periodically upserts every host's current status.
func backupSnapshots(ctx context.Context, repo storage.SnapshotRepository, eng *engine.Engine, runID string, every time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := eng.Snapshot()
			now := time.Now()
			for _, h := range st.Hosts {
				snap := storage.HostSnapshot{
					RunID:               runID,
					HostID:              h.Label,
					Day:                 st.Day,
					Status:              string(h.Status),
					OnProphylaxis:       h.OnProphylaxis,
					ProphylaxisEndDay:   h.ProphylaxisEndDay,
					PendingTreatmentDay: h.PendingTreatmentDay,
					Inoculations:        len(h.Inoculations),
					LastUpdated:         now,
				}
				if err := repo.Upsert(ctx, snap); err != nil {
					log.Warn("snapshot backup failed", "host", h.Label, "err", err)
				}
			}
			log.Debug("host snapshots saved", "day", st.Day, "hosts", len(st.Hosts))
		}
	}
}
