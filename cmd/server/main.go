package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"dishrush.game/internal/config"
	"dishrush.game/internal/persistence/indexdb"
	persistlog "dishrush.game/internal/persistence/log"
	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/tuning"
	"dishrush.game/internal/sim/world"
	"dishrush.game/internal/telemetry"
	"dishrush.game/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	env, err := config.LoadServerEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	var (
		addr        = flag.String("addr", env.Addr, "http listen address")
		worldID     = flag.String("world", env.WorldID, "world id")
		seed        = flag.Int64("seed", env.Seed, "world seed")
		configDir   = flag.String("configs", env.ConfigDir, "config directory")
		dataDir     = flag.String("data", env.DataDir, "runtime data directory")
		tuningPath  = flag.String("tuning", env.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB   = flag.Bool("disable_db", env.DisableDB, "disable the sqlite index")
		enablePprof = flag.Bool("pprof", env.EnablePprof, "serve /debug/pprof")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	w, err := world.New(world.WorldConfig{ID: *worldID, Seed: *seed, Tuning: tune}, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	// Every start is a fresh world, so every start gets its own journal.
	startedAt := time.Now().UTC()
	runDir := filepath.Join(*dataDir, "worlds", *worldID, startedAt.Format("20060102T150405Z"))
	if err := persistlog.WriteMeta(runDir, persistlog.RunMeta{
		WorldID:     *worldID,
		Seed:        *seed,
		ItemsDigest: cats.Items.DefsDigest,
		Tuning:      tune,
		StartedAt:   startedAt,
	}); err != nil {
		logger.Fatalf("write run meta: %v", err)
	}

	idx, err := openRuntimeIndex(runDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(runDir)
	signalLog := persistlog.NewSignalLogger(runDir, env.SignalQueue)
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.OnSignal(signalLog.Handle)
	if idx != nil {
		w.OnSignal(idx.Handle)
	}

	metricsOpts := telemetry.Options{SignalDropped: signalLog.Dropped}
	if idx != nil {
		metricsOpts.IndexStats = func() indexdb.IndexStats { return idx.Stats() }
	}
	reg := telemetry.New(*worldID, w, metricsOpts)
	w.OnStep(reg.ObserveStep)

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/metrics.json", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: *worldID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), env.ShutdownTimeout)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("world=%s seed=%d run=%s", *worldID, *seed, runDir)
	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loggers may only be closed once the tick loop has stopped writing.
	cancel()
	<-worldDone
	if err := tickLog.Close(); err != nil {
		logger.Printf("close tick log: %v", err)
	}
	if err := signalLog.Close(); err != nil {
		logger.Printf("close signal log: %v", err)
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Printf("close index: %v", err)
		}
	}
	if n := signalLog.Dropped(); n > 0 {
		logger.Printf("signal log dropped %d records", n)
	}
	logger.Printf("stopped at tick %d", w.CurrentTick())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
