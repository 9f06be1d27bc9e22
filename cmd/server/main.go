package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"factorycraft.ai/internal/observability"
	persistlog "factorycraft.ai/internal/persistence/log"
	"factorycraft.ai/internal/persistence/snapshot"
	"factorycraft.ai/internal/sim/catalogs"
	"factorycraft.ai/internal/sim/factory"
	"factorycraft.ai/internal/sim/tuning"
	"factorycraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		factoryID   = flag.String("factory", "factory_1", "factory id (names the data subdirectory)")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		catalogPath = flag.String("catalog", "", "path to buildings.json (default: <configs>/buildings.json if present, else built-in)")
		disableDB   = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs + save metadata)")

		savePath   = flag.String("save", "", "path to save to load (optional)")
		loadLatest = flag.Bool("load_latest_save", true, "load latest save from data dir if present (when -save is empty)")

		layoutRate  = flag.Float64("layout_rate", 2, "LAYOUT messages per second per connection")
		layoutBurst = flag.Int("layout_burst", 4, "LAYOUT burst per connection")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	engineLogger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(resolveCatalogPath(*configDir, *catalogPath))
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	factoryDir := filepath.Join(*dataDir, *factoryID)
	_ = os.MkdirAll(factoryDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(factoryDir, *factoryID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewTickCollector(reg)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	tickLog := persistlog.NewTickLogger(factoryDir)
	auditLog := persistlog.NewAuditLogger(factoryDir)
	defer tickLog.Close()
	defer auditLog.Close()

	saveCh := make(chan snapshot.SaveV1, 2)
	e, err := factory.NewEngine(factory.Config{
		Tuning:       tune,
		Catalogs:     cats,
		Logger:       engineLogger,
		Observer:     metrics,
		TickLogger:   multiTickLogger{a: tickLog, b: idx},
		AuditLogger:  multiAuditLogger{a: auditLog, b: idx},
		SnapshotSink: saveCh,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	saveToLoad := strings.TrimSpace(*savePath)
	if saveToLoad == "" && *loadLatest {
		saveToLoad = latestSave(factoryDir)
	}
	if saveToLoad != "" {
		save, err := snapshot.ReadSave(saveToLoad)
		if err != nil {
			logger.Fatalf("read save: %v", err)
		}
		if save.Header.CatalogDigest != "" && save.Header.CatalogDigest != cats.Buildings.Digest {
			logger.Printf("save catalog digest %s differs from loaded catalog %s", save.Header.CatalogDigest, cats.Buildings.Digest)
		}
		tick, digest, err := e.ImportSave(save)
		if err != nil {
			// Partial loads keep whatever reconstructed cleanly.
			logger.Printf("import save: %v", err)
		}
		logger.Printf("resumed from save=%s tick=%d digest=%s", filepath.Base(saveToLoad), tick, digest)
	}

	ctx, cancel := signalContext()
	defer cancel()

	writeSave := func(save snapshot.SaveV1) (string, error) {
		path := filepath.Join(factoryDir, "saves", fmt.Sprintf("%d.save.zst", save.Header.Tick))
		if err := snapshot.WriteSave(path, save); err != nil {
			return "", err
		}
		if idx != nil {
			idx.RecordSave(path, save)
		}
		return path, nil
	}

	// Save writer.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case save := <-saveCh:
				if _, err := writeSave(save); err != nil {
					logger.Printf("save write: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := e.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	enableAdminHTTP := envBool("FC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("FC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				FactoryID string `json:"factory_id"`
				Tick      uint64 `json:"tick"`
				Digest    string `json:"digest"`
				Buildings int    `json:"buildings"`
			}{
				FactoryID: *factoryID,
				Tick:      e.CurrentTick(),
				Digest:    e.StateDigest(),
				Buildings: e.State().Len(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			save := e.ExportSave("")
			path, err := writeSave(save)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": save.Header.Tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": save.Header.Tick, "path": path})
		})
	} else {
		logger.Printf("admin endpoints disabled (FC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (FC_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(e, logger, ws.Config{
		LayoutRate:  rate.Limit(*layoutRate),
		LayoutBurst: *layoutBurst,
		Clients:     metrics,
	}).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick_rate_hz=%d buildings=%d)", *addr, e.TickRateHz(), e.State().Len())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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

func resolveCatalogPath(configDir, flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	p := filepath.Join(configDir, "buildings.json")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func latestSave(factoryDir string) string {
	dir := filepath.Join(factoryDir, "saves")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".save.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".save.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// multiTickLogger fans tick entries out to the JSONL log and the index.
type multiTickLogger struct {
	a factory.TickLogger
	b factory.TickLogger
}

func (m multiTickLogger) WriteTick(entry factory.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a factory.AuditLogger
	b factory.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry factory.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
