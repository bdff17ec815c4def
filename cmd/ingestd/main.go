package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elsehow/civrealm/internal/config"
	"github.com/elsehow/civrealm/internal/gamestate"
	"github.com/elsehow/civrealm/internal/persistence/indexdb"
	persistlog "github.com/elsehow/civrealm/internal/persistence/log"
	"github.com/elsehow/civrealm/internal/transport/ingest"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to reports.yaml (optional)")
		addr       = flag.String("addr", "", "websocket listen address (overrides config)")
		recording  = flag.String("recording", "", "recording directory (overrides config)")
		schemaPath = flag.String("schema", "", "state record json schema (overrides config, empty disables validation)")
		dbPath     = flag.String("db", "", "sqlite index path (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[ingestd] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Ingest.Addr = *addr
	}
	if *recording != "" {
		cfg.RecordingDir = *recording
	}
	if *schemaPath != "" {
		cfg.SchemaPath = *schemaPath
	}
	if *dbPath != "" {
		cfg.IndexDB = *dbPath
	}

	if err := os.MkdirAll(cfg.RecordingDir, 0o755); err != nil {
		logger.Fatalf("recording dir: %v", err)
	}

	var validator *gamestate.Validator
	if cfg.SchemaPath != "" {
		validator, err = gamestate.NewValidator(cfg.SchemaPath)
		if err != nil {
			logger.Fatalf("schema: %v", err)
		}
		logger.Printf("validating records against %s", cfg.SchemaPath)
	}

	var idx *indexdb.SQLiteIndex
	if cfg.IndexDB != "" {
		idx, err = indexdb.OpenSQLite(cfg.IndexDB)
		if err != nil {
			logger.Fatalf("index db: %v", err)
		}
		defer idx.Close()
	}

	var audit *persistlog.IngestLogger
	if cfg.Ingest.AuditLog {
		audit = persistlog.NewIngestLogger(cfg.RecordingDir)
		defer audit.Close()
	}

	srv := ingest.NewServer(ingest.Options{
		RecordingDir:   cfg.RecordingDir,
		Validator:      validator,
		Index:          idx,
		Audit:          audit,
		MaxMessageSize: cfg.Ingest.MaxMessageSize,
		Compress:       cfg.Ingest.CompressFiles,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ingest", srv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{Addr: cfg.Ingest.Addr, Handler: mux}

	go func() {
		logger.Printf("listening on %s, recording to %s", cfg.Ingest.Addr, cfg.RecordingDir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
