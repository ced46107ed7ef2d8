// Package keyserver provides a reusable lexkey server that can be embedded
// in other binaries.
package keyserver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/lexkey/lexkey/internal/logging"
	"github.com/lexkey/lexkey/internal/metrics"
	"github.com/lexkey/lexkey/internal/server/config"
	"github.com/lexkey/lexkey/internal/server/db"
	"github.com/lexkey/lexkey/internal/server/httpapi"
	"github.com/lexkey/lexkey/internal/server/notify"
	"github.com/lexkey/lexkey/internal/server/service"
	"github.com/lexkey/lexkey/internal/server/store"
)

// ServerConfig holds configuration for a lexkey server.
type ServerConfig struct {
	Addr             string // TCP listen address
	DataDir          string // Data directory (contains the database)
	CompactThreshold int    // Key length that makes a list eligible for compaction (0 uses the default)
}

// Server is a reusable lexkey server instance.
type Server struct {
	cfg        *config.Config
	sqlDB      *sql.DB
	server     *http.Server
	svc        *service.Service
	events     *notify.Broadcaster
	shutdownCh chan struct{}
}

// NewServer creates a lexkey server. It opens the database, runs
// migrations, and wires the service and HTTP handlers. Call Serve() to
// start listening.
func NewServer(sc ServerConfig) (*Server, error) {
	cfg := &config.Config{
		Addr:             sc.Addr,
		DataDir:          sc.DataDir,
		CompactThreshold: sc.CompactThreshold,
	}
	if cfg.CompactThreshold == 0 {
		cfg.CompactThreshold = 32
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	sqlDB, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	shutdownCh := make(chan struct{})
	events := notify.New()
	svc := service.New(sqlDB, store.New(sqlDB), events, cfg.CompactThreshold)

	mux := http.NewServeMux()
	httpapi.New(svc, events, shutdownCh).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	handler := logging.HTTPMiddleware(metrics.HTTPMiddleware(gzhttp.GzipHandler(mux)))
	h2cHandler := h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: 1000,
	})

	server := &http.Server{
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:        cfg,
		sqlDB:      sqlDB,
		server:     server,
		svc:        svc,
		events:     events,
		shutdownCh: shutdownCh,
	}, nil
}

// Service returns the list service for direct in-process access.
func (s *Server) Service() *service.Service {
	return s.svc
}

// Serve starts the server on its TCP listener. It blocks until ctx is
// cancelled, then performs graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		_ = s.sqlDB.Close()
		return fmt.Errorf("listen tcp: %w", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("server shutting down...")

		// 1. Reject new watch connections and close existing streams.
		close(s.shutdownCh)
		s.events.Close()

		// 2. Drain in-flight HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)

		close(shutdownDone)
	}()

	slog.Info("server listening", "addr", s.cfg.Addr)

	if err := s.server.Serve(ln); err != http.ErrServerClosed {
		_ = s.sqlDB.Close()
		return fmt.Errorf("serve: %w", err)
	}

	<-shutdownDone

	// Checkpoint WAL into the main DB file before closing.
	if _, err := s.sqlDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Warn("WAL checkpoint failed", "error", err)
	}
	_ = s.sqlDB.Close()
	return nil
}
