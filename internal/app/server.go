package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	intrnl "livecount/internal"
	"livecount/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr    string
	server  *http.Server
	store   *storage.Store
	stopHub context.CancelFunc
	hubDone chan struct{}
	done    chan struct{}
	err     error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the optional journal, starts the presence hub and serves
// HTTP in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	cfg.Path = NormalizeJoinPath(cfg.Path)

	var store *storage.Store
	if cfg.DBPath != "" {
		var err error
		store, err = openStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	server := intrnl.NewServer(intrnl.ServerOptions{
		Countdown:         cfg.Countdown,
		AnnounceCountdown: cfg.AnnounceCountdown,
		BroadcastTicks:    cfg.BroadcastTicks,
		UpgradeLimit:      cfg.UpgradeLimit,
		UpgradeWindow:     cfg.UpgradeWindow,
		MaxConnsPerIP:     cfg.MaxConnsPerIP,
		TrustProxy:        cfg.TrustProxy,
		Store:             store,
	})
	mux := http.NewServeMux()
	registerHandlers(mux, cfg, server)

	hubCtx, stopHub := context.WithCancel(context.Background())
	handle := &ServerHandle{
		addr:    listener.Addr().String(),
		server:  &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		store:   store,
		stopHub: stopHub,
		hubDone: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(handle.hubDone)
		server.Run(hubCtx)
	}()

	go func() {
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := handle.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

func openStore(path string) (*storage.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	// the hub flushes the journal on exit, so it must stop before the store closes
	h.stopHub()
	<-h.hubDone
	if err := h.store.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}
	h.err = err
}

func registerHandlers(mux *http.ServeMux, cfg ServerConfig, server *intrnl.Server) {
	mux.HandleFunc(cfg.Path, server.ServeWS)
	mux.HandleFunc("/roster", server.HandleRoster)
	mux.HandleFunc("/history", server.HandleHistory)
	mux.HandleFunc("/healthz", server.HandleHealth)
	mux.Handle("/metrics", server.MetricsHandler())
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}
}
