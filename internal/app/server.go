package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	intrnl "quadchat/internal"
)

// ServerHandle represents a running chat server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	room   *intrnl.Room
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address, after the OS allocated a port.
func (h *ServerHandle) Addr() string { return h.addr }

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	h.cancel()
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

// RunServer wires the room, upload handler, and retention sweeper, and
// starts serving in the background. Call Stop/Wait to manage its
// lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	metrics := intrnl.NewMetrics()
	state := intrnl.NewState(cfg.RoomCapacity, cfg.RetentionWindow())
	room := intrnl.NewRoom(state, metrics)
	go room.Run()

	runCtx, cancel := context.WithCancel(ctx)
	sweeper, err := intrnl.NewSweeper(room, cfg.UploadDir, cfg.RetentionWindow(), cfg.RetentionCron, metrics)
	if err != nil {
		cancel()
		room.Close()
		return nil, err
	}
	sweeper.Start(runCtx)

	uploadLimiter := intrnl.NewRateLimiter(cfg.UploadRPM, time.Minute)
	uploads := intrnl.NewFileUploadHandler(cfg.UploadDir, cfg.MaxUploadBytes, uploadLimiter, metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		intrnl.ServeWS(room, w, r)
	})
	mux.HandleFunc("/upload", uploads.HandleUpload)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	mux.HandleFunc("/healthz", intrnl.HandleHealthz)
	mux.HandleFunc("/stats", intrnl.NewStatsHandler(room))
	mux.Handle("/metrics", metrics.Handler())
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: mux}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		cancel()
		room.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		room:   room,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server_shutdown_error", "error", err)
		}
	}()

	go handle.serve(listener)

	slog.Info("server_listening", "addr", handle.addr, "capacity", cfg.RoomCapacity, "retentionDays", cfg.RetentionDays)
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.room.Close()
	h.err = err
}
