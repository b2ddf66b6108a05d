package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	intrnl "quadchat/internal"
	"quadchat/internal/app"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := app.LoadServerConfig()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.Port, "server listen port")
	uploadDir := flag.String("upload-dir", cfg.UploadDir, "directory for uploaded files")
	flag.Parse()
	cfg.Port = *port
	cfg.UploadDir = *uploadDir

	intrnl.InitLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		slog.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		slog.Info("signal_received", "signal", s.String())
		if err := handle.Stop(nil); err != nil {
			slog.Error("shutdown_error", "error", err)
		}
	}()

	slog.Info("quadchat_running", "url", "http://localhost:"+strconv.Itoa(cfg.Port))
	if err := handle.Wait(); err != nil {
		slog.Error("server_error", "error", err)
		os.Exit(1)
	}
}
