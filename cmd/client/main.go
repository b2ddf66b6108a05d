package main

import (
	"flag"
	"fmt"
	"os"

	intrnl "quadchat/internal"
	"quadchat/internal/app"
)

func main() {
	defaultServer := envOrDefault("QUADCHAT_SERVER", "ws://localhost:3000/ws")
	defaultName := envOrDefault("QUADCHAT_NAME", "")

	serverURL := flag.String("server", defaultServer, "WebSocket URL (e.g., ws://localhost:3000/ws)")
	displayName := flag.String("name", defaultName, "display name shown to other members")
	sessionPath := flag.String("session", "", "path to the session file (defaults to the per-user data dir)")
	reset := flag.Bool("reset", false, "forget the stored session before connecting")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL:   *serverURL,
		DisplayName: *displayName,
		SessionPath: *sessionPath,
	}

	if *reset {
		path := cfg.SessionPath
		if path == "" {
			path = intrnl.DefaultSessionPath()
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
