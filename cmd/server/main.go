package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"livecount/internal/app"
)

// A server-only entry point for container images.
func main() {
	cfg := app.DefaultServerConfig()
	flag.StringVar(&cfg.Addr, "addr", getEnv("LIVECOUNT_ADDR", cfg.Addr), "server listen address")
	flag.StringVar(&cfg.Path, "path", getEnv("LIVECOUNT_PATH", cfg.Path), "websocket path")
	flag.StringVar(&cfg.DBPath, "db", getEnv("LIVECOUNT_DB_PATH", ""), "sqlite journal path (empty disables the journal)")
	flag.StringVar(&cfg.StaticDir, "static", getEnv("LIVECOUNT_STATIC_DIR", ""), "directory served on /")
	flag.DurationVar(&cfg.Countdown, "countdown", cfg.Countdown, "empty-channel grace period before ids reset")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("livecount server listening on %s%s", handle.Addr(), app.NormalizeJoinPath(cfg.Path))
	if err := handle.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
