package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"livecount/internal/app"
)

const (
	modeServer = "server"
	modeWatch  = "watch"
	modeLocal  = "local"
)

func main() {
	mode, args := parseMode(os.Args[1:])
	defaults := app.DefaultServerConfig()

	flagSet := flag.NewFlagSet("livecount", flag.ExitOnError)
	addr := flagSet.String("addr", envOrDefault("LIVECOUNT_ADDR", defaultAddrForMode(mode, defaults.Addr)), "server listen address")
	path := flagSet.String("path", envOrDefault("LIVECOUNT_PATH", defaults.Path), "websocket path")
	db := flagSet.String("db", envOrDefault("LIVECOUNT_DB_PATH", ""), "sqlite journal path (empty disables the journal, \"default\" uses a per-user path)")
	static := flagSet.String("static", envOrDefault("LIVECOUNT_STATIC_DIR", ""), "directory served on /")
	countdown := flagSet.Duration("countdown", envDuration("LIVECOUNT_COUNTDOWN", defaults.Countdown), "how long the channel must stay empty before ids reset")
	announce := flagSet.Bool("announce-countdown", envBool("LIVECOUNT_ANNOUNCE_COUNTDOWN", defaults.AnnounceCountdown), "broadcast countdownStart, countdownCancel and systemReset")
	ticks := flagSet.Bool("broadcast-ticks", envBool("LIVECOUNT_BROADCAST_TICKS", defaults.BroadcastTicks), "broadcast countdownUpdate every second")
	upgradeLimit := flagSet.Int("upgrade-limit", envInt("LIVECOUNT_UPGRADE_LIMIT", defaults.UpgradeLimit), "websocket upgrades allowed per address per window (0 disables)")
	maxConns := flagSet.Int("max-conns-per-ip", envInt("LIVECOUNT_MAX_CONNS_PER_IP", 0), "concurrent connections per address (0 disables)")
	trustProxy := flagSet.Bool("trust-proxy", envBool("LIVECOUNT_TRUST_PROXY", false), "use X-Forwarded-For as the client address")
	serverURL := flagSet.String("server-url", envOrDefault("LIVECOUNT_SERVER", "ws://localhost:3000/ws"), "server websocket URL (watch mode)")
	quiet := flagSet.Bool("quiet", false, "suppress informational logs")
	flagSet.Parse(args)

	serverCfg := defaults
	serverCfg.Addr = *addr
	serverCfg.Path = app.NormalizeJoinPath(*path)
	serverCfg.DBPath = *db
	serverCfg.StaticDir = *static
	serverCfg.Countdown = *countdown
	serverCfg.AnnounceCountdown = *announce
	serverCfg.BroadcastTicks = *ticks
	serverCfg.UpgradeLimit = *upgradeLimit
	serverCfg.MaxConnsPerIP = *maxConns
	serverCfg.TrustProxy = *trustProxy
	if serverCfg.DBPath == "default" {
		serverCfg.DBPath = app.DefaultDBPath()
	}

	clientCfg := app.ClientConfig{ServerURL: *serverURL}

	infof := func(format string, args ...interface{}) {
		if *quiet {
			return
		}
		log.Printf(format, args...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case modeServer:
		err = runServerMode(ctx, serverCfg, infof)
	case modeLocal:
		err = runLocalMode(ctx, serverCfg, clientCfg, infof)
	default:
		err = runWatchMode(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "livecount: %v\n", err)
		os.Exit(1)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig, infof func(string, ...interface{})) error {
	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		return err
	}
	journal := cfg.DBPath
	if journal == "" {
		journal = "off"
	}
	infof("livecount server listening on %s (ws path %s, countdown %s, journal %s)", handle.Addr(), cfg.Path, cfg.Countdown, journal)
	return handle.Wait()
}

func runWatchMode(cfg app.ClientConfig) error {
	if cfg.ServerURL == "" {
		return errors.New("watch mode requires --server-url or LIVECOUNT_SERVER")
	}
	return app.RunClient(cfg)
}

func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig, infof func(string, ...interface{})) error {
	handle, err := app.RunServer(ctx, serverCfg)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	infof("Starting local livecount server on %s", handle.Addr())
	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}

	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)
	infof("Launching watcher against %s", clientCfg.ServerURL)

	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeServer, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeWatch, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	case "client":
		return modeWatch, args[1:]
	}
	return modeServer, args
}

func defaultAddrForMode(mode, fallback string) string {
	if mode == modeLocal {
		return "127.0.0.1:0"
	}
	return fallback
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		log.Printf("ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
