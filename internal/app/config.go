package app

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr string
	Path string
	// DBPath enables the SQLite session journal. Empty disables it.
	DBPath            string
	StaticDir         string
	Countdown         time.Duration
	AnnounceCountdown bool
	BroadcastTicks    bool
	UpgradeLimit      int
	UpgradeWindow     time.Duration
	MaxConnsPerIP     int
	TrustProxy        bool
}

// ClientConfig defines the parameters the watch client needs.
type ClientConfig struct {
	ServerURL string
}

// DefaultServerConfig returns the settings used when no flags are given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":3000",
		Path:              "/ws",
		Countdown:         20 * time.Second,
		AnnounceCountdown: true,
		BroadcastTicks:    true,
		UpgradeLimit:      30,
		UpgradeWindow:     10 * time.Second,
	}
}

// DefaultDBPath returns a per-user data path for the journal file.
func DefaultDBPath() string {
	if env := os.Getenv("LIVECOUNT_DATA_DIR"); env != "" {
		return filepath.Join(env, "livecount.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "livecount", "livecount.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Livecount", "livecount.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Livecount", "livecount.db")
		}
		return filepath.Join(home, ".local", "share", "livecount", "livecount.db")
	}
	return filepath.Join(".", ".livecount", "livecount.db")
}

// NormalizeJoinPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
