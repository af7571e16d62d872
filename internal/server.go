package internal

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livecount/internal/presence"
	"livecount/internal/storage"
)

const limiterSweepInterval = time.Minute

// ServerOptions configures the presence server.
type ServerOptions struct {
	Countdown         time.Duration
	AnnounceCountdown bool
	BroadcastTicks    bool
	// UpgradeLimit websocket upgrades are allowed per address within
	// UpgradeWindow. Zero disables the limit.
	UpgradeLimit  int
	UpgradeWindow time.Duration
	MaxConnsPerIP int
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// Store enables the session journal when non-nil.
	Store *storage.Store
}

// Server wires the hub, journal and metrics behind HTTP handlers.
type Server struct {
	hub        *Hub
	metrics    *Metrics
	journal    *Journal
	store      *storage.Store
	limiter    *RateLimiter
	conns      *ConnTracker
	upgrader   websocket.Upgrader
	trustProxy bool
}

func NewServer(opts ServerOptions) *Server {
	metrics := NewMetrics()
	observers := []presence.Observer{metrics}

	var journal *Journal
	if opts.Store != nil {
		journal = NewJournal(opts.Store)
		observers = append(observers, journal)
	}

	hub := NewHub(HubOptions{
		Presence: presence.Options{
			Countdown:         opts.Countdown,
			AnnounceCountdown: opts.AnnounceCountdown,
			BroadcastTicks:    opts.BroadcastTicks,
			Observers:         observers,
		},
	})

	window := opts.UpgradeWindow
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Server{
		hub:     hub,
		metrics: metrics,
		journal: journal,
		store:   opts.Store,
		limiter: NewRateLimiter(opts.UpgradeLimit, window),
		conns:   NewConnTracker(opts.MaxConnsPerIP),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		trustProxy: opts.TrustProxy,
	}
}

// Run drives the hub until ctx is cancelled, then flushes the journal.
func (s *Server) Run(ctx context.Context) {
	go s.sweepLimiter(ctx)
	s.hub.Run(ctx)
	if s.journal != nil {
		s.journal.Close()
	}
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep()
		}
	}
}

// Hub exposes the underlying hub, mainly for snapshots.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ServeWS upgrades the request and joins the presence channel.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	ip := s.clientIP(request)
	if !s.limiter.Allow(ip) {
		s.metrics.IncRejectedUpgrade()
		http.Error(writer, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	if !s.conns.Acquire(ip) {
		s.metrics.IncRejectedUpgrade()
		http.Error(writer, "too many connections", http.StatusTooManyRequests)
		return
	}
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.conns.Release(ip)
		log.Printf("upgrade error: %v", err)
		return
	}

	client := newClient(s.hub, conn, uuid.NewString(), func() { s.conns.Release(ip) })
	if !s.hub.join(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		s.conns.Release(ip)
		return
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) clientIP(r *http.Request) string {
	if s.trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
