package server

import (
	"fmt"
	"time"

	"github.com/hraban/kennyfs/internal/backend"
	"github.com/hraban/kennyfs/internal/wire"
	"github.com/hraban/kennyfs/pkg/metrics"
)

// Config holds the event loop's own tunables, decoded from pkg/config's
// broader tree by the caller (cmd/kennyfsd).
type Config struct {
	ListenPort int
	RingBufCap int
	SOP        string
	// IdleTimeout, when non-zero, disconnects a client that has sent no
	// bytes for this long. Zero disables idle disconnection entirely.
	IdleTimeout time.Duration
}

// Server owns the listening socket, the client set, and the operation
// table. One Server runs on exactly one goroutine (its Run method); nothing
// else may touch its fields.
type Server struct {
	cfg     Config
	backend backend.Ops
	metrics *metrics.Metrics
	opTable [wire.OpCount]handlerFunc

	clients  *clientSet
	listenFD int
	epollFD  int

	lastActivity map[int]time.Time
}

// New constructs a Server. The backend and metrics must outlive the server;
// metrics may be nil to disable instrumentation entirely.
func New(cfg Config, be backend.Ops, m *metrics.Metrics) *Server {
	if cfg.SOP == "" {
		cfg.SOP = wire.SOP
	}
	return &Server{
		cfg:          cfg,
		backend:      be,
		metrics:      m,
		opTable:      newOpTable(),
		clients:      newClientSet(),
		lastActivity: make(map[int]time.Time),
	}
}

// opContext builds the ambient Context a backend call receives. The wire
// protocol carries no credentials, so every operation executes as whatever
// identity the backend process itself runs as; a deployment wanting
// per-call identity must layer it in an external transport (mutual TLS
// terminator, tunnel) ahead of this server.
func (s *Server) opContext() *backend.Context {
	return &backend.Context{}
}

func (s *Server) bufCap() int {
	if s.cfg.RingBufCap <= 0 {
		return 64 * 1024
	}
	return s.cfg.RingBufCap
}

// String is used in log lines identifying this server instance.
func (s *Server) String() string {
	return fmt.Sprintf("kennyfsd(port=%d)", s.cfg.ListenPort)
}
