// Package web serves a read-mostly HTTP view of roundtable sessions: JSON
// snapshots and tallies, plus a websocket feed of live events.
package web

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/session"
)

var log = logger.For("web")

// Live is a dialogue running in this process.
type Live interface {
	Snapshot() dialogue.Snapshot
	Subscribe(fn func(dialogue.Event)) func()
	React(ctx context.Context, messageID, participantID string, tag dialogue.ReactionTag) error
}

// Store gives access to recorded sessions.
type Store interface {
	LoadState(ctx context.Context, session string) (*session.State, error)
	ListSessions(ctx context.Context) ([]string, error)
	Watch(ctx context.Context, session string, fn func(session.Event)) error
}

// Server is the fiber application plus the sessions it can show.
type Server struct {
	app   *fiber.App
	store Store

	mu      sync.Mutex
	live    map[string]Live
	clients map[uuid.UUID]*client
}

// New creates a server. store may be nil when only live sessions are served.
func New(store Store) *Server {
	s := &Server{
		store:   store,
		live:    make(map[string]Live),
		clients: make(map[uuid.UUID]*client),
	}

	app := fiber.New(fiber.Config{
		AppName:               "roundtable",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${method} ${path} ${status} ${latency}\n",
		Output: logWriter{},
	}))

	api := app.Group("/api")
	api.Get("/sessions", s.handleList)
	api.Get("/sessions/:name", s.handleSnapshot)
	api.Get("/sessions/:name/tally", s.handleTally)

	app.Get("/ws/:name", upgradeOnly, websocket.New(s.handleWebSocket))

	s.app = app
	return s
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Attach makes a live dialogue available under name, shadowing any stored session
// with the same name.
func (s *Server) Attach(name string, d Live) {
	s.mu.Lock()
	s.live[name] = d
	s.mu.Unlock()
}

// Detach removes a live dialogue.
func (s *Server) Detach(name string) {
	s.mu.Lock()
	delete(s.live, name)
	s.mu.Unlock()
}

func (s *Server) lookupLive(name string) (Live, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.live[name]
	return d, ok
}

// Listen serves on addr until Shutdown. It returns once the listener is bound;
// the bound address is returned so ":0" can be used.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		if err := s.app.Listener(ln); err != nil {
			log.Error("web server error: %v", err)
		}
	}()
	log.Info("web view listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

// Shutdown closes websocket clients and stops the server.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop web server: %w", err)
	}
	return nil
}

// sessionNames merges live and stored session names.
func (s *Server) sessionNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	s.mu.Lock()
	for name := range s.live {
		seen[name] = true
	}
	s.mu.Unlock()

	if s.store != nil {
		stored, err := s.store.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range stored {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// logWriter forwards fiber's access log to the debug log.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Debug("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
