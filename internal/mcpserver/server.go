package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/roundtable/internal/archive"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
)

// Dialogue is the part of the round controller exposed over MCP.
type Dialogue interface {
	Snapshot() dialogue.Snapshot
	Pause() error
	Resume() error
	Stop()
	React(ctx context.Context, messageID, participantID string, tag dialogue.ReactionTag) error
	Synthesize(ctx context.Context) (dialogue.Outcome, error)
}

// Saver stores snapshots for later review.
type Saver interface {
	Save(ctx context.Context, snap dialogue.Snapshot) (archive.Entry, error)
}

// Server manages an embedded MCP HTTP server that exposes control tools for a
// running dialogue: status, transcript, tally, react, pause, resume, stop,
// synthesize and save.
type Server struct {
	dlg        Dialogue
	saver      Saver
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
	stdServer  *http.Server // Standard HTTP server that uses the listener
	port       int
	mu         sync.Mutex
}

// New creates a new MCP server instance for the given dialogue. saver may be nil,
// in which case the save tool reports that no archive is configured.
// The server is not started until Start() is called.
func New(dlg Dialogue, saver Saver) *Server {
	s := &Server{
		dlg:   dlg,
		saver: saver,
	}
	s.mcpServer = server.NewMCPServer(
		"roundtable",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server, e.g. for serving over stdio.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Start starts the MCP HTTP server on addr, or on a random loopback port when
// addr is empty. Returns the port number or an error if startup fails.
func (s *Server) Start(ctx context.Context, addr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdServer != nil {
		return 0, fmt.Errorf("server already started")
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	// Pass the listener directly to avoid a TOCTOU race on the port.
	mux := http.NewServeMux()
	mcpHandler := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithStateLess(true),
	)
	mux.Handle("/mcp", mcpHandler)

	s.stdServer = &http.Server{
		Handler: mux,
	}
	s.httpServer = mcpHandler

	logger.Debug("Starting MCP server on port %d", s.port)

	// Capture stdServer reference for goroutine to avoid race with Stop()
	stdServer := s.stdServer
	go func() {
		if err := stdServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("MCP server error: %v", err)
		}
	}()

	logger.Debug("MCP server ready on port %d", s.port)
	return s.port, nil
}

// Stop stops the MCP HTTP server and cleans up resources.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdServer == nil {
		return nil
	}

	logger.Debug("Stopping MCP server")
	if err := s.stdServer.Shutdown(context.Background()); err != nil {
		logger.Warn("Error stopping MCP server: %v", err)
		return fmt.Errorf("failed to stop server: %w", err)
	}

	s.httpServer = nil
	s.stdServer = nil
	logger.Debug("MCP server stopped")
	return nil
}

// URL returns the HTTP URL for the MCP server endpoint.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://localhost:%d/mcp", s.port)
}
