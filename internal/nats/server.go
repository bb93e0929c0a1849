package nats

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// portFile is written into the data directory by the instance that owns the
// server so that other roundtable processes (transcript, serve) can attach to it.
const portFile = "server.port"

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled
// using the specified data directory for file-based storage. The server listens
// on a random loopback port, which is returned and recorded in the data directory.
func StartEmbeddedNATS(dataDir string) (*server.Server, int, error) {
	logger.Debug("Starting embedded NATS server with data dir: %s", dataDir)

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  dataDir,
		NoSigs:    true,
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		logger.Error("Failed to create NATS server: %v", err)
		return nil, 0, err
	}

	logger.Debug("Starting NATS server in background")
	go ns.Start()

	logger.Debug("Waiting for NATS server to be ready...")
	if !ns.ReadyForConnections(4 * time.Second) {
		logger.Error("NATS server failed to start within 4s timeout")
		ns.Shutdown()
		return nil, 0, errors.New("nats server failed to start within timeout")
	}

	addr, ok := ns.Addr().(*net.TCPAddr)
	if !ok {
		ns.Shutdown()
		return nil, 0, fmt.Errorf("unexpected NATS listen address %v", ns.Addr())
	}
	p := addr.Port

	if err := os.WriteFile(filepath.Join(dataDir, portFile), []byte(strconv.Itoa(p)), 0644); err != nil {
		logger.Warn("Failed to write NATS port file: %v", err)
	}

	logger.Debug("NATS server ready for connections on port %d", p)
	return ns, p, nil
}

// ReadPort returns the port recorded by the server owning dataDir.
func ReadPort(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, portFile))
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid port file: %w", err)
	}
	return port, nil
}

// RemovePortFile deletes the port file once the owning server is gone.
func RemovePortFile(dataDir string) {
	if err := os.Remove(filepath.Join(dataDir, portFile)); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove NATS port file: %v", err)
	}
}

// ConnectToPort connects to a NATS server on the loopback interface.
func ConnectToPort(port int) (*nats.Conn, error) {
	url := fmt.Sprintf("nats://127.0.0.1:%d", port)
	logger.Debug("Connecting to NATS server at %s", url)
	conn, err := nats.Connect(url, nats.Name("roundtable"), nats.Timeout(2*time.Second))
	if err != nil {
		logger.Error("Failed to connect to NATS at %s: %v", url, err)
		return nil, err
	}
	logger.Debug("Connected to NATS successfully")
	return conn, nil
}

// TryConnectExisting connects to a server already owning dataDir. It returns nil
// when no server is running there; a stale port file is removed.
func TryConnectExisting(dataDir string) *nats.Conn {
	port, err := ReadPort(dataDir)
	if err != nil {
		return nil
	}
	conn, err := ConnectToPort(port)
	if err != nil {
		logger.Debug("Removing stale NATS port file (port %d)", port)
		RemovePortFile(dataDir)
		return nil
	}
	return conn
}

// CreateJetStream creates a JetStream context from a NATS connection.
func CreateJetStream(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// Shutdown gracefully shuts down the NATS connection and server.
// It first drains and closes the connection, then shuts down the server
// with a timeout to allow in-flight operations to complete.
func Shutdown(nc *nats.Conn, ns *server.Server) error {
	logger.Debug("Starting NATS shutdown")

	if nc != nil {
		logger.Debug("Draining NATS connection")
		drainDone := make(chan error, 1)
		go func() {
			drainDone <- nc.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				logger.Warn("NATS drain failed, forcing close: %v", err)
				nc.Close()
			} else {
				logger.Debug("NATS connection drained successfully")
			}
		case <-time.After(2 * time.Second):
			logger.Warn("NATS drain timed out after 2s, forcing close")
			nc.Close()
		}
	}

	if ns != nil {
		logger.Debug("Shutting down NATS server")
		ns.Shutdown()

		shutdownDone := make(chan struct{})
		go func() {
			ns.WaitForShutdown()
			close(shutdownDone)
		}()

		select {
		case <-shutdownDone:
			logger.Debug("NATS server shut down cleanly")
		case <-time.After(5 * time.Second):
			// There's no force-stop API, but at least we don't hang forever
			logger.Error("NATS server shutdown timed out after 5s")
			return errors.New("NATS server shutdown timed out")
		}
	}

	logger.Debug("NATS shutdown complete")
	return nil
}
