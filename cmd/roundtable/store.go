package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/nats"
	"github.com/mark3labs/roundtable/internal/session"
)

// openStore connects to the session store under dataDir. When no roundtable run
// owns the data directory an embedded server is started for the command's lifetime.
func openStore(dataDir string) (*session.Store, func(), error) {
	natsDir := filepath.Join(dataDir, "nats")
	if err := os.MkdirAll(natsDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create NATS data directory: %w", err)
	}

	nc := nats.TryConnectExisting(natsDir)
	var cleanup func()
	if nc != nil {
		logger.Debug("Connected to running roundtable NATS server")
		cleanup = nc.Close
	} else {
		ns, port, err := nats.StartEmbeddedNATS(natsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start NATS server: %w", err)
		}
		nc, err = nats.ConnectToPort(port)
		if err != nil {
			ns.Shutdown()
			nats.RemovePortFile(natsDir)
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		cleanup = func() {
			if err := nats.Shutdown(nc, ns); err != nil {
				logger.Warn("NATS shutdown: %v", err)
			}
			nats.RemovePortFile(natsDir)
		}
	}

	js, err := nats.CreateJetStream(nc)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := nats.SetupStream(ctx, js)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	return session.NewStore(js, stream), cleanup, nil
}
