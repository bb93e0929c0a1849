package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/roundtable/internal/web"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded sessions over HTTP and websockets",
	Long: `Serve the sessions in the data directory.

Endpoints:
  GET /api/sessions              recorded session names
  GET /api/sessions/:name        snapshot JSON
  GET /api/sessions/:name/tally  stance counts and shares
  GET /ws/:name                  websocket stream of the session's events

Sessions written by a concurrent 'roundtable run' on the same data directory
are streamed as they are recorded.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a", ":8080", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, cleanup, err := openStore(settings.DataDir)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := web.New(store)
	addr, err := srv.Listen(serveFlags.addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving sessions on http://%s\n", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-cmd.Context().Done():
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down gracefully...")
	return srv.Shutdown()
}
