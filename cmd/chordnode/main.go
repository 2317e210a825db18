package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/distsys-lab/chordring/internal/ring"
	"github.com/distsys-lab/chordring/internal/telemetry"
	"github.com/distsys-lab/chordring/internal/transport"
)

var (
	joinAddr string
	debugLog bool
)

var rootCmd = &cobra.Command{
	Use:   "chordnode host:port",
	Short: "Run a chordring peer",
	Long:  "chordnode starts one Chord DHT peer listening on host:port, optionally joining an existing ring through --join.",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&joinAddr, "join", "", "bootstrap peer address to join through; omit to create a new ring")
	rootCmd.Flags().BoolVar(&debugLog, "debug", false, "enable development-mode logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	addr := args[0]

	log, err := telemetry.NewLogger(debugLog)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	peer := ring.New(addr, log)
	client := transport.NewClient(log)
	peer.SetTransport(client)
	peer.SetMetrics(metrics)

	srv := transport.NewServer(addr, peer, client, metrics, log)

	maintenanceCtx, stopMaintenance := context.WithCancel(context.Background())
	go peer.RunMaintenance(maintenanceCtx)

	if joinAddr != "" {
		joinCtx, joinCancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := peer.Join(joinCtx, joinAddr)
		joinCancel()
		if err != nil {
			stopMaintenance()
			return fmt.Errorf("join %s: %w", joinAddr, err)
		}
		log.Infow("joined ring", "via", joinAddr, "node_id", peer.ID())
	} else {
		log.Infow("created ring", "node_id", peer.ID())
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-serveErr:
		stopMaintenance()
		return fmt.Errorf("server error: %w", err)
	}

	stopMaintenance()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shut down cleanly")
	return nil
}
