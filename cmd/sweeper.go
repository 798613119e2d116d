package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// sweeperCmd runs the timeout sweeper as a standalone worker, for deployments
// that keep the webhook ingress and the background reconciliation separate.
var sweeperCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Start the timeout sweeper worker",
	Long:  `Periodically reconciles transactions stuck in an open state against the gateway`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweeper()
	},
}

func startSweeper() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		deps.Logger.Info("received signal, stopping sweeper", "signal", sig)
		cancel()
	}()

	if err := deps.Sweeper.Run(ctx); err != nil && err != context.Canceled {
		deps.Logger.Error("sweeper stopped with error", "error", err)
		os.Exit(1)
	}

	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("database close error", "error", err)
	}
}
