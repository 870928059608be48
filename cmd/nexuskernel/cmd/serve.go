package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/kernel"
	"github.com/nexi-lab/nexuskernel/pkg/api"
	"github.com/nexi-lab/nexuskernel/pkg/health"
	"github.com/nexi-lab/nexuskernel/pkg/status"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RPC/HTTP surface",
	Long:  `Start the kernel's JSON-RPC method registry plus health/status/metrics HTTP endpoints, without mounting FUSE.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clusterCfg := cluster.FromKernelConfig(cfg.Cluster, cfg.Events)
	cl, err := cluster.New(clusterCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cluster: %w", err)
	}
	if err := cl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cluster: %w", err)
	}
	defer cl.Stop()

	k, err := kernel.New(ctx, cfg, cl)
	if err != nil {
		return fmt.Errorf("failed to initialize kernel: %w", err)
	}
	defer k.Close()

	statusTracker := status.NewTracker(status.DefaultTrackerConfig())
	healthTracker := health.NewTracker(health.DefaultConfig())
	rpc := api.NewRPCRegistry(k)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Address = fmt.Sprintf(":%d", cfg.Global.HealthPort)

	server := api.NewServer(serverCfg, statusTracker, healthTracker, rpc)
	server.StartBackground()

	fmt.Printf("nexuskernel serving RPC/HTTP on %s\n", serverCfg.Address)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
