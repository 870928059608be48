package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexi-lab/nexuskernel/internal/adapter"
	"github.com/nexi-lab/nexuskernel/pkg/types"
	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the kernel as a FUSE filesystem",
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().String("subject-id", "cli", "subject ID every FUSE call runs as")
	mountCmd.Flags().String("zone", "default", "subject zone every FUSE call runs as")
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	subjectID, _ := cmd.Flags().GetString("subject-id")
	zone, _ := cmd.Flags().GetString("zone")
	subject := types.Subject{ID: subjectID, Zone: zone}

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := adapter.New(ctx, mountPoint, cfg, subject)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start adapter: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return a.Stop(ctx)
}
