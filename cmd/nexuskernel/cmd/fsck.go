package cmd

import (
	"context"
	"fmt"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/kernel"
	"github.com/nexi-lab/nexuskernel/pkg/types"
	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Check CAS/metadata consistency offline",
	Long:  `Walk every path in the metadata store and verify its content object is readable from CAS, reporting the first error per path rather than stopping at the first failure.`,
	RunE:  runFsck,
}

func init() {
	rootCmd.AddCommand(fsckCmd)
	fsckCmd.Flags().String("root", "/", "root path to walk")
}

func runFsck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	root, _ := cmd.Flags().GetString("root")

	ctx := context.Background()

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

	subject := types.Subject{ID: "fsck", Zone: "default"}

	entries, err := k.List(ctx, subject, types.VirtualPath(root), kernel.ListOptions{Recursive: true})
	if err != nil {
		return fmt.Errorf("failed to list %q: %w", root, err)
	}

	checked, failed := 0, 0
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		checked++
		path := types.VirtualPath(entry.Name)
		if _, _, err := k.Read(ctx, subject, path, kernel.ReadOptions{}); err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", path, err)
		}
	}

	fmt.Printf("fsck: %d files checked, %d failures\n", checked, failed)
	if failed > 0 {
		return fmt.Errorf("fsck found %d inconsistent files", failed)
	}
	return nil
}
