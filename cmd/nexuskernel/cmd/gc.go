package cmd

import (
	"context"
	"fmt"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/metadatastore"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Force a version-history GC pass",
	Long:  `Run a single version-history sweep against the metadata store, pruning versions beyond the configured retention regardless of the usual sweep interval.`,
	RunE:  runGC,
}

func init() {
	rootCmd.AddCommand(gcCmd)
	gcCmd.Flags().Int("retention-days", 30, "prune versions older than this many days")
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	retentionDays, _ := cmd.Flags().GetInt("retention-days")

	ctx := context.Background()

	var cl *cluster.Cluster
	if cfg.Cluster.Enabled {
		clusterCfg := cluster.FromKernelConfig(cfg.Cluster, cfg.Events)
		cl, err = cluster.New(clusterCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize cluster: %w", err)
		}
		if err := cl.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cluster: %w", err)
		}
		defer cl.Stop()
	}

	store, err := metadatastore.New(cfg.MetadataStore, cl)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer store.Close()

	gcCfg := metadatastore.GCConfig{
		Enabled:       true,
		RetentionDays: retentionDays,
		MaxVersions:   cfg.CAS.VersionGC.RetainVersions,
		BatchSize:     cfg.CAS.VersionGC.BatchSize,
	}
	if gcCfg.MaxVersions <= 0 {
		gcCfg.MaxVersions = 10
	}

	store.SweepOnce(ctx, gcCfg)
	fmt.Println("gc: version sweep complete")
	return nil
}
