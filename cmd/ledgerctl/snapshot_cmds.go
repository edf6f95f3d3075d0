package main

import (
	"github.com/spf13/cobra"

	"github.com/tessrax/ledger/ledgerctx"
	"github.com/tessrax/ledger/repair"
)

func newSnapshotExportCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "snapshot-export",
		Short: "Export the ledger, Merkle state, and index into a single snapshot file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			snap, err := repair.ExportSnapshot(cfg.LedgerPath, lctx.Merkle, lctx.Index, outputPath, nil)
			if err != nil {
				return err
			}
			return printJSON(snap.Metadata)
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "./data/snapshot.json", "path to write the snapshot to")
	return cmd
}

func newSnapshotRestoreCmd() *cobra.Command {
	var snapshotPath string
	cmd := &cobra.Command{
		Use:   "snapshot-restore",
		Short: "Restore the ledger's append-only log from a snapshot file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			snap, err := repair.RestoreSnapshot(snapshotPath)
			if err != nil {
				return err
			}
			if err := repair.ImportLedgerEntries(snap, cfg.LedgerPath); err != nil {
				return err
			}
			return printJSON(map[string]any{"restored_entries": len(snap.LedgerLines)})
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "path to the snapshot file")
	return cmd
}

func newCompactCmd() *cobra.Command {
	var retain int
	var outputPath string
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Truncate the ledger down to its most recent entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			c := &repair.Compactor{LedgerPath: cfg.LedgerPath, MerkleStatePath: cfg.MerkleStatePath}
			report, err := c.Compact(retain, outputPath)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().IntVar(&retain, "retain", 1000, "number of most recent entries to keep")
	cmd.Flags().StringVar(&outputPath, "output", "", "path to write the compacted ledger to")
	return cmd
}

func newShardCmd() *cobra.Command {
	var maxEntries int
	var outputDir string
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Split the ledger into fixed-size shard files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			planner := &repair.ShardPlanner{LedgerPath: cfg.LedgerPath}
			shards, err := planner.Shard(maxEntries, outputDir)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"shards": shards})
		},
	}
	cmd.Flags().IntVar(&maxEntries, "max-entries", 10000, "maximum entries per shard")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write shard files into")
	return cmd
}
