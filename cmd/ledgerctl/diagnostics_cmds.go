package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tessrax/ledger/ledgerctx"
	"github.com/tessrax/ledger/repair"
)

func newMerkleProfileCmd() *cobra.Command {
	var thresholdSeconds float64
	cmd := &cobra.Command{
		Use:   "merkle-profile",
		Short: "Time a full Merkle replay against a guard threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			profile, err := repair.ProfileReplay(cfg.LedgerPath, time.Duration(thresholdSeconds*float64(time.Second)))
			if err != nil {
				return err
			}
			return printJSON(profile)
		},
	}
	cmd.Flags().Float64Var(&thresholdSeconds, "threshold-seconds", 1.0, "maximum acceptable replay duration")
	return cmd
}

func newStressHarnessCmd() *cobra.Command {
	var outputPath string
	var entries int
	var seed int64
	cmd := &cobra.Command{
		Use:   "stress-harness",
		Short: "Generate a deterministic synthetic ledger for replay and index testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := repair.GenerateStressLedger(outputPath, entries, seed, nil)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "./data/stress_ledger.jsonl", "path to write the synthetic ledger to")
	cmd.Flags().IntVar(&entries, "entries", 10000, "number of synthetic entries to generate")
	cmd.Flags().Int64Var(&seed, "seed", 1337, "deterministic random seed")
	return cmd
}

func newLoadTestCmd() *cobra.Command {
	var outputPath string
	var batches, batchSize int
	var seed int64
	cmd := &cobra.Command{
		Use:   "load-test",
		Short: "Generate a high-volume synthetic receipt stream in fixed-size batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := repair.GenerateHighVolumeReceipts(outputPath, batches, batchSize, seed, nil)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "./data/load_test.jsonl", "path to write the synthetic ledger to")
	cmd.Flags().IntVar(&batches, "batches", 5, "number of batches")
	cmd.Flags().IntVar(&batchSize, "batch-size", 2500, "entries per batch")
	cmd.Flags().Int64Var(&seed, "seed", 1337, "deterministic random seed")
	return cmd
}

func newExportArchitectureCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export-architecture",
		Short: "Write a Graphviz DOT diagram of the module's package dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := repair.ExportArchitecture(outputPath)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"output_path": path})
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "./data/architecture.dot", "path to write the diagram to")
	return cmd
}

func newExportMerkleSVGCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export-merkle-svg",
		Short: "Render the current Merkle accumulator peaks as an SVG diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			path, err := repair.ExportMerkleSVG(lctx.Merkle.State, outputPath, nil)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"output_path": path})
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "./data/merkle_state.svg", "path to write the SVG diagram to")
	return cmd
}
