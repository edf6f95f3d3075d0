package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessrax/ledger/ledgerctx"
	"github.com/tessrax/ledger/repair"
)

func newAutoRepairCmd() *cobra.Command {
	var trustedSnapshot string
	cmd := &cobra.Command{
		Use:   "auto-repair",
		Short: "Diagnose and repair divergence between the ledger, index, and Merkle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			report, err := repair.AutoRepair(repair.AutoRepairConfig{
				LedgerPath:      cfg.LedgerPath,
				MerkleStatePath: cfg.MerkleStatePath,
				IndexBackend:    lctx.Index,
				TrustedSnapshot: trustedSnapshot,
			})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().StringVar(&trustedSnapshot, "trusted-snapshot", "", "restore the ledger from this snapshot before repairing")
	return cmd
}

func newRebuildIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the secondary index from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			if err := repair.RebuildIndexFromLog(cfg.LedgerPath, lctx.Index); err != nil {
				return err
			}
			return printJSON(map[string]any{"status": "rebuilt"})
		},
	}
	return cmd
}

func newDivergenceScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "divergence-scan",
		Short: "Report whether the ledger, index, and Merkle state agree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			report, err := repair.ScanStateDivergence(cfg.LedgerPath, lctx.Index, lctx.Merkle)
			if err != nil {
				return err
			}
			cause := repair.AnalyzeRootCause(report)
			return printJSON(map[string]any{"report": report, "root_cause": cause})
		},
	}
	return cmd
}

func newDiffReceiptsCmd() *cobra.Command {
	var pathA, pathB string
	cmd := &cobra.Command{
		Use:   "diff-receipts",
		Short: "Compute the semantic diff between two receipt JSON files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readReceiptFile(pathA)
			if err != nil {
				return err
			}
			b, err := readReceiptFile(pathB)
			if err != nil {
				return err
			}
			return printJSON(repair.SemanticDiff(a, b))
		},
	}
	cmd.Flags().StringVar(&pathA, "before", "", "path to the earlier receipt JSON file")
	cmd.Flags().StringVar(&pathB, "after", "", "path to the later receipt JSON file")
	return cmd
}

func readReceiptFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
