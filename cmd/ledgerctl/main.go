// Command ledgerctl is the operator-facing entry point for every ledger
// maintenance and diagnostic operation: writing and verifying receipts,
// rotating signing keys, repairing divergence, and exercising the system
// under synthetic load.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessrax/ledger/lgerrors"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate and repair the Tessrax governance ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newWriteReceiptCmd(),
		newVerifyLedgerCmd(),
		newRotateKeyCmd(),
		newAutoRepairCmd(),
		newRebuildIndexCmd(),
		newDivergenceScanCmd(),
		newDiffReceiptsCmd(),
		newSnapshotExportCmd(),
		newSnapshotRestoreCmd(),
		newCompactCmd(),
		newShardCmd(),
		newMerkleProfileCmd(),
		newStressHarnessCmd(),
		newLoadTestCmd(),
		newExportArchitectureCmd(),
		newExportMerkleSVGCmd(),
	)
	return cmd
}

// errorRecord is the uniform JSON error shape printed to stderr on failure.
type errorRecord struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func printError(err error) {
	var rec errorRecord
	var lerr *lgerrors.Error
	var verr *lgerrors.VerificationError
	switch {
	case errors.As(err, &lerr):
		rec = errorRecord{Code: lerr.Code, Message: lerr.Message, Details: lerr.Details}
	case errors.As(err, &verr):
		ledger := verr.AsLedgerError()
		rec = errorRecord{Code: ledger.Code, Message: ledger.Message, Details: ledger.Details}
	default:
		rec = errorRecord{Code: "UNKNOWN", Message: err.Error()}
	}
	encoded, marshalErr := json.MarshalIndent(rec, "", "  ")
	if marshalErr != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return
	}
	fmt.Fprintln(os.Stderr, string(encoded))
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
