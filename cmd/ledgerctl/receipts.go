package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tessrax/ledger/ledgerctx"
	"github.com/tessrax/ledger/receipt"
	"github.com/tessrax/ledger/verify"
)

func newWriteReceiptCmd() *cobra.Command {
	var eventType, stateHash, payloadJSON, governanceToken string
	cmd := &cobra.Command{
		Use:   "write-receipt",
		Short: "Write a signed, chained receipt for an audited state transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload map[string]any
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return err
				}
			}

			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			if governanceToken == "" {
				governanceToken = cfg.GovernanceToken
			}
			ctx := receipt.WithGovernanceToken(context.Background(), governanceToken)
			r, err := lctx.Engine.WriteReceipt(ctx, eventType, payload, stateHash)
			if err != nil {
				return err
			}
			return printJSON(r)
		},
	}
	cmd.Flags().StringVar(&eventType, "event-type", "STATE_AUDITED", "canonical event type")
	cmd.Flags().StringVar(&stateHash, "audited-state-hash", "", "hash of the audited state")
	cmd.Flags().StringVar(&payloadJSON, "payload", "{}", "JSON payload")
	cmd.Flags().StringVar(&governanceToken, "governance-token", "", "governance approval token")
	return cmd
}

func newVerifyLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-ledger",
		Short: "Replay the ledger end to end and check every invariant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			records, err := verify.Run(verify.Paths{
				LedgerPath:      cfg.LedgerPath,
				IndexBackend:    lctx.Index,
				MerkleStatePath: cfg.MerkleStatePath,
				SigningKeysDir:  cfg.SigningKeysDir,
				EpochManager:    lctx.Epoch,
			})
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"verified_entries": len(records)})
		},
	}
	return cmd
}

func newRotateKeyCmd() *cobra.Command {
	var reason, governanceToken, newKeyID string
	var force bool
	cmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Rotate the active signing key, cross-signing against the previous one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ledgerctx.LoadConfig()
			lctx, err := ledgerctx.Build(cfg, nil, nil)
			if err != nil {
				return err
			}
			defer lctx.Close()

			if governanceToken == "" {
				governanceToken = cfg.GovernanceToken
			}
			if newKeyID == "" {
				newKeyID = cfg.KeyID
			}

			privPath, pubPath, err := lctx.Keys.RotateKey(reason, governanceToken, newKeyID, cfg.RequiredApprovers, cfg.GovernanceToken, force)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"private_key_path": privPath, "public_key_path": pubPath})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for rotation")
	cmd.Flags().StringVar(&governanceToken, "governance-token", "", "governance approval token (defaults to GOVERNANCE_TOKEN)")
	cmd.Flags().StringVar(&newKeyID, "key-id", "", "identifier for the new key (defaults to KEY_ID)")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the minimum-interval and approver checks")
	return cmd
}
