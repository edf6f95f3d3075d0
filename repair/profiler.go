package repair

import (
	"os"
	"time"

	"github.com/tessrax/ledger/lgerrors"
)

// ReplayProfile is the result of timing a full ParallelReplayRoot pass
// against a guard threshold, used to catch replay-time regressions before
// they show up as an operational incident.
type ReplayProfile struct {
	LedgerPath       string
	MerkleRoot       string
	ElapsedSeconds   float64
	ThresholdSeconds float64
	GuardPassed      bool
}

// ProfileReplay times ParallelReplayRoot against ledgerPath and reports
// whether it finished within threshold.
func ProfileReplay(ledgerPath string, threshold time.Duration) (*ReplayProfile, error) {
	if _, err := os.Stat(ledgerPath); err != nil {
		return nil, lgerrors.Wrap(lgerrors.CodeIOFailure, "ledger missing for replay profile", err)
	}
	start := time.Now()
	root, err := ParallelReplayRoot(ledgerPath)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	return &ReplayProfile{
		LedgerPath:       ledgerPath,
		MerkleRoot:       root,
		ElapsedSeconds:   elapsed.Seconds(),
		ThresholdSeconds: threshold.Seconds(),
		GuardPassed:      elapsed <= threshold,
	}, nil
}
