package repair

import (
	"time"

	"github.com/tessrax/ledger/lgerrors"
)

// LoadTestSummary is the result of GenerateHighVolumeReceipts.
type LoadTestSummary struct {
	OutputPath   string
	TotalEntries int
	Batches      int
	BatchSize    int
	MerkleRoot   string
}

// GenerateHighVolumeReceipts is GenerateStressLedger scaled to a
// batches*batchSize entry count, named separately so load-testing call
// sites can reason about batch shape without knowing the underlying
// generator.
func GenerateHighVolumeReceipts(outputPath string, batches, batchSize int, seed int64, clock func() time.Time) (*LoadTestSummary, error) {
	if batches <= 0 || batchSize <= 0 {
		return nil, lgerrors.New(lgerrors.CodeInvalidValue, "batches and batch_size must be positive")
	}
	total := batches * batchSize
	result, err := GenerateStressLedger(outputPath, total, seed, clock)
	if err != nil {
		return nil, err
	}
	return &LoadTestSummary{
		OutputPath:   outputPath,
		TotalEntries: total,
		Batches:      batches,
		BatchSize:    batchSize,
		MerkleRoot:   result.MerkleRoot,
	}, nil
}
