// internal/dex/cpmm/fee_estimator.go
package cpmm

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/blockchain"
)

// maxFeeSamples bounds how many of the highest recent fees feed the estimate.
const maxFeeSamples = 100

// PriorityFeeEstimator recommends a compute-unit price from recent
// prioritization fees paid on the accounts a transaction will write to.
type PriorityFeeEstimator struct {
	client blockchain.Client
	logger *zap.Logger
}

func NewPriorityFeeEstimator(client blockchain.Client, logger *zap.Logger) *PriorityFeeEstimator {
	return &PriorityFeeEstimator{
		client: client,
		logger: logger.Named("priority-fee"),
	}
}

// EstimateFee returns the ceiling mean of the top recent fee samples in
// micro-lamports per compute unit, or 0 when the network reports no samples.
func (e *PriorityFeeEstimator) EstimateFee(ctx context.Context, writable []solana.PublicKey) (uint64, error) {
	samples, err := e.client.GetRecentPrioritizationFees(ctx, writable)
	if err != nil {
		return 0, fmt.Errorf("fetch prioritization fees: %w", err)
	}
	if len(samples) == 0 {
		return 0, nil
	}

	fees := make([]uint64, 0, len(samples))
	for _, s := range samples {
		fees = append(fees, s.PrioritizationFee)
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] > fees[j] })
	if len(fees) > maxFeeSamples {
		fees = fees[:maxFeeSamples]
	}

	var total uint64
	for _, f := range fees {
		total += f
	}
	estimate := (total + uint64(len(fees)) - 1) / uint64(len(fees))

	e.logger.Debug("priority fee estimated",
		zap.Uint64("micro_lamports", estimate),
		zap.Int("samples", len(fees)),
		zap.Int("accounts", len(writable)))
	return estimate, nil
}
