// internal/dex/cpmm/engine.go
package cpmm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/blockchain"
	"github.com/openamm/cpmm-engine/internal/blockchain/solbc"
	"github.com/openamm/cpmm-engine/internal/cluster"
	"github.com/openamm/cpmm-engine/internal/wallet"
)

// Operation names carried through errors, logs and results.
const (
	opCreatePool      = "create_pool"
	opAddLiquidity    = "add_liquidity"
	opRemoveLiquidity = "remove_liquidity"
	opSwapExactIn     = "swap_exact_in"
	opSwapExactOut    = "swap_exact_out"
	opLockLiquidity   = "lock_liquidity"
	opHarvestLock     = "harvest_lock"
)

// defaultComputeLimit leaves headroom over the heaviest instruction here
// (initialize) without reserving the whole block budget.
const defaultComputeLimit = 600_000

// Config tunes execution behavior shared by every operation.
type Config struct {
	// ComputeLimit caps compute units per transaction. Zero means the default.
	ComputeLimit uint32
	// PriorityFee is a fixed compute unit price in micro-lamports. Zero lets
	// the estimator derive a bid from recent network fee samples.
	PriorityFee uint64
	// Commitment used for preflight and confirmation. Empty means confirmed.
	Commitment rpc.CommitmentType
	// Simulate runs each transaction through simulateTransaction before
	// submitting it.
	Simulate bool
}

// Engine drives constant-product pool operations against one cluster with
// one signing wallet. Every operation builds its instructions, estimates a
// priority fee and hands the batch to the transaction executor; none of them
// retries a submission.
type Engine struct {
	client blockchain.Client
	wallet *wallet.Wallet
	cl     cluster.Cluster

	locator   *PoolLocator
	fees      *FeeConfigCache
	executor  *TransactionExecutor
	estimator *PriorityFeeEstimator

	computeLimit uint32
	priorityFee  uint64
	commitment   rpc.CommitmentType
	simulate     bool

	logger *zap.Logger
}

// NewEngine wires an engine for the cluster. The wallet signs and pays for
// every transaction the engine submits.
func NewEngine(client blockchain.Client, w *wallet.Wallet, cl cluster.Cluster, cfg Config, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, newOpError("engine", ErrCodeSDKInitFailed, "blockchain client is required")
	}
	if w == nil {
		return nil, newOpError("engine", ErrCodeSDKInitFailed, "signing wallet is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cpmm-engine")

	index := NewIndexClient(indexAPIBaseURL, logger)
	e := &Engine{
		client:       client,
		wallet:       w,
		cl:           cl,
		locator:      NewPoolLocator(client, index, cl, logger),
		fees:         NewFeeConfigCache(index, logger),
		executor:     NewTransactionExecutor(client, w, cl, logger),
		estimator:    NewPriorityFeeEstimator(client, logger),
		computeLimit: cfg.ComputeLimit,
		priorityFee:  cfg.PriorityFee,
		commitment:   cfg.Commitment,
		simulate:     cfg.Simulate,
		logger:       logger,
	}
	if e.computeLimit == 0 {
		e.computeLimit = defaultComputeLimit
	}
	if e.commitment == "" {
		e.commitment = rpc.CommitmentConfirmed
	}
	return e, nil
}

// execute estimates a priority fee over the writable accounts and submits
// the instructions through the executor under the engine's settings.
func (e *Engine) execute(ctx context.Context, op string, poolID solana.PublicKey, instructions []solana.Instruction, extraSigners ...solana.PrivateKey) (*OperationResult, error) {
	priorityFee := e.priorityFee
	if priorityFee == 0 {
		fee, err := e.estimator.EstimateFee(ctx, writableAccounts(instructions))
		if err != nil {
			// A missing fee bid only slows inclusion; the operation stays valid.
			e.logger.Warn("Priority fee estimation failed, submitting without a bid",
				zap.String("operation", op),
				zap.Error(err))
			fee = 0
		}
		priorityFee = fee
	}
	return e.executor.Execute(ctx, instructions, ExecuteParams{
		Operation:    op,
		PoolID:       poolID,
		ComputeLimit: e.computeLimit,
		PriorityFee:  priorityFee,
		ExtraSigners: extraSigners,
		Commitment:   e.commitment,
		Simulate:     e.simulate,
	})
}

func (e *Engine) requireSigner(op string) error {
	if e.wallet == nil || e.wallet.PublicKey.IsZero() {
		return newOpError(op, ErrCodeMissingSigner, "a signing wallet must be attached")
	}
	return nil
}

// lpBalance reads the wallet's LP balance for the pool. A missing token
// account is a zero balance, not a failure.
func (e *Engine) lpBalance(ctx context.Context, op string, pool *PoolState) (solana.PublicKey, uint64, error) {
	ownerLp, err := e.wallet.GetATA(pool.LpMint)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%s: derive lp token account: %w", op, err)
	}
	bal, err := e.client.GetTokenAccountBalance(ctx, ownerLp)
	if err != nil {
		if solbc.IsAccountNotFoundError(err) {
			return ownerLp, 0, nil
		}
		return solana.PublicKey{}, 0, fmt.Errorf("%s: fetch lp balance: %w", op, err)
	}
	if bal == nil || bal.Value == nil {
		return ownerLp, 0, nil
	}
	amount, err := strconv.ParseUint(bal.Value.Amount, 10, 64)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%s: parse lp balance %q: %w", op, bal.Value.Amount, err)
	}
	return ownerLp, amount, nil
}

func validateSlippage(op string, bps uint64) error {
	if bps < 1 || bps > slippageDenominator {
		return newOpError(op, ErrCodeInvalidSlippageRange,
			fmt.Sprintf("slippage %d bps is outside [1, %d]", bps, slippageDenominator))
	}
	return nil
}

func amountToUint64(op string, v *big.Int, what string) (uint64, error) {
	if !v.IsUint64() {
		return 0, newOpError(op, ErrCodeInvalidAmount, fmt.Sprintf("%s exceeds the uint64 range", what))
	}
	return v.Uint64(), nil
}

// writableAccounts collects the distinct writable accounts across the
// instructions, in first-seen order, for priority fee sampling.
func writableAccounts(instructions []solana.Instruction) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	var out []solana.PublicKey
	for _, ix := range instructions {
		for _, acc := range ix.Accounts() {
			if !acc.IsWritable {
				continue
			}
			if _, ok := seen[acc.PublicKey]; ok {
				continue
			}
			seen[acc.PublicKey] = struct{}{}
			out = append(out, acc.PublicKey)
		}
	}
	return out
}
