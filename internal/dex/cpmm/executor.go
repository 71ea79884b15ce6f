// internal/dex/cpmm/executor.go
package cpmm

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/blockchain"
	"github.com/openamm/cpmm-engine/internal/blockchain/solbc"
	"github.com/openamm/cpmm-engine/internal/cluster"
	"github.com/openamm/cpmm-engine/internal/wallet"
)

// TransactionExecutor assembles, signs, submits and confirms a transaction
// for one operation. It never resubmits on its own: an ambiguous failure
// after submission could mean the transaction landed, and replaying a swap
// or a deposit is worse than reporting the failure to the caller.
type TransactionExecutor struct {
	client   blockchain.Client
	wallet   *wallet.Wallet
	analyzer *solbc.ErrorAnalyzer
	cl       cluster.Cluster
	logger   *zap.Logger
}

func NewTransactionExecutor(client blockchain.Client, w *wallet.Wallet, cl cluster.Cluster, logger *zap.Logger) *TransactionExecutor {
	return &TransactionExecutor{
		client:   client,
		wallet:   w,
		analyzer: solbc.NewErrorAnalyzer(logger),
		cl:       cl,
		logger:   logger.Named("executor"),
	}
}

// ExecuteParams describes one submission.
type ExecuteParams struct {
	// Operation names the caller in logs and errors.
	Operation string
	PoolID    solana.PublicKey

	// ComputeLimit and PriorityFee are prepended as compute budget
	// instructions when non-zero.
	ComputeLimit uint32
	PriorityFee  uint64

	// ExtraSigners co-sign alongside the wallet, e.g. a fresh mint keypair.
	ExtraSigners []solana.PrivateKey

	// Commitment level to confirm at. Empty means confirmed.
	Commitment rpc.CommitmentType

	// Simulate runs the transaction against the node before submitting.
	Simulate bool
}

// Execute runs the full submission pipeline: compute budget, blockhash,
// signing, optional simulation, send, confirmation wait.
func (e *TransactionExecutor) Execute(ctx context.Context, instructions []solana.Instruction, params ExecuteParams) (*OperationResult, error) {
	op := params.Operation
	if op == "" {
		op = "executor"
	}
	if len(instructions) == 0 {
		return nil, newOpError(op, ErrCodeExecutionFailed, "no instructions to execute")
	}

	all := make([]solana.Instruction, 0, len(instructions)+2)
	if params.ComputeLimit > 0 {
		all = append(all, computebudget.NewSetComputeUnitLimitInstruction(params.ComputeLimit).Build())
	}
	if params.PriorityFee > 0 {
		all = append(all, computebudget.NewSetComputeUnitPriceInstruction(params.PriorityFee).Build())
	}
	all = append(all, instructions...)

	blockhash, err := e.client.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeExecutionFailed, "failed to get recent blockhash", err)
	}

	tx, err := solana.NewTransaction(all, blockhash, solana.TransactionPayer(e.wallet.PublicKey))
	if err != nil {
		return nil, wrapOpError(op, ErrCodeExecutionFailed, "failed to build transaction", err)
	}

	if err := e.wallet.SignTransaction(tx, params.ExtraSigners...); err != nil {
		return nil, wrapOpError(op, ErrCodeExecutionFailed, "failed to sign transaction", err)
	}

	commitment := params.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}

	if params.Simulate {
		sim, err := e.client.SimulateTransaction(ctx, tx)
		if err != nil {
			return nil, wrapOpError(op, ErrCodeExecutionFailed, "simulation request failed", err)
		}
		if sim.Err != nil {
			e.logger.Error("Simulation rejected transaction",
				zap.String("operation", op),
				zap.Any("simulationError", sim.Err),
				zap.Strings("logs", sim.Logs))
			return nil, newOpError(op, ErrCodeExecutionFailed, fmt.Sprintf("simulation failed: %v", sim.Err))
		}
		e.logger.Debug("Simulation passed",
			zap.String("operation", op),
			zap.Uint64("unitsConsumed", sim.UnitsConsumed))
	}

	sig, err := e.client.SendTransactionWithOpts(ctx, tx, blockchain.TransactionOptions{
		SkipPreflight:       params.Simulate,
		PreflightCommitment: commitment,
	})
	if err != nil {
		if analysis := e.analyzer.Analyze(err); analysis != nil {
			e.logger.Error("Transaction submission failed",
				zap.String("operation", op),
				zap.String("analysis", analysis.String()))
		}
		return nil, wrapOpError(op, ErrCodeExecutionFailed, "failed to send transaction", err)
	}

	e.logger.Info("Transaction submitted",
		zap.String("operation", op),
		zap.String("signature", sig.String()),
		zap.String("explorer", e.cl.ExplorerTxURL(sig.String())))

	if err := e.client.WaitForTransactionConfirmation(ctx, sig, commitment); err != nil {
		return nil, wrapOpError(op, ErrCodeExecutionFailed, "transaction was not confirmed", err)
	}

	result := &OperationResult{
		TxID:        sig.String(),
		Timestamp:   time.Now().UTC(),
		Cluster:     e.cl.String(),
		ExplorerURL: e.cl.ExplorerTxURL(sig.String()),
		OperationID: uuid.NewString(),
	}
	if !params.PoolID.IsZero() {
		result.PoolID = params.PoolID.String()
	}
	return result, nil
}
