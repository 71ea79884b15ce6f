package cpmm

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/blockchain"
	"github.com/openamm/cpmm-engine/internal/cluster"
	"github.com/openamm/cpmm-engine/internal/wallet"
)

func newExecutorWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	kp := solana.NewWallet()
	w, err := wallet.NewWallet(kp.PrivateKey.String())
	require.NoError(t, err)
	return w
}

func TestExecuteSubmitsAndConfirms(t *testing.T) {
	client := new(MockChainClient)
	w := newExecutorWallet(t)
	exec := NewTransactionExecutor(client, w, cluster.Devnet, zap.NewNop())

	poolID := solana.NewWallet().PublicKey()
	sig := solana.Signature{7, 7, 7}

	client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{1}, nil)

	var sentTx *solana.Transaction
	var sentOpts blockchain.TransactionOptions
	client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sentTx = args.Get(1).(*solana.Transaction)
			sentOpts = args.Get(2).(blockchain.TransactionOptions)
		}).
		Return(sig, nil)
	client.On("WaitForTransactionConfirmation", mock.Anything, sig, rpc.CommitmentConfirmed).Return(nil)

	ix := buildSystemTransferInstruction(w.PublicKey, solana.NewWallet().PublicKey(), 1_000)
	result, err := exec.Execute(context.Background(), []solana.Instruction{ix}, ExecuteParams{
		Operation:    "swap_exact_in",
		PoolID:       poolID,
		ComputeLimit: 200_000,
		PriorityFee:  1_500,
	})
	require.NoError(t, err)

	require.NotNil(t, sentTx)
	assert.Len(t, sentTx.Message.Instructions, 3) // limit, price, transfer
	assert.NoError(t, sentTx.VerifySignatures())
	assert.False(t, sentOpts.SkipPreflight)
	assert.Equal(t, rpc.CommitmentConfirmed, sentOpts.PreflightCommitment)

	assert.Equal(t, sig.String(), result.TxID)
	assert.Equal(t, poolID.String(), result.PoolID)
	assert.Equal(t, "devnet", result.Cluster)
	assert.Contains(t, result.ExplorerURL, sig.String())
	assert.Contains(t, result.ExplorerURL, "cluster=devnet")
	assert.NotEmpty(t, result.OperationID)
	assert.False(t, result.Timestamp.IsZero())

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "SimulateTransaction", mock.Anything, mock.Anything)
}

func TestExecuteOmitsComputeBudgetWhenZero(t *testing.T) {
	client := new(MockChainClient)
	w := newExecutorWallet(t)
	exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

	client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{2}, nil)

	var sentTx *solana.Transaction
	client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sentTx = args.Get(1).(*solana.Transaction)
		}).
		Return(solana.Signature{1}, nil)
	client.On("WaitForTransactionConfirmation", mock.Anything, mock.Anything, rpc.CommitmentFinalized).Return(nil)

	ix := buildSystemTransferInstruction(w.PublicKey, solana.NewWallet().PublicKey(), 500)
	result, err := exec.Execute(context.Background(), []solana.Instruction{ix}, ExecuteParams{
		Operation:  "add_liquidity",
		Commitment: rpc.CommitmentFinalized,
	})
	require.NoError(t, err)

	require.NotNil(t, sentTx)
	assert.Len(t, sentTx.Message.Instructions, 1)
	assert.Empty(t, result.PoolID)
	assert.NotContains(t, result.ExplorerURL, "cluster=")

	client.AssertExpectations(t)
}

func TestExecuteSimulationRejection(t *testing.T) {
	client := new(MockChainClient)
	w := newExecutorWallet(t)
	exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

	client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{3}, nil)
	client.On("SimulateTransaction", mock.Anything, mock.Anything).Return(&blockchain.SimulationResult{
		Err:  map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		Logs: []string{"Program log: Error: exceeds desired slippage limit"},
	}, nil)

	ix := buildSystemTransferInstruction(w.PublicKey, solana.NewWallet().PublicKey(), 500)
	_, err := exec.Execute(context.Background(), []solana.Instruction{ix}, ExecuteParams{
		Operation: "swap_exact_in",
		Simulate:  true,
	})
	require.Error(t, err)
	assert.Equal(t, ErrCodeExecutionFailed, ErrorCode(err))

	client.AssertNotCalled(t, "SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteSimulationPassSkipsPreflight(t *testing.T) {
	client := new(MockChainClient)
	w := newExecutorWallet(t)
	exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

	client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{4}, nil)
	client.On("SimulateTransaction", mock.Anything, mock.Anything).Return(&blockchain.SimulationResult{UnitsConsumed: 42_000}, nil)

	var sentOpts blockchain.TransactionOptions
	client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sentOpts = args.Get(2).(blockchain.TransactionOptions)
		}).
		Return(solana.Signature{9}, nil)
	client.On("WaitForTransactionConfirmation", mock.Anything, mock.Anything, rpc.CommitmentConfirmed).Return(nil)

	ix := buildSystemTransferInstruction(w.PublicKey, solana.NewWallet().PublicKey(), 500)
	_, err := exec.Execute(context.Background(), []solana.Instruction{ix}, ExecuteParams{
		Operation: "swap_exact_out",
		Simulate:  true,
	})
	require.NoError(t, err)
	assert.True(t, sentOpts.SkipPreflight)

	client.AssertExpectations(t)
}

func TestExecuteExtraSigners(t *testing.T) {
	client := new(MockChainClient)
	w := newExecutorWallet(t)
	exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

	mintKeypair := solana.NewWallet()

	client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{5}, nil)

	var sentTx *solana.Transaction
	client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sentTx = args.Get(1).(*solana.Transaction)
		}).
		Return(solana.Signature{2}, nil)
	client.On("WaitForTransactionConfirmation", mock.Anything, mock.Anything, rpc.CommitmentConfirmed).Return(nil)

	ix := solana.NewInstruction(solana.SystemProgramID, []*solana.AccountMeta{
		{PublicKey: w.PublicKey, IsSigner: true, IsWritable: true},
		{PublicKey: mintKeypair.PublicKey(), IsSigner: true, IsWritable: true},
	}, []byte{0})

	_, err := exec.Execute(context.Background(), []solana.Instruction{ix}, ExecuteParams{
		Operation:    "lock_liquidity",
		ExtraSigners: []solana.PrivateKey{mintKeypair.PrivateKey},
	})
	require.NoError(t, err)

	require.NotNil(t, sentTx)
	assert.Len(t, sentTx.Signatures, 2)
	assert.NoError(t, sentTx.VerifySignatures())
}

func TestExecuteFailures(t *testing.T) {
	ix := func(w *wallet.Wallet) solana.Instruction {
		return buildSystemTransferInstruction(w.PublicKey, solana.NewWallet().PublicKey(), 500)
	}

	t.Run("no instructions", func(t *testing.T) {
		client := new(MockChainClient)
		w := newExecutorWallet(t)
		exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

		_, err := exec.Execute(context.Background(), nil, ExecuteParams{Operation: "create_pool"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeExecutionFailed, ErrorCode(err))
		client.AssertNotCalled(t, "GetRecentBlockhash", mock.Anything)
	})

	t.Run("blockhash fetch fails", func(t *testing.T) {
		client := new(MockChainClient)
		w := newExecutorWallet(t)
		exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

		client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{}, errors.New("rpc down"))

		_, err := exec.Execute(context.Background(), []solana.Instruction{ix(w)}, ExecuteParams{Operation: "swap_exact_in"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeExecutionFailed, ErrorCode(err))
	})

	t.Run("send fails", func(t *testing.T) {
		client := new(MockChainClient)
		w := newExecutorWallet(t)
		exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

		client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{6}, nil)
		client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
			Return(solana.Signature{}, errors.New("blockhash not found"))

		_, err := exec.Execute(context.Background(), []solana.Instruction{ix(w)}, ExecuteParams{Operation: "swap_exact_in"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeExecutionFailed, ErrorCode(err))
		client.AssertNotCalled(t, "WaitForTransactionConfirmation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("confirmation fails", func(t *testing.T) {
		client := new(MockChainClient)
		w := newExecutorWallet(t)
		exec := NewTransactionExecutor(client, w, cluster.Mainnet, zap.NewNop())

		client.On("GetRecentBlockhash", mock.Anything).Return(solana.Hash{7}, nil)
		client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
			Return(solana.Signature{3}, nil)
		client.On("WaitForTransactionConfirmation", mock.Anything, mock.Anything, rpc.CommitmentConfirmed).
			Return(errors.New("timed out"))

		_, err := exec.Execute(context.Background(), []solana.Instruction{ix(w)}, ExecuteParams{Operation: "remove_liquidity"})
		require.Error(t, err)
		assert.Equal(t, ErrCodeExecutionFailed, ErrorCode(err))

		// One submission only: the executor does not retry.
		client.AssertNumberOfCalls(t, "SendTransactionWithOpts", 1)
	})
}
