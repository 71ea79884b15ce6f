// internal/dex/cpmm/liquidity.go
package cpmm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// AddLiquidity deposits both sides into the pool at its current ratio. The
// input amount fixes one side; the paired side follows from the reserves
// and is bounded above by the slippage tolerance.
func (e *Engine) AddLiquidity(ctx context.Context, params AddLiquidityParams) (*AddLiquidityResult, error) {
	const op = opAddLiquidity
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	if params.InputAmount.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "input amount must be positive")
	}
	if err := validateSlippage(op, params.SlippageBps); err != nil {
		return nil, err
	}

	pool, err := e.locator.ResolvePool(ctx, ResolvePoolParams{
		PoolID:         params.PoolID,
		MintA:          params.MintA,
		MintB:          params.MintB,
		AutoSelectBest: params.AutoSelectBest,
		SortBy:         params.SortBy,
	})
	if err != nil {
		return nil, err
	}

	base, baseReserve, quoteReserve := pool.TokenA, pool.ReserveA, pool.ReserveB
	if !params.BaseIn {
		base, baseReserve, quoteReserve = pool.TokenB, pool.ReserveB, pool.ReserveA
	}

	inputAmount, err := DecimalToTokenAmount(params.InputAmount, base.Decimals)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid input amount", err)
	}

	amounts, err := ComputeLiquidityAmounts(
		new(big.Int).SetUint64(inputAmount),
		new(big.Int).SetUint64(baseReserve),
		new(big.Int).SetUint64(quoteReserve),
		params.SlippageBps,
	)
	if err != nil {
		return nil, err
	}
	pairAmount, err := amountToUint64(op, amounts.PairAmount, "pair amount")
	if err != nil {
		return nil, err
	}
	minPair, err := amountToUint64(op, amounts.MinPairAmount, "minimum pair amount")
	if err != nil {
		return nil, err
	}
	maxPair, err := amountToUint64(op, amounts.MaxPairAmount, "maximum pair amount")
	if err != nil {
		return nil, err
	}

	lpTokens, err := LpTokensForDeposit(
		new(big.Int).SetUint64(inputAmount),
		new(big.Int).SetUint64(baseReserve),
		new(big.Int).SetUint64(pool.LpSupply),
	)
	if err != nil {
		return nil, err
	}
	lpAmount, err := amountToUint64(op, lpTokens, "lp amount")
	if err != nil {
		return nil, err
	}
	if lpAmount == 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "input amount is too small to mint lp tokens")
	}

	// The program reads deposit args as (lp to mint, max token 0, max token 1).
	// The fixed side's cap is the input itself; only the paired side floats.
	max0, max1 := inputAmount, maxPair
	if !params.BaseIn {
		max0, max1 = maxPair, inputAmount
	}

	owner := e.wallet.PublicKey
	ownerLp, err := e.wallet.GetATA(pool.LpMint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	keys, err := e.liquidityKeysFor(pool, ownerLp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	instructions := []solana.Instruction{
		buildCreateATAIdempotentInstruction(owner, ownerLp, owner, pool.LpMint, solana.TokenProgramID),
		buildDepositInstruction(pool.ProgramID, keys, lpAmount, max0, max1),
	}

	e.logger.Info("Adding liquidity",
		zap.String("pool", pool.ID.String()),
		zap.Bool("baseIn", params.BaseIn),
		zap.Uint64("inputAmount", inputAmount),
		zap.Uint64("pairAmount", pairAmount),
		zap.Uint64("lpAmount", lpAmount))

	result, err := e.execute(ctx, op, pool.ID, instructions)
	if err != nil {
		return nil, err
	}
	return &AddLiquidityResult{
		OperationResult: *result,
		BaseIn:          params.BaseIn,
		InputAmount:     inputAmount,
		PairAmount:      pairAmount,
		MinPairAmount:   minPair,
		LpTokens:        lpAmount,
	}, nil
}

// RemoveLiquidity burns LP tokens and withdraws both sides. A zero LpAmount
// burns the wallet's whole balance for the pool.
func (e *Engine) RemoveLiquidity(ctx context.Context, params RemoveLiquidityParams) (*RemoveLiquidityResult, error) {
	const op = opRemoveLiquidity
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	if params.LpAmount.Sign() < 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "lp amount must not be negative")
	}
	if err := validateSlippage(op, params.SlippageBps); err != nil {
		return nil, err
	}

	pool, err := e.locator.ResolvePool(ctx, ResolvePoolParams{PoolID: params.PoolID})
	if err != nil {
		return nil, err
	}

	ownerLp, held, err := e.lpBalance(ctx, op, pool)
	if err != nil {
		return nil, err
	}
	if held == 0 {
		return nil, newOpError(op, ErrCodeNoLpBalance, "wallet holds no lp tokens for this pool")
	}

	lpAmount := held
	if params.LpAmount.Sign() > 0 {
		lpAmount, err = DecimalToTokenAmount(params.LpAmount, pool.LpDecimals)
		if err != nil {
			return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid lp amount", err)
		}
		if lpAmount > held {
			return nil, newOpError(op, ErrCodeInsufficientLpBalance,
				fmt.Sprintf("requested %d lp but the wallet holds %d", lpAmount, held))
		}
	}

	amount0, amount1, err := WithdrawAmounts(
		new(big.Int).SetUint64(lpAmount),
		new(big.Int).SetUint64(pool.LpSupply),
		new(big.Int).SetUint64(pool.ReserveA),
		new(big.Int).SetUint64(pool.ReserveB),
	)
	if err != nil {
		return nil, err
	}
	min0Big, err := ApplySlippage(amount0, params.SlippageBps, SlippageFloor)
	if err != nil {
		return nil, err
	}
	min1Big, err := ApplySlippage(amount1, params.SlippageBps, SlippageFloor)
	if err != nil {
		return nil, err
	}
	min0, err := amountToUint64(op, min0Big, "minimum token 0 amount")
	if err != nil {
		return nil, err
	}
	min1, err := amountToUint64(op, min1Big, "minimum token 1 amount")
	if err != nil {
		return nil, err
	}

	keys, err := e.liquidityKeysFor(pool, ownerLp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	owner := e.wallet.PublicKey
	// Receiving accounts may have been closed since the deposit.
	instructions := []solana.Instruction{
		buildCreateATAIdempotentInstruction(owner, keys.ownerToken0, owner, pool.TokenA.Mint, pool.TokenA.Program),
		buildCreateATAIdempotentInstruction(owner, keys.ownerToken1, owner, pool.TokenB.Mint, pool.TokenB.Program),
		buildWithdrawInstruction(pool.ProgramID, keys, lpAmount, min0, min1),
	}

	e.logger.Info("Removing liquidity",
		zap.String("pool", pool.ID.String()),
		zap.Uint64("lpAmount", lpAmount),
		zap.Uint64("minToken0", min0),
		zap.Uint64("minToken1", min1))

	result, err := e.execute(ctx, op, pool.ID, instructions)
	if err != nil {
		return nil, err
	}
	return &RemoveLiquidityResult{
		OperationResult: *result,
		LpBurned:        lpAmount,
		MinAmountA:      min0,
		MinAmountB:      min1,
	}, nil
}

// liquidityKeysFor assembles the deposit/withdraw account set for the pool
// and the owner's LP account.
func (e *Engine) liquidityKeysFor(pool *PoolState, ownerLp solana.PublicKey) (liquidityKeys, error) {
	owner := e.wallet.PublicKey
	ownerToken0, err := findAssociatedTokenAddress(owner, pool.TokenA.Mint, pool.TokenA.Program)
	if err != nil {
		return liquidityKeys{}, err
	}
	ownerToken1, err := findAssociatedTokenAddress(owner, pool.TokenB.Mint, pool.TokenB.Program)
	if err != nil {
		return liquidityKeys{}, err
	}
	return liquidityKeys{
		owner:       owner,
		authority:   pool.Authority,
		pool:        pool.ID,
		ownerLp:     ownerLp,
		ownerToken0: ownerToken0,
		ownerToken1: ownerToken1,
		vault0:      pool.VaultA,
		vault1:      pool.VaultB,
		mint0:       pool.TokenA.Mint,
		mint1:       pool.TokenB.Mint,
		lpMint:      pool.LpMint,
	}, nil
}
