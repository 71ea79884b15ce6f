// internal/dex/cpmm/swap.go
package cpmm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// SwapExactIn swaps a fixed input amount for at least the slippage-bounded
// output. The trade direction is inferred from which side of the pool the
// input mint occupies.
func (e *Engine) SwapExactIn(ctx context.Context, params SwapExactInParams) (*SwapResult, error) {
	const op = opSwapExactIn
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	inputMint, err := parseKey("input mint", params.InputMint)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidMintAddresses, "invalid input mint", err)
	}
	if params.Amount.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "swap amount must be positive")
	}
	if err := validateSlippage(op, params.SlippageBps); err != nil {
		return nil, err
	}

	pool, err := e.resolveLivePool(ctx, params.PoolID)
	if err != nil {
		return nil, err
	}
	if !pool.HasMint(inputMint) {
		return nil, newOpError(op, ErrCodeInvalidInputMint,
			fmt.Sprintf("mint %s is not a side of pool %s", inputMint, pool.ID))
	}

	baseIn := pool.IsTokenA(inputMint)
	input, output := pool.TokenA, pool.TokenB
	sourceReserve, destReserve := pool.ReserveA, pool.ReserveB
	if !baseIn {
		input, output = pool.TokenB, pool.TokenA
		sourceReserve, destReserve = pool.ReserveB, pool.ReserveA
	}

	amountIn, err := DecimalToTokenAmount(params.Amount, input.Decimals)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid swap amount", err)
	}

	quote, err := SwapExactIn(
		new(big.Int).SetUint64(amountIn),
		new(big.Int).SetUint64(sourceReserve),
		new(big.Int).SetUint64(destReserve),
		pool.TradeFeeBps,
	)
	if err != nil {
		return nil, err
	}
	minOutBig, err := ApplySlippage(quote.AmountOut, params.SlippageBps, SlippageFloor)
	if err != nil {
		return nil, err
	}
	amountOut, err := amountToUint64(op, quote.AmountOut, "output amount")
	if err != nil {
		return nil, err
	}
	minOut, err := amountToUint64(op, minOutBig, "minimum output amount")
	if err != nil {
		return nil, err
	}
	fee, err := amountToUint64(op, quote.Fee, "trade fee")
	if err != nil {
		return nil, err
	}

	keys, err := e.swapKeysFor(pool, input, output, baseIn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payer := e.wallet.PublicKey
	instructions, err := e.prepareNativeInput(ctx, op, keys.userInput, input, amountIn)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions,
		buildCreateATAIdempotentInstruction(payer, keys.userOutput, payer, output.Mint, output.Program),
		buildSwapBaseInputInstruction(pool.ProgramID, keys, amountIn, minOut),
	)
	instructions = append(instructions, unwrapNativeInstructions(payer, input, keys.userInput)...)
	instructions = append(instructions, unwrapNativeInstructions(payer, output, keys.userOutput)...)

	e.logger.Info("Swapping exact input",
		zap.String("pool", pool.ID.String()),
		zap.String("inputMint", input.Mint.String()),
		zap.Uint64("amountIn", amountIn),
		zap.String("uiAmountIn", FormatTokenAmount(amountIn, input.Decimals)),
		zap.Uint64("expectedOut", amountOut),
		zap.Uint64("minimumOut", minOut),
		zap.Uint64("priceImpactBps", quote.PriceImpactBps))

	result, err := e.execute(ctx, op, pool.ID, instructions)
	if err != nil {
		return nil, err
	}
	return &SwapResult{
		OperationResult: *result,
		InputMint:       input.Mint.String(),
		OutputMint:      output.Mint.String(),
		BaseIn:          baseIn,
		AmountIn:        amountIn,
		AmountOut:       amountOut,
		MinAmountOut:    minOut,
		Fee:             fee,
		PriceImpactBps:  quote.PriceImpactBps,
	}, nil
}

// SwapExactOut swaps at most the slippage-bounded input for a fixed output
// amount. The direction is inferred from which side the output mint occupies.
func (e *Engine) SwapExactOut(ctx context.Context, params SwapExactOutParams) (*SwapResult, error) {
	const op = opSwapExactOut
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	outputMint, err := parseKey("output mint", params.OutputMint)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidMintAddresses, "invalid output mint", err)
	}
	if params.Amount.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "swap amount must be positive")
	}
	if err := validateSlippage(op, params.SlippageBps); err != nil {
		return nil, err
	}

	pool, err := e.resolveLivePool(ctx, params.PoolID)
	if err != nil {
		return nil, err
	}
	if !pool.HasMint(outputMint) {
		return nil, newOpError(op, ErrCodeInvalidOutputMint,
			fmt.Sprintf("mint %s is not a side of pool %s", outputMint, pool.ID))
	}

	baseIn := !pool.IsTokenA(outputMint)
	input, output := pool.TokenA, pool.TokenB
	sourceReserve, destReserve := pool.ReserveA, pool.ReserveB
	if !baseIn {
		input, output = pool.TokenB, pool.TokenA
		sourceReserve, destReserve = pool.ReserveB, pool.ReserveA
	}

	amountOut, err := DecimalToTokenAmount(params.Amount, output.Decimals)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid swap amount", err)
	}

	quote, err := SwapExactOut(
		new(big.Int).SetUint64(amountOut),
		new(big.Int).SetUint64(sourceReserve),
		new(big.Int).SetUint64(destReserve),
		pool.TradeFeeBps,
	)
	if err != nil {
		return nil, err
	}
	maxInBig, err := ApplySlippage(quote.AmountIn, params.SlippageBps, SlippageCeiling)
	if err != nil {
		return nil, err
	}
	amountIn, err := amountToUint64(op, quote.AmountIn, "input amount")
	if err != nil {
		return nil, err
	}
	maxIn, err := amountToUint64(op, maxInBig, "maximum input amount")
	if err != nil {
		return nil, err
	}
	fee, err := amountToUint64(op, quote.Fee, "trade fee")
	if err != nil {
		return nil, err
	}

	keys, err := e.swapKeysFor(pool, input, output, baseIn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// A native input side is funded with the worst-case amount; the close
	// below returns whatever the pool does not pull.
	payer := e.wallet.PublicKey
	instructions, err := e.prepareNativeInput(ctx, op, keys.userInput, input, maxIn)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions,
		buildCreateATAIdempotentInstruction(payer, keys.userOutput, payer, output.Mint, output.Program),
		buildSwapBaseOutputInstruction(pool.ProgramID, keys, maxIn, amountOut),
	)
	instructions = append(instructions, unwrapNativeInstructions(payer, input, keys.userInput)...)
	instructions = append(instructions, unwrapNativeInstructions(payer, output, keys.userOutput)...)

	e.logger.Info("Swapping exact output",
		zap.String("pool", pool.ID.String()),
		zap.String("outputMint", output.Mint.String()),
		zap.Uint64("amountOut", amountOut),
		zap.String("uiAmountOut", FormatTokenAmount(amountOut, output.Decimals)),
		zap.Uint64("expectedIn", amountIn),
		zap.Uint64("maximumIn", maxIn),
		zap.Uint64("priceImpactBps", quote.PriceImpactBps))

	result, err := e.execute(ctx, op, pool.ID, instructions)
	if err != nil {
		return nil, err
	}
	return &SwapResult{
		OperationResult: *result,
		InputMint:       input.Mint.String(),
		OutputMint:      output.Mint.String(),
		BaseIn:          baseIn,
		AmountIn:        amountIn,
		AmountOut:       amountOut,
		MaxAmountIn:     maxIn,
		Fee:             fee,
		PriceImpactBps:  quote.PriceImpactBps,
	}, nil
}

// prepareNativeInput funds the payer's wrapped-SOL account when the trade
// spends native SOL. The payer must hold the lamports plus the token account
// rent, checked up front so the transaction cannot fail mid-transfer.
func (e *Engine) prepareNativeInput(ctx context.Context, op string, wsolAccount solana.PublicKey, input TokenInfo, lamports uint64) ([]solana.Instruction, error) {
	if !input.Mint.Equals(solana.SolMint) {
		return nil, nil
	}
	balance, err := e.client.GetBalance(ctx, e.wallet.PublicKey, e.commitment)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch payer balance: %w", op, err)
	}
	rent, err := e.client.GetMinimumBalanceForRentExemption(ctx, splTokenAccountSize, e.commitment)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch rent exemption: %w", op, err)
	}
	if balance < lamports+rent {
		return nil, newOpError(op, ErrCodeInsufficientBalance,
			fmt.Sprintf("payer holds %d lamports, wrapping needs %d plus %d rent", balance, lamports, rent))
	}
	owner := e.wallet.PublicKey
	instructions := []solana.Instruction{
		buildCreateATAIdempotentInstruction(owner, wsolAccount, owner, input.Mint, input.Program),
	}
	return append(instructions, buildWrapSolInstructions(owner, wsolAccount, lamports)...), nil
}

// unwrapNativeInstructions closes the owner's wrapped-SOL account after the
// trade so rent and any unspent lamports come back as native SOL. Non-native
// sides stay untouched.
func unwrapNativeInstructions(owner solana.PublicKey, side TokenInfo, account solana.PublicKey) []solana.Instruction {
	if !side.Mint.Equals(solana.SolMint) {
		return nil
	}
	return []solana.Instruction{buildCloseAccountInstruction(account, owner, owner)}
}

// resolveLivePool resolves the pool and refreshes its reserves from chain
// accounts. Swap math must not run on index-lagged reserves.
func (e *Engine) resolveLivePool(ctx context.Context, poolID string) (*PoolState, error) {
	pool, err := e.locator.ResolvePool(ctx, ResolvePoolParams{PoolID: poolID})
	if err != nil {
		return nil, err
	}
	return e.locator.LiveReserves(ctx, pool)
}

// swapKeysFor assembles the swap account set oriented in trade direction.
func (e *Engine) swapKeysFor(pool *PoolState, input, output TokenInfo, baseIn bool) (swapKeys, error) {
	payer := e.wallet.PublicKey
	userInput, err := findAssociatedTokenAddress(payer, input.Mint, input.Program)
	if err != nil {
		return swapKeys{}, err
	}
	userOutput, err := findAssociatedTokenAddress(payer, output.Mint, output.Program)
	if err != nil {
		return swapKeys{}, err
	}
	inputVault, outputVault := pool.VaultA, pool.VaultB
	if !baseIn {
		inputVault, outputVault = pool.VaultB, pool.VaultA
	}
	return swapKeys{
		payer:              payer,
		authority:          pool.Authority,
		ammConfig:          pool.AmmConfigID,
		pool:               pool.ID,
		userInput:          userInput,
		userOutput:         userOutput,
		inputVault:         inputVault,
		outputVault:        outputVault,
		inputTokenProgram:  input.Program,
		outputTokenProgram: output.Program,
		inputMint:          input.Mint,
		outputMint:         output.Mint,
		observation:        pool.Observation,
	}, nil
}
