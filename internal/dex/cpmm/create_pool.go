// internal/dex/cpmm/create_pool.go
package cpmm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// mintDescriptor is the on-chain identity of one pool side at creation time.
type mintDescriptor struct {
	mint     solana.PublicKey
	program  solana.PublicKey
	decimals uint8
}

// CreatePool initializes a pool for the mint pair and seeds it with the
// given amounts. The pair is reordered to the program's canonical token 0 /
// token 1 order, so the result's amounts may swap sides relative to the
// params. A native SOL side gets wrapped in the same transaction.
func (e *Engine) CreatePool(ctx context.Context, params CreatePoolParams) (*CreatePoolResult, error) {
	const op = opCreatePool
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	mintA, err := parseKey("mint a", params.MintA)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidMintAddresses, "invalid mint a", err)
	}
	mintB, err := parseKey("mint b", params.MintB)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidMintAddresses, "invalid mint b", err)
	}
	if mintA.Equals(mintB) {
		return nil, newOpError(op, ErrCodeInvalidMintAddresses, "mint pair must be two different mints")
	}
	if params.AmountA.Sign() <= 0 || params.AmountB.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "both initial amounts must be positive")
	}

	mint0, mint1, swapped := sortMints(mintA, mintB)
	amount0Dec, amount1Dec := params.AmountA, params.AmountB
	if swapped {
		amount0Dec, amount1Dec = amount1Dec, amount0Dec
	}

	// Fee tiers and mint accounts come from independent sources.
	var (
		configs  []FeeConfig
		accounts *rpc.GetMultipleAccountsResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		configs, err = e.fees.Get(gctx, e.cl)
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = e.client.GetMultipleAccounts(gctx, []solana.PublicKey{mint0, mint1})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token0, err := describeMint(op, mint0, accounts, 0)
	if err != nil {
		return nil, err
	}
	token1, err := describeMint(op, mint1, accounts, 1)
	if err != nil {
		return nil, err
	}

	if params.FeeConfigIndex < 0 || params.FeeConfigIndex >= len(configs) {
		return nil, newOpError(op, ErrCodeInvalidFeeConfigIndex,
			fmt.Sprintf("fee config index %d is outside [0, %d)", params.FeeConfigIndex, len(configs)))
	}
	feeConfig := configs[params.FeeConfigIndex]

	initAmount0, err := DecimalToTokenAmount(amount0Dec, token0.decimals)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid token 0 amount", err)
	}
	initAmount1, err := DecimalToTokenAmount(amount1Dec, token1.decimals)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid token 1 amount", err)
	}

	programID := ProgramID(e.cl)
	authority, err := deriveAuthority(programID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pool, err := derivePool(programID, feeConfig.ID, mint0, mint1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lpMint, err := derivePoolLpMint(programID, pool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	vault0, err := derivePoolVault(programID, pool, mint0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	vault1, err := derivePoolVault(programID, pool, mint1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	observation, err := deriveObservation(programID, pool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	owner := e.wallet.PublicKey
	creatorToken0, err := findAssociatedTokenAddress(owner, mint0, token0.program)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	creatorToken1, err := findAssociatedTokenAddress(owner, mint1, token1.program)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	creatorLp, err := e.wallet.GetATA(lpMint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Zero means trading opens as soon as the pool exists.
	var openTime uint64
	if !params.StartTime.IsZero() && params.StartTime.Unix() > 0 {
		openTime = uint64(params.StartTime.Unix())
	}

	var instructions []solana.Instruction
	instructions = append(instructions, e.wrapNativeSide(owner, token0, creatorToken0, initAmount0)...)
	instructions = append(instructions, e.wrapNativeSide(owner, token1, creatorToken1, initAmount1)...)
	instructions = append(instructions, buildInitializeInstruction(programID, createPoolKeys{
		creator:       owner,
		ammConfig:     feeConfig.ID,
		authority:     authority,
		pool:          pool,
		mint0:         mint0,
		mint1:         mint1,
		lpMint:        lpMint,
		creatorToken0: creatorToken0,
		creatorToken1: creatorToken1,
		creatorLp:     creatorLp,
		vault0:        vault0,
		vault1:        vault1,
		feeReceiver:   CreatePoolFeeReceiver(e.cl),
		observation:   observation,
		token0Program: token0.program,
		token1Program: token1.program,
	}, initAmount0, initAmount1, openTime))

	e.logger.Info("Creating pool",
		zap.String("pool", pool.String()),
		zap.String("mint0", mint0.String()),
		zap.String("mint1", mint1.String()),
		zap.Uint16("feeConfigIndex", feeConfig.Index),
		zap.Uint64("initAmount0", initAmount0),
		zap.Uint64("initAmount1", initAmount1))

	result, err := e.execute(ctx, op, pool, instructions)
	if err != nil {
		return nil, err
	}
	return &CreatePoolResult{
		OperationResult: *result,
		LpMint:          lpMint.String(),
		VaultA:          vault0.String(),
		VaultB:          vault1.String(),
		AmountA:         initAmount0,
		AmountB:         initAmount1,
	}, nil
}

// wrapNativeSide moves lamports into the creator's wrapped-SOL account and
// syncs its token balance so the pool program can pull the deposit like any
// other token. Non-native sides need no preparation, the creator already
// holds those tokens.
func (e *Engine) wrapNativeSide(owner solana.PublicKey, token mintDescriptor, ata solana.PublicKey, amount uint64) []solana.Instruction {
	if !token.mint.Equals(solana.SolMint) {
		return nil
	}
	instructions := []solana.Instruction{
		buildCreateATAIdempotentInstruction(owner, ata, owner, token.mint, token.program),
	}
	return append(instructions, buildWrapSolInstructions(owner, ata, amount)...)
}

// describeMint validates one side of the new pool against its fetched
// account and reads the decimals off the raw mint data.
func describeMint(op string, mint solana.PublicKey, accounts *rpc.GetMultipleAccountsResult, idx int) (mintDescriptor, error) {
	if accounts == nil || len(accounts.Value) <= idx || accounts.Value[idx] == nil {
		return mintDescriptor{}, newOpError(op, ErrCodeInvalidMintAddresses,
			fmt.Sprintf("mint account %s does not exist", mint))
	}
	account := accounts.Value[idx]
	if !account.Owner.Equals(solana.TokenProgramID) && !account.Owner.Equals(token2022ProgramID) {
		return mintDescriptor{}, newOpError(op, ErrCodeInvalidMintAddresses,
			fmt.Sprintf("account %s is not a token mint", mint))
	}
	decimals, err := splMintDecimals(account.Data.GetBinary())
	if err != nil {
		return mintDescriptor{}, wrapOpError(op, ErrCodeInvalidMintAddresses,
			fmt.Sprintf("undecodable mint account %s", mint), err)
	}
	return mintDescriptor{mint: mint, program: account.Owner, decimals: decimals}, nil
}
