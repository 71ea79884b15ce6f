// internal/dex/cpmm/lock.go
package cpmm

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/blockchain/solbc"
)

// LockLiquidity locks LP tokens permanently and mints a fee NFT entitling
// its holder to the locked position's share of trading fees. The NFT mint
// is a fresh keypair that co-signs the transaction; a zero LpAmount locks
// the wallet's whole balance.
func (e *Engine) LockLiquidity(ctx context.Context, params LockLiquidityParams) (*LockLiquidityResult, error) {
	const op = opLockLiquidity
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	if params.LpAmount.Sign() < 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "lp amount must not be negative")
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

	lockProgram := LockProgramID(e.cl)
	lockAuthority, err := deriveLockAuthority(lockProgram)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	feeNft := solana.NewWallet()
	lockedLiquidity, err := deriveLockedLiquidity(lockProgram, feeNft.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metadata, err := deriveMetadata(feeNft.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	owner := e.wallet.PublicKey
	feeNftAccount, err := findAssociatedTokenAddress(owner, feeNft.PublicKey(), solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lockedLpVault, err := findAssociatedTokenAddress(lockAuthority, pool.LpMint, solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	keys := lockKeys{
		authority:       lockAuthority,
		payer:           owner,
		liquidityOwner:  owner,
		feeNftOwner:     owner,
		feeNftMint:      feeNft.PublicKey(),
		feeNftAccount:   feeNftAccount,
		pool:            pool.ID,
		lockedLiquidity: lockedLiquidity,
		lpMint:          pool.LpMint,
		ownerLpAccount:  ownerLp,
		lockedLpVault:   lockedLpVault,
		metadata:        metadata,
	}

	// The lock program creates the NFT account and the vault itself.
	instructions := []solana.Instruction{
		buildLockLiquidityInstruction(lockProgram, keys, lpAmount, params.WithMetadata),
	}

	e.logger.Info("Locking liquidity",
		zap.String("pool", pool.ID.String()),
		zap.String("feeNftMint", feeNft.PublicKey().String()),
		zap.Uint64("lpAmount", lpAmount),
		zap.Bool("withMetadata", params.WithMetadata))

	result, err := e.execute(ctx, op, pool.ID, instructions, feeNft.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &LockLiquidityResult{
		OperationResult: *result,
		LockedLpAmount:  lpAmount,
		FeeNftMint:      feeNft.PublicKey().String(),
	}, nil
}

// HarvestLock collects the trading fees accrued to a locked position,
// identified by its fee NFT. The pool is read off the lock record, so the
// caller does not have to supply it; a supplied pool id must match.
func (e *Engine) HarvestLock(ctx context.Context, params HarvestLockParams) (*HarvestLockResult, error) {
	const op = opHarvestLock
	if err := e.requireSigner(op); err != nil {
		return nil, err
	}
	feeNftMint, err := parseKey("fee nft mint", params.FeeNftMint)
	if err != nil {
		return nil, wrapOpError(op, ErrCodeInvalidMintAddresses, "invalid fee nft mint", err)
	}
	if params.LpFeeAmount.Sign() < 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "lp fee amount must not be negative")
	}

	lockProgram := LockProgramID(e.cl)
	lockAuthority, err := deriveLockAuthority(lockProgram)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lockedLiquidity, err := deriveLockedLiquidity(lockProgram, feeNftMint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record, err := e.fetchLockRecord(ctx, op, lockedLiquidity)
	if err != nil {
		return nil, err
	}

	poolID := record.PoolID
	if params.PoolID != "" {
		explicit, err := parseKey("pool id", params.PoolID)
		if err != nil {
			return nil, newOpError(op, ErrCodePoolNotFound, err.Error())
		}
		if !explicit.Equals(record.PoolID) {
			return nil, newOpError(op, ErrCodeInvalidPoolType,
				fmt.Sprintf("lock record belongs to pool %s, not %s", record.PoolID, explicit))
		}
	}

	pool, err := e.locator.FetchPoolState(ctx, poolID)
	if err != nil {
		return nil, err
	}

	// The amount defaults to the whole claimable share; the program caps the
	// request at what the position has actually accrued.
	lpFeeAmount := uint64(math.MaxUint64)
	if params.LpFeeAmount.Sign() > 0 {
		lpFeeAmount, err = DecimalToTokenAmount(params.LpFeeAmount, pool.LpDecimals)
		if err != nil {
			return nil, wrapOpError(op, ErrCodeInvalidAmount, "invalid lp fee amount", err)
		}
	}

	owner := e.wallet.PublicKey
	feeNftAccount, err := findAssociatedTokenAddress(owner, feeNftMint, solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lockedLpVault, err := findAssociatedTokenAddress(lockAuthority, pool.LpMint, solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	recipient0, err := findAssociatedTokenAddress(owner, pool.TokenA.Mint, pool.TokenA.Program)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	recipient1, err := findAssociatedTokenAddress(owner, pool.TokenB.Mint, pool.TokenB.Program)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	keys := harvestKeys{
		authority:       lockAuthority,
		feeNftOwner:     owner,
		feeNftAccount:   feeNftAccount,
		lockedLiquidity: lockedLiquidity,
		poolProgram:     pool.ProgramID,
		poolAuthority:   pool.Authority,
		pool:            pool.ID,
		lpMint:          pool.LpMint,
		recipientToken0: recipient0,
		recipientToken1: recipient1,
		vault0:          pool.VaultA,
		vault1:          pool.VaultB,
		mint0:           pool.TokenA.Mint,
		mint1:           pool.TokenB.Mint,
		lockedLpVault:   lockedLpVault,
	}

	// Fee proceeds may land in accounts the owner never created.
	instructions := []solana.Instruction{
		buildCreateATAIdempotentInstruction(owner, recipient0, owner, pool.TokenA.Mint, pool.TokenA.Program),
		buildCreateATAIdempotentInstruction(owner, recipient1, owner, pool.TokenB.Mint, pool.TokenB.Program),
		buildCollectFeeInstruction(lockProgram, keys, lpFeeAmount),
	}

	e.logger.Info("Harvesting locked fees",
		zap.String("pool", pool.ID.String()),
		zap.String("feeNftMint", feeNftMint.String()),
		zap.Uint64("lpFeeAmount", lpFeeAmount))

	result, err := e.execute(ctx, op, pool.ID, instructions)
	if err != nil {
		return nil, err
	}
	return &HarvestLockResult{
		OperationResult: *result,
		FeeNftMint:      feeNftMint.String(),
		LpFeeAmount:     lpFeeAmount,
	}, nil
}

// fetchLockRecord loads and decodes the locked-liquidity account behind a
// fee NFT.
func (e *Engine) fetchLockRecord(ctx context.Context, op string, address solana.PublicKey) (*lockedLiquidityLayout, error) {
	info, err := e.client.GetAccountInfo(ctx, address)
	if err != nil {
		if solbc.IsAccountNotFoundError(err) {
			return nil, newOpError(op, ErrCodeLockNotFound,
				fmt.Sprintf("no lock record at %s", address))
		}
		return nil, fmt.Errorf("%s: fetch lock record: %w", op, err)
	}
	if info == nil || info.Value == nil {
		return nil, newOpError(op, ErrCodeLockNotFound,
			fmt.Sprintf("no lock record at %s", address))
	}
	if !info.Value.Owner.Equals(LockProgramID(e.cl)) {
		return nil, newOpError(op, ErrCodeLockNotFound,
			fmt.Sprintf("account %s is not a lock record", address))
	}
	record, err := decodeLockedLiquidity(info.Value.Data.GetBinary())
	if err != nil {
		return nil, wrapOpError(op, ErrCodeLockNotFound, "undecodable lock record", err)
	}
	return record, nil
}
