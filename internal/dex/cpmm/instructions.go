// internal/dex/cpmm/instructions.go
package cpmm

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// instructionData packs a discriminator and little-endian u64 arguments.
func instructionData(name string, args ...uint64) []byte {
	data := make([]byte, 0, 8+8*len(args))
	data = append(data, anchorInstructionDiscriminator(name)...)
	var buf [8]byte
	for _, arg := range args {
		binary.LittleEndian.PutUint64(buf[:], arg)
		data = append(data, buf[:]...)
	}
	return data
}

// createPoolKeys carries every account the initialize instruction touches.
// Token sides are ordered: mint0 < mint1 byte-wise.
type createPoolKeys struct {
	creator       solana.PublicKey
	ammConfig     solana.PublicKey
	authority     solana.PublicKey
	pool          solana.PublicKey
	mint0         solana.PublicKey
	mint1         solana.PublicKey
	lpMint        solana.PublicKey
	creatorToken0 solana.PublicKey
	creatorToken1 solana.PublicKey
	creatorLp     solana.PublicKey
	vault0        solana.PublicKey
	vault1        solana.PublicKey
	feeReceiver   solana.PublicKey
	observation   solana.PublicKey
	token0Program solana.PublicKey
	token1Program solana.PublicKey
}

func buildInitializeInstruction(programID solana.PublicKey, keys createPoolKeys, initAmount0, initAmount1, openTime uint64) solana.Instruction {
	data := instructionData("initialize", initAmount0, initAmount1, openTime)

	// Account list must be in the exact order expected by the program
	accounts := []*solana.AccountMeta{
		{PublicKey: keys.creator, IsSigner: true, IsWritable: true},
		{PublicKey: keys.ammConfig, IsSigner: false, IsWritable: false},
		{PublicKey: keys.authority, IsSigner: false, IsWritable: false},
		{PublicKey: keys.pool, IsSigner: false, IsWritable: true},
		{PublicKey: keys.mint0, IsSigner: false, IsWritable: false},
		{PublicKey: keys.mint1, IsSigner: false, IsWritable: false},
		{PublicKey: keys.lpMint, IsSigner: false, IsWritable: true},
		{PublicKey: keys.creatorToken0, IsSigner: false, IsWritable: true},
		{PublicKey: keys.creatorToken1, IsSigner: false, IsWritable: true},
		{PublicKey: keys.creatorLp, IsSigner: false, IsWritable: true},
		{PublicKey: keys.vault0, IsSigner: false, IsWritable: true},
		{PublicKey: keys.vault1, IsSigner: false, IsWritable: true},
		{PublicKey: keys.feeReceiver, IsSigner: false, IsWritable: true},
		{PublicKey: keys.observation, IsSigner: false, IsWritable: true},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: keys.token0Program, IsSigner: false, IsWritable: false},
		{PublicKey: keys.token1Program, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SysVarRentPubkey, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(programID, accounts, data)
}

// liquidityKeys carries the accounts shared by deposit and withdraw.
type liquidityKeys struct {
	owner       solana.PublicKey
	authority   solana.PublicKey
	pool        solana.PublicKey
	ownerLp     solana.PublicKey
	ownerToken0 solana.PublicKey
	ownerToken1 solana.PublicKey
	vault0      solana.PublicKey
	vault1      solana.PublicKey
	mint0       solana.PublicKey
	mint1       solana.PublicKey
	lpMint      solana.PublicKey
}

func (k liquidityKeys) accountMetas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: k.owner, IsSigner: true, IsWritable: false},
		{PublicKey: k.authority, IsSigner: false, IsWritable: false},
		{PublicKey: k.pool, IsSigner: false, IsWritable: true},
		{PublicKey: k.ownerLp, IsSigner: false, IsWritable: true},
		{PublicKey: k.ownerToken0, IsSigner: false, IsWritable: true},
		{PublicKey: k.ownerToken1, IsSigner: false, IsWritable: true},
		{PublicKey: k.vault0, IsSigner: false, IsWritable: true},
		{PublicKey: k.vault1, IsSigner: false, IsWritable: true},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: token2022ProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: k.mint0, IsSigner: false, IsWritable: false},
		{PublicKey: k.mint1, IsSigner: false, IsWritable: false},
		{PublicKey: k.lpMint, IsSigner: false, IsWritable: true},
	}
}

func buildDepositInstruction(programID solana.PublicKey, keys liquidityKeys, lpAmount, maxToken0, maxToken1 uint64) solana.Instruction {
	data := instructionData("deposit", lpAmount, maxToken0, maxToken1)
	return solana.NewInstruction(programID, keys.accountMetas(), data)
}

func buildWithdrawInstruction(programID solana.PublicKey, keys liquidityKeys, lpAmount, minToken0, minToken1 uint64) solana.Instruction {
	data := instructionData("withdraw", lpAmount, minToken0, minToken1)
	// Withdraw additionally needs the memo program for transfer notes.
	accounts := append(keys.accountMetas(),
		&solana.AccountMeta{PublicKey: memoProgramID, IsSigner: false, IsWritable: false})
	return solana.NewInstruction(programID, accounts, data)
}

// swapKeys carries the accounts of one swap direction. Input is the side the
// user pays, output the side the user receives.
type swapKeys struct {
	payer              solana.PublicKey
	authority          solana.PublicKey
	ammConfig          solana.PublicKey
	pool               solana.PublicKey
	userInput          solana.PublicKey
	userOutput         solana.PublicKey
	inputVault         solana.PublicKey
	outputVault        solana.PublicKey
	inputTokenProgram  solana.PublicKey
	outputTokenProgram solana.PublicKey
	inputMint          solana.PublicKey
	outputMint         solana.PublicKey
	observation        solana.PublicKey
}

func (k swapKeys) accountMetas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: k.payer, IsSigner: true, IsWritable: false},
		{PublicKey: k.authority, IsSigner: false, IsWritable: false},
		{PublicKey: k.ammConfig, IsSigner: false, IsWritable: false},
		{PublicKey: k.pool, IsSigner: false, IsWritable: true},
		{PublicKey: k.userInput, IsSigner: false, IsWritable: true},
		{PublicKey: k.userOutput, IsSigner: false, IsWritable: true},
		{PublicKey: k.inputVault, IsSigner: false, IsWritable: true},
		{PublicKey: k.outputVault, IsSigner: false, IsWritable: true},
		{PublicKey: k.inputTokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: k.outputTokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: k.inputMint, IsSigner: false, IsWritable: false},
		{PublicKey: k.outputMint, IsSigner: false, IsWritable: false},
		{PublicKey: k.observation, IsSigner: false, IsWritable: true},
	}
}

func buildSwapBaseInputInstruction(programID solana.PublicKey, keys swapKeys, amountIn, minimumAmountOut uint64) solana.Instruction {
	data := instructionData("swap_base_input", amountIn, minimumAmountOut)
	return solana.NewInstruction(programID, keys.accountMetas(), data)
}

func buildSwapBaseOutputInstruction(programID solana.PublicKey, keys swapKeys, maxAmountIn, amountOut uint64) solana.Instruction {
	data := instructionData("swap_base_output", maxAmountIn, amountOut)
	return solana.NewInstruction(programID, keys.accountMetas(), data)
}

// lockKeys carries the accounts of the lock program's lock instruction. The
// fee NFT mint is a fresh keypair and must co-sign the transaction.
type lockKeys struct {
	authority       solana.PublicKey
	payer           solana.PublicKey
	liquidityOwner  solana.PublicKey
	feeNftOwner     solana.PublicKey
	feeNftMint      solana.PublicKey
	feeNftAccount   solana.PublicKey
	pool            solana.PublicKey
	lockedLiquidity solana.PublicKey
	lpMint          solana.PublicKey
	ownerLpAccount  solana.PublicKey
	lockedLpVault   solana.PublicKey
	metadata        solana.PublicKey
}

func buildLockLiquidityInstruction(lockProgramID solana.PublicKey, keys lockKeys, amount uint64, withMetadata bool) solana.Instruction {
	data := instructionData("lock_cp_liquidity", amount)
	if withMetadata {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: keys.authority, IsSigner: false, IsWritable: false},
		{PublicKey: keys.payer, IsSigner: true, IsWritable: true},
		{PublicKey: keys.liquidityOwner, IsSigner: true, IsWritable: false},
		{PublicKey: keys.feeNftOwner, IsSigner: false, IsWritable: false},
		{PublicKey: keys.feeNftMint, IsSigner: true, IsWritable: true},
		{PublicKey: keys.feeNftAccount, IsSigner: false, IsWritable: true},
		{PublicKey: keys.pool, IsSigner: false, IsWritable: false},
		{PublicKey: keys.lockedLiquidity, IsSigner: false, IsWritable: true},
		{PublicKey: keys.lpMint, IsSigner: false, IsWritable: true},
		{PublicKey: keys.ownerLpAccount, IsSigner: false, IsWritable: true},
		{PublicKey: keys.lockedLpVault, IsSigner: false, IsWritable: true},
		{PublicKey: keys.metadata, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SysVarRentPubkey, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: metadataProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(lockProgramID, accounts, data)
}

// harvestKeys carries the accounts of the lock program's fee collection.
type harvestKeys struct {
	authority       solana.PublicKey
	feeNftOwner     solana.PublicKey
	feeNftAccount   solana.PublicKey
	lockedLiquidity solana.PublicKey
	poolProgram     solana.PublicKey
	poolAuthority   solana.PublicKey
	pool            solana.PublicKey
	lpMint          solana.PublicKey
	recipientToken0 solana.PublicKey
	recipientToken1 solana.PublicKey
	vault0          solana.PublicKey
	vault1          solana.PublicKey
	mint0           solana.PublicKey
	mint1           solana.PublicKey
	lockedLpVault   solana.PublicKey
}

func buildCollectFeeInstruction(lockProgramID solana.PublicKey, keys harvestKeys, feeLpAmount uint64) solana.Instruction {
	data := instructionData("collect_cp_fee", feeLpAmount)

	accounts := []*solana.AccountMeta{
		{PublicKey: keys.authority, IsSigner: false, IsWritable: false},
		{PublicKey: keys.feeNftOwner, IsSigner: true, IsWritable: false},
		{PublicKey: keys.feeNftAccount, IsSigner: false, IsWritable: false},
		{PublicKey: keys.lockedLiquidity, IsSigner: false, IsWritable: true},
		{PublicKey: keys.poolProgram, IsSigner: false, IsWritable: false},
		{PublicKey: keys.poolAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: keys.pool, IsSigner: false, IsWritable: true},
		{PublicKey: keys.lpMint, IsSigner: false, IsWritable: true},
		{PublicKey: keys.recipientToken0, IsSigner: false, IsWritable: true},
		{PublicKey: keys.recipientToken1, IsSigner: false, IsWritable: true},
		{PublicKey: keys.vault0, IsSigner: false, IsWritable: true},
		{PublicKey: keys.vault1, IsSigner: false, IsWritable: true},
		{PublicKey: keys.mint0, IsSigner: false, IsWritable: false},
		{PublicKey: keys.mint1, IsSigner: false, IsWritable: false},
		{PublicKey: keys.lockedLpVault, IsSigner: false, IsWritable: true},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: token2022ProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: memoProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(lockProgramID, accounts, data)
}

// findAssociatedTokenAddress derives the ATA for (owner, mint) under the
// mint's token program. Seeds: [owner, token_program, mint].
func findAssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return addr, nil
}

// buildCreateATAIdempotentInstruction creates the ATA if it does not exist
// yet. Instruction index 1 = CreateIdempotent, a no-op on existing accounts.
func buildCreateATAIdempotentInstruction(payer, ata, owner, mint, tokenProgram solana.PublicKey) solana.Instruction {
	accounts := []*solana.AccountMeta{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, []byte{1})
}

func buildSystemTransferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	// SystemProgram layout: u32 instruction index (2 = Transfer), u64 lamports.
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	accounts := []*solana.AccountMeta{
		{PublicKey: from, IsSigner: true, IsWritable: true},
		{PublicKey: to, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(solana.SystemProgramID, accounts, data)
}

func buildSyncNativeInstruction(nativeAccount solana.PublicKey) solana.Instruction {
	// TokenProgram instruction index 17 = SyncNative.
	accounts := []*solana.AccountMeta{
		{PublicKey: nativeAccount, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, []byte{17})
}

func buildCloseAccountInstruction(account, destination, owner solana.PublicKey) solana.Instruction {
	// TokenProgram instruction index 9 = CloseAccount.
	accounts := []*solana.AccountMeta{
		{PublicKey: account, IsSigner: false, IsWritable: true},
		{PublicKey: destination, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: false},
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, []byte{9})
}

// buildWrapSolInstructions funds the owner's wrapped-SOL account with
// lamports and syncs its token balance. The account itself must already
// exist (create it idempotently first).
func buildWrapSolInstructions(owner, wsolAccount solana.PublicKey, lamports uint64) []solana.Instruction {
	return []solana.Instruction{
		buildSystemTransferInstruction(owner, wsolAccount, lamports),
		buildSyncNativeInstruction(wsolAccount),
	}
}
