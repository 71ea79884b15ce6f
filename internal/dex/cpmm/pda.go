// internal/dex/cpmm/pda.go
package cpmm

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// deriveAuthority returns the pool vault and LP mint authority for a program.
func deriveAuthority(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(authSeed)}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive authority: %w", err)
	}
	return addr, nil
}

// deriveAmmConfig returns the fee tier account for an index. The index is
// encoded big-endian, matching the on-chain seed layout.
func deriveAmmConfig(programID solana.PublicKey, index uint16) (solana.PublicKey, error) {
	var indexBytes [2]byte
	binary.BigEndian.PutUint16(indexBytes[:], index)
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(ammConfigSeed), indexBytes[:]},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive amm config %d: %w", index, err)
	}
	return addr, nil
}

// derivePool returns the pool account for a config and an ordered mint pair.
func derivePool(programID, ammConfig, mint0, mint1 solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(poolSeed), ammConfig.Bytes(), mint0.Bytes(), mint1.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive pool: %w", err)
	}
	return addr, nil
}

// derivePoolVault returns the pool's vault for one of its mints.
func derivePoolVault(programID, pool, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(poolVaultSeed), pool.Bytes(), mint.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive pool vault: %w", err)
	}
	return addr, nil
}

// derivePoolLpMint returns the pool's LP mint.
func derivePoolLpMint(programID, pool solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(poolLpMintSeed), pool.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive pool lp mint: %w", err)
	}
	return addr, nil
}

// deriveObservation returns the pool's price observation account.
func deriveObservation(programID, pool solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(observationSeed), pool.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive observation: %w", err)
	}
	return addr, nil
}

// deriveLockAuthority returns the lock program's LP custody authority.
func deriveLockAuthority(lockProgramID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(lockAuthSeed)}, lockProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive lock authority: %w", err)
	}
	return addr, nil
}

// deriveLockedLiquidity returns the locked liquidity record for a fee NFT mint.
func deriveLockedLiquidity(lockProgramID, feeNftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(lockedLiquiditySeed), feeNftMint.Bytes()},
		lockProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive locked liquidity: %w", err)
	}
	return addr, nil
}

// deriveMetadata returns the token metadata record for a mint.
func deriveMetadata(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), metadataProgramID.Bytes(), mint.Bytes()},
		metadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive metadata: %w", err)
	}
	return addr, nil
}

// sortMints orders a mint pair the way the program orders token 0 and
// token 1, byte-wise ascending.
func sortMints(a, b solana.PublicKey) (solana.PublicKey, solana.PublicKey, bool) {
	for i := 0; i < len(a); i++ {
		if a[i] < b[i] {
			return a, b, false
		}
		if a[i] > b[i] {
			return b, a, true
		}
	}
	return a, b, false
}
