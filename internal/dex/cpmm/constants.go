// internal/dex/cpmm/constants.go
package cpmm

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/openamm/cpmm-engine/internal/cluster"
)

// Program deployments per cluster.
var (
	mainnetProgramID = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	devnetProgramID  = solana.MustPublicKeyFromBase58("CPMDWBwJDtYax9qW7AyRuVC19Cc4L4Vcy4n2BHAbHkCW")

	mainnetLockProgramID = solana.MustPublicKeyFromBase58("LockrWmn6K5twhz3y9w1dQERbmgSaRkfnTeTKbpofwE")
	devnetLockProgramID  = solana.MustPublicKeyFromBase58("DLockwT7X7sxtLmGH9g5kmfcjaBtncdbUmi738m5bvQC")

	mainnetCreatePoolFeeReceiver = solana.MustPublicKeyFromBase58("DNXgeM9EiiaAbaWvwjHj9fQQLAX5ZsfHyvmYUNRAdNC8")
	devnetCreatePoolFeeReceiver  = solana.MustPublicKeyFromBase58("G11FKBRaAkHAKuLCgLM6K6NUc9rTjPAznRCjZifrTQe2")

	// Fallback pool when the caller supplies neither an id nor a mint pair.
	// Only the primary network carries one.
	defaultMainnetPoolID = solana.MustPublicKeyFromBase58("3ELLbDZkimZSpnWoWVAfDzeG24yi2LC4sB35ttfNCoEi")
)

var (
	token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	memoProgramID      = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	metadataProgramID  = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// PDA seeds of the pool program.
const (
	authSeed        = "vault_and_lp_mint_auth_seed"
	ammConfigSeed   = "amm_config"
	poolSeed        = "pool"
	poolVaultSeed   = "pool_vault"
	poolLpMintSeed  = "pool_lp_mint"
	observationSeed = "observation"
)

// PDA seeds of the liquidity lock program.
const (
	lockAuthSeed        = "lock_cp_authority_seed"
	lockedLiquiditySeed = "locked_liquidity"
)

const (
	// indexAPIBaseURL is the off-chain pool index, available on mainnet only.
	indexAPIBaseURL = "https://api-v3.raydium.io"

	// feeConfigTTL bounds how long fetched fee configs are served from cache.
	feeConfigTTL = 5 * time.Minute

	// feeRateDenominator converts program fee rates (parts per million).
	feeRateDenominator = 1_000_000

	// slippageDenominator converts basis points.
	slippageDenominator = 10_000
)

// ProgramID returns the pool program deployed on the given cluster.
func ProgramID(cl cluster.Cluster) solana.PublicKey {
	switch cl {
	case cluster.Devnet:
		return devnetProgramID
	default:
		return mainnetProgramID
	}
}

// LockProgramID returns the liquidity lock program for the cluster.
func LockProgramID(cl cluster.Cluster) solana.PublicKey {
	switch cl {
	case cluster.Devnet:
		return devnetLockProgramID
	default:
		return mainnetLockProgramID
	}
}

// CreatePoolFeeReceiver returns the protocol account collecting the fixed
// pool-creation fee on the cluster.
func CreatePoolFeeReceiver(cl cluster.Cluster) solana.PublicKey {
	switch cl {
	case cluster.Devnet:
		return devnetCreatePoolFeeReceiver
	default:
		return mainnetCreatePoolFeeReceiver
	}
}

// DefaultPoolID returns the fallback pool for the cluster. ok is false where
// no fallback is defined.
func DefaultPoolID(cl cluster.Cluster) (solana.PublicKey, bool) {
	switch cl {
	case cluster.Mainnet:
		return defaultMainnetPoolID, true
	default:
		return solana.PublicKey{}, false
	}
}
