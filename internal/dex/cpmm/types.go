// internal/dex/cpmm/types.go
package cpmm

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TokenInfo describes one side of a pool: the mint, its declared decimal
// precision, and the token program owning the mint.
type TokenInfo struct {
	Mint     solana.PublicKey
	Decimals uint8
	Program  solana.PublicKey
}

// PoolState is a read-only snapshot of one pool, valid for a single
// operation. Reserves and the fee rate always come from the same snapshot;
// callers must not mix fields across snapshots.
type PoolState struct {
	ID        solana.PublicKey
	ProgramID solana.PublicKey

	TokenA TokenInfo // token 0 of the pool
	TokenB TokenInfo // token 1 of the pool

	LpMint     solana.PublicKey
	LpDecimals uint8
	LpSupply   uint64

	AmmConfigID solana.PublicKey
	Authority   solana.PublicKey
	VaultA      solana.PublicKey
	VaultB      solana.PublicKey
	Observation solana.PublicKey

	ReserveA uint64
	ReserveB uint64

	TradeFeeBps uint64

	OpenTime uint64
	Status   uint8

	// Index metrics. Zero when the snapshot came from a direct account read.
	TVL       float64
	Volume24h float64

	// live marks reserves read from chain accounts rather than the index.
	live bool
}

// HasMint reports whether the mint is one of the pool's two sides.
func (p *PoolState) HasMint(mint solana.PublicKey) bool {
	return p.TokenA.Mint.Equals(mint) || p.TokenB.Mint.Equals(mint)
}

// IsTokenA reports which side the mint occupies.
func (p *PoolState) IsTokenA(mint solana.PublicKey) bool {
	return p.TokenA.Mint.Equals(mint)
}

// FeeConfig is one protocol fee tier. Rates are in parts per million, the
// unit the program stores; ID is the tier's derived config account, which
// differs per cluster.
type FeeConfig struct {
	ID              solana.PublicKey
	Index           uint16
	TradeFeeRate    uint64
	ProtocolFeeRate uint64
	FundFeeRate     uint64
	CreatePoolFee   uint64
}

// TradeFeeBps converts the stored parts-per-million rate to basis points.
func (f FeeConfig) TradeFeeBps() uint64 {
	return f.TradeFeeRate / (feeRateDenominator / slippageDenominator)
}

// PoolSortField orders candidate pools during best-pool selection.
type PoolSortField string

const (
	SortByLiquidity PoolSortField = "liquidity"
	SortByVolume24h PoolSortField = "volume24h"
)

// OperationResult is the common shape every operation returns.
type OperationResult struct {
	TxID        string
	PoolID      string
	Timestamp   time.Time
	Cluster     string
	ExplorerURL string
	OperationID string
}

type CreatePoolResult struct {
	OperationResult
	LpMint  string
	VaultA  string
	VaultB  string
	AmountA uint64
	AmountB uint64
}

type AddLiquidityResult struct {
	OperationResult
	BaseIn        bool
	InputAmount   uint64
	PairAmount    uint64
	MinPairAmount uint64
	LpTokens      uint64
}

type RemoveLiquidityResult struct {
	OperationResult
	LpBurned   uint64
	MinAmountA uint64
	MinAmountB uint64
}

type SwapResult struct {
	OperationResult
	InputMint      string
	OutputMint     string
	BaseIn         bool
	AmountIn       uint64
	AmountOut      uint64
	MinAmountOut   uint64
	MaxAmountIn    uint64
	Fee            uint64
	PriceImpactBps uint64
}

type LockLiquidityResult struct {
	OperationResult
	LockedLpAmount uint64
	FeeNftMint     string
}

type HarvestLockResult struct {
	OperationResult
	FeeNftMint  string
	LpFeeAmount uint64
}

// CreatePoolParams carries the inputs for pool creation. Amounts are in
// human-readable units of their mint.
type CreatePoolParams struct {
	MintA          string
	MintB          string
	AmountA        decimal.Decimal
	AmountB        decimal.Decimal
	StartTime      time.Time
	FeeConfigIndex int
}

type AddLiquidityParams struct {
	PoolID         string
	MintA          string
	MintB          string
	InputAmount    decimal.Decimal
	SlippageBps    uint64
	BaseIn         bool
	AutoSelectBest bool
	SortBy         PoolSortField
}

type RemoveLiquidityParams struct {
	PoolID string
	// LpAmount zero means the caller's full LP balance.
	LpAmount    decimal.Decimal
	SlippageBps uint64
}

type SwapExactInParams struct {
	PoolID      string
	InputMint   string
	Amount      decimal.Decimal
	SlippageBps uint64
}

type SwapExactOutParams struct {
	PoolID      string
	OutputMint  string
	Amount      decimal.Decimal
	SlippageBps uint64
}

type LockLiquidityParams struct {
	PoolID string
	// LpAmount zero locks the caller's full LP balance.
	LpAmount     decimal.Decimal
	WithMetadata bool
}

type HarvestLockParams struct {
	PoolID     string
	FeeNftMint string
	// LpFeeAmount zero claims everything accrued.
	LpFeeAmount decimal.Decimal
}

// ResolvePoolParams feeds pool resolution: an explicit id wins, then a full
// mint pair, then the cluster default.
type ResolvePoolParams struct {
	PoolID         string
	MintA          string
	MintB          string
	AutoSelectBest bool
	SortBy         PoolSortField
}
