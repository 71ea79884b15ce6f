// internal/dex/cpmm/locator.go
package cpmm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/blockchain"
	"github.com/openamm/cpmm-engine/internal/cluster"
)

const locatorOp = "pool_locator"

// poolIndex is the slice of the index client the locator needs.
type poolIndex interface {
	FetchPoolByID(ctx context.Context, poolID string) (*apiPoolInfo, error)
	FetchPoolsByMints(ctx context.Context, mint1, mint2 string, sortBy PoolSortField) ([]apiPoolInfo, error)
}

// PoolLocator resolves which pool an operation targets and loads its state.
// On clusters with an index service the state comes from the index; elsewhere
// it is decoded from chain accounts.
type PoolLocator struct {
	client blockchain.Client
	index  poolIndex
	cl     cluster.Cluster
	logger *zap.Logger
}

func NewPoolLocator(client blockchain.Client, index poolIndex, cl cluster.Cluster, logger *zap.Logger) *PoolLocator {
	return &PoolLocator{
		client: client,
		index:  index,
		cl:     cl,
		logger: logger.Named("pool-locator"),
	}
}

// ResolvePool picks the target pool. Precedence: explicit pool id, then a
// full mint pair, then the cluster default. A half-specified pair is a caller
// bug and never falls through to the default. The missing-identifier checks
// happen before any network traffic.
func (l *PoolLocator) ResolvePool(ctx context.Context, params ResolvePoolParams) (*PoolState, error) {
	hasMintPair := params.MintA != "" && params.MintB != ""
	defaultID, hasDefault := DefaultPoolID(l.cl)

	switch {
	case params.PoolID != "":
		poolID, err := parseKey("pool id", params.PoolID)
		if err != nil {
			return nil, newOpError(locatorOp, ErrCodePoolNotFound, err.Error())
		}
		return l.FetchPoolState(ctx, poolID)

	case hasMintPair:
		mintA, err := parseKey("mint", params.MintA)
		if err != nil {
			return nil, newOpError(locatorOp, ErrCodeInvalidMintAddresses, err.Error())
		}
		mintB, err := parseKey("mint", params.MintB)
		if err != nil {
			return nil, newOpError(locatorOp, ErrCodeInvalidMintAddresses, err.Error())
		}
		if mintA.Equals(mintB) {
			return nil, newOpError(locatorOp, ErrCodeInvalidMintAddresses, "mint pair must differ")
		}
		sortBy := SortByLiquidity
		if params.AutoSelectBest && params.SortBy != "" {
			sortBy = params.SortBy
		}
		return l.FindBestPool(ctx, mintA, mintB, sortBy)

	case params.MintA != "" || params.MintB != "":
		return nil, newOpError(locatorOp, ErrCodeMissingPoolIdentifier,
			"a mint pair search needs both mints; only one was supplied")

	case hasDefault:
		l.logger.Debug("No pool identifier supplied, using cluster default",
			zap.String("pool_id", defaultID.String()))
		return l.FetchPoolState(ctx, defaultID)

	default:
		return nil, newOpError(locatorOp, ErrCodeMissingPoolIdentifier,
			"no pool id or mint pair supplied and the cluster has no default pool")
	}
}

// FetchPoolState loads one pool's snapshot by id.
func (l *PoolLocator) FetchPoolState(ctx context.Context, poolID solana.PublicKey) (*PoolState, error) {
	if l.cl.HasIndexAPI() {
		return l.fetchIndexPool(ctx, poolID)
	}
	return l.fetchOnChainPool(ctx, poolID)
}

// FindBestPool searches pools holding the mint pair and returns the best
// candidate under the sort criterion.
func (l *PoolLocator) FindBestPool(ctx context.Context, mintA, mintB solana.PublicKey, sortBy PoolSortField) (*PoolState, error) {
	if l.cl.HasIndexAPI() {
		return l.findBestIndexPool(ctx, mintA, mintB, sortBy)
	}
	return l.findBestOnChainPool(ctx, mintA, mintB)
}

func (l *PoolLocator) fetchIndexPool(ctx context.Context, poolID solana.PublicKey) (*PoolState, error) {
	info, err := l.index.FetchPoolByID(ctx, poolID.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	if info == nil {
		return nil, newOpError(locatorOp, ErrCodePoolNotFound,
			fmt.Sprintf("pool %s is not known to the index", poolID))
	}
	return l.convertIndexPool(info)
}

func (l *PoolLocator) findBestIndexPool(ctx context.Context, mintA, mintB solana.PublicKey, sortBy PoolSortField) (*PoolState, error) {
	pools, err := l.index.FetchPoolsByMints(ctx, mintA.String(), mintB.String(), sortBy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}

	// The standard pool type covers other AMM programs too; keep only pools
	// owned by this cluster's program.
	programID := ProgramID(l.cl).String()
	candidates := pools[:0]
	for _, p := range pools {
		if p.ProgramID == programID {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, newOpError(locatorOp, ErrCodeNoPoolsFound,
			fmt.Sprintf("no pools hold the pair %s / %s", mintA, mintB))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if sortBy == SortByVolume24h {
			return candidates[i].Day.Volume > candidates[j].Day.Volume
		}
		return candidates[i].TVL > candidates[j].TVL
	})

	best := candidates[0]
	l.logger.Debug("Best pool selected",
		zap.String("pool_id", best.ID),
		zap.String("sort_by", string(sortBy)),
		zap.Int("candidates", len(candidates)))
	return l.convertIndexPool(&best)
}

// convertIndexPool maps an index response onto a PoolState, deriving the
// program accounts the index does not return.
func (l *PoolLocator) convertIndexPool(info *apiPoolInfo) (*PoolState, error) {
	programID := ProgramID(l.cl)
	if info.ProgramID != programID.String() {
		return nil, newOpError(locatorOp, ErrCodeInvalidPoolType,
			fmt.Sprintf("pool %s belongs to program %s", info.ID, info.ProgramID))
	}
	if info.Config == nil {
		return nil, newOpError(locatorOp, ErrCodeInvalidPoolType,
			fmt.Sprintf("pool %s has no fee config attached", info.ID))
	}

	poolID, err := parseKey("pool id", info.ID)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}
	mintA, err := parseKey("mint", info.MintA.Address)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}
	mintB, err := parseKey("mint", info.MintB.Address)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}
	programA, err := parseKey("token program", info.MintA.ProgramID)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}
	programB, err := parseKey("token program", info.MintB.ProgramID)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}
	lpMint, err := parseKey("lp mint", info.LpMint.Address)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}
	ammConfig, err := parseKey("amm config", info.Config.ID)
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed index response", err)
	}

	authority, err := deriveAuthority(programID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	vaultA, err := derivePoolVault(programID, poolID, mintA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	vaultB, err := derivePoolVault(programID, poolID, mintB)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	observation, err := deriveObservation(programID, poolID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}

	var openTime uint64
	if info.OpenTime != "" {
		if openTime, err = strconv.ParseUint(info.OpenTime, 10, 64); err != nil {
			return nil, wrapOpError(locatorOp, ErrCodePoolNotFound, "malformed open time", err)
		}
	}

	tradeFeeBps := info.Config.TradeFeeRate / (feeRateDenominator / slippageDenominator)
	if tradeFeeBps == 0 && info.FeeRate > 0 {
		tradeFeeBps = uint64(math.Round(info.FeeRate * slippageDenominator))
	}

	return &PoolState{
		ID:          poolID,
		ProgramID:   programID,
		TokenA:      TokenInfo{Mint: mintA, Decimals: info.MintA.Decimals, Program: programA},
		TokenB:      TokenInfo{Mint: mintB, Decimals: info.MintB.Decimals, Program: programB},
		LpMint:      lpMint,
		LpDecimals:  info.LpMint.Decimals,
		LpSupply:    uiAmountToRaw(info.LpAmount, info.LpMint.Decimals),
		AmmConfigID: ammConfig,
		Authority:   authority,
		VaultA:      vaultA,
		VaultB:      vaultB,
		Observation: observation,
		ReserveA:    uiAmountToRaw(info.MintAmountA, info.MintA.Decimals),
		ReserveB:    uiAmountToRaw(info.MintAmountB, info.MintB.Decimals),
		TradeFeeBps: tradeFeeBps,
		OpenTime:    openTime,
		TVL:         info.TVL,
		Volume24h:   info.Day.Volume,
	}, nil
}

func (l *PoolLocator) fetchOnChainPool(ctx context.Context, poolID solana.PublicKey) (*PoolState, error) {
	info, err := l.client.GetAccountInfo(ctx, poolID)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, newOpError(locatorOp, ErrCodePoolNotFound,
				fmt.Sprintf("pool account %s does not exist", poolID))
		}
		return nil, fmt.Errorf("%s: fetch pool account: %w", locatorOp, err)
	}
	if info == nil || info.Value == nil {
		return nil, newOpError(locatorOp, ErrCodePoolNotFound,
			fmt.Sprintf("pool account %s does not exist", poolID))
	}

	programID := ProgramID(l.cl)
	if !info.Value.Owner.Equals(programID) {
		return nil, newOpError(locatorOp, ErrCodeInvalidPoolType,
			fmt.Sprintf("account %s is owned by %s, not the pool program", poolID, info.Value.Owner))
	}

	layout, err := decodePoolState(info.Value.Data.GetBinary())
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodeInvalidPoolType, "undecodable pool account", err)
	}
	return l.buildOnChainState(ctx, poolID, layout)
}

// buildOnChainState completes a decoded pool layout with its fee tier and
// vault balances, fetched in a single round trip.
func (l *PoolLocator) buildOnChainState(ctx context.Context, poolID solana.PublicKey, layout *poolStateLayout) (*PoolState, error) {
	accounts, err := l.client.GetMultipleAccounts(ctx, []solana.PublicKey{
		layout.AmmConfig,
		layout.Token0Vault,
		layout.Token1Vault,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: fetch pool accounts: %w", locatorOp, err)
	}
	if len(accounts.Value) != 3 || accounts.Value[0] == nil || accounts.Value[1] == nil || accounts.Value[2] == nil {
		return nil, newOpError(locatorOp, ErrCodePoolNotFound,
			fmt.Sprintf("pool %s is missing its config or vault accounts", poolID))
	}

	cfg, err := decodeAmmConfig(accounts.Value[0].Data.GetBinary())
	if err != nil {
		return nil, wrapOpError(locatorOp, ErrCodeInvalidPoolType, "undecodable amm config", err)
	}
	vault0Amount, err := splTokenAmount(accounts.Value[1].Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	vault1Amount, err := splTokenAmount(accounts.Value[2].Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	vault0Mint, err := splTokenMint(accounts.Value[1].Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	vault1Mint, err := splTokenMint(accounts.Value[2].Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}
	if !vault0Mint.Equals(layout.Token0Mint) || !vault1Mint.Equals(layout.Token1Mint) {
		return nil, newOpError(locatorOp, ErrCodeInvalidPoolType,
			fmt.Sprintf("pool %s vault mints do not match its token mints", poolID))
	}

	authority, err := deriveAuthority(ProgramID(l.cl))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locatorOp, err)
	}

	// Vault balances include uncollected protocol and fund fees, which are
	// not part of the tradeable reserves.
	reserve0 := subtractFees(vault0Amount, layout.ProtocolFeesToken0, layout.FundFeesToken0)
	reserve1 := subtractFees(vault1Amount, layout.ProtocolFeesToken1, layout.FundFeesToken1)

	return &PoolState{
		ID:          poolID,
		ProgramID:   ProgramID(l.cl),
		TokenA:      TokenInfo{Mint: layout.Token0Mint, Decimals: layout.Mint0Decimals, Program: layout.Token0Program},
		TokenB:      TokenInfo{Mint: layout.Token1Mint, Decimals: layout.Mint1Decimals, Program: layout.Token1Program},
		LpMint:      layout.LpMint,
		LpDecimals:  layout.LpMintDecimals,
		LpSupply:    layout.LpSupply,
		AmmConfigID: layout.AmmConfig,
		Authority:   authority,
		VaultA:      layout.Token0Vault,
		VaultB:      layout.Token1Vault,
		Observation: layout.ObservationKey,
		ReserveA:    reserve0,
		ReserveB:    reserve1,
		TradeFeeBps: cfg.TradeFeeRate / (feeRateDenominator / slippageDenominator),
		OpenTime:    layout.OpenTime,
		Status:      layout.Status,
		live:        true,
	}, nil
}

// LiveReserves guarantees a snapshot carries instantaneous chain reserves.
// Index snapshots lag the chain, so those are re-read from the pool account;
// a snapshot already decoded from chain is returned unchanged.
func (l *PoolLocator) LiveReserves(ctx context.Context, state *PoolState) (*PoolState, error) {
	if state.live {
		return state, nil
	}
	fresh, err := l.fetchOnChainPool(ctx, state.ID)
	if err != nil {
		return nil, err
	}
	// Index metrics have no chain source; carry them over.
	fresh.TVL = state.TVL
	fresh.Volume24h = state.Volume24h
	return fresh, nil
}

// findBestOnChainPool scans program accounts for the pair. Pools store the
// byte-wise smaller mint as token 0, so a single ordered query suffices; with
// no index metrics available the candidate with the largest LP supply wins.
func (l *PoolLocator) findBestOnChainPool(ctx context.Context, mintA, mintB solana.PublicKey) (*PoolState, error) {
	mint0, mint1, _ := sortMints(mintA, mintB)

	opts := &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: anchorAccountDiscriminator("PoolState")}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: poolStateToken0MintOffset, Bytes: mint0.Bytes()}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: poolStateToken1MintOffset, Bytes: mint1.Bytes()}},
		},
	}

	result, err := l.client.GetProgramAccountsWithOpts(ctx, ProgramID(l.cl), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: search pools: %w", locatorOp, err)
	}

	type candidate struct {
		id     solana.PublicKey
		layout *poolStateLayout
	}
	candidates := make([]candidate, 0, len(result))
	for _, keyed := range result {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		layout, err := decodePoolState(keyed.Account.Data.GetBinary())
		if err != nil {
			l.logger.Debug("Skipping undecodable pool account",
				zap.String("account", keyed.Pubkey.String()),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, candidate{id: keyed.Pubkey, layout: layout})
	}
	if len(candidates) == 0 {
		return nil, newOpError(locatorOp, ErrCodeNoPoolsFound,
			fmt.Sprintf("no pools hold the pair %s / %s", mintA, mintB))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].layout.LpSupply > candidates[j].layout.LpSupply
	})

	best := candidates[0]
	l.logger.Debug("Best pool selected from chain scan",
		zap.String("pool_id", best.id.String()),
		zap.Int("candidates", len(candidates)))
	return l.buildOnChainState(ctx, best.id, best.layout)
}

func subtractFees(vaultAmount, protocolFees, fundFees uint64) uint64 {
	fees := protocolFees + fundFees
	if vaultAmount < fees {
		return 0
	}
	return vaultAmount - fees
}
