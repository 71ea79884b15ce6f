// internal/dex/cpmm/locator_test.go
package cpmm

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openamm/cpmm-engine/internal/cluster"
)

func buildAmmConfigData(t *testing.T, index uint16, tradeFeeRate uint64) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(anchorAccountDiscriminator("AmmConfig"))
	buf.Write([]byte{255, 0}) // bump, disable_create_pool
	require.NoError(t, binary.Write(buf, binary.LittleEndian, index))
	for _, v := range []uint64{tradeFeeRate, 120_000, 40_000, 150_000_000} {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
	}
	buf.Write(make([]byte, 64))  // owners
	buf.Write(make([]byte, 128)) // padding
	return buf.Bytes()
}

// testIndexPool returns a complete index entry owned by the given program.
func testIndexPool(program solana.PublicKey) apiPoolInfo {
	return apiPoolInfo{
		Type:        "Standard",
		ProgramID:   program.String(),
		ID:          solana.NewWallet().PublicKey().String(),
		MintA:       apiMint{Address: solana.NewWallet().PublicKey().String(), ProgramID: solana.TokenProgramID.String(), Decimals: 9},
		MintB:       apiMint{Address: solana.NewWallet().PublicKey().String(), ProgramID: solana.TokenProgramID.String(), Decimals: 6},
		MintAmountA: 12.5,
		MintAmountB: 30_000,
		FeeRate:     0.0025,
		OpenTime:    "1700000000",
		TVL:         52_340.5,
		Day:         apiDayStats{Volume: 10_250.75},
		LpMint:      apiMint{Address: solana.NewWallet().PublicKey().String(), Decimals: 9},
		LpAmount:    1000,
		Config: &apiPoolConfig{
			ID:           solana.NewWallet().PublicKey().String(),
			Index:        0,
			TradeFeeRate: 2500,
		},
	}
}

func TestResolvePoolRequiresIdentifier(t *testing.T) {
	locator := NewPoolLocator(new(MockChainClient), new(MockPoolIndex), cluster.Devnet, zap.NewNop())

	_, err := locator.ResolvePool(context.Background(), ResolvePoolParams{})
	require.Error(t, err)
	assert.Equal(t, ErrCodeMissingPoolIdentifier, ErrorCode(err))

	// Half a mint pair does not count as an identifier.
	_, err = locator.ResolvePool(context.Background(), ResolvePoolParams{
		MintA: solana.NewWallet().PublicKey().String(),
	})
	require.Error(t, err)
	assert.Equal(t, ErrCodeMissingPoolIdentifier, ErrorCode(err))
}

func TestResolvePoolHalfPairNeverFallsBackToDefault(t *testing.T) {
	// Mainnet has a default pool, but a lone mint is a caller bug, not an
	// intent to trade the default. No network call is allowed.
	index := new(MockPoolIndex)
	client := new(MockChainClient)
	locator := NewPoolLocator(client, index, cluster.Mainnet, zap.NewNop())

	for name, params := range map[string]ResolvePoolParams{
		"only first mint":  {MintA: solana.NewWallet().PublicKey().String()},
		"only second mint": {MintB: solana.NewWallet().PublicKey().String()},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := locator.ResolvePool(context.Background(), params)
			require.Error(t, err)
			assert.Equal(t, ErrCodeMissingPoolIdentifier, ErrorCode(err))
		})
	}

	index.AssertNotCalled(t, "FetchPoolByID", mock.Anything, mock.Anything)
	index.AssertNotCalled(t, "FetchPoolsByMints", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "GetAccountInfo", mock.Anything, mock.Anything)
}

func TestResolvePoolRejectsMalformedID(t *testing.T) {
	locator := NewPoolLocator(new(MockChainClient), new(MockPoolIndex), cluster.Mainnet, zap.NewNop())

	_, err := locator.ResolvePool(context.Background(), ResolvePoolParams{PoolID: "not-a-key"})
	require.Error(t, err)
	assert.Equal(t, ErrCodePoolNotFound, ErrorCode(err))
}

func TestResolvePoolRejectsBadMintPair(t *testing.T) {
	mint := solana.NewWallet().PublicKey().String()
	cases := []struct {
		name  string
		mintA string
		mintB string
	}{
		{"malformed first mint", "not-a-key", mint},
		{"malformed second mint", mint, "not-a-key"},
		{"identical mints", mint, mint},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			locator := NewPoolLocator(new(MockChainClient), new(MockPoolIndex), cluster.Mainnet, zap.NewNop())

			_, err := locator.ResolvePool(context.Background(), ResolvePoolParams{MintA: tc.mintA, MintB: tc.mintB})
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidMintAddresses, ErrorCode(err))
		})
	}
}

func TestResolvePoolPrefersExplicitID(t *testing.T) {
	program := ProgramID(cluster.Mainnet)
	info := testIndexPool(program)

	index := new(MockPoolIndex)
	index.On("FetchPoolByID", mock.Anything, info.ID).Return(&info, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	state, err := locator.ResolvePool(context.Background(), ResolvePoolParams{
		PoolID: info.ID,
		MintA:  info.MintA.Address,
		MintB:  info.MintB.Address,
	})
	require.NoError(t, err)
	assert.Equal(t, info.ID, state.ID.String())

	index.AssertExpectations(t)
	index.AssertNotCalled(t, "FetchPoolsByMints", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolvePoolFallsBackToDefault(t *testing.T) {
	defaultID, ok := DefaultPoolID(cluster.Mainnet)
	require.True(t, ok)

	info := testIndexPool(ProgramID(cluster.Mainnet))
	info.ID = defaultID.String()

	index := new(MockPoolIndex)
	index.On("FetchPoolByID", mock.Anything, defaultID.String()).Return(&info, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	state, err := locator.ResolvePool(context.Background(), ResolvePoolParams{})
	require.NoError(t, err)
	assert.Equal(t, defaultID, state.ID)
	index.AssertExpectations(t)
}

func TestFetchPoolStateFromIndex(t *testing.T) {
	program := ProgramID(cluster.Mainnet)
	info := testIndexPool(program)
	poolID := solana.MustPublicKeyFromBase58(info.ID)
	mintA := solana.MustPublicKeyFromBase58(info.MintA.Address)
	mintB := solana.MustPublicKeyFromBase58(info.MintB.Address)

	index := new(MockPoolIndex)
	index.On("FetchPoolByID", mock.Anything, info.ID).Return(&info, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	state, err := locator.FetchPoolState(context.Background(), poolID)
	require.NoError(t, err)

	assert.Equal(t, poolID, state.ID)
	assert.Equal(t, program, state.ProgramID)
	assert.Equal(t, mintA, state.TokenA.Mint)
	assert.Equal(t, uint8(9), state.TokenA.Decimals)
	assert.Equal(t, solana.TokenProgramID, state.TokenA.Program)
	assert.Equal(t, mintB, state.TokenB.Mint)
	assert.Equal(t, uint8(6), state.TokenB.Decimals)
	assert.Equal(t, info.LpMint.Address, state.LpMint.String())
	assert.Equal(t, info.Config.ID, state.AmmConfigID.String())

	// UI amounts scale back to raw units by mint decimals.
	assert.Equal(t, uint64(12_500_000_000), state.ReserveA)
	assert.Equal(t, uint64(30_000_000_000), state.ReserveB)
	assert.Equal(t, uint64(1_000_000_000_000), state.LpSupply)

	assert.Equal(t, uint64(25), state.TradeFeeBps)
	assert.Equal(t, uint64(1_700_000_000), state.OpenTime)
	assert.Equal(t, 52_340.5, state.TVL)
	assert.Equal(t, 10_250.75, state.Volume24h)

	authority, err := deriveAuthority(program)
	require.NoError(t, err)
	assert.Equal(t, authority, state.Authority)

	vaultA, err := derivePoolVault(program, poolID, mintA)
	require.NoError(t, err)
	assert.Equal(t, vaultA, state.VaultA)

	vaultB, err := derivePoolVault(program, poolID, mintB)
	require.NoError(t, err)
	assert.Equal(t, vaultB, state.VaultB)

	observation, err := deriveObservation(program, poolID)
	require.NoError(t, err)
	assert.Equal(t, observation, state.Observation)
}

func TestFetchPoolStateFromIndexUnknown(t *testing.T) {
	poolID := solana.NewWallet().PublicKey()

	index := new(MockPoolIndex)
	index.On("FetchPoolByID", mock.Anything, poolID.String()).Return(nil, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	_, err := locator.FetchPoolState(context.Background(), poolID)
	require.Error(t, err)
	assert.Equal(t, ErrCodePoolNotFound, ErrorCode(err))
}

func TestFetchPoolStateFromIndexRejectsForeignPool(t *testing.T) {
	foreign := testIndexPool(solana.NewWallet().PublicKey())
	noConfig := testIndexPool(ProgramID(cluster.Mainnet))
	noConfig.Config = nil

	for name, info := range map[string]apiPoolInfo{
		"foreign program": foreign,
		"missing config":  noConfig,
	} {
		t.Run(name, func(t *testing.T) {
			poolID := solana.MustPublicKeyFromBase58(info.ID)

			index := new(MockPoolIndex)
			index.On("FetchPoolByID", mock.Anything, info.ID).Return(&info, nil)

			locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
			_, err := locator.FetchPoolState(context.Background(), poolID)
			require.Error(t, err)
			assert.Equal(t, ErrCodeInvalidPoolType, ErrorCode(err))
		})
	}
}

func TestFindBestIndexPoolByVolume(t *testing.T) {
	program := ProgramID(cluster.Mainnet)
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	// The foreign pool has the best numbers but belongs to another program.
	foreign := testIndexPool(solana.NewWallet().PublicKey())
	foreign.TVL = 1_000_000
	foreign.Day.Volume = 1_000_000

	lowVolume := testIndexPool(program)
	lowVolume.TVL = 90_000
	lowVolume.Day.Volume = 100

	highVolume := testIndexPool(program)
	highVolume.TVL = 5_000
	highVolume.Day.Volume = 75_000

	index := new(MockPoolIndex)
	index.On("FetchPoolsByMints", mock.Anything, mintA.String(), mintB.String(), SortByVolume24h).
		Return([]apiPoolInfo{foreign, lowVolume, highVolume}, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	state, err := locator.ResolvePool(context.Background(), ResolvePoolParams{
		MintA:          mintA.String(),
		MintB:          mintB.String(),
		AutoSelectBest: true,
		SortBy:         SortByVolume24h,
	})
	require.NoError(t, err)
	assert.Equal(t, highVolume.ID, state.ID.String())
	index.AssertExpectations(t)
}

func TestResolvePoolMintPairDefaultsToLiquidity(t *testing.T) {
	program := ProgramID(cluster.Mainnet)
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	deepPool := testIndexPool(program)
	deepPool.TVL = 90_000
	shallowPool := testIndexPool(program)
	shallowPool.TVL = 5_000
	shallowPool.Day.Volume = 1_000_000

	// Without AutoSelectBest the sort preference is ignored.
	index := new(MockPoolIndex)
	index.On("FetchPoolsByMints", mock.Anything, mintA.String(), mintB.String(), SortByLiquidity).
		Return([]apiPoolInfo{shallowPool, deepPool}, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	state, err := locator.ResolvePool(context.Background(), ResolvePoolParams{
		MintA:  mintA.String(),
		MintB:  mintB.String(),
		SortBy: SortByVolume24h,
	})
	require.NoError(t, err)
	assert.Equal(t, deepPool.ID, state.ID.String())
	index.AssertExpectations(t)
}

func TestFindBestIndexPoolNoCandidates(t *testing.T) {
	foreign := testIndexPool(solana.NewWallet().PublicKey())

	index := new(MockPoolIndex)
	index.On("FetchPoolsByMints", mock.Anything, mock.Anything, mock.Anything, SortByLiquidity).
		Return([]apiPoolInfo{foreign}, nil)

	locator := NewPoolLocator(new(MockChainClient), index, cluster.Mainnet, zap.NewNop())
	_, err := locator.FindBestPool(context.Background(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), SortByLiquidity)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoPoolsFound, ErrorCode(err))
}

func TestFetchPoolStateOnChain(t *testing.T) {
	program := ProgramID(cluster.Devnet)
	poolID := solana.NewWallet().PublicKey()
	authority, err := deriveAuthority(program)
	require.NoError(t, err)

	layout := &poolStateLayout{
		AmmConfig:          solana.NewWallet().PublicKey(),
		PoolCreator:        solana.NewWallet().PublicKey(),
		Token0Vault:        solana.NewWallet().PublicKey(),
		Token1Vault:        solana.NewWallet().PublicKey(),
		LpMint:             solana.NewWallet().PublicKey(),
		Token0Mint:         solana.NewWallet().PublicKey(),
		Token1Mint:         solana.NewWallet().PublicKey(),
		Token0Program:      solana.TokenProgramID,
		Token1Program:      solana.TokenProgramID,
		ObservationKey:     solana.NewWallet().PublicKey(),
		AuthBump:           254,
		LpMintDecimals:     9,
		Mint0Decimals:      9,
		Mint1Decimals:      6,
		LpSupply:           5_000_000_000,
		ProtocolFeesToken0: 1_000,
		ProtocolFeesToken1: 0,
		FundFeesToken0:     500,
		FundFeesToken1:     250,
		OpenTime:           1_700_000_000,
	}

	client := new(MockChainClient)
	client.On("GetAccountInfo", mock.Anything, poolID).
		Return(accountResult(program, buildPoolStateData(t, layout)), nil)
	client.On("GetMultipleAccounts", mock.Anything,
		[]solana.PublicKey{layout.AmmConfig, layout.Token0Vault, layout.Token1Vault}).
		Return(multipleAccountsResult(
			buildAmmConfigData(t, 0, 2500),
			buildTokenAccountData(layout.Token0Mint, authority, 1_000_000),
			buildTokenAccountData(layout.Token1Mint, authority, 800_000),
		), nil)

	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())
	state, err := locator.FetchPoolState(context.Background(), poolID)
	require.NoError(t, err)

	assert.Equal(t, poolID, state.ID)
	assert.Equal(t, program, state.ProgramID)
	assert.Equal(t, layout.Token0Mint, state.TokenA.Mint)
	assert.Equal(t, layout.Token1Mint, state.TokenB.Mint)
	assert.Equal(t, layout.LpMint, state.LpMint)
	assert.Equal(t, layout.LpSupply, state.LpSupply)
	assert.Equal(t, layout.AmmConfig, state.AmmConfigID)
	assert.Equal(t, authority, state.Authority)
	assert.Equal(t, layout.Token0Vault, state.VaultA)
	assert.Equal(t, layout.Token1Vault, state.VaultB)
	assert.Equal(t, layout.ObservationKey, state.Observation)

	// Tradeable reserves exclude accrued protocol and fund fees.
	assert.Equal(t, uint64(998_500), state.ReserveA)
	assert.Equal(t, uint64(799_750), state.ReserveB)

	assert.Equal(t, uint64(25), state.TradeFeeBps)
	assert.Equal(t, uint64(1_700_000_000), state.OpenTime)
	client.AssertExpectations(t)
}

func TestFetchPoolStateOnChainNotFound(t *testing.T) {
	poolID := solana.NewWallet().PublicKey()

	client := new(MockChainClient)
	client.On("GetAccountInfo", mock.Anything, poolID).Return(nil, rpc.ErrNotFound).Once()
	client.On("GetAccountInfo", mock.Anything, poolID).Return(&rpc.GetAccountInfoResult{}, nil).Once()

	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())

	_, err := locator.FetchPoolState(context.Background(), poolID)
	require.Error(t, err)
	assert.Equal(t, ErrCodePoolNotFound, ErrorCode(err))

	_, err = locator.FetchPoolState(context.Background(), poolID)
	require.Error(t, err)
	assert.Equal(t, ErrCodePoolNotFound, ErrorCode(err))
}

func TestFetchPoolStateOnChainRejectsForeignAccount(t *testing.T) {
	poolID := solana.NewWallet().PublicKey()
	layoutData := buildPoolStateData(t, &poolStateLayout{})

	client := new(MockChainClient)
	// Right layout, wrong owner.
	client.On("GetAccountInfo", mock.Anything, poolID).
		Return(accountResult(solana.TokenProgramID, layoutData), nil).Once()
	// Right owner, undecodable data.
	client.On("GetAccountInfo", mock.Anything, poolID).
		Return(accountResult(ProgramID(cluster.Devnet), []byte{1, 2, 3}), nil).Once()

	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())

	_, err := locator.FetchPoolState(context.Background(), poolID)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidPoolType, ErrorCode(err))

	_, err = locator.FetchPoolState(context.Background(), poolID)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidPoolType, ErrorCode(err))
}

func TestFindBestOnChainPool(t *testing.T) {
	program := ProgramID(cluster.Devnet)
	authority, err := deriveAuthority(program)
	require.NoError(t, err)

	mintLowBytes := make([]byte, 32)
	mintLowBytes[0] = 1
	mintHighBytes := make([]byte, 32)
	mintHighBytes[0] = 2
	mintLow := solana.PublicKeyFromBytes(mintLowBytes)
	mintHigh := solana.PublicKeyFromBytes(mintHighBytes)

	newLayout := func(lpSupply uint64) *poolStateLayout {
		return &poolStateLayout{
			AmmConfig:      solana.NewWallet().PublicKey(),
			Token0Vault:    solana.NewWallet().PublicKey(),
			Token1Vault:    solana.NewWallet().PublicKey(),
			LpMint:         solana.NewWallet().PublicKey(),
			Token0Mint:     mintLow,
			Token1Mint:     mintHigh,
			Token0Program:  solana.TokenProgramID,
			Token1Program:  solana.TokenProgramID,
			ObservationKey: solana.NewWallet().PublicKey(),
			Mint0Decimals:  9,
			Mint1Decimals:  6,
			LpSupply:       lpSupply,
		}
	}

	shallowID := solana.NewWallet().PublicKey()
	deepID := solana.NewWallet().PublicKey()
	shallow := newLayout(10_000)
	deep := newLayout(9_000_000_000)

	scan := rpc.GetProgramAccountsResult{
		{Pubkey: shallowID, Account: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(buildPoolStateData(t, shallow))}},
		// Corrupted entries are skipped, not fatal.
		{Pubkey: solana.NewWallet().PublicKey(), Account: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes([]byte{9, 9, 9})}},
		{Pubkey: deepID, Account: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(buildPoolStateData(t, deep))}},
	}

	var gotOpts *rpc.GetProgramAccountsOpts
	client := new(MockChainClient)
	client.On("GetProgramAccountsWithOpts", mock.Anything, program, mock.Anything).
		Run(func(args mock.Arguments) {
			gotOpts = args.Get(2).(*rpc.GetProgramAccountsOpts)
		}).
		Return(scan, nil)
	client.On("GetMultipleAccounts", mock.Anything,
		[]solana.PublicKey{deep.AmmConfig, deep.Token0Vault, deep.Token1Vault}).
		Return(multipleAccountsResult(
			buildAmmConfigData(t, 0, 2500),
			buildTokenAccountData(mintLow, authority, 700_000),
			buildTokenAccountData(mintHigh, authority, 300_000),
		), nil)

	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())

	// Mints arrive in the wrong byte order; the query must still be ordered.
	state, err := locator.FindBestPool(context.Background(), mintHigh, mintLow, SortByLiquidity)
	require.NoError(t, err)
	assert.Equal(t, deepID, state.ID)
	assert.Equal(t, uint64(9_000_000_000), state.LpSupply)

	require.NotNil(t, gotOpts)
	require.Len(t, gotOpts.Filters, 3)
	assert.EqualValues(t, anchorAccountDiscriminator("PoolState"), gotOpts.Filters[0].Memcmp.Bytes)
	assert.EqualValues(t, 0, gotOpts.Filters[0].Memcmp.Offset)
	assert.EqualValues(t, mintLow.Bytes(), gotOpts.Filters[1].Memcmp.Bytes)
	assert.EqualValues(t, poolStateToken0MintOffset, gotOpts.Filters[1].Memcmp.Offset)
	assert.EqualValues(t, mintHigh.Bytes(), gotOpts.Filters[2].Memcmp.Bytes)
	assert.EqualValues(t, poolStateToken1MintOffset, gotOpts.Filters[2].Memcmp.Offset)
	client.AssertExpectations(t)
}

func TestFindBestOnChainPoolEmpty(t *testing.T) {
	client := new(MockChainClient)
	client.On("GetProgramAccountsWithOpts", mock.Anything, mock.Anything, mock.Anything).
		Return(rpc.GetProgramAccountsResult{}, nil)

	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())
	_, err := locator.FindBestPool(context.Background(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), SortByLiquidity)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNoPoolsFound, ErrorCode(err))
}

func TestSubtractFees(t *testing.T) {
	assert.Equal(t, uint64(40), subtractFees(100, 30, 30))
	assert.Equal(t, uint64(0), subtractFees(10, 20, 0))
	assert.Equal(t, uint64(0), subtractFees(5, 3, 3))
	assert.Equal(t, uint64(7), subtractFees(7, 0, 0))
}

func TestLiveReservesRefreshesIndexState(t *testing.T) {
	program := ProgramID(cluster.Mainnet)
	poolID := solana.NewWallet().PublicKey()
	authority, err := deriveAuthority(program)
	require.NoError(t, err)

	layout := &poolStateLayout{
		AmmConfig:      solana.NewWallet().PublicKey(),
		Token0Vault:    solana.NewWallet().PublicKey(),
		Token1Vault:    solana.NewWallet().PublicKey(),
		LpMint:         solana.NewWallet().PublicKey(),
		Token0Mint:     solana.NewWallet().PublicKey(),
		Token1Mint:     solana.NewWallet().PublicKey(),
		Token0Program:  solana.TokenProgramID,
		Token1Program:  solana.TokenProgramID,
		ObservationKey: solana.NewWallet().PublicKey(),
		Mint0Decimals:  9,
		Mint1Decimals:  6,
		LpSupply:       5_000_000_000,
	}

	client := new(MockChainClient)
	client.On("GetAccountInfo", mock.Anything, poolID).
		Return(accountResult(program, buildPoolStateData(t, layout)), nil)
	client.On("GetMultipleAccounts", mock.Anything,
		[]solana.PublicKey{layout.AmmConfig, layout.Token0Vault, layout.Token1Vault}).
		Return(multipleAccountsResult(
			buildAmmConfigData(t, 0, 2500),
			buildTokenAccountData(layout.Token0Mint, authority, 42_000_000),
			buildTokenAccountData(layout.Token1Mint, authority, 13_000_000),
		), nil)

	locator := NewPoolLocator(client, new(MockPoolIndex), cluster.Mainnet, zap.NewNop())

	stale := &PoolState{ID: poolID, ReserveA: 1, ReserveB: 1, TVL: 52_340.5, Volume24h: 10_250.75}
	state, err := locator.LiveReserves(context.Background(), stale)
	require.NoError(t, err)

	assert.Equal(t, uint64(42_000_000), state.ReserveA)
	assert.Equal(t, uint64(13_000_000), state.ReserveB)
	assert.Equal(t, uint64(25), state.TradeFeeBps)
	// Index metrics have no chain source and must survive the refresh.
	assert.Equal(t, 52_340.5, state.TVL)
	assert.Equal(t, 10_250.75, state.Volume24h)
	client.AssertExpectations(t)
}

func TestLiveReservesKeepsChainState(t *testing.T) {
	client := new(MockChainClient)
	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())

	chainState := &PoolState{ID: solana.NewWallet().PublicKey(), ReserveA: 7, live: true}
	state, err := locator.LiveReserves(context.Background(), chainState)
	require.NoError(t, err)
	assert.Same(t, chainState, state)
	client.AssertNotCalled(t, "GetAccountInfo", mock.Anything, mock.Anything)
}

func TestFetchPoolStateOnChainVaultMintMismatch(t *testing.T) {
	program := ProgramID(cluster.Devnet)
	poolID := solana.NewWallet().PublicKey()
	authority, err := deriveAuthority(program)
	require.NoError(t, err)

	layout := &poolStateLayout{
		AmmConfig:     solana.NewWallet().PublicKey(),
		Token0Vault:   solana.NewWallet().PublicKey(),
		Token1Vault:   solana.NewWallet().PublicKey(),
		Token0Mint:    solana.NewWallet().PublicKey(),
		Token1Mint:    solana.NewWallet().PublicKey(),
		Token0Program: solana.TokenProgramID,
		Token1Program: solana.TokenProgramID,
	}

	client := new(MockChainClient)
	client.On("GetAccountInfo", mock.Anything, poolID).
		Return(accountResult(program, buildPoolStateData(t, layout)), nil)
	client.On("GetMultipleAccounts", mock.Anything, mock.Anything).
		Return(multipleAccountsResult(
			buildAmmConfigData(t, 0, 2500),
			buildTokenAccountData(solana.NewWallet().PublicKey(), authority, 1_000),
			buildTokenAccountData(layout.Token1Mint, authority, 1_000),
		), nil)

	locator := NewPoolLocator(client, nil, cluster.Devnet, zap.NewNop())
	_, err = locator.FetchPoolState(context.Background(), poolID)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidPoolType, ErrorCode(err))
}
