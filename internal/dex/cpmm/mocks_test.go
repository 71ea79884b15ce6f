// internal/dex/cpmm/mocks_test.go
package cpmm

import (
	"context"
	"encoding/binary"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"

	"github.com/openamm/cpmm-engine/internal/blockchain"
)

// MockChainClient implements blockchain.Client for tests.
type MockChainClient struct {
	mock.Mock
}

var _ blockchain.Client = (*MockChainClient)(nil)

func (m *MockChainClient) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func (m *MockChainClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *MockChainClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts blockchain.TransactionOptions) (solana.Signature, error) {
	args := m.Called(ctx, tx, opts)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *MockChainClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*blockchain.SimulationResult, error) {
	args := m.Called(ctx, tx)
	if res := args.Get(0); res != nil {
		return res.(*blockchain.SimulationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	args := m.Called(ctx, pubkey)
	if res := args.Get(0); res != nil {
		return res.(*rpc.GetAccountInfoResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	args := m.Called(ctx, pubkeys)
	if res := args.Get(0); res != nil {
		return res.(*rpc.GetMultipleAccountsResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetProgramAccountsWithOpts(ctx context.Context, programID solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	args := m.Called(ctx, programID, opts)
	if res := args.Get(0); res != nil {
		return res.(rpc.GetProgramAccountsResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	args := m.Called(ctx, signatures)
	if res := args.Get(0); res != nil {
		return res.(*rpc.GetSignatureStatusesResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, pubkey, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	args := m.Called(ctx, account)
	if res := args.Get(0); res != nil {
		return res.(*rpc.GetTokenAccountBalanceResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetRecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]rpc.PriorizationFeeResult, error) {
	args := m.Called(ctx, accounts)
	if res := args.Get(0); res != nil {
		return res.([]rpc.PriorizationFeeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, dataSize, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainClient) GetVersion(ctx context.Context) (*rpc.GetVersionResult, error) {
	args := m.Called(ctx)
	if res := args.Get(0); res != nil {
		return res.(*rpc.GetVersionResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChainClient) WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	args := m.Called(ctx, signature, commitment)
	return args.Error(0)
}

// MockPoolIndex implements poolIndex for tests.
type MockPoolIndex struct {
	mock.Mock
}

var (
	_ poolIndex        = (*MockPoolIndex)(nil)
	_ feeConfigFetcher = (*MockPoolIndex)(nil)
)

func (m *MockPoolIndex) FetchPoolByID(ctx context.Context, poolID string) (*apiPoolInfo, error) {
	args := m.Called(ctx, poolID)
	if res := args.Get(0); res != nil {
		return res.(*apiPoolInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPoolIndex) FetchPoolsByMints(ctx context.Context, mint1, mint2 string, sortBy PoolSortField) ([]apiPoolInfo, error) {
	args := m.Called(ctx, mint1, mint2, sortBy)
	if res := args.Get(0); res != nil {
		return res.([]apiPoolInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPoolIndex) FetchFeeConfigs(ctx context.Context) ([]FeeConfig, error) {
	args := m.Called(ctx)
	if res := args.Get(0); res != nil {
		return res.([]FeeConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

// accountResult wraps raw account bytes the way the RPC layer returns them.
func accountResult(owner solana.PublicKey, data []byte) *rpc.GetAccountInfoResult {
	return &rpc.GetAccountInfoResult{
		RPCContext: rpc.RPCContext{},
		Value: &rpc.Account{
			Owner: owner,
			Data:  rpc.DataBytesOrJSONFromBytes(data),
		},
	}
}

func multipleAccountsResult(datas ...[]byte) *rpc.GetMultipleAccountsResult {
	out := &rpc.GetMultipleAccountsResult{}
	for _, data := range datas {
		if data == nil {
			out.Value = append(out.Value, nil)
			continue
		}
		out.Value = append(out.Value, &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)})
	}
	return out
}

// ownedAccountsResult is multipleAccountsResult with per-account owners,
// for callers that validate which program owns the account.
func ownedAccountsResult(owners []solana.PublicKey, datas ...[]byte) *rpc.GetMultipleAccountsResult {
	out := &rpc.GetMultipleAccountsResult{}
	for i, data := range datas {
		if data == nil {
			out.Value = append(out.Value, nil)
			continue
		}
		out.Value = append(out.Value, &rpc.Account{
			Owner: owners[i],
			Data:  rpc.DataBytesOrJSONFromBytes(data),
		})
	}
	return out
}

func tokenBalanceResult(amount uint64, decimals uint8) *rpc.GetTokenAccountBalanceResult {
	return &rpc.GetTokenAccountBalanceResult{
		Value: &rpc.UiTokenAmount{
			Amount:   strconv.FormatUint(amount, 10),
			Decimals: decimals,
		},
	}
}

// buildTokenAccountData lays out a raw SPL token account.
func buildTokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

// buildMintAccountData lays out a raw SPL mint account.
func buildMintAccountData(supply uint64, decimals uint8) []byte {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	return data
}
