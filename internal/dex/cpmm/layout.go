// internal/dex/cpmm/layout.go
package cpmm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Account data offsets used in program account filters. The two mints sit
// after the 8-byte discriminator and five pubkeys.
const (
	poolStateToken0MintOffset = 168
	poolStateToken1MintOffset = 200
)

// anchorInstructionDiscriminator derives the 8-byte instruction tag.
func anchorInstructionDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte("global:" + name))
	return hash[:8]
}

// anchorAccountDiscriminator derives the 8-byte account tag.
func anchorAccountDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte("account:" + name))
	return hash[:8]
}

// poolStateLayout mirrors the program's PoolState account, minus the
// discriminator.
type poolStateLayout struct {
	AmmConfig          solana.PublicKey
	PoolCreator        solana.PublicKey
	Token0Vault        solana.PublicKey
	Token1Vault        solana.PublicKey
	LpMint             solana.PublicKey
	Token0Mint         solana.PublicKey
	Token1Mint         solana.PublicKey
	Token0Program      solana.PublicKey
	Token1Program      solana.PublicKey
	ObservationKey     solana.PublicKey
	AuthBump           uint8
	Status             uint8
	LpMintDecimals     uint8
	Mint0Decimals      uint8
	Mint1Decimals      uint8
	LpSupply           uint64
	ProtocolFeesToken0 uint64
	ProtocolFeesToken1 uint64
	FundFeesToken0     uint64
	FundFeesToken1     uint64
	OpenTime           uint64
	RecentEpoch        uint64
	Padding            [31]uint64
}

// ammConfigLayout mirrors the program's AmmConfig account.
type ammConfigLayout struct {
	Bump              uint8
	DisableCreatePool bool
	Index             uint16
	TradeFeeRate      uint64
	ProtocolFeeRate   uint64
	FundFeeRate       uint64
	CreatePoolFee     uint64
	ProtocolOwner     solana.PublicKey
	FundOwner         solana.PublicKey
	Padding           [16]uint64
}

// lockedLiquidityLayout mirrors the lock program's LockedCpLiquidityState.
type lockedLiquidityLayout struct {
	LockedLpAmount    uint64
	ClaimedLpAmount   uint64
	UnclaimedLpAmount uint64
	LastLpAmount      uint64
	LpMint            solana.PublicKey
	PoolID            solana.PublicKey
	LockedOwner       solana.PublicKey
	LockedNftMint     solana.PublicKey
	RecentEpoch       uint64
	Padding           [8]uint64
}

func decodeAnchorAccount(data []byte, name string, out interface{}) error {
	disc := anchorAccountDiscriminator(name)
	if len(data) < len(disc) {
		return fmt.Errorf("account data too short for %s: %d bytes", name, len(data))
	}
	if !bytes.Equal(data[:len(disc)], disc) {
		return fmt.Errorf("account discriminator mismatch, not a %s account", name)
	}
	if err := bin.NewBinDecoder(data[len(disc):]).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func decodePoolState(data []byte) (*poolStateLayout, error) {
	var state poolStateLayout
	if err := decodeAnchorAccount(data, "PoolState", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func decodeAmmConfig(data []byte) (*ammConfigLayout, error) {
	var cfg ammConfigLayout
	if err := decodeAnchorAccount(data, "AmmConfig", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeLockedLiquidity(data []byte) (*lockedLiquidityLayout, error) {
	var state lockedLiquidityLayout
	if err := decodeAnchorAccount(data, "LockedCpLiquidityState", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// splTokenAccountSize is the byte size of a classic SPL token account, used
// to price its rent exemption.
const splTokenAccountSize = 165

// splTokenAmount reads the balance out of a raw SPL token account. The
// amount field sits at a fixed offset in both token program layouts.
func splTokenAmount(data []byte) (uint64, error) {
	if len(data) < 72 {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}

// splTokenMint reads the mint a raw SPL token account holds.
func splTokenMint(data []byte) (solana.PublicKey, error) {
	if len(data) < 32 {
		return solana.PublicKey{}, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return solana.PublicKeyFromBytes(data[:32]), nil
}

// splMintDecimals reads the decimals field out of a raw SPL mint account.
func splMintDecimals(data []byte) (uint8, error) {
	if len(data) < 45 {
		return 0, fmt.Errorf("mint account data too short: %d bytes", len(data))
	}
	return data[44], nil
}
