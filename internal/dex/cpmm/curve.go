// internal/dex/cpmm/curve.go
package cpmm

import (
	"math/big"
)

// SwapComputation is the value object produced by the curve for one swap
// quote. Reserves are echoed back so callers can prove the fee and the
// amounts came from the same pool snapshot.
type SwapComputation struct {
	AmountIn       *big.Int
	AmountOut      *big.Int
	Fee            *big.Int
	SourceReserve  *big.Int
	DestReserve    *big.Int
	PriceImpactBps uint64
}

// LiquidityAmounts carries the proportional pair amount for a two-sided
// deposit together with its slippage bounds.
type LiquidityAmounts struct {
	PairAmount    *big.Int
	MinPairAmount *big.Int
	MaxPairAmount *big.Int
}

// SlippageDirection selects which way a slippage bound rounds.
type SlippageDirection uint8

const (
	// SlippageFloor produces the minimum acceptable amount.
	SlippageFloor SlippageDirection = iota
	// SlippageCeiling produces the maximum authorized amount.
	SlippageCeiling
)

var bpsDenominator = big.NewInt(slippageDenominator)

// SwapExactIn quotes the output for a fixed input under x*y=k. The trade fee
// is deducted from the input before the invariant is applied.
func SwapExactIn(amountIn, sourceReserve, destinationReserve *big.Int, feeRateBps uint64) (*SwapComputation, error) {
	const op = "swapExactIn"

	if err := validateReserves(op, sourceReserve, destinationReserve); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "input amount must be positive")
	}
	if feeRateBps >= slippageDenominator {
		return nil, newOpError(op, ErrCodeInvalidSlippageRange, "fee rate must be below 10000 basis points")
	}

	fee := tradeFee(amountIn, feeRateBps)
	effectiveIn := new(big.Int).Sub(amountIn, fee)

	newSource := new(big.Int).Add(sourceReserve, effectiveIn)
	out := new(big.Int).Mul(destinationReserve, effectiveIn)
	out.Quo(out, newSource)

	if out.Cmp(destinationReserve) >= 0 {
		return nil, newOpError(op, ErrCodeInsufficientLiquidity, "output would drain the destination reserve")
	}

	return &SwapComputation{
		AmountIn:       new(big.Int).Set(amountIn),
		AmountOut:      out,
		Fee:            fee,
		SourceReserve:  new(big.Int).Set(sourceReserve),
		DestReserve:    new(big.Int).Set(destinationReserve),
		PriceImpactBps: priceImpactBps(effectiveIn, out, sourceReserve, destinationReserve),
	}, nil
}

// SwapExactOut quotes the input required to receive a fixed output. Inverse
// of SwapExactIn: the returned AmountIn already includes the trade fee.
func SwapExactOut(amountOut, sourceReserve, destinationReserve *big.Int, feeRateBps uint64) (*SwapComputation, error) {
	const op = "swapExactOut"

	if err := validateReserves(op, sourceReserve, destinationReserve); err != nil {
		return nil, err
	}
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "output amount must be positive")
	}
	if feeRateBps >= slippageDenominator {
		return nil, newOpError(op, ErrCodeInvalidSlippageRange, "fee rate must be below 10000 basis points")
	}
	if amountOut.Cmp(destinationReserve) >= 0 {
		return nil, newOpError(op, ErrCodeInsufficientLiquidity, "desired output exceeds destination reserve")
	}

	remaining := new(big.Int).Sub(destinationReserve, amountOut)
	effectiveIn := ceilQuo(new(big.Int).Mul(sourceReserve, amountOut), remaining)

	grossNum := new(big.Int).Mul(effectiveIn, bpsDenominator)
	grossIn := ceilQuo(grossNum, big.NewInt(int64(slippageDenominator-feeRateBps)))
	fee := new(big.Int).Sub(grossIn, effectiveIn)

	return &SwapComputation{
		AmountIn:       grossIn,
		AmountOut:      new(big.Int).Set(amountOut),
		Fee:            fee,
		SourceReserve:  new(big.Int).Set(sourceReserve),
		DestReserve:    new(big.Int).Set(destinationReserve),
		PriceImpactBps: priceImpactBps(effectiveIn, amountOut, sourceReserve, destinationReserve),
	}, nil
}

// ComputePairAmount derives the second side of a two-sided deposit
// proportionally to the current reserves. Rounds down so the derived side
// never demands more than the supplied side justifies.
func ComputePairAmount(baseAmount, baseReserve, quoteReserve *big.Int) (*big.Int, error) {
	const op = "computePairAmount"

	if err := validateReserves(op, baseReserve, quoteReserve); err != nil {
		return nil, err
	}
	if baseAmount == nil || baseAmount.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "base amount must be positive")
	}

	pair := new(big.Int).Mul(baseAmount, quoteReserve)
	return pair.Quo(pair, baseReserve), nil
}

// ComputeLiquidityAmounts bundles the pair amount with both slippage bounds
// for a deposit: the floor is what the caller accepts, the ceiling is what
// the instruction authorizes.
func ComputeLiquidityAmounts(baseAmount, baseReserve, quoteReserve *big.Int, slippageBps uint64) (*LiquidityAmounts, error) {
	pair, err := ComputePairAmount(baseAmount, baseReserve, quoteReserve)
	if err != nil {
		return nil, err
	}
	minPair, err := ApplySlippage(pair, slippageBps, SlippageFloor)
	if err != nil {
		return nil, err
	}
	maxPair, err := ApplySlippage(pair, slippageBps, SlippageCeiling)
	if err != nil {
		return nil, err
	}
	return &LiquidityAmounts{PairAmount: pair, MinPairAmount: minPair, MaxPairAmount: maxPair}, nil
}

// ApplySlippage bounds an expected amount by a tolerance in basis points.
// A zero tolerance is the identity; values above 10000 are rejected.
func ApplySlippage(amount *big.Int, slippageBps uint64, dir SlippageDirection) (*big.Int, error) {
	const op = "applySlippage"

	if amount == nil || amount.Sign() < 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "amount must be non-negative")
	}
	if slippageBps > slippageDenominator {
		return nil, newOpError(op, ErrCodeInvalidSlippageRange, "slippage must be within [0, 10000] basis points")
	}

	bps := new(big.Int).SetUint64(slippageBps)
	switch dir {
	case SlippageCeiling:
		num := new(big.Int).Mul(amount, new(big.Int).Add(bpsDenominator, bps))
		return ceilQuo(num, bpsDenominator), nil
	default:
		num := new(big.Int).Mul(amount, new(big.Int).Sub(bpsDenominator, bps))
		return num.Quo(num, bpsDenominator), nil
	}
}

// LpTokensForDeposit estimates the LP tokens minted for depositing amount of
// one side against its reserve, proportional to the current supply.
func LpTokensForDeposit(amount, reserve, lpSupply *big.Int) (*big.Int, error) {
	const op = "lpTokensForDeposit"

	if reserve == nil || reserve.Sign() <= 0 || lpSupply == nil || lpSupply.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidReserve, "reserve and lp supply must be positive")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, newOpError(op, ErrCodeInvalidAmount, "amount must be positive")
	}

	lp := new(big.Int).Mul(amount, lpSupply)
	return lp.Quo(lp, reserve), nil
}

// WithdrawAmounts converts an LP amount into the two reserve shares it
// redeems, rounded down on both sides.
func WithdrawAmounts(lpAmount, lpSupply, reserveA, reserveB *big.Int) (*big.Int, *big.Int, error) {
	const op = "withdrawAmounts"

	if err := validateReserves(op, reserveA, reserveB); err != nil {
		return nil, nil, err
	}
	if lpSupply == nil || lpSupply.Sign() <= 0 {
		return nil, nil, newOpError(op, ErrCodeInvalidReserve, "lp supply must be positive")
	}
	if lpAmount == nil || lpAmount.Sign() <= 0 {
		return nil, nil, newOpError(op, ErrCodeInvalidAmount, "lp amount must be positive")
	}

	outA := new(big.Int).Mul(lpAmount, reserveA)
	outA.Quo(outA, lpSupply)
	outB := new(big.Int).Mul(lpAmount, reserveB)
	outB.Quo(outB, lpSupply)
	return outA, outB, nil
}

func validateReserves(op string, a, b *big.Int) error {
	if a == nil || b == nil || a.Sign() <= 0 || b.Sign() <= 0 {
		return newOpError(op, ErrCodeInvalidReserve, "reserves must be positive")
	}
	return nil
}

// tradeFee computes the protocol trade fee, rounded up the way the on-chain
// curve does.
func tradeFee(amount *big.Int, feeRateBps uint64) *big.Int {
	num := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeRateBps))
	return ceilQuo(num, bpsDenominator)
}

func ceilQuo(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// priceImpactBps measures how far the executed price fell from the spot
// price implied by the reserves, in basis points of the spot output.
func priceImpactBps(effectiveIn, out, sourceReserve, destReserve *big.Int) uint64 {
	if effectiveIn.Sign() <= 0 {
		return 0
	}
	spotOut := new(big.Int).Mul(effectiveIn, destReserve)
	spotOut.Quo(spotOut, sourceReserve)
	if spotOut.Sign() <= 0 {
		return 0
	}
	diff := new(big.Int).Sub(spotOut, out)
	if diff.Sign() <= 0 {
		return 0
	}
	diff.Mul(diff, bpsDenominator)
	diff.Quo(diff, spotOut)
	return diff.Uint64()
}
