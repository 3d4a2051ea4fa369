package fixed

import "math/big"

// ComputePnL returns the realized profit or loss, on the money scale, of
// closing a position. long selects the buy-side convention: profit when the
// close price is above the open price.
//
// The computation happens entirely on the price scale: the margin is lifted
// from the money scale, multiplied by leverage to get the position value,
// scaled by the relative price move, and divided back down. Intermediate
// products are computed with big.Int because margin x 100 x leverage x
// priceDelta overflows int64 at plausible account sizes. Both divisions
// truncate toward zero, matching integer division semantics.
func ComputePnL(long bool, openPrice, closePrice Price, margin Money, leverage int64) Money {
	if openPrice == 0 {
		return 0
	}

	conv := big.NewInt(ConversionFactor)

	// Position value on the price scale.
	value := new(big.Int).Mul(big.NewInt(int64(margin)), conv)
	value.Mul(value, big.NewInt(leverage))

	delta := new(big.Int)
	if long {
		delta.SetInt64(int64(closePrice) - int64(openPrice))
	} else {
		delta.SetInt64(int64(openPrice) - int64(closePrice))
	}

	pnl := new(big.Int).Mul(delta, value)
	pnl.Quo(pnl, big.NewInt(int64(openPrice)))
	pnl.Quo(pnl, conv)

	return Money(pnl.Int64())
}
