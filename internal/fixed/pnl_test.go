package fixed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePnLSigns(t *testing.T) {
	open := Price(650000000)  // 65000.0000
	above := Price(660000000) // 66000.0000
	below := Price(640100000) // 64010.0000
	margin := Money(100000)   // 1000.00

	t.Run("long close above open is profit", func(t *testing.T) {
		pnl := ComputePnL(true, open, above, margin, 10)
		assert.Equal(t, Money(15384), pnl)
	})

	t.Run("long close below open is loss", func(t *testing.T) {
		pnl := ComputePnL(true, open, below, margin, 10)
		assert.Equal(t, Money(-15230), pnl)
	})

	t.Run("short close above open is loss", func(t *testing.T) {
		pnl := ComputePnL(false, open, above, margin, 10)
		assert.Equal(t, Money(-15384), pnl)
	})

	t.Run("short close below open is profit", func(t *testing.T) {
		pnl := ComputePnL(false, open, below, margin, 10)
		assert.Equal(t, Money(15230), pnl)
	})

	t.Run("flat close is zero", func(t *testing.T) {
		assert.Equal(t, Money(0), ComputePnL(true, open, open, margin, 100))
	})
}

func TestComputePnLLeverageLinearity(t *testing.T) {
	// 100.0000 -> 110.0000 with a 100.00 margin divides exactly, so the pnl
	// must scale linearly with every supported leverage step.
	open := Price(1000000)
	exit := Price(1100000)
	margin := Money(10000)

	for _, leverage := range []int64{1, 5, 10, 20, 50, 100} {
		pnl := ComputePnL(true, open, exit, margin, leverage)
		assert.Equal(t, Money(1000*leverage), pnl, "leverage %d", leverage)
	}
}

func TestComputePnLWideIntermediates(t *testing.T) {
	// margin x conversion x leverage x delta exceeds int64 here; the result
	// must still be exact.
	pnl := ComputePnL(true, 650000000, 700000000, 1000000000, 100)
	assert.Equal(t, Money(7692307692), pnl)
}

func TestComputePnLTruncatesTowardZero(t *testing.T) {
	// Both the positive and negative fractional results drop the remainder
	// instead of rounding away from zero.
	gain := ComputePnL(true, 650000000, 650000001, 100000, 1)
	loss := ComputePnL(true, 650000000, 649999999, 100000, 1)
	assert.Equal(t, Money(0), gain)
	assert.Equal(t, Money(0), loss)
}

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice("65000")
	require.NoError(t, err)
	assert.Equal(t, Price(650000000), p)

	p, err = ParsePrice("64990.5")
	require.NoError(t, err)
	assert.Equal(t, Price(649905000), p)

	// Half rounds away from zero at the fourth decimal digit.
	p, err = ParsePrice("0.00005")
	require.NoError(t, err)
	assert.Equal(t, Price(1), p)

	_, err = ParsePrice("not-a-price")
	assert.Error(t, err)
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("5000")
	require.NoError(t, err)
	assert.Equal(t, Money(500000), m)

	m, err = ParseMoney("1000.005")
	require.NoError(t, err)
	assert.Equal(t, Money(100001), m)

	_, err = ParseMoney("")
	assert.Error(t, err)
}

func TestPriceRoundTrip(t *testing.T) {
	assert.Equal(t, "65000.0000", Price(650000000).String())
	assert.Equal(t, "1000.00", Money(100000).String())
	assert.InDelta(t, 64990.0, Price(649900000).Float(), 1e-9)
}
