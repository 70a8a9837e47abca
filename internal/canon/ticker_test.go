package canon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTicker(t *testing.T) {
	cases := map[string]bool{
		"BTC":        true,
		"btc":        true,
		"BTC/USDT":   true,
		"A":          true,
		"":           false,
		"BTCUSDTXXXX": false, // 11 chars, too long
		"BTC/":       false,
		"BTC-USDT":   false,
		"BTC1":       false,
	}
	for in, want := range cases {
		assert.Equalf(t, want, ValidTicker(in), "ticker %q", in)
	}
}

func TestValidateTickerConfig(t *testing.T) {
	tk := Intern("BTC/USDT")
	good := TickerConfig{Ticker: tk, PriceMultiplier: 100, QuantityMultiplier: 1000000}
	require.NoError(t, ValidateTickerConfig(good))

	bad := good
	bad.PriceMultiplier = 3
	err := ValidateTickerConfig(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuilder))

	badDepth := good
	badDepth.SubscribeDepth = true
	badDepth.DepthValue = 0
	require.Error(t, ValidateTickerConfig(badDepth))
}

func TestIntern(t *testing.T) {
	a := Intern("ETH/USDT")
	b := Intern("ETH/USDT")
	assert.Same(t, a, b)
}
