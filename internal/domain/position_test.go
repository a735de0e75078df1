package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalSymbol(t *testing.T) {
	cases := map[string]string{
		"002050.SZ":  "002050",
		"600036.SH":  "600036",
		"600036":     "600036",
		"BTCUSDT":    "BTCUSDT",
		"000001.a.b": "000001",
		"":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalSymbol(in), "symbol %q", in)
	}
}

func TestHasLimitPrice(t *testing.T) {
	price := 10.0
	assert.True(t, (&TradeSignal{Price: &price}).HasLimitPrice())
	assert.False(t, (&TradeSignal{}).HasLimitPrice())
}
