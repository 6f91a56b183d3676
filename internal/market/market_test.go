package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymbolFormats(t *testing.T) {
	cases := map[string][2]string{
		"BTC/USDT": {"BTC", "USDT"},
		"eth-btc":  {"ETH", "BTC"},
		"LTC_ETH":  {"LTC", "ETH"},
		"BNBUSDT":  {"BNB", "USDT"},
		"ETHUSD":   {"ETH", "USD"},
		"SNTINR":   {"SNT", "INR"},
	}
	for in, want := range cases {
		us, err := ParseSymbol(in, "spot")
		require.NoError(t, err, in)
		assert.Equal(t, want[0], us.BaseCurrency, in)
		assert.Equal(t, want[1], us.QuoteCurrency, in)
	}

	_, err := ParseSymbol("A/B/C", "spot")
	assert.Error(t, err)
}

func TestSymbolRegistryVenueFormats(t *testing.T) {
	r := NewSymbolRegistry()
	cases := []struct {
		exchange string
		symbol   string
		want     string
	}{
		{"binance", "BTC/USDT", "BTCUSDT"},
		{"bitfinex", "BTC/USDT", "BTCUST"},
		{"bitfinex", "ETH/USD", "ETHUSD"},
		{"bitmex", "BTC/USD", "XBTUSD"},
		{"bittrex", "ETH/BTC", "BTC-ETH"},
		{"cobinhood", "ETH/BTC", "ETH-BTC"},
		{"coinbaseprime", "BTC/USD", "BTC-USD"},
		{"kraken", "BTC/EUR", "XBTEUR"},
		{"okex", "BTC/USDT", "BTC-USDT"},
		{"unknown", "BTC/USDT", "BTCUSDT"},
	}
	for _, c := range cases {
		got, err := r.ExchangeSymbol(c.exchange, c.symbol)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.exchange)
	}
}

func TestFormatConverterRoundTrip(t *testing.T) {
	r := NewSymbolRegistry()

	us, err := r.ConvertToUnified("bitmex", "XBTUSD", "spot")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", us.Symbol)

	us, err = r.ConvertToUnified("bittrex", "BTC-ETH", "spot")
	require.NoError(t, err)
	assert.Equal(t, "ETH/BTC", us.Symbol)

	us, err = r.ConvertToUnified("bitfinex", "BTCUST", "spot")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", us.Symbol)
}

func TestResolutionTableLookup(t *testing.T) {
	table := ResolutionTable{
		Supported: []string{"1", "5", "60", "D", "W", "M"},
		Intervals: map[string]string{"1": "1m", "5": "5m", "60": "1h", "D": "1d", "W": "1w", "M": "1M"},
		Default:   "1m",
	}

	assert.Equal(t, "1d", table.Lookup("D"))
	assert.Equal(t, "1d", table.Lookup("1D"))
	assert.Equal(t, "1w", table.Lookup("1W"))
	assert.Equal(t, "1M", table.Lookup("1M"))
	assert.Equal(t, "1m", table.Lookup("7"))
	assert.Equal(t, "1m", table.Lookup(""))

	assert.True(t, table.Supports("D"))
	assert.False(t, table.Supports("3D"))

	res := table.SupportedResolutions()
	res[0] = "changed"
	assert.Equal(t, "1", table.Supported[0])
}

func TestResolutionMinutes(t *testing.T) {
	assert.Equal(t, 1, ResolutionMinutes("1"))
	assert.Equal(t, 240, ResolutionMinutes("240"))
	assert.Equal(t, 1440, ResolutionMinutes("D"))
	assert.Equal(t, 10080, ResolutionMinutes("1W"))
	assert.Equal(t, 0, ResolutionMinutes("x"))
}

func TestCalculateHistoryDepth(t *testing.T) {
	d, ok := CalculateHistoryDepth("60", 1000, nil)
	require.True(t, ok)
	assert.Equal(t, HistoryDepth{"M", 1}, d)

	d, ok = CalculateHistoryDepth("D", 500, nil)
	require.True(t, ok)
	assert.Equal(t, "M", d.ResolutionBack)
	assert.InDelta(t, 16.5, d.IntervalBack, 1e-9)

	_, ok = CalculateHistoryDepth("2W", 1000, nil)
	assert.False(t, ok)

	overrides := map[string]HistoryDepth{"1": {"D", 250.0 / 1440}}
	d, ok = CalculateHistoryDepth("1", 300, overrides)
	require.True(t, ok)
	assert.InDelta(t, 250.0/1440, d.IntervalBack, 1e-9)

	_, ok = CalculateHistoryDepth("60", 300, overrides)
	assert.False(t, ok)
}

func TestResolveSymbol(t *testing.T) {
	info := ResolveSymbol("binance", "ETH/BTC", []string{"1", "D"})
	assert.Equal(t, int64(100000000), info.PriceScale)
	assert.Equal(t, "BINANCE", info.Exchange)
	assert.Equal(t, "24x7", info.Session)
	assert.Equal(t, "America/New_York", info.Timezone)

	info = ResolveSymbol("kraken", "BTC/USD", nil)
	assert.Equal(t, int64(1000), info.PriceScale)
}

func TestEventNamesAndHistoryResult(t *testing.T) {
	assert.Equal(t, "trade:BTC/USDT", EventName(MessageTypeTrade, false, "BTC/USDT"))
	assert.Equal(t, "orderbook:full:BTC/USDT", EventName(MessageTypeOrderBook, true, "BTC/USDT"))

	ev := NewTradeEvent("binance", "BTC/USDT", true, nil)
	assert.Equal(t, "trade:full:BTC/USDT", ev.Name)

	assert.True(t, NewHistoryResult(nil).Meta.NoData)
	assert.NotNil(t, NewHistoryResult(nil).Bars)
	assert.False(t, NewHistoryResult([]Bar{{Time: 1}}).Meta.NoData)
}
