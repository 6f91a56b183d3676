package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"datafeed-go/internal/config"
	"datafeed-go/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, name string, opts Options) *GenericAdapter {
	t.Helper()
	venue, ok := LookupVenue(name)
	require.True(t, ok, name)
	a := NewGenericAdapter(venue, opts)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func TestNewAdapterUnknownExchangeReturnsStub(t *testing.T) {
	a := NewAdapter("nosuchvenue", Options{})
	_, ok := a.(*StubAdapter)
	require.True(t, ok)

	_, err := a.GetHistory(context.Background(), "BTC/USD", "1", 0, 1)
	assert.True(t, errors.Is(err, ErrUnknownExchange))
	assert.True(t, errors.Is(a.StreamTrades("BTC/USD"), ErrUnknownExchange))
	assert.False(t, a.IsActive())
}

func TestNewAdapterKnownExchangeIsCaseInsensitive(t *testing.T) {
	a := NewAdapter(" Binance ", Options{})
	g, ok := a.(*GenericAdapter)
	require.True(t, ok)
	assert.Equal(t, "binance", g.ExchangeName())
	assert.Equal(t, "binance", g.ID())
}

func TestOptionsFromConfig(t *testing.T) {
	t.Setenv("KRAKEN_API_KEY", "k")
	cfg := config.Default()
	opts := OptionsFromConfig(cfg, "Kraken")

	assert.Equal(t, "kraken", opts.ID)
	assert.Equal(t, "k", opts.Credentials.ApiKey)
	assert.Equal(t, cfg.ReconnectDelay(), opts.ReconnectDelay)
	assert.Equal(t, cfg.ThrottleInterval(), opts.ThrottleInterval)
	assert.Equal(t, cfg.Rest.MaxLimit, opts.MaxLimit)
}

func TestGetHistoryBuildsRequestAndDecodes(t *testing.T) {
	var query atomic.Value
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/klines", r.URL.Path)
		query.Store(r.URL.Query())
		_, _ = w.Write([]byte(`[[1560000000000,"1","2","0.5","1.5","10"],[1560000060000,"1.5","3","1","2","20"]]`))
	})
	a := newTestAdapter(t, "binance", Options{RestBase: srv.URL})

	res, err := a.GetHistory(context.Background(), "BTC/USDT", "D", 1560000000, 1560003600)
	require.NoError(t, err)
	assert.False(t, res.Meta.NoData)
	require.Len(t, res.Bars, 2)
	assert.Equal(t, int64(1560000000000), res.Bars[0].Time)
	assert.Equal(t, 2.0, res.Bars[1].Close)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"BTCUSDT"}, q["symbol"])
	assert.Equal(t, []string{"1d"}, q["interval"])
	assert.Equal(t, []string{"1560000000000"}, q["startTime"])
	assert.Equal(t, []string{"1560003600000"}, q["endTime"])
}

func TestGetHistoryUnknownResolutionUsesDefaultInterval(t *testing.T) {
	var interval atomic.Value
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		interval.Store(r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[]`))
	})
	a := newTestAdapter(t, "binance", Options{RestBase: srv.URL})

	res, err := a.GetHistory(context.Background(), "BTC/USDT", "7", 0, 60)
	require.NoError(t, err)
	assert.True(t, res.Meta.NoData)
	assert.Empty(t, res.Bars)
	assert.Equal(t, "1m", interval.Load())
}

func TestGetHistoryNewestFirstIsReversed(t *testing.T) {
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/BTC-USD/candles", r.URL.Path)
		assert.Equal(t, "3600", r.URL.Query().Get("granularity"))
		_, _ = w.Write([]byte(`[[1560003600,1,3,2,2.5,7],[1560000000,1,2,1.5,1.8,5]]`))
	})
	a := newTestAdapter(t, "coinbaseprime", Options{RestBase: srv.URL})

	res, err := a.GetHistory(context.Background(), "BTC/USD", "60", 1560000000, 1560003600)
	require.NoError(t, err)
	require.Len(t, res.Bars, 2)
	assert.Equal(t, int64(1560000000000), res.Bars[0].Time)
	assert.Equal(t, int64(1560003600000), res.Bars[1].Time)
}

func TestGetHistoryHTTPError(t *testing.T) {
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	})
	a := newTestAdapter(t, "binance", Options{RestBase: srv.URL})

	_, err := a.GetHistory(context.Background(), "BTC/USDT", "1", 0, 60)
	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestGetHistoryEmptySymbol(t *testing.T) {
	a := newTestAdapter(t, "binance", Options{RestBase: "http://127.0.0.1:1"})
	_, err := a.GetHistory(context.Background(), "", "1", 0, 60)
	assert.True(t, errors.Is(err, ErrEmptySymbol))
}

func TestHistoryDepthOverridesAndDefault(t *testing.T) {
	okex := newTestAdapter(t, "okex", Options{})
	depth, ok := okex.HistoryDepth("D")
	require.True(t, ok)
	assert.Equal(t, "M", depth.ResolutionBack)
	assert.Equal(t, 3.0, depth.IntervalBack)

	binance := newTestAdapter(t, "binance", Options{MaxLimit: 1000})
	depth, ok = binance.HistoryDepth("60")
	require.True(t, ok)
	assert.Equal(t, "M", depth.ResolutionBack)
	assert.Equal(t, 1.0, depth.IntervalBack)

	_, ok = binance.HistoryDepth("2")
	assert.False(t, ok)
}

func TestDatafeedConfigUsesVenueResolutions(t *testing.T) {
	a := newTestAdapter(t, "kraken", Options{})
	cfg := a.DatafeedConfig()
	assert.Equal(t, []string{"1", "5", "15", "30", "60", "D", "W", "2W"}, cfg.SupportedResolutions)

	info := a.ResolveSymbol("BTC/USD")
	assert.Equal(t, "BTC/USD", info.Name)
}

func TestStreamOnVenueWithoutStreams(t *testing.T) {
	a := newTestAdapter(t, "coindcx", Options{})
	assert.True(t, errors.Is(a.StreamTrades("BTC/USDT"), ErrNotSupported))
	assert.True(t, errors.Is(a.StreamOrderbook("BTC/USDT"), ErrNotSupported))
	assert.Empty(t, a.ActiveStreams())
}

func TestStreamEmptySymbol(t *testing.T) {
	a := newTestAdapter(t, "kraken", Options{})
	assert.True(t, errors.Is(a.StreamTrades(""), ErrEmptySymbol))
}

func TestPollStreamPublishesFullEventsAndIsIdempotent(t *testing.T) {
	var hits atomic.Int32
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2/public/trades/BTCUSDT", r.URL.Path)
		hits.Add(1)
		_, _ = w.Write([]byte(`[{"id":1,"price":"100","quantity":"0.5","side":"buy","timestamp":"2019-06-01T00:00:00.000Z"}]`))
	})
	a := newTestAdapter(t, "hitbtc", Options{RestBase: srv.URL, PollInterval: 20 * time.Millisecond})
	ch := a.Bus().Subscribe("trade:full:BTC/USDT", 16)

	require.NoError(t, a.StreamTrades("BTC/USDT"))
	require.NoError(t, a.StreamTrades("BTC/USDT"))
	require.Len(t, a.ActiveStreams(), 1)
	assert.Equal(t, StreamKey{Exchange: "hitbtc", Kind: market.StreamTrades, Symbol: "BTC/USDT"}, a.ActiveStreams()[0])

	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			assert.True(t, ev.Full)
			require.Len(t, ev.Trades, 1)
			assert.Equal(t, "BTC/USDT", ev.Trades[0].Symbol)
		case <-time.After(2 * time.Second):
			t.Fatal("no poll event")
		}
	}

	require.NoError(t, a.StopStreamingTrades("BTC/USDT"))
	assert.Empty(t, a.ActiveStreams())
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestStopStreamingUnknownIsNoop(t *testing.T) {
	a := newTestAdapter(t, "kraken", Options{})
	assert.NoError(t, a.StopStreamingTrades("BTC/USD"))
	assert.NoError(t, a.StopStreamingOrderbook("BTC/USD"))
}

func TestStopClearsStreams(t *testing.T) {
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	venue, _ := LookupVenue("hitbtc")
	a := NewGenericAdapter(venue, Options{RestBase: srv.URL, PollInterval: time.Hour})
	require.NoError(t, a.Start())
	require.NoError(t, a.StreamTrades("BTC/USDT"))
	require.NoError(t, a.StreamOrderbook("ETH/USDT"))
	assert.Len(t, a.Status().Streams, 2)

	require.NoError(t, a.Stop())
	assert.False(t, a.IsActive())
	assert.Empty(t, a.ActiveStreams())
}

func TestMarginAllowList(t *testing.T) {
	a := newTestAdapter(t, "binance", Options{})
	assert.True(t, a.AllowsMarginTrading("BTC/USDT"))
	assert.False(t, a.AllowsMarginTrading("DOGE/USDT"))
	assert.True(t, a.HasFeature(FeatureMarginTrading))

	a.SetMarginSymbols([]string{"DOGE/USDT", "ADAUSDT"})
	assert.True(t, a.AllowsMarginTrading("DOGE/USDT"))
	assert.True(t, a.AllowsMarginTrading("ADA/USDT"))
	assert.False(t, a.AllowsMarginTrading("BTC/USDT"))
	assert.Equal(t, []string{"ADAUSDT", "DOGEUSDT"}, a.MarginSymbols())
	assert.Equal(t, 2, a.Status().MarginSymbols)

	a.SetMarginSymbols(nil)
	assert.False(t, a.HasFeature(FeatureMarginTrading))
}

func TestMarginAllAndOrderTypes(t *testing.T) {
	a := newTestAdapter(t, "bitmex", Options{})
	assert.True(t, a.AllowsMarginTrading("ETH/USD"))
	assert.False(t, a.AllowsSpotTrading("BTC/USD"))
	assert.Contains(t, a.SupportedOrderTypes("BTC/USD"), market.OrderTypeTrailingStop)

	k := newTestAdapter(t, "kraken", Options{})
	assert.True(t, k.AllowsSpotTrading("BTC/USD"))
	assert.False(t, k.AllowsMarginTrading("BTC/USD"))
	assert.Equal(t, []market.OrderType{market.OrderTypeLimit, market.OrderTypeMarket}, k.SupportedOrderTypes("BTC/USD"))
}

func TestFeatures(t *testing.T) {
	assert.True(t, newTestAdapter(t, "binance", Options{}).HasFeature(FeatureGetDepositAddress))
	assert.False(t, newTestAdapter(t, "bitfinex", Options{}).HasFeature(FeatureGetDepositAddress))
	assert.False(t, newTestAdapter(t, "okex", Options{}).HasFeature(FeatureViewDeposits))
}

func TestTradingWithoutCredentials(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"binance", "coindcx", "kraken"} {
		a := newTestAdapter(t, name, Options{})
		_, err := a.GetBalances(ctx)
		assert.True(t, errors.Is(err, ErrMissingCredentials), name)
		_, err = a.ExecuteOrder(ctx, "BTC/USDT", market.OrderRequest{Side: market.TradeSideBuy, Kind: market.OrderTypeMarket, Amount: 1})
		assert.True(t, errors.Is(err, ErrMissingCredentials), name)
	}
}

func TestTradingNotSupportedWithCredentials(t *testing.T) {
	a := newTestAdapter(t, "kraken", Options{Credentials: config.Credentials{ApiKey: "k", ApiSecret: "s"}})
	_, err := a.GetOpenOrders(context.Background(), "BTC/USD")
	assert.True(t, errors.Is(err, ErrNotSupported))
	assert.True(t, errors.Is(a.CancelOrder(context.Background(), "BTC/USD", "1"), ErrNotSupported))
}

func TestMarginOrderRejectedForNonMarginSymbol(t *testing.T) {
	a := newTestAdapter(t, "binance", Options{Credentials: config.Credentials{ApiKey: "k", ApiSecret: "s"}})
	_, err := a.ExecuteOrder(context.Background(), "DOGE/USDT", market.OrderRequest{
		Side: market.TradeSideBuy, Kind: market.OrderTypeMarket, Market: market.MarketMargin, Amount: 1,
	})
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestMarginOrderWithoutCredentialsReportsMissingKey(t *testing.T) {
	a := newTestAdapter(t, "binance", Options{})
	_, err := a.ExecuteOrder(context.Background(), "DOGE/USDT", market.OrderRequest{
		Side: market.TradeSideBuy, Kind: market.OrderTypeMarket, Market: market.MarketMargin, Amount: 1,
	})
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.False(t, errors.Is(err, ErrNotSupported))
}

func TestSubscribeBarsNotSupportedWithoutSocket(t *testing.T) {
	a := newTestAdapter(t, "kraken", Options{})
	_, err := a.SubscribeBars("BTC/USD", "1", "", func(market.Bar) {})
	assert.True(t, errors.Is(err, ErrNotSupported))
}
