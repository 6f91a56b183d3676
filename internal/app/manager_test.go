package app

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"datafeed-go/internal/config"
	"datafeed-go/internal/db"
	"datafeed-go/internal/exchange"
	"datafeed-go/internal/market"
	"datafeed-go/internal/state"
	"datafeed-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	exchanges map[string]*db.Exchange
	margin    map[string][]string
	closed    atomic.Bool
}

func (f *fakeDB) Connect() error { return nil }
func (f *fakeDB) Close() error   { f.closed.Store(true); return nil }
func (f *fakeDB) Ping() error    { return nil }

func (f *fakeDB) GetExchangeByName(name string) (*db.Exchange, error) {
	if ex, ok := f.exchanges[name]; ok {
		return ex, nil
	}
	return nil, db.ErrExchangeNotFound
}

func (f *fakeDB) GetMarginSymbols(exchange string) ([]string, error) {
	return f.margin[exchange], nil
}

func hitbtcServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"price":"100","quantity":"0.5","side":"buy","timestamp":"2019-06-01T00:00:00.000Z"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, file string, enabled ...string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Daemon.HttpPort = 0
	cfg.Daemon.StateFile = file
	cfg.Exchanges.Enabled = enabled
	cfg.Stream.PollInterval = 20
	return cfg
}

func TestManagerBuildsAdaptersWithDBOverrides(t *testing.T) {
	srv := hitbtcServer(t)
	store := &fakeDB{
		exchanges: map[string]*db.Exchange{
			"hitbtc": {Name: "hitbtc", Active: true, BaseUrl: sql.NullString{String: srv.URL, Valid: true}},
			"kraken": {Name: "kraken", Active: false},
		},
		margin: map[string][]string{"hitbtc": {"ETH/BTC"}},
	}
	file := filepath.Join(t.TempDir(), "streams.json")
	m := NewManager(testConfig(t, file, "hitbtc", "kraken", "nosuch", "HitBTC"), store, log.New("test"))

	_, ok := m.Adapter("kraken")
	assert.False(t, ok)
	stub, ok := m.Adapter("nosuch")
	require.True(t, ok)
	assert.IsType(t, &exchange.StubAdapter{}, stub)
	assert.Len(t, m.Adapters(), 2)

	m.Start()
	require.NoError(t, m.StartStream("hitbtc", market.StreamTrades, "BTC/USDT"))

	require.Eventually(t, func() bool {
		st, ok := m.Collector().Snapshot("hitbtc", "BTC/USDT")
		return ok && st.FullTrades > 0
	}, 3*time.Second, 10*time.Millisecond)

	hitbtc, _ := m.Adapter("hitbtc")
	require.Eventually(t, func() bool { return len(hitbtc.MarginSymbols()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, hitbtc.AllowsMarginTrading("ETH/BTC"))

	st := state.LoadState(file)
	assert.Equal(t, []state.Stream{{Exchange: "hitbtc", Kind: "trades", Symbol: "BTC/USDT"}}, st.Streams)

	stats := m.Stats()
	assert.Contains(t, stats, "collector")
	assert.Contains(t, stats, "capability_monitor")

	err := m.StartStream("kraken", market.StreamTrades, "BTC/USD")
	assert.True(t, errors.Is(err, exchange.ErrUnknownExchange))

	m.Stop()
	m.Stop()
	assert.True(t, store.closed.Load())
	assert.Len(t, state.LoadState(file).Streams, 1)
}

func TestManagerRestoresStreamsFromState(t *testing.T) {
	srv := hitbtcServer(t)
	file := filepath.Join(t.TempDir(), "streams.json")
	_, err := state.SetStreams(file, []state.Stream{
		{Exchange: "hitbtc", Kind: "orderbook", Symbol: "ETH/USDT"},
		{Exchange: "hitbtc", Kind: "candles", Symbol: "ETH/USDT"},
		{Exchange: "bitmex", Kind: "trades", Symbol: "XBT/USD"},
	})
	require.NoError(t, err)

	store := &fakeDB{exchanges: map[string]*db.Exchange{
		"hitbtc": {Name: "hitbtc", Active: true, BaseUrl: sql.NullString{String: srv.URL, Valid: true}},
	}}
	m := NewManager(testConfig(t, file, "hitbtc"), store, log.New("test"))
	m.Start()
	defer m.Stop()

	hitbtc, _ := m.Adapter("hitbtc")
	assert.Equal(t, []exchange.StreamKey{{Exchange: "hitbtc", Kind: market.StreamOrderBook, Symbol: "ETH/USDT"}}, hitbtc.ActiveStreams())

	require.NoError(t, m.StopStream("hitbtc", market.StreamOrderBook, "ETH/USDT"))
	assert.Empty(t, hitbtc.ActiveStreams())
	assert.Empty(t, state.LoadState(file).Streams)
}

func TestStopWithoutStartKeepsState(t *testing.T) {
	file := filepath.Join(t.TempDir(), "streams.json")
	_, err := state.SetStreams(file, []state.Stream{{Exchange: "binance", Kind: "trades", Symbol: "BTC/USDT"}})
	require.NoError(t, err)

	m := NewManager(testConfig(t, file, "binance"), nil, log.New("test"))
	m.Stop()
	assert.Len(t, state.LoadState(file).Streams, 1)
}
