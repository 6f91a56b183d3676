package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"datafeed-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	symbols map[string][]string
	err     map[string]error
	calls   int
}

func (f *fakeSource) GetMarginSymbols(exchange string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.err[exchange]; err != nil {
		return nil, err
	}
	return f.symbols[exchange], nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTarget struct {
	name    string
	mu      sync.Mutex
	symbols []string
}

func (f *fakeTarget) ExchangeName() string { return f.name }

func (f *fakeTarget) SetMarginSymbols(s []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = s
}

func (f *fakeTarget) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.symbols
}

func TestRefreshOnceUpdatesAndKeepsPreviousOnError(t *testing.T) {
	binance := &fakeTarget{name: "binance", symbols: []string{"BTCUSDT"}}
	bitfinex := &fakeTarget{name: "bitfinex", symbols: []string{"BTCUSD"}}
	kraken := &fakeTarget{name: "kraken", symbols: []string{"XBTUSD"}}
	src := &fakeSource{
		symbols: map[string][]string{"binance": {"ETH/USDT", "BTC/USDT"}},
		err:     map[string]error{"bitfinex": errors.New("db down")},
	}
	cm := NewCapabilityMonitor(log.New("test"), src, []MarginTarget{binance, bitfinex, kraken}, time.Hour)

	cm.RefreshOnce()
	assert.Equal(t, []string{"ETH/USDT", "BTC/USDT"}, binance.get())
	assert.Equal(t, []string{"BTCUSD"}, bitfinex.get())
	assert.Equal(t, []string{"XBTUSD"}, kraken.get())

	runs, updates, errs, last := cm.Metrics()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, updates)
	assert.Equal(t, 1, errs)
	assert.False(t, last.IsZero())
}

func TestStartRefreshesImmediatelyAndStops(t *testing.T) {
	src := &fakeSource{symbols: map[string][]string{"binance": {"BTC/USDT"}}}
	target := &fakeTarget{name: "binance"}
	cm := NewCapabilityMonitor(log.New("test"), src, []MarginTarget{target}, 10*time.Millisecond)

	cm.Start()
	require.Eventually(t, func() bool { return src.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cm.Stop()
	cm.Stop()

	calls := src.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.callCount())
	assert.Equal(t, []string{"BTC/USDT"}, target.get())
}

func TestNilSourceIsNoop(t *testing.T) {
	cm := NewCapabilityMonitor(log.New("test"), nil, []MarginTarget{&fakeTarget{name: "x"}}, 0)
	cm.RefreshOnce()
	runs, _, _, _ := cm.Metrics()
	assert.Equal(t, 0, runs)
}
