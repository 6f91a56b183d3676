package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"datafeed-go/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSkipsUnchangedStreams(t *testing.T) {
	file := filepath.Join(t.TempDir(), "streams.json")
	streams := []state.Stream{{Exchange: "binance", Kind: "trades", Symbol: "BTC/USDT"}}
	d := NewDaemon(file, time.Hour, func() []state.Stream { return streams })

	d.Checkpoint()
	d.Checkpoint()
	assert.Equal(t, 1, d.Saves())
	assert.Equal(t, streams, state.LoadState(file).Streams)

	streams = nil
	d.Checkpoint()
	assert.Equal(t, 2, d.Saves())
	st := state.LoadState(file)
	assert.False(t, st.Active)
	assert.Empty(t, st.Streams)
}

func TestRunCheckpointsUntilCancelled(t *testing.T) {
	file := filepath.Join(t.TempDir(), "streams.json")
	var mu sync.Mutex
	n := 0
	d := NewDaemon(file, 10*time.Millisecond, func() []state.Stream {
		mu.Lock()
		defer mu.Unlock()
		n++
		return []state.Stream{{Exchange: "kraken", Kind: "trades", Symbol: "BTC/USD"}}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return d.Saves() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	mu.Lock()
	assert.GreaterOrEqual(t, n, 1)
	mu.Unlock()
}
