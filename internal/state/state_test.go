package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStateCreatesDefaultFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "streams.json")
	st := LoadState(file)
	assert.False(t, st.Active)
	assert.Empty(t, st.Streams)
	_, err := os.Stat(file)
	assert.NoError(t, err)
}

func TestSaveAndLoadStreams(t *testing.T) {
	file := filepath.Join(t.TempDir(), "streams.json")
	streams := []Stream{
		{Exchange: "binance", Kind: "trades", Symbol: "BTC/USDT"},
		{Exchange: "kraken", Kind: "orderbook", Symbol: "BTC/USD"},
	}
	saved, err := SetStreams(file, streams)
	require.NoError(t, err)
	assert.True(t, saved.Active)

	st := LoadState(file)
	assert.True(t, st.Active)
	assert.Equal(t, streams, st.Streams)
	_, err = os.Stat(file + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadStateCorruptFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "streams.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0644))
	st := LoadState(file)
	assert.False(t, st.Active)
	assert.Empty(t, st.Streams)
}
