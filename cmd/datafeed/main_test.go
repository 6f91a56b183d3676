package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"datafeed-go/internal/exchange"
	"datafeed-go/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolutionsCommand(t *testing.T) {
	out, err := run(t, "resolutions", "--exchange", "bitfinex")
	require.NoError(t, err)
	lines := strings.Fields(out)
	assert.Equal(t, "1", lines[0])
	assert.Contains(t, lines, "2W")

	_, err = run(t, "resolutions", "-e", "nosuch")
	assert.True(t, errors.Is(err, exchange.ErrUnknownExchange))
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "1000000", r.URL.Query().Get("startTime"))
		fmt.Fprint(w, `[[1000000,"1","2","0.5","1.5","10"]]`)
	}))
	defer srv.Close()

	missing := filepath.Join(t.TempDir(), "none.conf")
	out, err := run(t, "history", "-c", missing, "-e", "binance", "-s", "BTC/USDT", "-r", "D",
		"--from", "1000", "--to", "2000", "--rest-base", srv.URL)
	require.NoError(t, err)

	var res market.HistoryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Bars, 1)
	assert.Equal(t, 1.5, res.Bars[0].Close)
}

func TestServeFailsWithoutConfig(t *testing.T) {
	_, err := run(t, "serve", "-c", filepath.Join(t.TempDir(), "none.conf"))
	assert.Error(t, err)
}
