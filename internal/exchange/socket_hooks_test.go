package exchange

import (
	"net/http"
	"testing"
	"time"

	"datafeed-go/internal/bus"
	"datafeed-go/internal/wsclient"
	"datafeed-go/pkg/log"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStreamEnv(name string) *streamEnv {
	mb := bus.New(name)
	return &streamEnv{
		exchange:       name,
		logger:         log.New(name + "_test"),
		bus:            mb,
		throttle:       bus.NewThrottler(mb, time.Hour),
		connectPoll:    10 * time.Millisecond,
		connectTimeout: time.Second,
	}
}

func TestBitfinexStaleSocketCloseKeepsChannels(t *testing.T) {
	s := newBitfinexStreamer(testStreamEnv("bitfinex"))
	old := wsclient.New("ws://127.0.0.1:1/old")
	cur := wsclient.New("ws://127.0.0.1:1/cur")

	s.mu.Lock()
	s.sock = cur
	s.wanted["BTCUSD"] = "BTC/USD"
	s.chanIDs["BTCUSD"] = 42
	s.chanPairs[42] = "BTCUSD"
	s.mu.Unlock()

	s.onClose(old, 1000, "")
	assert.False(t, s.current(old))
	s.mu.Lock()
	assert.Equal(t, "BTCUSD", s.chanPairs[42])
	assert.Equal(t, int64(42), s.chanIDs["BTCUSD"])
	s.mu.Unlock()

	s.onClose(cur, 1006, "")
	s.mu.Lock()
	assert.Empty(t, s.chanPairs)
	assert.Empty(t, s.chanIDs)
	assert.Contains(t, s.wanted, "BTCUSD")
	s.mu.Unlock()
}

func TestBitmexStaleSocketOpenDoesNotResubscribe(t *testing.T) {
	frames := make(chan string, 4)
	wsURL := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(data)
		}
	})

	s := newBitmexStreamer(testStreamEnv("bitmex"))
	cur := wsclient.New(wsURL)
	cur.Open()
	t.Cleanup(func() { _ = cur.Close() })
	require.Eventually(t, cur.IsOpen, 3*time.Second, 10*time.Millisecond)

	s.mu.Lock()
	s.sock = cur
	s.wanted["XBTUSD"] = "BTC/USD"
	s.mu.Unlock()

	s.onOpen(wsclient.New("ws://127.0.0.1:1/old"))
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame from stale open: %s", f)
	case <-time.After(200 * time.Millisecond):
	}

	s.onOpen(cur)
	select {
	case f := <-frames:
		assert.JSONEq(t, `{"op":"subscribe","args":["trade:XBTUSD"]}`, f)
	case <-time.After(3 * time.Second):
		t.Fatal("no subscribe after current socket opened")
	}
}
