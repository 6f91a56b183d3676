package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"datafeed-go/internal/config"
	"datafeed-go/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = config.Credentials{ApiKey: "key", ApiSecret: "secret"}

func TestCoinDCXSignedOrder(t *testing.T) {
	type captured struct {
		path string
		key  string
		sig  string
		body map[string]interface{}
		ok   bool
	}
	got := make(chan captured, 1)
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c := captured{path: r.URL.Path, key: r.Header.Get("X-AUTH-APIKEY"), sig: r.Header.Get("X-AUTH-SIGNATURE")}
		c.ok = c.sig == signPayload("secret", raw)
		_ = json.Unmarshal(raw, &c.body)
		got <- c
		_, _ = w.Write([]byte(`{"orders":[{"id":"abc","market":"BTCINR","order_type":"limit_order","side":"buy","status":"open","price_per_unit":100,"total_quantity":2,"remaining_quantity":1.5,"created_at":1560000000000}]}`))
	})
	a := newTestAdapter(t, "coindcx", Options{RestBase: srv.URL, Credentials: testCreds})

	order, err := a.ExecuteOrder(context.Background(), "BTC/INR", market.OrderRequest{
		Side: market.TradeSideBuy, Kind: market.OrderTypeLimit, Amount: 2, Price: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", order.ID)
	assert.Equal(t, "BTC/INR", order.Symbol)
	assert.Equal(t, market.OrderStatusNew, order.Status)
	assert.Equal(t, 0.5, order.Filled)

	c := <-got
	assert.Equal(t, "/exchange/v1/orders/create", c.path)
	assert.Equal(t, "key", c.key)
	assert.True(t, c.ok, "signature must be HMAC-SHA256 of the body")
	assert.Equal(t, "BTCINR", c.body["market"])
	assert.Equal(t, "limit_order", c.body["order_type"])
	assert.Contains(t, c.body, "timestamp")
}

func TestCoinDCXRejectsMarginAndStopOrders(t *testing.T) {
	a := newTestAdapter(t, "coindcx", Options{RestBase: "http://127.0.0.1:1", Credentials: testCreds})
	_, err := a.ExecuteOrder(context.Background(), "BTC/INR", market.OrderRequest{Kind: market.OrderTypeStopLimit, Side: market.TradeSideBuy})
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestCoinDCXTimestampInSeconds(t *testing.T) {
	bodies := make(chan map[string]interface{}, 1)
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchange/v1/orders/trade_history", r.URL.Path)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		_, _ = w.Write([]byte(`[{"id":"1","market":"ETHINR","side":"sell","status":"filled","total_quantity":1,"remaining_quantity":0}]`))
	})
	trader := newCoinDCXTrader(testCreds, NewCexRestClient("coindcx", srv.URL, RestOptions{}))
	trader.now = func() time.Time { return time.Unix(1560000000, 0) }

	orders, err := trader.TradeHistory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, market.OrderStatusFilled, orders[0].Status)
	assert.Equal(t, 1.0, orders[0].Filled)

	body := <-bodies
	assert.Equal(t, float64(1560000000), body["timestamp"])
	assert.Equal(t, float64(50), body["limit"])
}

func TestCoinDCXBalancesSkipEmpty(t *testing.T) {
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"currency":"BTC","balance":1.5,"locked_balance":0.5},{"currency":"XRP","balance":0,"locked_balance":0}]`))
	})
	a := newTestAdapter(t, "coindcx", Options{RestBase: srv.URL, Credentials: testCreds})

	balances, err := a.GetBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "BTC", balances[0].Currency)
	assert.Equal(t, 2.0, balances[0].Total())
}

func TestBinanceTraderCreateOrder(t *testing.T) {
	srv := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":28,"clientOrderId":"cid","transactTime":1560000000000,` +
			`"price":"100.00","origQty":"1.5","executedQty":"0.5","status":"PARTIALLY_FILLED","type":"LIMIT","side":"BUY"}`))
	})
	a := newTestAdapter(t, "binance", Options{TradeBase: srv.URL, Credentials: testCreds})

	order, err := a.ExecuteOrder(context.Background(), "BTC/USDT", market.OrderRequest{
		Side: market.TradeSideBuy, Kind: market.OrderTypeLimit, Amount: 1.5, Price: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "28", order.ID)
	assert.Equal(t, "cid", order.ClientOrderID)
	assert.Equal(t, market.OrderStatusPartiallyFilled, order.Status)
	assert.Equal(t, 0.5, order.Filled)
	assert.Equal(t, 100.0, order.Price)
}

func TestBinanceTraderRejectsUnsupportedOrderKind(t *testing.T) {
	a := newTestAdapter(t, "binance", Options{TradeBase: "http://127.0.0.1:1", Credentials: testCreds})
	_, err := a.ExecuteOrder(context.Background(), "BTC/USDT", market.OrderRequest{
		Side: market.TradeSideBuy, Kind: market.OrderTypeTrailingStop, Amount: 1,
	})
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.1", formatAmount(0.1))
	assert.Equal(t, "1500", formatAmount(1500))
	assert.Equal(t, 0.00012, parseAmount("0.00012"))
	assert.Equal(t, 0.0, parseAmount("bogus"))
}
