package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"datafeed-go/internal/config"
	"datafeed-go/internal/market"
	"datafeed-go/pkg/log"
)

// coindcxTrader - подписанные запросы CoinDCX: HMAC-SHA256 (hex) от JSON тела,
// ключ в X-AUTH-APIKEY, подпись в X-AUTH-SIGNATURE
type coindcxTrader struct {
	creds  config.Credentials
	rest   *CexRestClient
	now    func() time.Time
	logger *log.Logger
}

func newCoinDCXTrader(creds config.Credentials, rest *CexRestClient) *coindcxTrader {
	return &coindcxTrader{creds: creds, rest: rest, now: time.Now, logger: log.New("coindcx_trader")}
}

type coindcxOrder struct {
	ID                string  `json:"id"`
	Market            string  `json:"market"`
	OrderType         string  `json:"order_type"`
	Side              string  `json:"side"`
	Status            string  `json:"status"`
	PricePerUnit      float64 `json:"price_per_unit"`
	TotalQuantity     float64 `json:"total_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	CreatedAt         int64   `json:"created_at"`
}

type coindcxOrders struct {
	Orders []coindcxOrder `json:"orders"`
}

type coindcxBalance struct {
	Currency      string  `json:"currency"`
	Balance       float64 `json:"balance"`
	LockedBalance float64 `json:"locked_balance"`
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// post подписывает и отправляет тело; timestamp добавляется в каждый запрос
func (t *coindcxTrader) post(ctx context.Context, path string, data map[string]interface{}, out interface{}) error {
	if !t.creds.HasKey() {
		return ErrMissingCredentials
	}
	data["timestamp"] = t.now().Unix()
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("coindcx marshal: %w", err)
	}
	headers := map[string]string{
		"X-AUTH-APIKEY":    t.creds.ApiKey,
		"X-AUTH-SIGNATURE": signPayload(t.creds.ApiSecret, payload),
	}
	if err := t.rest.PostJSON(ctx, path, headers, payload, out); err != nil {
		return fmt.Errorf("coindcx %s: %w", path, err)
	}
	return nil
}

func coindcxStatus(s string) market.OrderStatus {
	switch s {
	case "open", "init":
		return market.OrderStatusNew
	case "partially_filled":
		return market.OrderStatusPartiallyFilled
	case "filled":
		return market.OrderStatusFilled
	case "cancelled", "partially_cancelled":
		return market.OrderStatusCanceled
	default:
		return market.OrderStatusRejected
	}
}

func (o coindcxOrder) toOrder(symbol string) market.Order {
	kind := market.OrderTypeLimit
	if o.OrderType == "market_order" {
		kind = market.OrderTypeMarket
	}
	if symbol == "" {
		symbol = o.Market
	}
	return market.Order{
		ID:        o.ID,
		Symbol:    symbol,
		Side:      market.TradeSide(o.Side),
		Type:      kind,
		Status:    coindcxStatus(o.Status),
		Price:     o.PricePerUnit,
		Amount:    o.TotalQuantity,
		Filled:    o.TotalQuantity - o.RemainingQuantity,
		Timestamp: o.CreatedAt,
	}
}

func coindcxMarket(symbol string) (string, error) {
	return market.NewSymbolRegistry().ExchangeSymbol("coindcx", symbol)
}

func (t *coindcxTrader) ExecuteOrder(ctx context.Context, symbol string, req market.OrderRequest) (market.Order, error) {
	if !t.creds.HasKey() {
		return market.Order{}, ErrMissingCredentials
	}
	if req.Market == market.MarketMargin || req.Market == market.MarketPaper {
		return market.Order{}, fmt.Errorf("coindcx %s market: %w", req.Market, ErrNotSupported)
	}
	pair, err := coindcxMarket(symbol)
	if err != nil {
		return market.Order{}, err
	}

	data := map[string]interface{}{
		"side":           string(req.Side),
		"market":         pair,
		"total_quantity": req.Amount,
	}
	switch req.Kind {
	case market.OrderTypeMarket:
		data["order_type"] = "market_order"
	case market.OrderTypeLimit:
		data["order_type"] = "limit_order"
		data["price_per_unit"] = req.Price
	default:
		return market.Order{}, fmt.Errorf("coindcx %s order: %w", req.Kind, ErrNotSupported)
	}

	var resp coindcxOrders
	if err := t.post(ctx, "/exchange/v1/orders/create", data, &resp); err != nil {
		return market.Order{}, err
	}
	if len(resp.Orders) == 0 {
		return market.Order{}, fmt.Errorf("coindcx create order: empty response")
	}
	t.logger.Info("[COINDCX_TRADER] order %s %s %s placed", resp.Orders[0].ID, req.Side, pair)
	return resp.Orders[0].toOrder(symbol), nil
}

func (t *coindcxTrader) CancelOrder(ctx context.Context, _ string, orderID string) error {
	return t.post(ctx, "/exchange/v1/orders/cancel", map[string]interface{}{"id": orderID}, nil)
}

// OrderStatus запрашивает ордер по id
func (t *coindcxTrader) OrderStatus(ctx context.Context, orderID string) (market.Order, error) {
	var o coindcxOrder
	if err := t.post(ctx, "/exchange/v1/orders/status", map[string]interface{}{"id": orderID}, &o); err != nil {
		return market.Order{}, err
	}
	return o.toOrder(""), nil
}

func (t *coindcxTrader) GetOpenOrders(ctx context.Context, symbol string) ([]market.Order, error) {
	if !t.creds.HasKey() {
		return nil, ErrMissingCredentials
	}
	data := map[string]interface{}{}
	if symbol != "" {
		pair, err := coindcxMarket(symbol)
		if err != nil {
			return nil, err
		}
		data["market"] = pair
	}
	var resp coindcxOrders
	if err := t.post(ctx, "/exchange/v1/orders/active_orders", data, &resp); err != nil {
		return nil, err
	}
	out := make([]market.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		out = append(out, o.toOrder(symbol))
	}
	return out, nil
}

// TradeHistory - последние исполненные сделки аккаунта
func (t *coindcxTrader) TradeHistory(ctx context.Context, limit int) ([]market.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []coindcxOrder
	if err := t.post(ctx, "/exchange/v1/orders/trade_history", map[string]interface{}{"limit": limit}, &orders); err != nil {
		return nil, err
	}
	out := make([]market.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.toOrder(""))
	}
	return out, nil
}

func (t *coindcxTrader) GetBalances(ctx context.Context) ([]market.Balance, error) {
	var balances []coindcxBalance
	if err := t.post(ctx, "/exchange/v1/users/balances", map[string]interface{}{}, &balances); err != nil {
		return nil, err
	}
	out := make([]market.Balance, 0, len(balances))
	for _, b := range balances {
		bal := market.Balance{Currency: b.Currency, Free: b.Balance, Locked: b.LockedBalance}
		if bal.Total() == 0 {
			continue
		}
		out = append(out, bal)
	}
	return out, nil
}
