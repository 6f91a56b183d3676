package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"datafeed-go/internal/config"
	"datafeed-go/internal/market"
	"datafeed-go/pkg/log"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// noTrader - биржа без приватного API в этом демоне
type noTrader struct {
	creds config.Credentials
}

func (t noTrader) check() error {
	if !t.creds.HasKey() {
		return ErrMissingCredentials
	}
	return ErrNotSupported
}

func (t noTrader) ExecuteOrder(context.Context, string, market.OrderRequest) (market.Order, error) {
	return market.Order{}, t.check()
}
func (t noTrader) CancelOrder(context.Context, string, string) error { return t.check() }
func (t noTrader) GetOpenOrders(context.Context, string) ([]market.Order, error) {
	return nil, t.check()
}
func (t noTrader) GetBalances(context.Context) ([]market.Balance, error) { return nil, t.check() }

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func parseAmount(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// binanceTrader - ордера и балансы через go-binance
type binanceTrader struct {
	creds  config.Credentials
	client *binance.Client
	logger *log.Logger
}

func newBinanceTrader(creds config.Credentials, baseURL string) *binanceTrader {
	client := binance.NewClient(creds.ApiKey, creds.ApiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &binanceTrader{creds: creds, client: client, logger: log.New("binance_trader")}
}

func binanceSide(side market.TradeSide) (binance.SideType, error) {
	switch side {
	case market.TradeSideBuy:
		return binance.SideTypeBuy, nil
	case market.TradeSideSell:
		return binance.SideTypeSell, nil
	}
	return "", fmt.Errorf("unknown order side %q", side)
}

func binanceStatus(s binance.OrderStatusType) market.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew:
		return market.OrderStatusNew
	case binance.OrderStatusTypePartiallyFilled:
		return market.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return market.OrderStatusFilled
	case binance.OrderStatusTypeCanceled:
		return market.OrderStatusCanceled
	case binance.OrderStatusTypeExpired:
		return market.OrderStatusExpired
	default:
		return market.OrderStatusRejected
	}
}

func fromBinanceType(t binance.OrderType) market.OrderType {
	if t == binance.OrderTypeMarket {
		return market.OrderTypeMarket
	}
	return market.OrderTypeLimit
}

func (t *binanceTrader) ExecuteOrder(ctx context.Context, symbol string, req market.OrderRequest) (market.Order, error) {
	if !t.creds.HasKey() {
		return market.Order{}, ErrMissingCredentials
	}
	side, err := binanceSide(req.Side)
	if err != nil {
		return market.Order{}, err
	}
	venueSymbol := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))

	var resp *binance.CreateOrderResponse
	switch req.Market {
	case market.MarketSpot, "":
		svc := t.client.NewCreateOrderService().Symbol(venueSymbol).Side(side).Quantity(formatAmount(req.Amount))
		switch req.Kind {
		case market.OrderTypeMarket:
			svc = svc.Type(binance.OrderTypeMarket)
		case market.OrderTypeLimit:
			svc = svc.Type(binance.OrderTypeLimit).TimeInForce(binance.TimeInForceTypeGTC).Price(formatAmount(req.Price))
		default:
			return market.Order{}, fmt.Errorf("binance %s order: %w", req.Kind, ErrNotSupported)
		}
		resp, err = svc.Do(ctx)
	case market.MarketMargin:
		svc := t.client.NewCreateMarginOrderService().Symbol(venueSymbol).Side(side).Quantity(formatAmount(req.Amount))
		switch req.Kind {
		case market.OrderTypeMarket:
			svc = svc.Type(binance.OrderTypeMarket)
		case market.OrderTypeLimit:
			svc = svc.Type(binance.OrderTypeLimit).TimeInForce(binance.TimeInForceTypeGTC).Price(formatAmount(req.Price))
		default:
			return market.Order{}, fmt.Errorf("binance margin %s order: %w", req.Kind, ErrNotSupported)
		}
		resp, err = svc.Do(ctx)
	default:
		return market.Order{}, fmt.Errorf("binance %s market: %w", req.Market, ErrNotSupported)
	}
	if err != nil {
		return market.Order{}, fmt.Errorf("binance create order: %w", err)
	}

	t.logger.Info("[BINANCE_TRADER] order %d %s %s %s placed", resp.OrderID, resp.Side, resp.Type, resp.Symbol)
	return market.Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        symbol,
		Side:          req.Side,
		Type:          fromBinanceType(resp.Type),
		Status:        binanceStatus(resp.Status),
		Price:         parseAmount(resp.Price),
		Amount:        parseAmount(resp.OrigQuantity),
		Filled:        parseAmount(resp.ExecutedQuantity),
		Timestamp:     resp.TransactTime,
	}, nil
}

func (t *binanceTrader) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if !t.creds.HasKey() {
		return ErrMissingCredentials
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid binance order id %q: %w", orderID, err)
	}
	venueSymbol := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	if _, err := t.client.NewCancelOrderService().Symbol(venueSymbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("binance cancel order: %w", err)
	}
	return nil
}

func (t *binanceTrader) GetOpenOrders(ctx context.Context, symbol string) ([]market.Order, error) {
	if !t.creds.HasKey() {
		return nil, ErrMissingCredentials
	}
	svc := t.client.NewListOpenOrdersService()
	if symbol != "" {
		svc = svc.Symbol(strings.ToUpper(strings.ReplaceAll(symbol, "/", "")))
	}
	orders, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance open orders: %w", err)
	}

	out := make([]market.Order, 0, len(orders))
	for _, o := range orders {
		side := market.TradeSideBuy
		if o.Side == binance.SideTypeSell {
			side = market.TradeSideSell
		}
		out = append(out, market.Order{
			ID:            strconv.FormatInt(o.OrderID, 10),
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          side,
			Type:          fromBinanceType(o.Type),
			Status:        binanceStatus(o.Status),
			Price:         parseAmount(o.Price),
			Amount:        parseAmount(o.OrigQuantity),
			Filled:        parseAmount(o.ExecutedQuantity),
			Timestamp:     o.Time,
		})
	}
	return out, nil
}

func (t *binanceTrader) GetBalances(ctx context.Context) ([]market.Balance, error) {
	if !t.creds.HasKey() {
		return nil, ErrMissingCredentials
	}
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}
	out := make([]market.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		bal := market.Balance{Currency: b.Asset, Free: parseAmount(b.Free), Locked: parseAmount(b.Locked)}
		if bal.Total() == 0 {
			continue
		}
		out = append(out, bal)
	}
	return out, nil
}
