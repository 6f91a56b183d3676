package parsers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"datafeed-go/internal/market"
)

// BinanceParser - парсер сообщений Binance. Symbol - унифицированный символ потока.
type BinanceParser struct {
	Symbol string
}

// BinanceCombinedMessage - конверт combined stream (?streams=a/b/c)
type BinanceCombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceAggTradeMessage - aggTrade
type BinanceAggTradeMessage struct {
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        Num    `json:"p"`
	Quantity     Num    `json:"q"`
	IsBuyerMaker bool   `json:"m"`
}

// BinanceDepthMessage - diff depth (/ws/<symbol>@depth)
type BinanceDepthMessage struct {
	Symbol        string              `json:"s"`
	FirstUpdateID int64               `json:"U"`
	FinalUpdateID int64               `json:"u"`
	Bids          [][]json.RawMessage `json:"b"`
	Asks          [][]json.RawMessage `json:"a"`
}

// BinanceKlineMessage - /ws/<symbol>@kline_<interval>
type BinanceKlineMessage struct {
	Symbol string `json:"s"`
	Kline  struct {
		StartTime int64 `json:"t"`
		Open      Num   `json:"o"`
		High      Num   `json:"h"`
		Low       Num   `json:"l"`
		Close     Num   `json:"c"`
		Volume    Num   `json:"v"`
		Closed    bool  `json:"x"`
	} `json:"k"`
}

func NewBinanceParser(symbol string) *BinanceParser {
	return &BinanceParser{Symbol: symbol}
}

// ParseTradeFrame разбирает кадр combined stream. ok=false для кадров других потоков
// (miniTicker, depth), их вызывающий пропускает.
func (p *BinanceParser) ParseTradeFrame(raw []byte) (trade market.Trade, ok bool, err error) {
	var envelope BinanceCombinedMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return trade, false, fmt.Errorf("failed to parse stream: %w", err)
	}
	if !strings.HasSuffix(envelope.Stream, "aggTrade") {
		return trade, false, nil
	}

	var msg BinanceAggTradeMessage
	if err := json.Unmarshal(envelope.Data, &msg); err != nil {
		return trade, false, fmt.Errorf("failed to parse aggTrade: %w", err)
	}

	side := market.TradeSideBuy
	takerOrMaker := "taker"
	if msg.IsBuyerMaker {
		side = market.TradeSideSell
		takerOrMaker = "maker"
	}
	trade = NewTrade(strconv.FormatInt(msg.TradeID, 10), p.Symbol, msg.EventTime, msg.Price.Float(), msg.Quantity.Float(), side)
	trade.TakerOrMaker = takerOrMaker
	return trade, true, nil
}

// ParseDepthFrame разбирает diff стакана. Склейку со снимком делает потребитель.
func (p *BinanceParser) ParseDepthFrame(raw []byte) (*market.OrderBook, error) {
	var msg BinanceDepthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse orderbook: %w", err)
	}
	if msg.Bids == nil && msg.Asks == nil {
		return nil, fmt.Errorf("not a depth frame")
	}
	bids, err := levelsFromRows(msg.Bids, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bids: %w", err)
	}
	asks, err := levelsFromRows(msg.Asks, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse asks: %w", err)
	}
	return &market.OrderBook{Bids: bids, Asks: asks, UpdateType: market.OrderBookUpdateTypeDiff}, nil
}

// ParseKlineFrame разбирает свечу kline потока
func (p *BinanceParser) ParseKlineFrame(raw []byte) (market.Bar, error) {
	var msg BinanceKlineMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return market.Bar{}, fmt.Errorf("failed to parse kline: %w", err)
	}
	if msg.Kline.StartTime == 0 {
		return market.Bar{}, fmt.Errorf("not a kline frame")
	}
	k := msg.Kline
	return market.Bar{
		Time:   k.StartTime,
		Open:   k.Open.Float(),
		High:   k.High.Float(),
		Low:    k.Low.Float(),
		Close:  k.Close.Float(),
		Volume: k.Volume.Float(),
	}, nil
}

// DecodeBinanceKlines - /api/v1/klines: [[openTime, o, h, l, c, v, ...]]
func DecodeBinanceKlines(body []byte) ([]market.Bar, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return barsFromRows(rows, barLayout{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 5})
}

type binanceRestTrade struct {
	ID           int64 `json:"id"`
	Price        Num   `json:"price"`
	Qty          Num   `json:"qty"`
	Time         int64 `json:"time"`
	IsBuyerMaker bool  `json:"isBuyerMaker"`
}

// DecodeBinanceTrades - /api/v3/trades
func DecodeBinanceTrades(body []byte, symbol string) ([]market.Trade, error) {
	var rows []binanceRestTrade
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(rows))
	for _, r := range rows {
		side, tm := market.TradeSideBuy, "taker"
		if r.IsBuyerMaker {
			side, tm = market.TradeSideSell, "maker"
		}
		t := NewTrade(strconv.FormatInt(r.ID, 10), symbol, r.Time, r.Price.Float(), r.Qty.Float(), side)
		t.TakerOrMaker = tm
		trades = append(trades, t)
	}
	return trades, nil
}

// DecodeBinanceDepth - /api/v3/depth: {bids:[[p,q]], asks:[[p,q]]}
func DecodeBinanceDepth(body []byte) (*market.OrderBook, error) {
	var msg struct {
		Bids [][]json.RawMessage `json:"bids"`
		Asks [][]json.RawMessage `json:"asks"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse depth: %w", err)
	}
	bids, err := levelsFromRows(msg.Bids, 0, 1)
	if err != nil {
		return nil, err
	}
	asks, err := levelsFromRows(msg.Asks, 0, 1)
	if err != nil {
		return nil, err
	}
	return snapshot(bids, asks), nil
}
