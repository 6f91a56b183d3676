package parsers

import (
	"encoding/json"
	"fmt"
	"strconv"

	"datafeed-go/internal/market"
)

// Декодеры REST ответов бирж без собственного потокового парсера

// --- Bittrex ---

type bittrexEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (e bittrexEnvelope) check() error {
	if !e.Success {
		return fmt.Errorf("bittrex error: %s", e.Message)
	}
	return nil
}

// DecodeBittrexTicks - GetTicks: result[{T, O, H, L, C, V}]
func DecodeBittrexTicks(body []byte) ([]market.Bar, error) {
	var env bittrexEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse ticks: %w", err)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	var rows []struct {
		T string `json:"T"`
		O Num    `json:"O"`
		H Num    `json:"H"`
		L Num    `json:"L"`
		C Num    `json:"C"`
		V Num    `json:"V"`
	}
	if len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse ticks: %w", err)
		}
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.T)
		if err != nil {
			return nil, err
		}
		bars = append(bars, market.Bar{Time: ts, Open: r.O.Float(), High: r.H.Float(), Low: r.L.Float(), Close: r.C.Float(), Volume: r.V.Float()})
	}
	return bars, nil
}

// DecodeBittrexTrades - getmarkethistory: result[{Id, TimeStamp, Quantity, Price, OrderType}]
func DecodeBittrexTrades(body []byte, symbol string) ([]market.Trade, error) {
	var env bittrexEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	var rows []struct {
		ID        int64  `json:"Id"`
		TimeStamp string `json:"TimeStamp"`
		Quantity  Num    `json:"Quantity"`
		Price     Num    `json:"Price"`
		OrderType string `json:"OrderType"`
	}
	if err := json.Unmarshal(env.Result, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.TimeStamp)
		if err != nil {
			return nil, err
		}
		trades = append(trades, NewTrade(strconv.FormatInt(r.ID, 10), symbol, ts, r.Price.Float(), r.Quantity.Float(), parseSide(r.OrderType)))
	}
	return trades, nil
}

// DecodeBittrexBook - getorderbook?type=both: result{buy:[{Quantity, Rate}], sell:[...]}
func DecodeBittrexBook(body []byte) (*market.OrderBook, error) {
	var env bittrexEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	type level struct {
		Quantity Num `json:"Quantity"`
		Rate     Num `json:"Rate"`
	}
	var book struct {
		Buy  []level `json:"buy"`
		Sell []level `json:"sell"`
	}
	if err := json.Unmarshal(env.Result, &book); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	convert := func(in []level) []market.PriceLevel {
		out := make([]market.PriceLevel, 0, len(in))
		for _, l := range in {
			out = append(out, market.PriceLevel{Price: l.Rate.Float(), Amount: l.Quantity.Float()})
		}
		return out
	}
	return snapshot(convert(book.Buy), convert(book.Sell)), nil
}

// --- Cobinhood ---

type cobinhoodEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   struct {
		ErrorCode string `json:"error_code"`
	} `json:"error"`
}

func decodeCobinhood(body []byte, out interface{}) error {
	var env cobinhoodEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("cobinhood error: %s", env.Error.ErrorCode)
	}
	return json.Unmarshal(env.Result, out)
}

// DecodeCobinhoodCandles - result.candles[{timestamp, open, close, high, low, volume}]
func DecodeCobinhoodCandles(body []byte) ([]market.Bar, error) {
	var result struct {
		Candles []struct {
			Timestamp int64 `json:"timestamp"`
			Open      Num   `json:"open"`
			Close     Num   `json:"close"`
			High      Num   `json:"high"`
			Low       Num   `json:"low"`
			Volume    Num   `json:"volume"`
		} `json:"candles"`
	}
	if err := decodeCobinhood(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse candles: %w", err)
	}
	bars := make([]market.Bar, 0, len(result.Candles))
	for _, c := range result.Candles {
		bars = append(bars, market.Bar{Time: c.Timestamp, Open: c.Open.Float(), High: c.High.Float(), Low: c.Low.Float(), Close: c.Close.Float(), Volume: c.Volume.Float()})
	}
	return bars, nil
}

// DecodeCobinhoodTrades - result.trades[{id, maker_side, timestamp, price, size}]
func DecodeCobinhoodTrades(body []byte, symbol string) ([]market.Trade, error) {
	var result struct {
		Trades []struct {
			ID        string `json:"id"`
			MakerSide string `json:"maker_side"`
			Timestamp int64  `json:"timestamp"`
			Price     Num    `json:"price"`
			Size      Num    `json:"size"`
		} `json:"trades"`
	}
	if err := decodeCobinhood(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(result.Trades))
	for _, r := range result.Trades {
		// maker_side=bid значит тейкер продавал
		side := market.TradeSideBuy
		if r.MakerSide == "bid" {
			side = market.TradeSideSell
		}
		trades = append(trades, NewTrade(r.ID, symbol, r.Timestamp, r.Price.Float(), r.Size.Float(), side))
	}
	return trades, nil
}

// DecodeCobinhoodBook - result.orderbook{bids:[[price, count, size]], asks}
func DecodeCobinhoodBook(body []byte) (*market.OrderBook, error) {
	var result struct {
		OrderBook struct {
			Bids [][]json.RawMessage `json:"bids"`
			Asks [][]json.RawMessage `json:"asks"`
		} `json:"orderbook"`
	}
	if err := decodeCobinhood(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	return bookFromRows(result.OrderBook.Bids, result.OrderBook.Asks, 0, 2)
}

// --- Coinbase Prime ---

// DecodeCoinbaseCandles - [[time, low, high, open, close, volume]], от новых к старым
func DecodeCoinbaseCandles(body []byte) ([]market.Bar, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return barsFromRows(rows, barLayout{time: 0, low: 1, high: 2, open: 3, close: 4, volume: 5, timeScale: 1000})
}

// DecodeCoinbaseTrades - /products/<id>/trades: [{trade_id, price, size, side, time}]
func DecodeCoinbaseTrades(body []byte, symbol string) ([]market.Trade, error) {
	var rows []struct {
		TradeID int64  `json:"trade_id"`
		Price   Num    `json:"price"`
		Size    Num    `json:"size"`
		Side    string `json:"side"`
		Time    string `json:"time"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.Time)
		if err != nil {
			return nil, err
		}
		trades = append(trades, NewTrade(strconv.FormatInt(r.TradeID, 10), symbol, ts, r.Price.Float(), r.Size.Float(), parseSide(r.Side)))
	}
	return trades, nil
}

// DecodeLevel2Book - {bids:[[price, size, ...]], asks} (Coinbase, OKEx)
func DecodeLevel2Book(body []byte) (*market.OrderBook, error) {
	var msg struct {
		Bids [][]json.RawMessage `json:"bids"`
		Asks [][]json.RawMessage `json:"asks"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	return bookFromRows(msg.Bids, msg.Asks, 0, 1)
}

func bookFromRows(bidRows, askRows [][]json.RawMessage, priceIdx, amountIdx int) (*market.OrderBook, error) {
	bids, err := levelsFromRows(bidRows, priceIdx, amountIdx)
	if err != nil {
		return nil, err
	}
	asks, err := levelsFromRows(askRows, priceIdx, amountIdx)
	if err != nil {
		return nil, err
	}
	return snapshot(bids, asks), nil
}

// --- HitBTC ---

// DecodeHitBTCCandles - [{timestamp, open, close, min, max, volume}]
func DecodeHitBTCCandles(body []byte) ([]market.Bar, error) {
	var rows []struct {
		Timestamp string `json:"timestamp"`
		Open      Num    `json:"open"`
		Close     Num    `json:"close"`
		Min       Num    `json:"min"`
		Max       Num    `json:"max"`
		Volume    Num    `json:"volume"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse candles: %w", err)
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.Timestamp)
		if err != nil {
			return nil, err
		}
		bars = append(bars, market.Bar{Time: ts, Open: r.Open.Float(), High: r.Max.Float(), Low: r.Min.Float(), Close: r.Close.Float(), Volume: r.Volume.Float()})
	}
	return bars, nil
}

// DecodeHitBTCTrades - /public/trades/<SYM>: [{id, price, quantity, side, timestamp}]
func DecodeHitBTCTrades(body []byte, symbol string) ([]market.Trade, error) {
	var rows []struct {
		ID        int64  `json:"id"`
		Price     Num    `json:"price"`
		Quantity  Num    `json:"quantity"`
		Side      string `json:"side"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.Timestamp)
		if err != nil {
			return nil, err
		}
		trades = append(trades, NewTrade(strconv.FormatInt(r.ID, 10), symbol, ts, r.Price.Float(), r.Quantity.Float(), parseSide(r.Side)))
	}
	return trades, nil
}

// DecodeHitBTCBook - /public/orderbook/<SYM>: {ask:[{price, size}], bid:[...]}
func DecodeHitBTCBook(body []byte) (*market.OrderBook, error) {
	type level struct {
		Price Num `json:"price"`
		Size  Num `json:"size"`
	}
	var msg struct {
		Ask []level `json:"ask"`
		Bid []level `json:"bid"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	convert := func(in []level) []market.PriceLevel {
		out := make([]market.PriceLevel, 0, len(in))
		for _, l := range in {
			out = append(out, market.PriceLevel{Price: l.Price.Float(), Amount: l.Size.Float()})
		}
		return out
	}
	return snapshot(convert(msg.Bid), convert(msg.Ask)), nil
}

// --- Kraken ---

type krakenEnvelope struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// krakenPairResult возвращает данные первой пары, пропуская служебный ключ last
func krakenPairResult(body []byte) (json.RawMessage, error) {
	var env krakenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if len(env.Error) > 0 {
		return nil, fmt.Errorf("kraken error: %v", env.Error)
	}
	for key, data := range env.Result {
		if key == "last" {
			continue
		}
		return data, nil
	}
	return nil, nil
}

// DecodeKrakenOHLC - result[pair][[time, o, h, l, c, vwap, volume, count]]
func DecodeKrakenOHLC(body []byte) ([]market.Bar, error) {
	data, err := krakenPairResult(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ohlc: %w", err)
	}
	if data == nil {
		return []market.Bar{}, nil
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	return barsFromRows(rows, barLayout{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 6, timeScale: 1000})
}

// DecodeKrakenTrades - result[pair][[price, volume, time, side, type, misc, id]]
func DecodeKrakenTrades(body []byte, symbol string) ([]market.Trade, error) {
	data, err := krakenPairResult(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	if data == nil {
		return []market.Trade{}, nil
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	trades := make([]market.Trade, 0, len(rows))
	for i, row := range rows {
		price, err := numAt(row, 0)
		if err != nil {
			return nil, err
		}
		volume, err := numAt(row, 1)
		if err != nil {
			return nil, err
		}
		ts, err := numAt(row, 2)
		if err != nil {
			return nil, err
		}
		side, err := strAt(row, 3)
		if err != nil {
			return nil, err
		}
		id := strconv.Itoa(i)
		if len(row) > 6 {
			id, _ = strAt(row, 6)
		}
		trades = append(trades, NewTrade(id, symbol, int64(ts*1000), price, volume, parseSide(side)))
	}
	return trades, nil
}

// DecodeKrakenBook - result[pair]{asks:[[price, volume, ts]], bids}
func DecodeKrakenBook(body []byte) (*market.OrderBook, error) {
	data, err := krakenPairResult(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	if data == nil {
		return snapshot(nil, nil), nil
	}
	return DecodeLevel2Book(data)
}

// --- OKEx ---

// DecodeOKExCandles - [[iso, o, h, l, c, v]], от новых к старым
func DecodeOKExCandles(body []byte) ([]market.Bar, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return barsFromRows(rows, barLayout{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 5, isoTime: true})
}

// DecodeOKExTrades - /instruments/<id>/trades: [{trade_id, price, size, side, timestamp}]
func DecodeOKExTrades(body []byte, symbol string) ([]market.Trade, error) {
	var rows []struct {
		TradeID   string `json:"trade_id"`
		Price     Num    `json:"price"`
		Size      Num    `json:"size"`
		Side      string `json:"side"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.Timestamp)
		if err != nil {
			return nil, err
		}
		trades = append(trades, NewTrade(r.TradeID, symbol, ts, r.Price.Float(), r.Size.Float(), parseSide(r.Side)))
	}
	return trades, nil
}

// --- CoinDCX ---

// DecodeCoinDCXCandles - history_v2: {s, t, o, h, l, c, v} (формат UDF) или [{time, open, ...}]
func DecodeCoinDCXCandles(body []byte) ([]market.Bar, error) {
	var rows []struct {
		Time   int64 `json:"time"`
		Open   Num   `json:"open"`
		High   Num   `json:"high"`
		Low    Num   `json:"low"`
		Close  Num   `json:"close"`
		Volume Num   `json:"volume"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return DecodeUDFHistory(body)
	}
	bars := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, market.Bar{Time: r.Time, Open: r.Open.Float(), High: r.High.Float(), Low: r.Low.Float(), Close: r.Close.Float(), Volume: r.Volume.Float()})
	}
	return bars, nil
}
