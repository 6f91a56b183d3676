package exchange

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"datafeed-go/internal/market"
	"datafeed-go/internal/market/parsers"
)

// StreamMode - способ доставки живых данных
type StreamMode int

const (
	StreamNone      StreamMode = iota // потоков нет, ErrNotSupported
	StreamPoll                        // опрос REST, события *:full:*
	StreamPerSymbol                   // отдельный сокет на (символ, тип)
	StreamChannels                    // общий сокет с каналами chanId (Bitfinex)
	StreamTable                       // общий сокет с таблицами op/args (Bitmex)
)

func (m StreamMode) String() string {
	switch m {
	case StreamPoll:
		return "poll"
	case StreamPerSymbol:
		return "per-symbol"
	case StreamChannels:
		return "channels"
	case StreamTable:
		return "table"
	default:
		return "none"
	}
}

// TraderKind - реализация приватных методов
type TraderKind int

const (
	TraderNone TraderKind = iota
	TraderBinance
	TraderCoinDCX
)

// RequestSpec - относительный путь и query для REST-запроса
type RequestSpec struct {
	Path  string
	Query map[string]string
}

// Venue - описание биржи. GenericAdapter работает только через эту таблицу.
type Venue struct {
	Name     string
	RestBase string
	WsURL    string

	Resolutions    market.ResolutionTable
	HistoryRequest func(symbol, interval string, from, to int64) RequestSpec
	DecodeHistory  parsers.HistoryDecoder
	NewestFirst    bool // ответ от новых к старым, разворачиваем
	DepthOverrides map[string]market.HistoryDepth

	TradesRequest func(symbol string) RequestSpec
	DecodeTrades  parsers.TradesDecoder
	BookRequest   func(symbol string) RequestSpec
	DecodeBook    parsers.BookDecoder

	TradeStream   StreamMode
	BookStream    StreamMode
	SocketSymbols []string // если задан, сокет только для этих пар, остальные опрашиваются

	Spot          bool
	MarginAll     bool
	MarginSymbols []string // формат биржи
	OrderTypes    []market.OrderType
	Features      []Feature
	Trader        TraderKind
}

// streamMode возвращает способ доставки для пары в формате биржи
func (v *Venue) streamMode(kind market.StreamKind, venueSymbol string) StreamMode {
	mode := v.BookStream
	if kind == market.StreamTrades {
		mode = v.TradeStream
	}
	if mode <= StreamPoll {
		return mode
	}
	if len(v.SocketSymbols) > 0 && !contains(v.SocketSymbols, venueSymbol) {
		return StreamPoll
	}
	return mode
}

// socketMode - режим общего сокета биржи (или StreamNone)
func (v *Venue) socketMode() StreamMode {
	for _, m := range []StreamMode{v.TradeStream, v.BookStream} {
		if m > StreamPoll {
			return m
		}
	}
	return StreamNone
}

func (v *Venue) hasFeature(f Feature) bool {
	if f == FeatureMarginTrading {
		return v.MarginAll || len(v.MarginSymbols) > 0
	}
	for _, x := range v.Features {
		if x == f {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

var defaultOrderTypes = []market.OrderType{market.OrderTypeLimit, market.OrderTypeMarket}

var allOrderTypes = []market.OrderType{
	market.OrderTypeLimit, market.OrderTypeMarket, market.OrderTypeStopLimit, market.OrderTypeStopMarket,
	market.OrderTypeTakeLimit, market.OrderTypeTakeMarket, market.OrderTypeTrailingStop,
}

func ms(sec int64) string {
	return strconv.FormatInt(sec*1000, 10)
}

func secs(sec int64) string {
	return strconv.FormatInt(sec, 10)
}

func isoTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02T15:04:05.000Z")
}

func simple(path string, query map[string]string) func(string) RequestSpec {
	return func(symbol string) RequestSpec {
		q := make(map[string]string, len(query))
		for k, v := range query {
			q[k] = strings.ReplaceAll(v, "{symbol}", symbol)
		}
		return RequestSpec{Path: strings.ReplaceAll(path, "{symbol}", symbol), Query: q}
	}
}

var venues = map[string]*Venue{
	"binance": {
		Name:     "binance",
		RestBase: "https://www.binance.com",
		WsURL:    "wss://stream.binance.com:9443",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "3", "5", "15", "30", "60", "120", "240", "360", "480", "720", "D", "3D", "W", "M"},
			Intervals: map[string]string{
				"1": "1m", "3": "3m", "5": "5m", "15": "15m", "30": "30m", "60": "1h", "120": "2h",
				"240": "4h", "360": "6h", "480": "8h", "720": "12h", "D": "1d", "3D": "3d", "W": "1w", "M": "1M",
			},
			Default: "1m",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/api/v1/klines", Query: map[string]string{
				"symbol": symbol, "interval": interval, "startTime": ms(from), "endTime": ms(to), "limit": "1000",
			}}
		},
		DecodeHistory: parsers.DecodeBinanceKlines,
		TradesRequest: simple("/api/v3/trades", map[string]string{"symbol": "{symbol}", "limit": "100"}),
		DecodeTrades:  parsers.DecodeBinanceTrades,
		BookRequest:   simple("/api/v3/depth", map[string]string{"symbol": "{symbol}", "limit": "100"}),
		DecodeBook:    parsers.DecodeBinanceDepth,
		TradeStream:   StreamPerSymbol,
		BookStream:    StreamPerSymbol,
		Spot:          true,
		MarginSymbols: []string{
			"ETHBTC", "LTCBTC", "BNBBTC", "BTCUSDT", "ETHUSDT", "ETCUSDT", "BTCUSDC", "LINKUSDT",
			"LINKBTC", "EOSBTC", "ETCBTC", "TRXBTC", "XRPBTC", "BNBUSDT", "ADABTC", "LTCUSDT",
			"ADAUSDT", "XRPUSDT", "EOSUSDT", "ONTUSDT", "TRXUSDT", "ONTBTC",
		},
		OrderTypes: defaultOrderTypes,
		Features:   []Feature{FeatureViewDeposits, FeatureViewWithdrawals, FeatureGetDepositAddress},
		Trader:     TraderBinance,
	},

	"bitfinex": {
		Name:     "bitfinex",
		RestBase: "https://api.bitfinex.com",
		WsURL:    "wss://api-pub.bitfinex.com/ws/2",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "5", "15", "30", "60", "180", "360", "720", "D", "W", "2W", "M"},
			Intervals: map[string]string{
				"1": "1m", "5": "5m", "15": "15m", "30": "30m", "60": "1h", "180": "3h", "360": "6h",
				"720": "12h", "D": "1D", "W": "7D", "2W": "14D", "M": "1M",
			},
			Default: "1m",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/v2/candles/trade:" + interval + ":t" + symbol + "/hist", Query: map[string]string{
				"sort": "1", "start": ms(from), "end": ms(to), "limit": "1000",
			}}
		},
		DecodeHistory: parsers.DecodeBitfinexCandles,
		TradesRequest: simple("/v2/trades/t{symbol}/hist", map[string]string{"limit": "120"}),
		DecodeTrades:  parsers.DecodeBitfinexTrades,
		BookRequest:   simple("/v2/book/t{symbol}/P0", map[string]string{"len": "25"}),
		DecodeBook:    parsers.DecodeBitfinexBook,
		TradeStream:   StreamChannels,
		BookStream:    StreamPoll,
		SocketSymbols: []string{
			"BTCUSD", "LTCUSD", "LTCBTC", "ETHUSD", "ETHBTC", "ETCBTC", "ETCUSD", "RRTUSD", "RRTBTC", "ZECUSD", "ZECBTC",
			"XMRUSD", "XMRBTC", "DSHUSD", "DSHBTC", "BTCEUR", "XRPUSD", "XRPBTC", "IOTUSD", "IOTBTC", "IOTETH", "EOSUSD",
			"EOSBTC", "EOSETH", "SANUSD", "SANBTC", "SANETH", "OMGUSD", "OMGBTC", "OMGETH", "BCHUSD", "BCHBTC", "BCHETH",
			"NEOUSD", "NEOBTC", "NEOETH", "ETPUSD", "ETPBTC", "ETPETH", "QTMUSD", "QTMBTC", "QTMETH", "AVTUSD", "AVTBTC",
			"AVTETH", "EDOUSD", "EDOBTC", "EDOETH", "BTGUSD", "BTGBTC", "DATUSD", "DATBTC", "DATETH", "QSHUSD", "QSHBTC",
			"QSHETH", "YYWUSD", "YYWBTC", "YYWETH", "GNTUSD", "GNTBTC", "GNTETH", "SNTUSD", "SNTBTC", "SNTETH", "IOTEUR",
			"BATUSD", "BATBTC", "BATETH", "MNAUSD", "MNABTC", "MNAETH", "FUNUSD", "FUNBTC", "FUNETH", "ZRXUSD", "ZRXBTC",
			"ZRXETH", "TNBUSD", "TNBBTC", "TNBETH", "SPKUSD", "SPKBTC", "SPKETH", "TRXUSD", "TRXBTC", "TRXETH", "RCNUSD",
			"RCNBTC", "RCNETH", "RLCUSD", "RLCBTC", "RLCETH", "AIDUSD", "AIDBTC", "AIDETH", "SNGUSD", "SNGBTC", "SNGETH",
			"REPUSD", "REPBTC", "REPETH", "ELFUSD", "ELFBTC", "ELFETH",
		},
		Spot: true,
		MarginSymbols: []string{
			"BTCUSD", "LTCUSD", "LTCBTC", "ETHUSD", "ETHBTC", "ETCBTC", "ETCUSD", "ZECUSD", "ZECBTC", "XMRUSD", "XMRBTC",
			"DSHBTC", "BTCEUR", "BTCJPY", "XRPUSD", "XRPBTC", "IOTUSD", "IOTBTC", "IOTETH", "EOSUSD", "EOSBTC", "EOSETH",
			"SANBTC", "SANETH", "OMGUSD", "OMGBTC", "OMGETH", "NEOUSD", "NEOBTC", "NEOETH", "ETPUSD", "ETPBTC", "ETPETH",
			"EDOBTC", "EDOETH", "BTGUSD", "BTGBTC", "IOTEUR", "ZRXUSD", "ZRXETH", "BTCGBP", "ETHEUR", "ETHJPY", "ETHGBP",
			"NEOJPY", "NEOGBP", "EOSEUR", "EOSJPY", "EOSGBP", "IOTJPY", "IOTGBP", "XLMUSD", "XLMBTC", "XTZUSD", "XTZBTC",
			"BSVBTC", "BABUSD", "BABBTC", "USTUSD", "BTCUST", "ETHUST", "LEOUSD", "LEOUST", "BTCF0:USTF0", "ETHF0:USTF0",
			"DSHUSD", "BSVUSD", "NEOEUR", "EDOUSD", "SANUSD",
		},
		OrderTypes: defaultOrderTypes,
		Features:   []Feature{FeatureViewDeposits, FeatureViewWithdrawals},
	},

	"bitmex": {
		Name:     "bitmex",
		RestBase: "https://www.bitmex.com",
		WsURL:    "wss://www.bitmex.com/realtime",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "5", "15", "30", "60", "180", "360", "720", "D", "3D", "W", "2W", "M"},
			Intervals: map[string]string{
				"1": "1", "3": "1", "5": "5", "15": "5", "30": "5", "60": "60", "180": "60", "360": "60",
				"720": "60", "D": "D", "W": "D", "2W": "D", "M": "D",
			},
			Default: "1",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/api/udf/history", Query: map[string]string{
				"symbol": symbol, "resolution": interval, "from": secs(from), "to": secs(to),
			}}
		},
		DecodeHistory: parsers.DecodeUDFHistory,
		TradesRequest: simple("/api/v1/trade", map[string]string{"symbol": "{symbol}", "count": "100", "reverse": "true"}),
		DecodeTrades:  parsers.DecodeBitmexTrades,
		BookRequest:   simple("/api/v1/orderBook/L2", map[string]string{"symbol": "{symbol}", "depth": "25"}),
		DecodeBook:    parsers.DecodeBitmexBook,
		TradeStream:   StreamTable,
		BookStream:    StreamPoll,
		Spot:          false,
		MarginAll:     true,
		OrderTypes:    allOrderTypes,
	},

	"bittrex": {
		Name:     "bittrex",
		RestBase: "https://international.bittrex.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "5", "30", "60", "D"},
			Intervals: map[string]string{"1": "oneMin", "5": "fiveMin", "30": "thirtyMin", "60": "hour", "D": "day"},
			Default:   "oneMin",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/Api/v2.0/pub/market/GetTicks", Query: map[string]string{
				"marketName": symbol, "tickInterval": interval, "startTime": ms(from), "endTime": ms(to), "limit": "500",
			}}
		},
		DecodeHistory: parsers.DecodeBittrexTicks,
		TradesRequest: simple("/api/v1.1/public/getmarkethistory", map[string]string{"market": "{symbol}"}),
		DecodeTrades:  parsers.DecodeBittrexTrades,
		BookRequest:   simple("/api/v1.1/public/getorderbook", map[string]string{"market": "{symbol}", "type": "both"}),
		DecodeBook:    parsers.DecodeBittrexBook,
		TradeStream:   StreamPoll,
		BookStream:    StreamPoll,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
	},

	"cobinhood": {
		Name:     "cobinhood",
		RestBase: "https://api.cobinhood.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"5", "15", "30", "60", "180", "360", "720", "D", "W", "2W", "M"},
			Intervals: map[string]string{
				"1": "1m", "5": "5m", "15": "15m", "30": "30m", "60": "1h", "180": "3h", "360": "6h",
				"720": "12h", "D": "1D", "W": "7D", "2W": "14D", "M": "1M",
			},
			Default: "1m",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/v1/chart/candles/" + symbol, Query: map[string]string{
				"start_time": ms(from), "end_time": ms(to), "timeframe": interval,
			}}
		},
		DecodeHistory: parsers.DecodeCobinhoodCandles,
		TradesRequest: simple("/v1/market/trades/{symbol}", nil),
		DecodeTrades:  parsers.DecodeCobinhoodTrades,
		BookRequest:   simple("/v1/market/orderbooks/{symbol}", nil),
		DecodeBook:    parsers.DecodeCobinhoodBook,
		TradeStream:   StreamPoll,
		BookStream:    StreamPoll,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
	},

	"coinbaseprime": {
		Name:     "coinbaseprime",
		RestBase: "https://api.prime.coinbase.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "5", "15", "60", "360", "D"},
			Intervals: map[string]string{"1": "60", "5": "300", "15": "900", "60": "3600", "360": "21600", "D": "86400"},
			Default:   "60",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/products/" + symbol + "/candles", Query: map[string]string{
				"granularity": interval, "start": isoTime(from), "end": isoTime(to),
			}}
		},
		DecodeHistory: parsers.DecodeCoinbaseCandles,
		NewestFirst:   true,
		DepthOverrides: map[string]market.HistoryDepth{
			"1":   {ResolutionBack: "D", IntervalBack: 250.0 / 1440},
			"5":   {ResolutionBack: "D", IntervalBack: 1},
			"15":  {ResolutionBack: "D", IntervalBack: 3},
			"60":  {ResolutionBack: "D", IntervalBack: 12},
			"360": {ResolutionBack: "D", IntervalBack: 60},
			"D":   {ResolutionBack: "M", IntervalBack: 5},
		},
		TradesRequest: simple("/products/{symbol}/trades", nil),
		DecodeTrades:  parsers.DecodeCoinbaseTrades,
		BookRequest:   simple("/products/{symbol}/book", map[string]string{"level": "2"}),
		DecodeBook:    parsers.DecodeLevel2Book,
		TradeStream:   StreamPoll,
		BookStream:    StreamPoll,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
	},

	"coindcx": {
		Name:     "coindcx",
		RestBase: "https://api.coindcx.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "5", "15", "30", "60", "240", "480", "D"},
			Intervals: map[string]string{
				"1": "1", "5": "5", "15": "15", "30": "30", "60": "60", "240": "240", "480": "480", "D": "1D",
			},
			Default: "1",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/api/v1/chart/history_v2", Query: map[string]string{
				"symbol": symbol, "resolution": interval, "from": secs(from), "to": secs(to),
			}}
		},
		DecodeHistory: parsers.DecodeCoinDCXCandles,
		TradeStream:   StreamNone,
		BookStream:    StreamNone,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
		Trader:        TraderCoinDCX,
	},

	"hitbtc": {
		Name:     "hitbtc",
		RestBase: "https://api.hitbtc.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "3", "5", "15", "30", "60", "240", "D", "W", "M"},
			Intervals: map[string]string{
				"1": "M1", "3": "M3", "5": "M5", "15": "M15", "30": "M30", "60": "H1", "240": "H4",
				"D": "D1", "W": "D7", "M": "1M",
			},
			Default: "M1",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/api/2/public/candles/" + symbol, Query: map[string]string{
				"period": interval, "from": ms(from), "till": ms(to), "limit": "1000",
			}}
		},
		DecodeHistory: parsers.DecodeHitBTCCandles,
		TradesRequest: simple("/api/2/public/trades/{symbol}", map[string]string{"limit": "100"}),
		DecodeTrades:  parsers.DecodeHitBTCTrades,
		BookRequest:   simple("/api/2/public/orderbook/{symbol}", map[string]string{"limit": "50"}),
		DecodeBook:    parsers.DecodeHitBTCBook,
		TradeStream:   StreamPoll,
		BookStream:    StreamPoll,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
	},

	"kraken": {
		Name:     "kraken",
		RestBase: "https://api.kraken.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "5", "15", "30", "60", "D", "W", "2W"},
			Intervals: map[string]string{
				"1": "1", "5": "5", "15": "15", "30": "30", "60": "60",
				"D": "1440", "W": "10080", "2W": "21600", "15D": "21600",
			},
			Default: "1",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/0/public/OHLC", Query: map[string]string{
				"pair": symbol, "interval": interval, "since": secs(from),
			}}
		},
		DecodeHistory: parsers.DecodeKrakenOHLC,
		TradesRequest: simple("/0/public/Trades", map[string]string{"pair": "{symbol}"}),
		DecodeTrades:  parsers.DecodeKrakenTrades,
		BookRequest:   simple("/0/public/Depth", map[string]string{"pair": "{symbol}", "count": "50"}),
		DecodeBook:    parsers.DecodeKrakenBook,
		TradeStream:   StreamPoll,
		BookStream:    StreamPoll,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
	},

	"okex": {
		Name:     "okex",
		RestBase: "https://www.okex.com",
		Resolutions: market.ResolutionTable{
			Supported: []string{"1", "3", "5", "15", "30", "60", "120", "360", "720", "D", "W", "2W"},
			Intervals: map[string]string{
				"1": "60", "3": "180", "5": "300", "15": "900", "30": "1800", "60": "3600",
				"120": "7200", "360": "14400", "720": "43200", "D": "86400", "W": "604800",
			},
			Default: "60",
		},
		HistoryRequest: func(symbol, interval string, from, to int64) RequestSpec {
			return RequestSpec{Path: "/api/spot/v3/instruments/" + symbol + "/candles", Query: map[string]string{
				"start": isoTime(from), "end": isoTime(to), "granularity": interval,
			}}
		},
		DecodeHistory: parsers.DecodeOKExCandles,
		NewestFirst:   true,
		DepthOverrides: map[string]market.HistoryDepth{
			"1":   {ResolutionBack: "D", IntervalBack: 200.0 / 1440},
			"5":   {ResolutionBack: "D", IntervalBack: 0.6},
			"15":  {ResolutionBack: "D", IntervalBack: 2},
			"60":  {ResolutionBack: "D", IntervalBack: 8},
			"360": {ResolutionBack: "D", IntervalBack: 40},
			"D":   {ResolutionBack: "M", IntervalBack: 3},
		},
		TradesRequest: simple("/api/spot/v3/instruments/{symbol}/trades", map[string]string{"limit": "100"}),
		DecodeTrades:  parsers.DecodeOKExTrades,
		BookRequest:   simple("/api/spot/v3/instruments/{symbol}/book", map[string]string{"size": "50"}),
		DecodeBook:    parsers.DecodeLevel2Book,
		TradeStream:   StreamPoll,
		BookStream:    StreamPoll,
		Spot:          true,
		OrderTypes:    defaultOrderTypes,
	},
}

// LookupVenue возвращает описание биржи по имени (без учёта регистра)
func LookupVenue(name string) (*Venue, bool) {
	v, ok := venues[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// VenueNames - имена всех известных бирж по алфавиту
func VenueNames() []string {
	names := make([]string, 0, len(venues))
	for name := range venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
