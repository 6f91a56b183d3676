package parsers

import (
	"encoding/json"
	"testing"

	"datafeed-go/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceAggTradeFrame(t *testing.T) {
	p := NewBinanceParser("BTC/USDT")
	raw := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1560000000123,"s":"BTCUSDT","t":42,"p":"8000.50","q":"0.2","m":true}}`)

	trade, ok, err := p.ParseTradeFrame(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", trade.ID)
	assert.Equal(t, "BTC/USDT", trade.Symbol)
	assert.Equal(t, int64(1560000000123), trade.Timestamp)
	assert.Equal(t, market.TradeSideSell, trade.Side)
	assert.Equal(t, "maker", trade.TakerOrMaker)
	assert.InDelta(t, 1600.1, trade.Cost, 1e-9)

	_, ok, err = p.ParseTradeFrame([]byte(`{"stream":"!miniTicker@arr@3000ms","data":[]}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = p.ParseTradeFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestBinanceDepthAndKlineFrames(t *testing.T) {
	p := NewBinanceParser("BTC/USDT")
	book, err := p.ParseDepthFrame([]byte(`{"e":"depthUpdate","s":"BTCUSDT","U":1,"u":2,"b":[["100.5","1.5"]],"a":[["101","0"]]}`))
	require.NoError(t, err)
	assert.Equal(t, market.OrderBookUpdateTypeDiff, book.UpdateType)
	assert.Equal(t, []market.PriceLevel{{Price: 100.5, Amount: 1.5}}, book.Bids)
	assert.Equal(t, []market.PriceLevel{{Price: 101, Amount: 0}}, book.Asks)

	bar, err := p.ParseKlineFrame([]byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1560000000000,"o":"1","h":"3","l":"0.5","c":"2","v":"10","x":false}}`))
	require.NoError(t, err)
	assert.Equal(t, market.Bar{Time: 1560000000000, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 10}, bar)

	_, err = p.ParseKlineFrame([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
}

func TestDecodeBinanceKlines(t *testing.T) {
	body := []byte(`[[1560000000000,"1.0","2.0","0.5","1.5","100",1560000059999,"150",10,"50","75","0"],
		[1560000060000,"1.5","2.5","1.0","2.0","200",1560000119999,"400",12,"60","80","0"]]`)
	bars, err := DecodeBinanceKlines(body)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, market.Bar{Time: 1560000000000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}, bars[0])

	_, err = DecodeBinanceKlines([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	assert.Error(t, err)
}

func TestBitfinexFrames(t *testing.T) {
	frame, err := ParseBitfinexFrame([]byte(`{"event":"subscribed","channel":"trades","chanId":17,"symbol":"tBTCUSD","pair":"BTCUSD"}`))
	require.NoError(t, err)
	require.NotNil(t, frame.Event)
	assert.Equal(t, "subscribed", frame.Event.Event)
	assert.Equal(t, int64(17), frame.Event.ChanID)
	assert.Equal(t, "BTCUSD", frame.Event.Pair)

	frame, err = ParseBitfinexFrame([]byte(`[17,"tu",[401597395,1574694478808,-0.005,7245.3]]`))
	require.NoError(t, err)
	assert.Nil(t, frame.Event)
	assert.Equal(t, int64(17), frame.ChanID)
	assert.Equal(t, BitfinexTradeUpdate, frame.Kind)

	trade, err := ParseBitfinexTrade(frame.Data, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "401597395", trade.ID)
	assert.Equal(t, market.TradeSideSell, trade.Side)
	assert.InDelta(t, 0.005, trade.Amount, 1e-12)
	assert.InDelta(t, 36.2265, trade.Cost, 1e-9)
	assert.Equal(t, int64(1574694478808), trade.Timestamp)

	frame, err = ParseBitfinexFrame([]byte(`[17,"hb"]`))
	require.NoError(t, err)
	assert.Equal(t, BitfinexHeartbeat, frame.Kind)

	frame, err = ParseBitfinexFrame([]byte(`[17,[[1,1574694478808,0.1,7000]]]`))
	require.NoError(t, err)
	assert.Equal(t, BitfinexSnapshot, frame.Kind)

	for _, bad := range []string{``, `{}`, `[17]`, `["x","tu"]`, `garbage`} {
		_, err := ParseBitfinexFrame([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestDecodeBitfinexRest(t *testing.T) {
	bars, err := DecodeBitfinexCandles([]byte(`[[1560000000000,10,12,13,9,100.5]]`))
	require.NoError(t, err)
	assert.Equal(t, market.Bar{Time: 1560000000000, Open: 10, Close: 12, High: 13, Low: 9, Volume: 100.5}, bars[0])

	trades, err := DecodeBitfinexTrades([]byte(`[[5,1560000000000,2,10],[6,1560000000001,-1,11]]`), "BTC/USD")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, market.TradeSideBuy, trades[0].Side)
	assert.Equal(t, market.TradeSideSell, trades[1].Side)
	assert.Equal(t, 1.0, trades[1].Amount)

	book, err := DecodeBitfinexBook([]byte(`[[100,2,1.5],[101,1,-2]]`))
	require.NoError(t, err)
	assert.Equal(t, []market.PriceLevel{{Price: 100, Amount: 1.5}}, book.Bids)
	assert.Equal(t, []market.PriceLevel{{Price: 101, Amount: 2}}, book.Asks)
	assert.Equal(t, market.OrderBookUpdateTypeSnapshot, book.UpdateType)
}

func TestBitmexFramesAndHistory(t *testing.T) {
	trades, ok, err := ParseBitmexTrades([]byte(`{"table":"trade","action":"insert","data":[{"timestamp":"2019-06-01T00:00:00.000Z","symbol":"XBTUSD","side":"Sell","size":100,"price":8500.5,"trdMatchID":"abc"}]}`))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, trades, 1)
	assert.Equal(t, "abc", trades[0].ID)
	assert.Equal(t, market.TradeSideSell, trades[0].Side)
	assert.Equal(t, int64(1559347200000), trades[0].Timestamp)
	assert.InDelta(t, 850050, trades[0].Cost, 1e-6)

	_, ok, err = ParseBitmexTrades([]byte(`{"info":"Welcome to the BitMEX Realtime API."}`))
	require.NoError(t, err)
	assert.False(t, ok)

	bars, err := DecodeUDFHistory([]byte(`{"s":"ok","t":[1559347200,1559347260],"o":[1,2],"h":[2,3],"l":[0.5,1],"c":[1.5,2.5],"v":[10,20]}`))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1559347200000), bars[0].Time)

	bars, err = DecodeUDFHistory([]byte(`{"s":"no_data"}`))
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = DecodeUDFHistory([]byte(`{"s":"ok","t":[1,2],"o":[1],"h":[1],"l":[1],"c":[1],"v":[1]}`))
	assert.Error(t, err)
}

func TestNewestFirstVenuesReverseToAscending(t *testing.T) {
	coinbase := []byte(`[[1560000120,1,2,1.5,1.8,10],[1560000060,1,2,1.5,1.8,10],[1560000000,1,2,1.5,1.8,10]]`)
	bars, err := DecodeCoinbaseCandles(coinbase)
	require.NoError(t, err)
	bars = ReverseBars(bars)
	require.Len(t, bars, 3)
	for i := 1; i < len(bars); i++ {
		assert.Less(t, bars[i-1].Time, bars[i].Time)
	}
	assert.Equal(t, 1.0, bars[0].Low)
	assert.Equal(t, 1.5, bars[0].Open)

	okex := []byte(`[["2019-06-01T00:01:00.000Z","1","2","0.5","1.5","3"],["2019-06-01T00:00:00.000Z","1","2","0.5","1.5","3"]]`)
	bars, err = DecodeOKExCandles(okex)
	require.NoError(t, err)
	bars = ReverseBars(bars)
	assert.Equal(t, int64(1559347200000), bars[0].Time)
	assert.Equal(t, int64(1559347260000), bars[1].Time)
}

func TestOtherVenueHistoryDecoders(t *testing.T) {
	bars, err := DecodeBittrexTicks([]byte(`{"success":true,"message":"","result":[{"O":1,"H":2,"L":0.5,"C":1.5,"V":10,"T":"2019-06-01T00:00:00","BV":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1559347200000), bars[0].Time)

	_, err = DecodeBittrexTicks([]byte(`{"success":false,"message":"INVALID_MARKET","result":null}`))
	assert.Error(t, err)

	bars, err = DecodeCobinhoodCandles([]byte(`{"success":true,"result":{"candles":[{"timeframe":"1h","trading_pair_id":"ETH-BTC","timestamp":1559347200000,"volume":"5","open":"0.03","close":"0.031","high":"0.032","low":"0.029"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, 0.032, bars[0].High)

	bars, err = DecodeCobinhoodCandles([]byte(`{"success":true,"result":{"candles":[]}}`))
	require.NoError(t, err)
	assert.Empty(t, bars)

	bars, err = DecodeHitBTCCandles([]byte(`[{"timestamp":"2019-06-01T00:00:00.000Z","open":"1","close":"2","min":"0.5","max":"3","volume":"7"}]`))
	require.NoError(t, err)
	assert.Equal(t, market.Bar{Time: 1559347200000, Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 7}, bars[0])

	bars, err = DecodeKrakenOHLC([]byte(`{"error":[],"result":{"XXBTZUSD":[[1559347200,"1","2","0.5","1.5","1.2","99",5]],"last":1559347200}}`))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 99.0, bars[0].Volume)
	assert.Equal(t, int64(1559347200000), bars[0].Time)

	bars, err = DecodeKrakenOHLC([]byte(`{"error":[],"result":{"XXBTZUSD":[],"last":0}}`))
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = DecodeKrakenOHLC([]byte(`{"error":["EQuery:Unknown asset pair"]}`))
	assert.Error(t, err)

	bars, err = DecodeCoinDCXCandles([]byte(`{"s":"ok","t":[1559347200],"o":[1],"h":[2],"l":[0.5],"c":[1.5],"v":[3]}`))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestVenueTradeAndBookDecoders(t *testing.T) {
	trades, err := DecodeKrakenTrades([]byte(`{"error":[],"result":{"XXBTZUSD":[["8000.1","0.5",1559347200.1234,"s","l",""]],"last":"1"}}`), "BTC/USD")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, market.TradeSideSell, trades[0].Side)
	assert.Equal(t, int64(1559347200123), trades[0].Timestamp)

	book, err := DecodeHitBTCBook([]byte(`{"ask":[{"price":"101","size":"1"}],"bid":[{"price":"100","size":"2"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 100.0, book.Bids[0].Price)
	assert.Equal(t, 101.0, book.Asks[0].Price)

	book, err = DecodeLevel2Book([]byte(`{"bids":[["100","2","3"]],"asks":[["101","1","1"]]}`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, book.Bids[0].Amount)

	trades, err = DecodeOKExTrades([]byte(`[{"trade_id":"9","price":"10","size":"2","side":"buy","timestamp":"2019-06-01T00:00:00.000Z"}]`), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 20.0, trades[0].Cost)

	_, err = DecodeBittrexBook([]byte(`{"success":true,"result":{"buy":[{"Quantity":1,"Rate":100}],"sell":[]}}`))
	require.NoError(t, err)
}

func TestNumAcceptsStringsAndNumbers(t *testing.T) {
	var rows [][]Num
	require.NoError(t, jsonUnmarshal(`[["1.5", 2, null, ""]]`, &rows))
	assert.Equal(t, []Num{1.5, 2, 0, 0}, rows[0])

	assert.Error(t, jsonUnmarshal(`[["abc"]]`, &rows))
}

func jsonUnmarshal(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
