package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"datafeed-go/internal/market"
	"datafeed-go/internal/market/parsers"
	"datafeed-go/internal/wsclient"
)

// binanceStreamer - отдельный сокет на каждый (символ, тип) и на каждого слушателя свечей
type binanceStreamer struct {
	env *streamEnv

	mu    sync.Mutex
	socks map[string]*wsclient.Socket
}

func newBinanceStreamer(env *streamEnv) *binanceStreamer {
	return &binanceStreamer{env: env, socks: make(map[string]*wsclient.Socket)}
}

func (s *binanceStreamer) start(symbol, venueSymbol string, kind market.StreamKind) error {
	key := string(kind) + ":" + symbol
	wsSymbol := strings.ToLower(venueSymbol)
	parser := parsers.NewBinanceParser(symbol)

	var (
		url   string
		hooks wsclient.Hooks
	)
	switch kind {
	case market.StreamTrades:
		url = s.env.wsURL + "/stream?streams=" + wsSymbol + "@aggTrade"
		hooks.OnMessage = func(raw []byte) {
			trade, ok, err := parser.ParseTradeFrame(raw)
			if err != nil {
				s.env.drop("parse", err)
				return
			}
			if !ok {
				return
			}
			s.env.emitTrades(symbol, []market.Trade{trade})
		}
	case market.StreamOrderBook:
		url = s.env.wsURL + "/ws/" + wsSymbol + "@depth"
		hooks.OnMessage = func(raw []byte) {
			book, err := parser.ParseDepthFrame(raw)
			if err != nil {
				s.env.drop("parse", err)
				return
			}
			s.env.publishBook(symbol, book)
		}
	default:
		return fmt.Errorf("binance: unknown stream kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.socks[key]; ok {
		return nil
	}
	sock := s.env.newSocket(url, key, hooks)
	s.socks[key] = sock
	sock.Open()
	s.env.logger.Info("[BINANCE_STREAM] %s stream opened for %s", kind, symbol)
	return nil
}

// stop закрывает сокет потока и забывает его
func (s *binanceStreamer) stop(symbol, _ string, kind market.StreamKind) error {
	return s.closeKey(string(kind) + ":" + symbol)
}

func (s *binanceStreamer) subscribeBars(symbol, venueSymbol, interval, listenerID string, onTick func(market.Bar)) error {
	key := "bars:" + listenerID
	parser := parsers.NewBinanceParser(symbol)
	url := s.env.wsURL + "/ws/" + strings.ToLower(venueSymbol) + "@kline_" + interval

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.socks[key]; ok {
		return nil
	}
	sock := s.env.newSocket(url, key, wsclient.Hooks{
		OnMessage: func(raw []byte) {
			bar, err := parser.ParseKlineFrame(raw)
			if err != nil {
				s.env.drop("parse", err)
				return
			}
			onTick(bar)
		},
	})
	s.socks[key] = sock
	sock.Open()
	return nil
}

func (s *binanceStreamer) unsubscribeBars(listenerID string) {
	_ = s.closeKey("bars:" + listenerID)
}

func (s *binanceStreamer) closeKey(key string) error {
	s.mu.Lock()
	sock, ok := s.socks[key]
	delete(s.socks, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sock.Close()
}

func (s *binanceStreamer) sockets() []SocketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.socks))
	for k := range s.socks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]SocketInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, socketInfo(s.socks[k]))
	}
	return out
}

func (s *binanceStreamer) close() {
	s.mu.Lock()
	socks := s.socks
	s.socks = make(map[string]*wsclient.Socket)
	s.mu.Unlock()
	for _, sock := range socks {
		_ = sock.Close()
	}
}
