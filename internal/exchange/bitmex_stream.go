package exchange

import (
	"sort"
	"sync"

	"datafeed-go/internal/market"
	"datafeed-go/internal/market/parsers"
	"datafeed-go/internal/wsclient"
)

// bitmexStreamer - общий сокет realtime API, подписки op=subscribe args=trade:<SYM>.
// Подтверждений с id нет, после каждого открытия подписки отправляются заново.
type bitmexStreamer struct {
	env *streamEnv

	mu     sync.Mutex
	sock   *wsclient.Socket
	wanted map[string]string // символ биржи -> унифицированный
}

func newBitmexStreamer(env *streamEnv) *bitmexStreamer {
	return &bitmexStreamer{env: env, wanted: make(map[string]string)}
}

func (s *bitmexStreamer) ensureSocket() *wsclient.Socket {
	if s.sock == nil {
		var sock *wsclient.Socket
		sock = s.env.newSocket(s.env.wsURL, "realtime", wsclient.Hooks{
			OnOpen:    func() { s.onOpen(sock) },
			OnMessage: s.onMessage,
		})
		s.sock = sock
		sock.Open()
	}
	return s.sock
}

func tradeTopic(venueSymbol string) string {
	return "trade:" + venueSymbol
}

func (s *bitmexStreamer) start(symbol, venueSymbol string, kind market.StreamKind) error {
	if kind != market.StreamTrades {
		return ErrNotSupported
	}
	s.mu.Lock()
	s.wanted[venueSymbol] = symbol
	sock := s.ensureSocket()
	s.mu.Unlock()

	// закрытый сокет подпишется в onOpen
	if sock.IsOpen() {
		return sock.SendJSON(map[string]interface{}{"op": "subscribe", "args": []string{tradeTopic(venueSymbol)}})
	}
	return nil
}

func (s *bitmexStreamer) onOpen(from *wsclient.Socket) {
	s.mu.Lock()
	if from != s.sock {
		s.mu.Unlock()
		return
	}
	args := make([]string, 0, len(s.wanted))
	for venueSymbol := range s.wanted {
		args = append(args, tradeTopic(venueSymbol))
	}
	sock := s.sock
	s.mu.Unlock()

	if len(args) == 0 || sock == nil {
		return
	}
	sort.Strings(args)
	if err := sock.SendJSON(map[string]interface{}{"op": "subscribe", "args": args}); err != nil {
		s.env.logger.Warn("[BITMEX_STREAM] resubscribe failed: %v", err)
	}
}

func (s *bitmexStreamer) onMessage(raw []byte) {
	trades, ok, err := parsers.ParseBitmexTrades(raw)
	if err != nil {
		s.env.drop("parse", err)
		return
	}
	if !ok {
		return
	}

	bySymbol := make(map[string][]market.Trade)
	var order []string
	s.mu.Lock()
	for _, t := range trades {
		symbol, known := s.wanted[t.Symbol]
		if !known {
			continue
		}
		t.Symbol = symbol
		if _, seen := bySymbol[symbol]; !seen {
			order = append(order, symbol)
		}
		bySymbol[symbol] = append(bySymbol[symbol], t)
	}
	s.mu.Unlock()

	if len(order) == 0 && len(trades) > 0 {
		s.env.drop("unknown_symbol", nil)
		return
	}
	for _, symbol := range order {
		s.env.emitTrades(symbol, bySymbol[symbol])
	}
}

func (s *bitmexStreamer) stop(_, venueSymbol string, kind market.StreamKind) error {
	if kind != market.StreamTrades {
		return nil
	}
	s.mu.Lock()
	_, ok := s.wanted[venueSymbol]
	delete(s.wanted, venueSymbol)
	sock := s.sock
	s.mu.Unlock()

	if !ok || sock == nil || !sock.IsOpen() {
		return nil
	}
	return sock.SendJSON(map[string]interface{}{"op": "unsubscribe", "args": []string{tradeTopic(venueSymbol)}})
}

func (s *bitmexStreamer) sockets() []SocketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock == nil {
		return nil
	}
	return []SocketInfo{socketInfo(s.sock)}
}

func (s *bitmexStreamer) close() {
	s.mu.Lock()
	sock := s.sock
	s.sock = nil
	s.wanted = make(map[string]string)
	s.mu.Unlock()
	if sock != nil {
		_ = sock.Close()
	}
}
