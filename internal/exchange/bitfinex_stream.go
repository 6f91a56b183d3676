package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"

	"datafeed-go/internal/market"
	"datafeed-go/internal/market/parsers"
	"datafeed-go/internal/wsclient"
)

// bitfinexStreamer - один сокет на все пары. Подписка подтверждается кадром
// subscribed с chanId, дальше данные приходят массивами [chanId, "tu", [...]].
// После переподключения chanId недействительны, подписки отправляются заново.
type bitfinexStreamer struct {
	env *streamEnv

	mu        sync.Mutex
	sock      *wsclient.Socket
	ctx       context.Context
	cancel    context.CancelFunc
	wanted    map[string]string // пара биржи -> унифицированный символ
	pending   map[string]bool   // subscribe отправлен, ждём subscribed
	chanIDs   map[string]int64  // пара -> chanId
	chanPairs map[int64]string  // chanId -> пара
}

func newBitfinexStreamer(env *streamEnv) *bitfinexStreamer {
	return &bitfinexStreamer{
		env:       env,
		wanted:    make(map[string]string),
		pending:   make(map[string]bool),
		chanIDs:   make(map[string]int64),
		chanPairs: make(map[int64]string),
	}
}

// ensureSocket вызывается под mu
func (s *bitfinexStreamer) ensureSocket() *wsclient.Socket {
	if s.sock != nil {
		return s.sock
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	// хуки знают свой сокет: старый сокет после close() не трогает состояние нового
	var sock *wsclient.Socket
	hooks := wsclient.Hooks{}
	hooks.OnOpen = func() { s.onOpen(sock) }
	hooks.OnMessage = func(raw []byte) {
		if s.current(sock) {
			s.onMessage(raw)
		}
	}
	hooks.OnClose = func(code int, reason string) { s.onClose(sock, code, reason) }
	sock = s.env.newSocket(s.env.wsURL, "channels", hooks)
	s.sock = sock
	sock.Open()
	return sock
}

func (s *bitfinexStreamer) current(sock *wsclient.Socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sock != nil && sock == s.sock
}

func (s *bitfinexStreamer) start(symbol, venueSymbol string, kind market.StreamKind) error {
	if kind != market.StreamTrades {
		return ErrNotSupported
	}

	s.mu.Lock()
	s.wanted[venueSymbol] = symbol
	sock := s.ensureSocket()
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		if err := s.env.await(ctx, sock); err != nil {
			s.env.logger.Warn("[BITFINEX_STREAM] subscribe %s: %v", venueSymbol, err)
			return
		}
		s.subscribe(venueSymbol)
	}()
	return nil
}

// subscribe отправляет подписку, если пара нужна и ещё не подписана
func (s *bitfinexStreamer) subscribe(pair string) {
	s.mu.Lock()
	_, wanted := s.wanted[pair]
	_, subscribed := s.chanIDs[pair]
	if !wanted || subscribed || s.pending[pair] || s.sock == nil {
		s.mu.Unlock()
		return
	}
	s.pending[pair] = true
	sock := s.sock
	s.mu.Unlock()

	msg := map[string]interface{}{"event": "subscribe", "channel": "trades", "symbol": "t" + pair}
	if err := sock.SendJSON(msg); err != nil {
		s.mu.Lock()
		delete(s.pending, pair)
		s.mu.Unlock()
		s.env.logger.Warn("[BITFINEX_STREAM] subscribe %s failed: %v", pair, err)
		return
	}
	s.env.logger.Debug("[BITFINEX_STREAM] subscribe sent for %s", pair)
}

func (s *bitfinexStreamer) onOpen(from *wsclient.Socket) {
	s.mu.Lock()
	if from != s.sock {
		s.mu.Unlock()
		return
	}
	pairs := make([]string, 0, len(s.wanted))
	for pair := range s.wanted {
		pairs = append(pairs, pair)
	}
	s.mu.Unlock()

	sort.Strings(pairs)
	for _, pair := range pairs {
		s.subscribe(pair)
	}
}

func (s *bitfinexStreamer) onClose(from *wsclient.Socket, code int, reason string) {
	s.mu.Lock()
	if from != s.sock {
		s.mu.Unlock()
		s.env.logger.Debug("[BITFINEX_STREAM] stale socket closed: code=%d", code)
		return
	}
	s.pending = make(map[string]bool)
	s.chanIDs = make(map[string]int64)
	s.chanPairs = make(map[int64]string)
	s.mu.Unlock()
	s.env.logger.Info("[BITFINEX_STREAM] socket closed: code=%d reason=%s", code, reason)
}

func (s *bitfinexStreamer) onMessage(raw []byte) {
	frame, err := parsers.ParseBitfinexFrame(raw)
	if err != nil {
		s.env.drop("parse", err)
		return
	}
	if frame.Event != nil {
		s.onEvent(frame.Event)
		return
	}
	if frame.Kind != parsers.BitfinexTradeUpdate {
		// hb, te и снимок канала не публикуем
		return
	}

	s.mu.Lock()
	pair, ok := s.chanPairs[frame.ChanID]
	symbol := s.wanted[pair]
	s.mu.Unlock()
	if !ok {
		s.env.drop("unknown_channel", nil)
		return
	}

	trade, err := parsers.ParseBitfinexTrade(frame.Data, symbol)
	if err != nil {
		s.env.drop("parse", err)
		return
	}
	s.env.emitTrades(symbol, []market.Trade{trade})
}

func (s *bitfinexStreamer) onEvent(ev *parsers.BitfinexEvent) {
	switch ev.Event {
	case "subscribed":
		if ev.Channel != "trades" {
			return
		}
		pair := ev.Pair
		if pair == "" {
			pair = strings.TrimPrefix(ev.Symbol, "t")
		}

		s.mu.Lock()
		delete(s.pending, pair)
		_, wanted := s.wanted[pair]
		if wanted {
			s.chanIDs[pair] = ev.ChanID
			s.chanPairs[ev.ChanID] = pair
		}
		sock := s.sock
		s.mu.Unlock()

		if !wanted && sock != nil {
			// поток остановили до подтверждения
			_ = sock.SendJSON(map[string]interface{}{"event": "unsubscribe", "chanId": ev.ChanID})
			return
		}
		s.env.logger.Info("[BITFINEX_STREAM] subscribed %s chanId=%d", pair, ev.ChanID)

	case "unsubscribed":
		s.mu.Lock()
		if pair, ok := s.chanPairs[ev.ChanID]; ok {
			delete(s.chanPairs, ev.ChanID)
			if s.chanIDs[pair] == ev.ChanID {
				delete(s.chanIDs, pair)
			}
		}
		s.mu.Unlock()

	case "error":
		s.env.logger.Warn("[BITFINEX_STREAM] error event: code=%d msg=%s symbol=%s", ev.Code, ev.Msg, ev.Symbol)
		if ev.Symbol != "" {
			s.mu.Lock()
			delete(s.pending, strings.TrimPrefix(ev.Symbol, "t"))
			s.mu.Unlock()
		}

	case "info":
		s.env.logger.Info("[BITFINEX_STREAM] info: version=%d code=%d %s", ev.Version, ev.Code, ev.Msg)
	}
}

func (s *bitfinexStreamer) stop(_, venueSymbol string, kind market.StreamKind) error {
	if kind != market.StreamTrades {
		return nil
	}
	s.mu.Lock()
	delete(s.wanted, venueSymbol)
	delete(s.pending, venueSymbol)
	chanID, subscribed := s.chanIDs[venueSymbol]
	if subscribed {
		delete(s.chanIDs, venueSymbol)
		delete(s.chanPairs, chanID)
	}
	sock := s.sock
	s.mu.Unlock()

	if !subscribed || sock == nil {
		return nil
	}
	return sock.SendJSON(map[string]interface{}{"event": "unsubscribe", "chanId": chanID})
}

func (s *bitfinexStreamer) sockets() []SocketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock == nil {
		return nil
	}
	return []SocketInfo{socketInfo(s.sock)}
}

func (s *bitfinexStreamer) close() {
	s.mu.Lock()
	sock := s.sock
	cancel := s.cancel
	s.sock = nil
	s.wanted = make(map[string]string)
	s.pending = make(map[string]bool)
	s.chanIDs = make(map[string]int64)
	s.chanPairs = make(map[int64]string)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close()
	}
}
