package exchange

import (
	"context"
	"sync"
	"time"

	"datafeed-go/internal/bus"
	"datafeed-go/internal/market"
	"datafeed-go/internal/metrics"
	"datafeed-go/internal/wsclient"
	"datafeed-go/pkg/log"
)

// socketStreamer - живые потоки биржи поверх WebSocket
type socketStreamer interface {
	start(symbol, venueSymbol string, kind market.StreamKind) error
	stop(symbol, venueSymbol string, kind market.StreamKind) error
	sockets() []SocketInfo
	close()
}

// barStreamer - свечи через сокет (только Binance)
type barStreamer interface {
	subscribeBars(symbol, venueSymbol, interval, listenerID string, onTick func(market.Bar)) error
	unsubscribeBars(listenerID string)
}

// streamEnv - общее окружение стримеров одного адаптера
type streamEnv struct {
	exchange       string
	wsURL          string
	logger         *log.Logger
	bus            *bus.MessageBus
	throttle       *bus.Throttler
	socketOpts     []wsclient.Option
	connectPoll    time.Duration
	connectTimeout time.Duration
}

// newSocket создаёт сокет с учётом кадров и переподключений в метриках
func (e *streamEnv) newSocket(url, name string, hooks wsclient.Hooks) *wsclient.Socket {
	onMessage := hooks.OnMessage
	hooks.OnMessage = func(data []byte) {
		metrics.FrameReceived(e.exchange)
		if onMessage != nil {
			onMessage(data)
		}
	}
	onClose := hooks.OnClose
	hooks.OnClose = func(code int, reason string) {
		if code != wsclient.CloseNormal {
			metrics.Reconnect(e.exchange)
		}
		if onClose != nil {
			onClose(code, reason)
		}
	}
	onError := hooks.OnError
	hooks.OnError = func(err error) {
		e.logger.Warn("[%s] socket %s error: %v", e.exchange, name, err)
		if onError != nil {
			onError(err)
		}
	}

	opts := append([]wsclient.Option{wsclient.WithHooks(hooks), wsclient.WithName(e.exchange + "-" + name)}, e.socketOpts...)
	return wsclient.New(url, opts...)
}

func (e *streamEnv) emitTrades(symbol string, trades []market.Trade) {
	if len(trades) == 0 {
		return
	}
	e.throttle.Emit(market.NewTradeEvent(e.exchange, symbol, false, trades))
}

// publishBook - диффы стакана не склеиваются, публикуются сразу
func (e *streamEnv) publishBook(symbol string, book *market.OrderBook) {
	e.bus.Publish(market.NewOrderBookEvent(e.exchange, symbol, false, book))
}

func (e *streamEnv) drop(reason string, err error) {
	metrics.FrameDropped(e.exchange, reason)
	if err != nil {
		e.logger.Debug("[%s] frame dropped (%s): %v", e.exchange, reason, err)
	}
}

func (e *streamEnv) await(ctx context.Context, sock *wsclient.Socket) error {
	return AwaitConnection(ctx, sock.IsOpen, e.connectPoll, e.connectTimeout)
}

func socketInfo(s *wsclient.Socket) SocketInfo {
	return SocketInfo{
		URL:        s.URL(),
		State:      s.State().String(),
		Messages:   s.MessageCount(),
		Reconnects: s.ReconnectCount(),
	}
}

// pollStreamer опрашивает REST и публикует полное состояние (trade:full, orderbook:full)
type pollStreamer struct {
	env         *streamEnv
	interval    time.Duration
	fetchTrades func(ctx context.Context, symbol string) ([]market.Trade, error)
	fetchBook   func(ctx context.Context, symbol string) (*market.OrderBook, error)

	mu    sync.Mutex
	loops map[string]context.CancelFunc
	wg    sync.WaitGroup
}

const DefaultPollInterval = 3 * time.Second

func newPollStreamer(env *streamEnv, interval time.Duration) *pollStreamer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &pollStreamer{
		env:      env,
		interval: interval,
		loops:    make(map[string]context.CancelFunc),
	}
}

func (p *pollStreamer) start(symbol string, kind market.StreamKind) {
	key := string(kind) + ":" + symbol
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.loops[key]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.loops[key] = cancel
	p.wg.Add(1)
	go p.run(ctx, symbol, kind)
}

func (p *pollStreamer) run(ctx context.Context, symbol string, kind market.StreamKind) {
	defer p.wg.Done()
	p.env.logger.Debug("[%s_POLL] polling %s %s every %s", p.env.exchange, kind, symbol, p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.poll(ctx, symbol, kind)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *pollStreamer) poll(ctx context.Context, symbol string, kind market.StreamKind) {
	switch kind {
	case market.StreamTrades:
		trades, err := p.fetchTrades(ctx, symbol)
		if err != nil {
			if ctx.Err() == nil {
				p.env.logger.Warn("[%s_POLL] trades %s: %v", p.env.exchange, symbol, err)
			}
			return
		}
		if ctx.Err() == nil {
			p.env.bus.Publish(market.NewTradeEvent(p.env.exchange, symbol, true, trades))
		}
	case market.StreamOrderBook:
		book, err := p.fetchBook(ctx, symbol)
		if err != nil {
			if ctx.Err() == nil {
				p.env.logger.Warn("[%s_POLL] orderbook %s: %v", p.env.exchange, symbol, err)
			}
			return
		}
		if ctx.Err() == nil {
			p.env.bus.Publish(market.NewOrderBookEvent(p.env.exchange, symbol, true, book))
		}
	}
}

func (p *pollStreamer) stop(symbol string, kind market.StreamKind) {
	key := string(kind) + ":" + symbol
	p.mu.Lock()
	cancel, ok := p.loops[key]
	delete(p.loops, key)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *pollStreamer) close() {
	p.mu.Lock()
	for key, cancel := range p.loops {
		cancel()
		delete(p.loops, key)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
