package bus

import (
	"sync"
	"time"

	"datafeed-go/internal/market"
)

// DefaultThrottleInterval - окно склейки событий
const DefaultThrottleInterval = time.Second

// Throttler склеивает события с одинаковым именем, пришедшие в течение окна.
// Первое событие открывает окно, по его закрытию публикуется одно событие
// со всеми сделками в порядке поступления.
type Throttler struct {
	bus       *MessageBus
	interval  time.Duration
	afterFunc func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	pending map[string]*market.Event
	timers  map[string]*time.Timer
	stopped bool
	flushed func(topic string, batched int)
	counts  map[string]int
}

// NewThrottler создаёт склейщик поверх шины
func NewThrottler(bus *MessageBus, interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Throttler{
		bus:       bus,
		interval:  interval,
		afterFunc: time.AfterFunc,
		pending:   make(map[string]*market.Event),
		timers:    make(map[string]*time.Timer),
		counts:    make(map[string]int),
	}
}

// OnFlush задаёт колбэк (topic, число склеенных событий) для метрик
func (t *Throttler) OnFlush(fn func(topic string, batched int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushed = fn
}

// Emit буферизует событие. После Stop события публикуются сразу.
func (t *Throttler) Emit(ev market.Event) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		t.bus.Publish(ev)
		return
	}

	if cur, ok := t.pending[ev.Name]; ok {
		cur.Trades = append(cur.Trades, ev.Trades...)
		if ev.OrderBook != nil {
			cur.OrderBook = ev.OrderBook
		}
		t.counts[ev.Name]++
		t.mu.Unlock()
		return
	}

	batch := ev
	batch.Trades = append([]market.Trade(nil), ev.Trades...)
	t.pending[ev.Name] = &batch
	t.counts[ev.Name] = 1
	name := ev.Name
	t.timers[name] = t.afterFunc(t.interval, func() { t.flush(name) })
	t.mu.Unlock()
}

func (t *Throttler) flush(name string) {
	t.mu.Lock()
	ev, ok := t.pending[name]
	count := t.counts[name]
	delete(t.pending, name)
	delete(t.timers, name)
	delete(t.counts, name)
	flushed := t.flushed
	t.mu.Unlock()

	if !ok {
		return
	}
	ev.Timestamp = time.Now()
	t.bus.Publish(*ev)
	if flushed != nil {
		flushed(name, count)
	}
}

// Flush немедленно публикует все накопленные события
func (t *Throttler) Flush() {
	t.mu.Lock()
	names := make([]string, 0, len(t.pending))
	for name, timer := range t.timers {
		timer.Stop()
		names = append(names, name)
	}
	t.mu.Unlock()

	for _, name := range names {
		t.flush(name)
	}
}

// Stop публикует накопленное и отключает буферизацию
func (t *Throttler) Stop() {
	t.Flush()
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Pending возвращает число открытых окон
func (t *Throttler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
