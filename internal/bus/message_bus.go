package bus

import (
	"sync"

	"datafeed-go/internal/market"
	"datafeed-go/pkg/log"
)

// AllTopics - подписка на все события адаптера
const AllTopics = "*"

// MessageBus - шина событий одного адаптера: topic = имя события (trade:BTC/USDT)
type MessageBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan market.Event // topic -> channels
	logger      *log.Logger
	dropped     func(topic string)
}

// New создаёт шину для адаптера
func New(name string) *MessageBus {
	return &MessageBus{
		subscribers: make(map[string][]chan market.Event),
		logger:      log.New("message_bus_" + name),
	}
}

// OnDrop задаёт колбэк для сообщений, выброшенных из-за переполнения канала
func (mb *MessageBus) OnDrop(fn func(topic string)) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.dropped = fn
}

// Subscribe подписывается на сообщения конкретного topic
func (mb *MessageBus) Subscribe(topic string, bufferSize int) chan market.Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	ch := make(chan market.Event, bufferSize)
	mb.subscribers[topic] = append(mb.subscribers[topic], ch)
	mb.logger.Debug("[MESSAGE_BUS] Subscribed to %s, total subscribers: %d", topic, len(mb.subscribers[topic]))
	return ch
}

// SubscribeAll подписывается на все события
func (mb *MessageBus) SubscribeAll(bufferSize int) chan market.Event {
	return mb.Subscribe(AllTopics, bufferSize)
}

// Publish отправляет сообщение подписчикам topic и подписчикам всех событий. Не блокируется.
// Отправка идёт под RLock: Unsubscribe закрывает канал только под Lock.
func (mb *MessageBus) Publish(msg market.Event) {
	drops := 0
	mb.mu.RLock()
	direct := mb.subscribers[msg.Name]
	all := mb.subscribers[AllTopics]
	dropped := mb.dropped
	if len(direct)+len(all) == 0 {
		mb.mu.RUnlock()
		mb.logger.Debug("[MESSAGE_BUS] No subscribers for %s", msg.Name)
		return
	}
	for i, ch := range append(append(make([]chan market.Event, 0, len(direct)+len(all)), direct...), all...) {
		select {
		case ch <- msg:
		default:
			mb.logger.Warn("[MESSAGE_BUS] Subscriber %d channel full for %s, dropping message", i, msg.Name)
			drops++
		}
	}
	mb.mu.RUnlock()

	// колбэк вне блокировки: он может вызвать Subscribe/Unsubscribe
	if dropped != nil {
		for ; drops > 0; drops-- {
			dropped(msg.Name)
		}
	}
}

// Unsubscribe отписывается от сообщений (закрывает канал)
func (mb *MessageBus) Unsubscribe(topic string, ch chan market.Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	subscribers, exists := mb.subscribers[topic]
	if !exists {
		return
	}

	for i, subscriber := range subscribers {
		if subscriber == ch {
			close(ch)
			mb.subscribers[topic] = append(subscribers[:i], subscribers[i+1:]...)
			if len(mb.subscribers[topic]) == 0 {
				delete(mb.subscribers, topic)
			}
			mb.logger.Debug("[MESSAGE_BUS] Unsubscribed from %s, remaining subscribers: %d", topic, len(mb.subscribers[topic]))
			break
		}
	}
}

// GetSubscriberCount возвращает количество подписчиков topic
func (mb *MessageBus) GetSubscriberCount(topic string) int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.subscribers[topic])
}

// GetTotalSubscribers возвращает общее количество подписчиков
func (mb *MessageBus) GetTotalSubscribers() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	total := 0
	for _, subscribers := range mb.subscribers {
		total += len(subscribers)
	}
	return total
}
