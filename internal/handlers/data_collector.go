package handlers

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"datafeed-go/internal/market"
	"datafeed-go/pkg/log"
)

// SymbolStats - последнее известное состояние по паре на бирже
type SymbolStats struct {
	Exchange      string    `json:"exchange"`
	Symbol        string    `json:"symbol"`
	LastPrice     float64   `json:"last_price"`
	LastTradeTime int64     `json:"last_trade_time"` // мс
	Trades        int       `json:"trades"`
	TradeEvents   int       `json:"trade_events"`
	FullTrades    int       `json:"full_trades"`
	BookUpdates   int       `json:"book_updates"`
	BookBids      int       `json:"book_bids"` // размер последнего полного стакана
	BookAsks      int       `json:"book_asks"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DataCollector - собирает статистику из шины для /status (данные не хранит)
type DataCollector struct {
	mu      sync.RWMutex
	symbols map[string]map[string]*SymbolStats // [exchange][symbol]
	total   int
	logger  *log.Logger
}

func NewDataCollector() *DataCollector {
	return &DataCollector{
		symbols: make(map[string]map[string]*SymbolStats),
		logger:  log.New("data_collector"),
	}
}

// Run читает канал до закрытия
func (h *DataCollector) Run(ch <-chan market.Event) {
	for ev := range ch {
		if err := h.HandleMessage(ev); err != nil {
			h.logger.Warn("[DATA_COLLECTOR] %v", err)
		}
	}
}

// HandleMessage обрабатывает событие адаптера
func (h *DataCollector) HandleMessage(ev market.Event) error {
	if ev.Exchange == "" || ev.Symbol == "" {
		return fmt.Errorf("event %q without exchange or symbol", ev.Name)
	}
	if ev.Type != market.MessageTypeTrade && ev.Type != market.MessageTypeOrderBook {
		return fmt.Errorf("unknown message type: %s", ev.Type)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.entry(ev.Exchange, ev.Symbol)
	st.UpdatedAt = ev.Timestamp
	h.total++

	switch ev.Type {
	case market.MessageTypeTrade:
		st.TradeEvents++
		if ev.Full {
			st.FullTrades++
		}
		st.Trades += len(ev.Trades)
		for _, t := range ev.Trades {
			if t.Timestamp >= st.LastTradeTime {
				st.LastTradeTime = t.Timestamp
				st.LastPrice = t.Price
			}
		}
	case market.MessageTypeOrderBook:
		st.BookUpdates++
		if ev.Full && ev.OrderBook != nil {
			st.BookBids = len(ev.OrderBook.Bids)
			st.BookAsks = len(ev.OrderBook.Asks)
		}
	}
	return nil
}

// entry вызывается под mu
func (h *DataCollector) entry(exchange, symbol string) *SymbolStats {
	bySymbol, ok := h.symbols[exchange]
	if !ok {
		bySymbol = make(map[string]*SymbolStats)
		h.symbols[exchange] = bySymbol
	}
	st, ok := bySymbol[symbol]
	if !ok {
		st = &SymbolStats{Exchange: exchange, Symbol: symbol}
		bySymbol[symbol] = st
	}
	return st
}

// Snapshot возвращает копию статистики пары
func (h *DataCollector) Snapshot(exchange, symbol string) (SymbolStats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.symbols[exchange][symbol]
	if !ok {
		return SymbolStats{}, false
	}
	return *st, true
}

// GetStats возвращает статистику по собранным данным
func (h *DataCollector) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	symbols := make([]SymbolStats, 0)
	for _, bySymbol := range h.symbols {
		for _, st := range bySymbol {
			symbols = append(symbols, *st)
		}
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Exchange != symbols[j].Exchange {
			return symbols[i].Exchange < symbols[j].Exchange
		}
		return symbols[i].Symbol < symbols[j].Symbol
	})

	return map[string]interface{}{
		"total_exchanges": len(h.symbols),
		"total_symbols":   len(symbols),
		"total_events":    h.total,
		"symbols":         symbols,
	}
}
