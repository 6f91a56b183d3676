package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"datafeed-go/internal/api"
	"datafeed-go/internal/bus"
	"datafeed-go/internal/config"
	"datafeed-go/internal/db"
	"datafeed-go/internal/exchange"
	"datafeed-go/internal/handlers"
	"datafeed-go/internal/market"
	"datafeed-go/internal/metrics"
	"datafeed-go/internal/service"
	"datafeed-go/internal/state"
	"datafeed-go/internal/worker"
	"datafeed-go/pkg/log"
)

type Manager struct {
	cfg           *config.Config
	db            db.DBDriver // nil, если БД не настроена
	logger        *log.Logger
	adapters      map[string]exchange.Adapter
	order         []string
	collector     *handlers.DataCollector
	collectorSubs map[string]chan market.Event
	capMonitor    *worker.CapabilityMonitor
	serviceDaemon *service.Daemon
	apiServer     *api.Server
	stopChan      chan struct{}
	stopOnce      sync.Once
	mu            sync.Mutex
	started       bool
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewManager создаёт адаптеры для exchanges.enabled; записи из БД переопределяют URL и ключи
func NewManager(cfg *config.Config, dbDriver db.DBDriver, logger *log.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:           cfg,
		db:            dbDriver,
		logger:        logger,
		adapters:      make(map[string]exchange.Adapter),
		collector:     handlers.NewDataCollector(),
		collectorSubs: make(map[string]chan market.Event),
		stopChan:      make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	metrics.Init()

	for _, name := range cfg.Exchanges.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := m.adapters[name]; dup || name == "" {
			continue
		}
		opts, ok := m.adapterOptions(name)
		if !ok {
			continue
		}
		m.adapters[name] = exchange.NewAdapter(name, opts)
		m.order = append(m.order, name)
		m.logger.Debug("[INIT][DEBUG] Adapter %s created (rest=%s ws=%s)", name, opts.RestBase, opts.WsURL)
	}
	m.logger.Info("[INIT] %d adapters configured: %s", len(m.order), strings.Join(m.order, ","))

	m.serviceDaemon = service.NewDaemon(cfg.Daemon.StateFile, cfg.CheckpointInterval(), m.streamsSnapshot)
	return m
}

// adapterOptions: false - биржа выключена в БД
func (m *Manager) adapterOptions(name string) (exchange.Options, bool) {
	opts := exchange.OptionsFromConfig(m.cfg, name)
	if m.db == nil {
		return opts, true
	}
	ex, err := m.db.GetExchangeByName(name)
	switch {
	case errors.Is(err, db.ErrExchangeNotFound):
		m.logger.Debug("[INIT][DEBUG] No DB record for %s, using defaults", name)
		return opts, true
	case err != nil:
		m.logger.Warn("[INIT] Failed to load %s from DB: %v, using defaults", name, err)
		return opts, true
	}
	if !ex.Active {
		m.logger.Info("[INIT] Exchange %s is disabled in DB, skipping", name)
		return opts, false
	}
	if ex.BaseUrl.Valid && ex.BaseUrl.String != "" {
		opts.RestBase = ex.BaseUrl.String
	}
	if ex.WebsocketUrl.Valid && ex.WebsocketUrl.String != "" {
		opts.WsURL = ex.WebsocketUrl.String
	}
	if ex.ApiKey.Valid && ex.ApiKey.String != "" {
		opts.Credentials.ApiKey = ex.ApiKey.String
		opts.Credentials.ApiSecret = ex.ApiSecret.String
		opts.Credentials.Password = ex.Passphrase.String
	}
	return opts, true
}

// Start запускает адаптеры, сбор статистики, монитор возможностей, API и восстанавливает потоки
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn("[START] Manager already started")
		return
	}
	m.started = true
	m.mu.Unlock()
	m.logger.Info("[START] Initializing manager...")

	for _, name := range m.order {
		a := m.adapters[name]
		if err := a.Start(); err != nil {
			m.logger.Error("[START] Failed to start adapter %s: %v", name, err)
			continue
		}
		ch := a.Bus().SubscribeAll(1024)
		m.collectorSubs[name] = ch
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.collector.Run(ch)
		}()
	}

	if m.db != nil {
		targets := make([]worker.MarginTarget, 0, len(m.order))
		for _, name := range m.order {
			targets = append(targets, m.adapters[name])
		}
		m.capMonitor = worker.NewCapabilityMonitor(m.logger, m.db, targets, m.cfg.RefreshInterval())
		m.capMonitor.Start()
	}

	m.restoreStreams()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.serviceDaemon.Run(m.ctx)
	}()

	if m.cfg.Daemon.HttpPort > 0 {
		apiCfg := api.ServerConfig{Port: m.cfg.Daemon.HttpPort}
		m.logger.Info("[START] Initializing API server on :%d", apiCfg.Port)
		m.apiServer = api.NewServer(apiCfg, m, m.db, m.stopChan)
		go m.apiServer.Start()
	}

	m.logger.Info("[START] Manager started")
}

// restoreStreams поднимает потоки из файла состояния
func (m *Manager) restoreStreams() {
	st := state.LoadState(m.cfg.Daemon.StateFile)
	restored := 0
	for _, s := range st.Streams {
		kind, ok := market.ParseStreamKind(s.Kind)
		if !ok {
			m.logger.Warn("[RESTORE] Unknown stream kind %q for %s %s", s.Kind, s.Exchange, s.Symbol)
			continue
		}
		if err := m.startStream(s.Exchange, kind, s.Symbol); err != nil {
			m.logger.Warn("[RESTORE] Failed to restore %s %s %s: %v", s.Exchange, kind, s.Symbol, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		m.logger.Info("[RESTORE] %d streams restored from %s", restored, m.cfg.Daemon.StateFile)
	}
}

// ShutdownRequested - сигнал от /daemon?action=shutdown
func (m *Manager) ShutdownRequested() <-chan struct{} {
	return m.stopChan
}

func (m *Manager) Adapter(name string) (exchange.Adapter, bool) {
	a, ok := m.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Adapters в порядке конфига
func (m *Manager) Adapters() []exchange.Adapter {
	out := make([]exchange.Adapter, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.adapters[name])
	}
	return out
}

// StartStream запускает поток и сохраняет состояние
func (m *Manager) StartStream(exchangeName string, kind market.StreamKind, symbol string) error {
	if err := m.startStream(exchangeName, kind, symbol); err != nil {
		return err
	}
	m.saveState()
	return nil
}

// StopStream останавливает поток и сохраняет состояние
func (m *Manager) StopStream(exchangeName string, kind market.StreamKind, symbol string) error {
	a, ok := m.Adapter(exchangeName)
	if !ok {
		return fmt.Errorf("%s: %w", exchangeName, exchange.ErrUnknownExchange)
	}
	var err error
	switch kind {
	case market.StreamTrades:
		err = a.StopStreamingTrades(symbol)
	case market.StreamOrderBook:
		err = a.StopStreamingOrderbook(symbol)
	default:
		return fmt.Errorf("stream kind %q: %w", kind, exchange.ErrNotSupported)
	}
	if err != nil {
		return err
	}
	m.saveState()
	return nil
}

func (m *Manager) startStream(exchangeName string, kind market.StreamKind, symbol string) error {
	a, ok := m.Adapter(exchangeName)
	if !ok {
		return fmt.Errorf("%s: %w", exchangeName, exchange.ErrUnknownExchange)
	}
	switch kind {
	case market.StreamTrades:
		return a.StreamTrades(symbol)
	case market.StreamOrderBook:
		return a.StreamOrderbook(symbol)
	}
	return fmt.Errorf("stream kind %q: %w", kind, exchange.ErrNotSupported)
}

// streamsSnapshot - активные потоки всех адаптеров в формате файла состояния
func (m *Manager) streamsSnapshot() []state.Stream {
	streams := make([]state.Stream, 0)
	for _, name := range m.order {
		for _, k := range m.adapters[name].ActiveStreams() {
			streams = append(streams, state.Stream{Exchange: k.Exchange, Kind: string(k.Kind), Symbol: k.Symbol})
		}
	}
	return streams
}

// saveState пишет файл через сервис, чтобы не было двух писателей
func (m *Manager) saveState() {
	m.serviceDaemon.Checkpoint()
}

// Stats - секции /status
func (m *Manager) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"collector": m.collector.GetStats(),
	}
	if m.capMonitor != nil {
		runs, updates, errs, lastRun := m.capMonitor.Metrics()
		stats["capability_monitor"] = map[string]interface{}{
			"total_runs":    runs,
			"total_updates": updates,
			"total_errors":  errs,
			"last_run":      lastRun.Unix(),
		}
	}
	return stats
}

// Collector нужен для CLI и тестов
func (m *Manager) Collector() *handlers.DataCollector {
	return m.collector
}

// Stop сохраняет активные потоки и останавливает всё в обратном порядке
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Warn("[STOP] Shutdown signal received, stopping manager...")

		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		// состояние пишется до остановки адаптеров, иначе список потоков будет пустым
		if started {
			m.saveState()
		}
		m.cancel()

		if m.apiServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.apiServer.Shutdown(ctx); err != nil {
				m.logger.Error("[STOP] API shutdown error: %v", err)
			}
			cancel()
		}
		if m.capMonitor != nil {
			m.logger.Info("[STOP] Stopping CapabilityMonitor...")
			m.capMonitor.Stop()
		}

		for _, name := range m.order {
			a := m.adapters[name]
			m.logger.Info("[STOP] Stopping adapter %s", name)
			if err := a.Stop(); err != nil {
				m.logger.Error("[STOP] Error stopping adapter %s: %v", name, err)
			}
			if ch, ok := m.collectorSubs[name]; ok {
				a.Bus().Unsubscribe(bus.AllTopics, ch)
				delete(m.collectorSubs, name)
			}
		}
		m.wg.Wait()

		if m.db != nil {
			m.logger.Info("[STOP] Closing database connection...")
			if err := m.db.Close(); err != nil {
				m.logger.Error("[STOP] Error closing DB: %v", err)
			} else {
				m.logger.Info("[STOP] DB closed")
			}
		}
		m.logger.Info("[STOP] Manager stopped gracefully")
	})
}
