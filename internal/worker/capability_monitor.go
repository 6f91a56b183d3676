package worker

import (
	"sync"
	"time"

	"datafeed-go/pkg/log"
)

// MarginSource - источник маржинальных пар (db.DBDriver)
type MarginSource interface {
	GetMarginSymbols(exchange string) ([]string, error)
}

// MarginTarget - адаптер, принимающий список маржинальных пар
type MarginTarget interface {
	ExchangeName() string
	SetMarginSymbols(symbols []string)
}

// CapabilityMonitor периодически обновляет маржинальные списки адаптеров.
// При ошибке или пустом ответе у адаптера остаётся прежний список.
type CapabilityMonitor struct {
	source   MarginSource
	targets  []MarginTarget
	interval time.Duration
	logger   *log.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.Mutex
	totalRuns    int
	totalUpdates int
	totalErrors  int
	lastRun      time.Time
}

func NewCapabilityMonitor(logger *log.Logger, source MarginSource, targets []MarginTarget, interval time.Duration) *CapabilityMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CapabilityMonitor{
		source:   source,
		targets:  targets,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start делает первое обновление сразу и дальше раз в interval
func (cm *CapabilityMonitor) Start() {
	cm.logger.Info("[CAPABILITY_MONITOR] Started, interval=%s, exchanges=%d", cm.interval, len(cm.targets))
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				cm.logger.Error("[CAPABILITY_MONITOR] Panic in loop: %v", r)
			}
		}()
		ticker := time.NewTicker(cm.interval)
		defer ticker.Stop()
		for {
			cm.RefreshOnce()
			select {
			case <-cm.stopChan:
				cm.logger.Info("[CAPABILITY_MONITOR] Stop signal received")
				return
			case <-ticker.C:
			}
		}
	}()
}

func (cm *CapabilityMonitor) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopChan) })
	cm.wg.Wait()
}

// RefreshOnce опрашивает источник для каждой биржи
func (cm *CapabilityMonitor) RefreshOnce() {
	if cm.source == nil {
		return
	}
	updates, errs := 0, 0
	for _, t := range cm.targets {
		name := t.ExchangeName()
		symbols, err := cm.source.GetMarginSymbols(name)
		if err != nil {
			cm.logger.Warn("[CAPABILITY_MONITOR] %s: margin symbols not loaded, keeping previous list: %v", name, err)
			errs++
			continue
		}
		if len(symbols) == 0 {
			cm.logger.Debug("[CAPABILITY_MONITOR] %s: no margin symbols in store", name)
			continue
		}
		t.SetMarginSymbols(symbols)
		updates++
		cm.logger.Debug("[CAPABILITY_MONITOR] %s: %d margin symbols", name, len(symbols))
	}

	cm.mu.Lock()
	cm.totalRuns++
	cm.totalUpdates += updates
	cm.totalErrors += errs
	cm.lastRun = time.Now()
	cm.mu.Unlock()
}

// Metrics возвращает число прогонов, успешных обновлений и ошибок
func (cm *CapabilityMonitor) Metrics() (runs, updates, errors int, lastRun time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.totalRuns, cm.totalUpdates, cm.totalErrors, cm.lastRun
}
