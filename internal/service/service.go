package service

import (
	"context"
	"reflect"
	"sync"
	"time"

	"datafeed-go/internal/state"
	"datafeed-go/pkg/log"
)

// Daemon периодически сохраняет список активных потоков, чтобы после падения
// процесса менеджер мог их восстановить
type Daemon struct {
	file     string
	interval time.Duration
	snapshot func() []state.Stream
	logger   *log.Logger
	mu       sync.Mutex
	last     []state.Stream
	saves    int
}

// NewDaemon создает новый экземпляр сервиса
func NewDaemon(file string, interval time.Duration, snapshot func() []state.Stream) *Daemon {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Daemon{
		file:     file,
		interval: interval,
		snapshot: snapshot,
		logger:   log.New("service"),
	}
}

// Run запускает сервисные задачи и завершает работу при получении ctx.Done()
func (d *Daemon) Run(ctx context.Context) {
	d.logger.Info("[SERVICE] Checkpoint daemon running, interval=%s", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("[SERVICE] Checkpoint daemon stopping")
			return
		case <-ticker.C:
			d.Checkpoint()
		}
	}
}

// Checkpoint пишет файл состояния, если список потоков изменился
func (d *Daemon) Checkpoint() {
	d.mu.Lock()
	defer d.mu.Unlock()

	streams := d.snapshot()
	if d.saves > 0 && reflect.DeepEqual(streams, d.last) {
		return
	}
	if _, err := state.SetStreams(d.file, streams); err != nil {
		d.logger.Error("[SERVICE] Failed to save state to %s: %v", d.file, err)
		return
	}
	d.last = streams
	d.saves++
	d.logger.Debug("[SERVICE] State saved: %d streams", len(streams))
}

// Saves - число записей файла состояния
func (d *Daemon) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}
