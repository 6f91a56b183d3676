package state

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Stream - активный поток, восстанавливается после перезапуска
type Stream struct {
	Exchange string `json:"exchange"`
	Kind     string `json:"kind"`
	Symbol   string `json:"symbol"`
}

type DaemonState struct {
	Active  bool     `json:"active"`
	Streams []Stream `json:"streams"`
}

// LoadState читает файл состояния; отсутствующий или битый файл даёт пустое состояние
func LoadState(file string) *DaemonState {
	st := &DaemonState{Active: false}

	f, err := os.ReadFile(file)
	if err != nil {
		// Если файл не существует, создаем его с дефолтным состоянием
		_ = SaveState(file, st)
		return st
	}
	if err := json.Unmarshal(f, st); err != nil {
		return &DaemonState{}
	}
	return st
}

// SaveState пишет состояние атомарно через временный файл
func SaveState(file string, st *DaemonState) error {
	// Создать директорию для state-файла, если не существует
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}

// SetStreams сохраняет список потоков, флаг Active ставится по непустому списку
func SetStreams(file string, streams []Stream) (*DaemonState, error) {
	st := &DaemonState{Active: len(streams) > 0, Streams: streams}
	return st, SaveState(file, st)
}
