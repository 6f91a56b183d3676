package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel парсит строку в Level (case-insensitive)
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}

type Logger struct {
	module   string
	out      io.WriteCloser
	level    Level
	levelSet bool // если false - действует глобальный уровень
}

var (
	mu          sync.Mutex
	globalOut   io.Writer = os.Stdout
	globalFile  *lumberjack.Logger
	globalMode        = true // если true - логируем в один файл, если false - у каждого Logger свой файл
	globalLevel       = InfoLevel
	maxSizeMB         = 10
	maxBackups        = 3
)

// SetRotation задаёт параметры ротации файлов (размер в MB и число архивов)
func SetRotation(sizeMB, backups int) {
	mu.Lock()
	defer mu.Unlock()
	if sizeMB > 0 {
		maxSizeMB = sizeMB
	}
	if backups >= 0 {
		maxBackups = backups
	}
}

// Level - уровень логирования
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// SetGlobalLevel задаёт глобальный уровень логирования
func SetGlobalLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
}

// SetLevel задаёт уровень логирования для конкретного логгера
func (l *Logger) SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	l.level = level
	l.levelSet = true
}

// SetGlobalMode переключает режим логирования: true - все в один файл, false - каждый Logger в свой
func SetGlobalMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	globalMode = enabled
}

// SetOutput перенаправляет глобальный вывод (используется в тестах)
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	globalOut = w
}

// Close закрывает текущий лог-файл, если он открыт
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if globalFile != nil {
		err := globalFile.Close()
		globalFile = nil
		globalOut = os.Stdout
		return err
	}
	return nil
}

// Init открывает файл для глобального логирования (если путь пустой - пишет в stdout)
func Init(filePath string) error {
	mu.Lock()
	defer mu.Unlock()

	if globalFile != nil {
		if err := globalFile.Close(); err != nil {
			return fmt.Errorf("failed to close previous log file: %w", err)
		}
		globalFile = nil
	}

	if filePath == "" {
		globalOut = os.Stdout
		return nil
	}

	f, err := newRotatingFile(filePath)
	if err != nil {
		return err
	}
	globalFile = f
	globalOut = f
	return nil
}

// newRotatingFile создаёт lumberjack-writer; вызывается под mu
func newRotatingFile(filePath string) (*lumberjack.Logger, error) {
	if dir := filepath.Dir(filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}, nil
}

// NewWithFile создаёт логгер для модуля с отдельным файлом
func NewWithFile(module, filePath string) (*Logger, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalMode {
		return &Logger{module: module, level: globalLevel}, nil
	}
	f, err := newRotatingFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file for module %s: %w", module, err)
	}
	return &Logger{module: module, out: f, level: globalLevel}, nil
}

// New создаёт логгер для модуля (использует глобальный режим)
func New(module string) *Logger {
	mu.Lock()
	defer mu.Unlock()
	return &Logger{module: module, level: globalLevel}
}

// Module возвращает имя модуля логгера
func (l *Logger) Module() string {
	return l.module
}

func (l *Logger) output(level Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	threshold := globalLevel
	if l.levelSet {
		threshold = l.level
	}
	if level < threshold {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000000")
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s\t%s\t%s\t%s\n", ts, level.String(), l.module, msg)

	var w io.Writer = globalOut
	if !globalMode && l.out != nil {
		w = l.out
	}
	if _, err := io.WriteString(w, line); err != nil {
		fmt.Fprintf(os.Stderr, "log write error: %v\n", err)
	}
}

// Close закрывает файл логгера (если используется отдельный файл)
func (l *Logger) Close() error {
	mu.Lock()
	defer mu.Unlock()
	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

func (l *Logger) Debug(format string, args ...interface{}) { l.output(DebugLevel, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.output(InfoLevel, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.output(WarnLevel, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.output(ErrorLevel, format, args...) }
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.output(FatalLevel, format, args...)
	os.Exit(1)
}
