package exchange

import (
	"fmt"
	"strings"

	"datafeed-go/pkg/log"

	"github.com/gorilla/websocket"
)

const maxLoggedFrame = 1000

// DebugLogger - логгер сырых кадров WebSocket, включается debug.log_raw.
// Реализует wsclient.FrameLogger.
type DebugLogger struct {
	enabled  bool
	exchange string
	logger   *log.Logger
}

func NewDebugLogger(exchange string, enabled bool) *DebugLogger {
	return &DebugLogger{
		enabled:  enabled,
		exchange: exchange,
		logger:   log.New(fmt.Sprintf("websocket-%s", exchange)),
	}
}

// LogRawReceived логирует полученное сырое сообщение
func (dl *DebugLogger) LogRawReceived(msgType int, data []byte) {
	if !dl.enabled {
		return
	}
	dl.logger.Debug("[RX][%s] %s", messageTypeString(msgType), truncate(string(data)))
}

// LogRawSent логирует отправленное сообщение без конфиденциальных полей
func (dl *DebugLogger) LogRawSent(msgType int, data []byte) {
	if !dl.enabled {
		return
	}
	dl.logger.Debug("[TX][%s] %s", messageTypeString(msgType), truncate(filterSensitiveData(string(data))))
}

// LogConnection логирует события подключения
func (dl *DebugLogger) LogConnection(event string, details ...interface{}) {
	if !dl.enabled {
		return
	}
	if len(details) > 0 {
		dl.logger.Debug("[CONN] %s: %v", event, details)
	} else {
		dl.logger.Debug("[CONN] %s", event)
	}
}

// IsEnabled возвращает состояние debug логирования
func (dl *DebugLogger) IsEnabled() bool {
	return dl.enabled
}

// SetEnabled включает/выключает debug логирование
func (dl *DebugLogger) SetEnabled(enabled bool) {
	dl.enabled = enabled
	if enabled {
		dl.logger.Info("Debug logging ENABLED")
	} else {
		dl.logger.Info("Debug logging DISABLED")
	}
}

func truncate(s string) string {
	if len(s) > maxLoggedFrame {
		return s[:maxLoggedFrame] + "... [TRUNCATED]"
	}
	return s
}

func messageTypeString(msgType int) string {
	switch msgType {
	case websocket.TextMessage:
		return "TEXT"
	case websocket.BinaryMessage:
		return "BINARY"
	case websocket.CloseMessage:
		return "CLOSE"
	case websocket.PingMessage:
		return "PING"
	case websocket.PongMessage:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", msgType)
	}
}

var sensitiveFields = []string{
	"apiKey", "api_key", "secretKey", "secret", "passphrase", "signature", "token",
}

// filterSensitiveData заменяет значения чувствительных полей на "***"
func filterSensitiveData(data string) string {
	filtered := data
	for _, field := range sensitiveFields {
		offset := 0
		for {
			idx := strings.Index(filtered[offset:], `"`+field+`"`)
			if idx < 0 {
				break
			}
			start := offset + idx + len(field) + 2
			colon := strings.Index(filtered[start:], ":")
			if colon < 0 {
				break
			}
			valueStart := start + colon + 1
			valueEnd := len(filtered)
			for i, char := range filtered[valueStart:] {
				if char == ',' || char == '}' {
					valueEnd = valueStart + i
					break
				}
			}
			filtered = filtered[:valueStart] + `"***"` + filtered[valueEnd:]
			offset = valueStart + len(`"***"`)
		}
	}
	return filtered
}
