package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials возвращается приватными методами до любого сетевого вызова
	ErrMissingCredentials = errors.New("api key is missing")
	ErrNotSupported       = errors.New("operation is not supported by exchange")
	ErrConnectionTimeout  = errors.New("connection was not opened in time")
	ErrUnknownExchange    = errors.New("unknown exchange")
	ErrEmptySymbol        = errors.New("symbol is required")
)

// HTTPError - ответ REST с кодом вне 2xx
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, body)
}
