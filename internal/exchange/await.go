package exchange

import (
	"context"
	"time"
)

const (
	DefaultConnectPoll    = time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// AwaitConnection ждёт, пока isOpen вернёт true: проверка сразу и затем раз в poll.
// По истечении timeout возвращает ErrConnectionTimeout.
func AwaitConnection(ctx context.Context, isOpen func() bool, poll, timeout time.Duration) error {
	if isOpen() {
		return nil
	}
	if poll <= 0 {
		poll = DefaultConnectPoll
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if isOpen() {
				return nil
			}
			return ErrConnectionTimeout
		case <-ticker.C:
			if isOpen() {
				return nil
			}
		}
	}
}
