package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AsyncTimeout bounds work started by CallAsync.
const AsyncTimeout = 10 * time.Second

// CallAsync runs fn on its own goroutine. The context handed to fn keeps the
// values of parent but not its cancellation, so it survives the request that
// started it, and expires after AsyncTimeout. Errors and panics are logged.
func CallAsync(parent context.Context, logger *zap.SugaredLogger, op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), AsyncTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("async call panicked", "op", op, "panic", r)
			}
		}()

		if err := fn(ctx); err != nil {
			logger.Warnw("async call failed", "op", op, "error", err)
		}
	}()
}
