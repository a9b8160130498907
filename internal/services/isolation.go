package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// isolatedTimeout bounds work that runs outside the caller's lifetime.
const isolatedTimeout = 5 * time.Second

// runIsolated executes fn in its own unit of work: detached from the caller's
// cancellation, bounded by isolatedTimeout, with errors and panics logged and
// swallowed. The caller never observes the outcome.
func runIsolated(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) {
	isoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), isolatedTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("isolated operation panicked",
				slog.String("op", op),
				slog.Any("error", fmt.Errorf("panic: %v", p)))
		}
	}()

	if err := fn(isoCtx); err != nil {
		logger.Error("isolated operation failed",
			slog.String("op", op),
			slog.Any("error", err))
	}
}
