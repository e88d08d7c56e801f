package usecase

import (
	"context"
	"time"
)

const (
	// DefaultCommandTimeout bounds the durability write of a single command.
	// Commands are not cancellable mid-flight; callers apply their own
	// timeout policy at the message layer.
	DefaultCommandTimeout = 30 * time.Second
)

// runTx executes a transactional commit body, retried when a retrier is
// configured. Bodies must be restartable from the top.
func runTx(ctx context.Context, retrier Retrier, fn func() error) error {
	if retrier == nil {
		return fn()
	}
	return retrier.Retry(ctx, fn)
}
