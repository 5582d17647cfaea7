package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"arksync/backend/pkg/utils"
)

// runEvery calls cycle immediately and then on every tick until ctx is done.
// A panicking or failing cycle is logged and the loop carries on.
func runEvery(ctx context.Context, l *slog.Logger, interval time.Duration, cycle func(context.Context) error) {
	runEveryOrWake(ctx, l, interval, nil, cycle)
}

// runEveryOrWake also runs a cycle early whenever wake fires. A nil wake never does.
func runEveryOrWake(ctx context.Context, l *slog.Logger, interval time.Duration, wake <-chan struct{}, cycle func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := safeCycle(ctx, cycle); err != nil && ctx.Err() == nil {
			l.Warn("cycle failed", utils.ErrAttr(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

func safeCycle(ctx context.Context, cycle func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return cycle(ctx)
}
