package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
)

// Dispatch runs handler in a new goroutine under a context detached from
// ctx: the logger of ctx is kept, tagged with task, while cancellation is
// not. Returned errors and panics are logged, never propagated.
func Dispatch(ctx context.Context, task string, handler func(ctx context.Context) error) {
	logger := ctxlog.From(ctx).With("task", task)
	bgCtx := ctxlog.With(context.Background(), logger)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in async handler",
					"recover", r,
					"stack", string(debug.Stack()))
			}
		}()

		if err := handler(bgCtx); err != nil {
			logger.Error("error in async handler", "error", err)
		}
	}()
}
