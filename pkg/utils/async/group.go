package async

import (
	"context"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// Group runs handlers concurrently with at most limit of them in flight.
// The first error cancels the context passed to the other handlers and is
// returned by Wait. Panics are converted to errors.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// NewGroup creates a Group. limit <= 0 means no limit.
func NewGroup(ctx context.Context, limit int) *Group {
	eg, egCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	return &Group{eg: eg, ctx: egCtx}
}

// Go schedules handler. It blocks while the group is at its limit.
func (g *Group) Go(handler func(ctx context.Context) error) {
	g.eg.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctxlog.From(g.ctx).Error("panic in group handler",
					"recover", r,
					"stack", string(debug.Stack()))
				err = goerr.New("panic in group handler", goerr.V("recover", r))
			}
		}()

		if err := g.ctx.Err(); err != nil {
			return err
		}
		return handler(g.ctx)
	})
}

// Wait blocks until every handler returned and reports the first error
func (g *Group) Wait() error {
	return g.eg.Wait()
}
