package progress

import (
	"context"
	"errors"

	"github.com/kasuganosora/learnquest/plugin/hook"
	"go.uber.org/zap"
)

// emit runs the registered hooks for ev. Handler failures are logged only;
// the state change they describe is already committed.
func (c *Coordinator) emit(ctx context.Context, ev hook.Event) {
	if c.hooks == nil {
		return
	}
	if err := c.hooks.Trigger(ctx, ev); err != nil && !errors.Is(err, hook.ErrInterrupt) {
		c.logger.Warn("progress hook failed",
			zap.String("event", ev.Type),
			zap.String("user_id", ev.UserID),
			zap.Error(err))
	}
}
