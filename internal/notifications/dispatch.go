package notifications

import (
	"context"

	"go.uber.org/zap"
)

// Notifier receives workflow events after they are committed
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Dispatch hands ev to n. A failed notification is logged and never fails
// the operation that raised it.
func Dispatch(ctx context.Context, n Notifier, logger *zap.Logger, ev Event) {
	if n == nil || len(ev.UserIDs) == 0 {
		return
	}
	if err := n.Notify(ctx, ev); err != nil {
		logger.Warn("Failed to send notification",
			zap.String("type", ev.Type),
			zap.String("entity_kind", ev.EntityKind),
			zap.Uint("entity_id", ev.EntityID),
			zap.Error(err))
	}
}

// Without drops skip from ids, usually the actor who raised the event.
func Without(ids []uint, skip uint) []uint {
	out := ids[:0:0]
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}
