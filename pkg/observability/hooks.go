package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tripchat/pkg/domain"
)

// LoggingHooks writes session events to logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_start",
				"session_id", e.SessionID,
				"user_id", e.UserID,
				"resumed", e.Resumed,
			)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_end",
				"session_id", e.SessionID,
				"user_id", e.UserID,
				"reason", e.Reason,
				"total_messages", e.TotalMessages,
			)
		},
		OnTurn: func(ctx context.Context, e *domain.TurnEvent) {
			logger.DebugContext(ctx, "turn",
				"session_id", e.SessionID,
				"role", e.Role,
				"intent", e.Intent,
				"phase", e.Phase,
				"follow_up", e.FollowUp,
			)
		},
	}
}

// Combine returns hooks calling each set in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnSessionStart = chain(out.OnSessionStart, h.OnSessionStart)
		out.OnSessionEnd = chain(out.OnSessionEnd, h.OnSessionEnd)
		out.OnTurn = chain(out.OnTurn, h.OnTurn)
	}
	return out
}

func chain[E any](first, next func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return next
	case next == nil:
		return first
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		next(ctx, e)
	}
}
