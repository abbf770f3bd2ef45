package avatar

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Cleanup frees provider capacity by ending stale remote sessions. It first
// ends sessions older than the standard threshold; if the provider is still
// at its cap it repeats the pass with the aggressive threshold. The returned
// bool reports whether capacity was freed below the cap.
//
// Only sessions the provider reports as active are ever ended, so running
// cleanup twice in a row is safe: the second run finds nothing to do.
func (b *Broker) Cleanup(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "cleanup stale avatar sessions")
	defer span.End()

	ended, err := b.cleanupPass(ctx, b.staleAfter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Int("avatar.cleanup.ended", ended))

	resolved, err := b.belowCap(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if resolved {
		return true, nil
	}

	span.AddEvent("still at capacity, running aggressive pass")
	logger.InfoContext(ctx, "avatar capacity still exhausted, ending younger sessions",
		"threshold", b.aggressiveStaleAfter)

	ended, err = b.cleanupPass(ctx, b.aggressiveStaleAfter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Int("avatar.cleanup.ended_aggressive", ended))

	resolved, err = b.belowCap(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return resolved, nil
}

// cleanupPass ends every active remote session older than threshold and
// returns how many were ended. Individual end failures are logged and
// skipped; one stuck session must not block the rest of the pass.
func (b *Broker) cleanupPass(ctx context.Context, threshold time.Duration) (int, error) {
	sessions, err := b.api.ListConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list avatar sessions: %w", err)
	}

	now := time.Now().UTC()
	ended := 0
	for _, session := range sessions {
		if !session.Active || now.Sub(session.CreatedAt) <= threshold {
			continue
		}

		if ended > 0 {
			// Pace the end calls so the provider does not rate limit the
			// cleanup itself.
			if err := sleepCtx(ctx, b.interCallDelay); err != nil {
				return ended, err
			}
		}

		if err := b.api.EndConversation(ctx, session.ID); err != nil {
			logger.WarnContext(ctx, "failed to end stale avatar session",
				"conversation_id", session.ID, "error", err)
			continue
		}
		logger.InfoContext(ctx, "ended stale avatar session",
			"conversation_id", session.ID, "age", now.Sub(session.CreatedAt))
		ended++
	}

	return ended, nil
}

// belowCap re-lists sessions and checks the active count against the cap.
// The fresh list matters: the pass above may have skipped sessions that
// failed to end.
func (b *Broker) belowCap(ctx context.Context) (bool, error) {
	sessions, err := b.api.ListConversations(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to re-check avatar session count: %w", err)
	}

	active := 0
	for _, session := range sessions {
		if session.Active {
			active++
		}
	}
	return active < b.maxSessions, nil
}

// EndAll ends every active remote session regardless of age. It is an
// operator action, never part of the automatic capacity path.
func (b *Broker) EndAll(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "end all avatar sessions")
	defer span.End()

	sessions, err := b.api.ListConversations(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to list avatar sessions: %w", err)
	}

	ended := 0
	for _, session := range sessions {
		if !session.Active {
			continue
		}

		if ended > 0 {
			if err := sleepCtx(ctx, b.interCallDelay); err != nil {
				return ended, err
			}
		}

		if err := b.api.EndConversation(ctx, session.ID); err != nil {
			logger.WarnContext(ctx, "failed to end avatar session",
				"conversation_id", session.ID, "error", err)
			continue
		}
		ended++
	}

	span.SetAttributes(attribute.Int("avatar.cleanup.ended", ended))
	return ended, nil
}
