// Package generation produces the assistant reply for a user message by
// walking an ordered chain of strategies until one yields a usable result.
// The cheap, deterministic local strategy runs before any network call so a
// reply is always available in bounded time, even under total provider
// outage.
package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/retry"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PersonaPreamble is the fixed system persona and safety framing used for
// every conversation, both as the seeded system message and as the remote
// strategy's instructions.
const PersonaPreamble = "You are a caring wellbeing companion. You listen " +
	"first, validate feelings, and offer small, practical next steps. You " +
	"never diagnose, never prescribe, and never dismiss what the user is " +
	"feeling. Keep replies short, warm, and conversational. If the user " +
	"appears to be in crisis, gently encourage them to contact a crisis " +
	"hotline or a trusted person."

// minUsableLength is the threshold below which a strategy's output is treated
// as no result at all.
const minUsableLength = 2

// ErrNoMatch is returned by a strategy that has nothing to offer for the
// request; the chain moves on without treating it as a provider failure.
var ErrNoMatch = errors.New("strategy has no response for this message")

// Exchange is one prior conversation turn visible to strategies. System
// messages are excluded before requests are built.
type Exchange struct {
	Role    string
	Content string
}

// Request carries everything a strategy may use to produce a reply.
type Request struct {
	// Message is the latest user message.
	Message string
	// History holds the most recent non-system exchanges, oldest first.
	History []Exchange
	// Context is the user's wellbeing context read at session start.
	Context wellbeing.Context

	// remoteFailed is set by the chain when an earlier strategy failed with
	// a real error, so the final fallback can be honest about it.
	remoteFailed bool
}

// Continuing reports whether this is past the first exchange of the
// conversation. Strategies use it to vary phrasing.
func (r Request) Continuing() bool {
	return len(r.History) > 2
}

// Reply is a generated assistant message plus its presentation tag.
type Reply struct {
	Content string
	Emotion emotion.Tag
}

func (r Reply) usable() bool {
	return len(strings.TrimSpace(r.Content)) >= minUsableLength
}

// Strategy is one alternative way of producing a reply. Strategies may fail;
// the chain owns retries and fallback.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (*Reply, error)
}

type entry struct {
	strategy Strategy
	policy   retry.Policy
}

// Chain walks strategies in order, each wrapped by its retry policy, and
// terminates with a static fallback that cannot fail. Generate therefore
// always returns a usable reply.
type Chain struct {
	entries  []entry
	fallback *fallbackStrategy
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithStrategy appends a strategy with its retry policy. Order of calls is
// the order of evaluation.
func WithStrategy(strategy Strategy, policy retry.Policy) ChainOption {
	return func(c *Chain) {
		c.entries = append(c.entries, entry{strategy: strategy, policy: policy})
	}
}

// NewChain builds a chain ending in the static fallback. A chain with no
// configured strategies still produces replies.
func NewChain(opts ...ChainOption) *Chain {
	chain := &Chain{fallback: newFallbackStrategy()}
	for _, opt := range opts {
		opt(chain)
	}
	return chain
}

// Generate returns the first usable reply the chain produces. It never
// returns an empty reply: the terminal fallback is deterministic and local.
func (c *Chain) Generate(ctx context.Context, req Request) Reply {
	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()

	for _, entry := range c.entries {
		var reply *Reply
		err := entry.policy.Do(ctx, func(ctx context.Context) error {
			var attemptErr error
			reply, attemptErr = entry.strategy.Attempt(ctx, req)
			if attemptErr != nil {
				if errors.Is(attemptErr, ErrNoMatch) {
					return retry.Abort(attemptErr)
				}
				return attemptErr
			}
			if reply == nil || !reply.usable() {
				// A trivial result is not worth retrying, the strategy
				// deterministically has nothing better.
				return retry.Abort(ErrNoMatch)
			}
			return nil
		})
		if err == nil {
			span.SetAttributes(attribute.String("generation.strategy", entry.strategy.Name()))
			return *reply
		}

		if !errors.Is(err, ErrNoMatch) {
			req.remoteFailed = true
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.WarnContext(ctx, "generation strategy failed, falling through",
				"strategy", entry.strategy.Name(), "error", err)
		}
	}

	reply, _ := c.fallback.Attempt(ctx, req)
	span.SetAttributes(attribute.String("generation.strategy", c.fallback.Name()))
	return *reply
}
