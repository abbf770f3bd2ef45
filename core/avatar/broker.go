// Package avatar manages the lifecycle of a video-avatar session against a
// provider that enforces a hard concurrent-session cap. Creation walks two
// provider API generations, each retried; a detected cap violation triggers
// best-effort remote cleanup before the request is retried.
package avatar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell-ai/companion-core/core/provider"
	"github.com/mindwell-ai/companion-core/core/retry"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Status is the lifecycle state of an avatar session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusEnded        Status = "ended"
	StatusError        Status = "error"
)

// Session is the broker-owned view of one avatar video session.
type Session struct {
	ID             string
	ConversationID string
	URL            string
	Status         Status
	CreatedAt      time.Time
	ErrorMessage   string

	viaLegacy bool
}

// RemoteSession is a provider-side session as reported by listing.
type RemoteSession struct {
	ID        string
	Active    bool
	CreatedAt time.Time
}

// CreateRequest is the provider-agnostic session creation payload.
type CreateRequest struct {
	ReplicaID string
	PersonaID string
	Name      string
	Greeting  string
}

// Created is a successful provider-side creation.
type Created struct {
	ID  string
	URL string
}

// ConversationAPI is the preferred provider generation.
type ConversationAPI interface {
	// CheckHealth validates provider reachability and credentials.
	CheckHealth(ctx context.Context) error
	// ReplicaExists validates that the target avatar identity exists.
	ReplicaExists(ctx context.Context, replicaID string) error
	CreateConversation(ctx context.Context, req CreateRequest) (*Created, error)
	EndConversation(ctx context.Context, id string) error
	ListConversations(ctx context.Context) ([]RemoteSession, error)
}

// LegacySessionAPI is the older provider generation, tried only when the
// preferred one fails.
type LegacySessionAPI interface {
	// CreateSessionFull requests a session with replica, persona, and
	// safety properties.
	CreateSessionFull(ctx context.Context, req CreateRequest) (*Created, error)
	// CreateSessionSimple requests a session with the replica only.
	CreateSessionSimple(ctx context.Context, replicaID string) (*Created, error)
	EndSession(ctx context.Context, id string) error
}

// Broker owns at most one logical avatar session at a time. A newly opened
// session supersedes the previous one, which is torn down best effort.
type Broker struct {
	api    ConversationAPI
	legacy LegacySessionAPI

	replicaID string
	personaID string

	createPolicy         retry.Policy
	staleAfter           time.Duration
	aggressiveStaleAfter time.Duration
	interCallDelay       time.Duration
	legacyRetryDelay     time.Duration
	maxSessions          int

	mu      sync.Mutex
	current *Session
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLegacyAPI wires the older provider generation as a fallback.
func WithLegacyAPI(legacy LegacySessionAPI) BrokerOption {
	return func(b *Broker) { b.legacy = legacy }
}

// WithPersona sets the persona used for personalized sessions.
func WithPersona(personaID string) BrokerOption {
	return func(b *Broker) { b.personaID = personaID }
}

// WithCreatePolicy overrides the retry policy for creation attempts.
func WithCreatePolicy(policy retry.Policy) BrokerOption {
	return func(b *Broker) { b.createPolicy = policy }
}

// WithStaleThresholds overrides the cleanup age thresholds.
func WithStaleThresholds(staleAfter, aggressiveStaleAfter time.Duration) BrokerOption {
	return func(b *Broker) {
		if staleAfter > 0 {
			b.staleAfter = staleAfter
		}
		if aggressiveStaleAfter > 0 {
			b.aggressiveStaleAfter = aggressiveStaleAfter
		}
	}
}

// WithDelays overrides the inter-call cleanup delay and the legacy retry
// delay. Used to keep tests fast.
func WithDelays(interCall, legacyRetry time.Duration) BrokerOption {
	return func(b *Broker) {
		if interCall >= 0 {
			b.interCallDelay = interCall
		}
		if legacyRetry >= 0 {
			b.legacyRetryDelay = legacyRetry
		}
	}
}

// WithMaxSessions sets the provider-side concurrent session cap used by the
// post-cleanup limit check.
func WithMaxSessions(maxSessions int) BrokerOption {
	return func(b *Broker) {
		if maxSessions > 0 {
			b.maxSessions = maxSessions
		}
	}
}

// NewBroker builds a broker over the preferred provider generation.
func NewBroker(api ConversationAPI, replicaID string, opts ...BrokerOption) *Broker {
	broker := &Broker{
		api:                  api,
		replicaID:            replicaID,
		createPolicy:         retry.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 1.5},
		staleAfter:           30 * time.Minute,
		aggressiveStaleAfter: 5 * time.Minute,
		interCallDelay:       500 * time.Millisecond,
		legacyRetryDelay:     5 * time.Second,
		maxSessions:          5,
	}
	for _, opt := range opts {
		opt(broker)
	}
	return broker
}

// Current returns the tracked session, nil when none is open.
func (b *Broker) Current() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return nil
	}
	snapshot := *b.current
	return &snapshot
}

// Open establishes a new avatar session personalized from the wellbeing
// context. Total failure is a legitimate terminal state: the returned session
// carries StatusError and the error is reported, never a fabricated session.
func (b *Broker) Open(ctx context.Context, wctx wellbeing.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "open avatar session")
	defer span.End()

	session := &Session{
		ID:        uuid.NewString(),
		Status:    StatusInitializing,
		CreatedAt: time.Now().UTC(),
	}

	created, err := b.openPreferred(ctx, wctx)
	if err != nil && b.legacy != nil && !provider.IsConfiguration(err) {
		logger.WarnContext(ctx, "preferred avatar generation failed, trying legacy sessions", "error", err)
		span.AddEvent("falling back to legacy generation")
		session.viaLegacy = true
		created, err = b.openLegacy(ctx)
	}

	if err != nil {
		session.Status = StatusError
		session.ErrorMessage = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session, fmt.Errorf("failed to open avatar session: %w", err)
	}

	session.ConversationID = created.ID
	session.URL = created.URL
	session.Status = StatusActive
	span.SetAttributes(attribute.String("avatar.conversation_id", created.ID))

	// Callers keep the returned pointer, so status transitions happen under
	// the broker lock.
	b.mu.Lock()
	superseded := b.current
	b.current = session
	supersededActive := superseded != nil && superseded.Status == StatusActive
	if supersededActive {
		superseded.Status = StatusEnded
	}
	b.mu.Unlock()

	if supersededActive {
		// Best effort: the provider cap counts the old session until it is
		// gone, but a teardown failure must not fail the new session.
		if err := b.endRemote(ctx, superseded); err != nil {
			logger.WarnContext(ctx, "failed to end superseded avatar session",
				"conversation_id", superseded.ConversationID, "error", err)
		}
	}

	return session, nil
}

func (b *Broker) openPreferred(ctx context.Context, wctx wellbeing.Context) (*Created, error) {
	if err := b.api.CheckHealth(ctx); err != nil {
		return nil, fmt.Errorf("provider unreachable: %w", err)
	}
	if err := b.api.ReplicaExists(ctx, b.replicaID); err != nil {
		return nil, fmt.Errorf("replica %q unavailable: %w", b.replicaID, err)
	}

	req := CreateRequest{
		ReplicaID: b.replicaID,
		PersonaID: b.personaID,
		Name:      "wellbeing-companion",
		Greeting:  buildGreeting(wctx),
	}

	cleanupDone := false
	var created *Created
	err := b.createPolicy.Do(ctx, func(ctx context.Context) error {
		var createErr error
		created, createErr = b.api.CreateConversation(ctx, req)
		if createErr != nil && provider.IsCapacity(createErr) && !cleanupDone {
			cleanupDone = true
			resolved, cleanupErr := b.Cleanup(ctx)
			if cleanupErr != nil {
				logger.WarnContext(ctx, "capacity cleanup failed", "error", cleanupErr)
			} else {
				logger.InfoContext(ctx, "capacity cleanup finished", "resolved", resolved)
			}
		}
		return createErr
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// openLegacy walks the legacy request shapes in order: full, simple, and
// simple once more after a fixed delay.
func (b *Broker) openLegacy(ctx context.Context) (*Created, error) {
	created, err := b.legacy.CreateSessionFull(ctx, CreateRequest{
		ReplicaID: b.replicaID,
		PersonaID: b.personaID,
		Name:      "wellbeing-companion",
	})
	if err == nil {
		return created, nil
	}
	logger.WarnContext(ctx, "legacy full session request failed", "error", err)

	created, err = b.legacy.CreateSessionSimple(ctx, b.replicaID)
	if err == nil {
		return created, nil
	}
	logger.WarnContext(ctx, "legacy simple session request failed", "error", err)

	if err := sleepCtx(ctx, b.legacyRetryDelay); err != nil {
		return nil, err
	}
	created, err = b.legacy.CreateSessionSimple(ctx, b.replicaID)
	if err != nil {
		return nil, fmt.Errorf("all legacy session requests failed: %w", err)
	}
	return created, nil
}

// Close ends the session remotely and marks it ended. Closing a nil or
// already-ended session is a no-op.
func (b *Broker) Close(ctx context.Context, session *Session) error {
	if session == nil || session.ConversationID == "" {
		return nil
	}

	b.mu.Lock()
	ended := session.Status == StatusEnded
	b.mu.Unlock()
	if ended {
		return nil
	}

	if err := b.endRemote(ctx, session); err != nil {
		return fmt.Errorf("failed to end avatar session %s: %w", session.ConversationID, err)
	}

	b.mu.Lock()
	session.Status = StatusEnded
	if b.current != nil && b.current.ID == session.ID {
		b.current = nil
	}
	b.mu.Unlock()

	return nil
}

func (b *Broker) endRemote(ctx context.Context, session *Session) error {
	if session.viaLegacy && b.legacy != nil {
		return b.legacy.EndSession(ctx, session.ConversationID)
	}
	return b.api.EndConversation(ctx, session.ConversationID)
}

// buildGreeting derives a personalized opening line from the wellbeing
// context.
func buildGreeting(wctx wellbeing.Context) string {
	var greeting string
	switch wctx.Bucket() {
	case wellbeing.MoodLow:
		greeting = "Hi, it's really good to see you. I know things have felt heavy lately, so we can take this at whatever pace you like."
	case wellbeing.MoodHigh:
		greeting = "Hey, great to see you! You've been doing well lately, and I'd love to hear what's been going right."
	default:
		greeting = "Hi there, I'm glad you're here. How are you feeling today?"
	}

	if activities := wctx.CompletedActivities; len(activities) > 0 {
		greeting += fmt.Sprintf(" I noticed you completed %s recently, nicely done.", strings.Join(activities, " and "))
	}

	return greeting
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
