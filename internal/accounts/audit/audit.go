// Copyright (c) 2026 Veyra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package audit provides the best-effort security event trail for the account
service.

Events are emitted by the auth and identity-linking engines for every
security-relevant outcome (login, lockout, token reuse, provider links).
Recording is asynchronous and never blocks or fails the calling operation.

Architecture:

  - Event: Immutable record of one security-relevant action.
  - Sink: Destination contract (structured log by default).
  - Dispatcher: Bounded-buffer fan-in that drops under pressure rather
    than applying back-pressure to authentication requests.
*/
package audit

import (
	"context"
	"log/slog"
	"time"
)

// # Event Model

// Outcome classifies how an audited action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Action identifies the audited operation.
type Action string

const (
	ActionRegister           Action = "account.register"
	ActionLogin              Action = "auth.login"
	ActionLogout             Action = "auth.logout"
	ActionRefresh            Action = "auth.refresh"
	ActionRefreshReuse       Action = "auth.refresh_reuse_detected"
	ActionLockout            Action = "auth.lockout_triggered"
	ActionPasswordReset      Action = "auth.password_reset"
	ActionPasswordChange     Action = "auth.password_change"
	ActionEmailVerification  Action = "account.email_verification"
	ActionIdentitySignIn     Action = "identity.sign_in"
	ActionProviderLink       Action = "identity.provider_link"
	ActionProviderUnlink     Action = "identity.provider_unlink"
	ActionSessionDeactivated Action = "session.deactivated"
)

// Event is one immutable security-trail record.
type Event struct {
	// Action is the audited operation.
	Action Action

	// Outcome is how the operation ended.
	Outcome Outcome

	// ActorID is the account id when known; empty for anonymous failures.
	ActorID string

	// Metadata carries small, non-sensitive key/value context
	// (session id, device id, provider). Never credentials.
	Metadata map[string]string

	// OccurredAt is when the engine emitted the event.
	OccurredAt time.Time
}

// # Sink Contract

// Sink receives audit events. Implementations must be safe for concurrent
// use and must not panic: the dispatcher calls them from a single worker
// goroutine detached from any request.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SlogSink writes audit events to a structured logger.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink constructs a [SlogSink].
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

// Emit implements [Sink].
func (sink *SlogSink) Emit(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.String("action", string(event.Action)),
		slog.String("outcome", string(event.Outcome)),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	for key, value := range event.Metadata {
		attrs = append(attrs, slog.String(key, value))
	}

	sink.log.LogAttrs(ctx, slog.LevelInfo, "audit_event", attrs...)
}
