package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
)

// sessionTTL bounds how long an issued session token is honored before a
// principal must re-authenticate (4.I).
const sessionTTL = 24 * time.Hour

// sessionRecord binds one issued token to its principal and machine-UID
// (4.I: "session token issuance bound to (principal, machine-UID)").
type sessionRecord struct {
	principal  string
	machineUID string
	expiresAt  time.Time
}

// sessionStore is the in-memory table of issued session tokens, shared by
// both authority modes below.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionRecord
	clock    model.Clock
}

func newSessionStore(clock model.Clock) *sessionStore {
	if clock == nil {
		clock = model.SystemClock{}
	}
	return &sessionStore{sessions: make(map[string]sessionRecord), clock: clock}
}

func (s *sessionStore) issue(principal, machineUID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", focuserr.Wrap(focuserr.InternalServer, err, "failed to generate session token")
	}
	token := hex.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = sessionRecord{
		principal:  principal,
		machineUID: machineUID,
		expiresAt:  s.clock.Now().Add(sessionTTL),
	}
	return token, nil
}

// validate resolves token, enforcing the machine-UID binding and expiry
// (4.I: "not-acceptable on machine-UID mismatch", "session-invalid on
// unknown/expired token").
func (s *sessionStore) validate(token, machineUID string) (string, error) {
	s.mu.Lock()
	rec, ok := s.sessions[token]
	s.mu.Unlock()

	if !ok {
		return "", focuserr.New(focuserr.SessionInvalid, "unknown session token")
	}
	if s.clock.Now().After(rec.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return "", focuserr.New(focuserr.SessionInvalid, "session token expired")
	}
	if rec.machineUID != machineUID {
		return "", focuserr.New(focuserr.NotAcceptable, "machine-uid does not match session")
	}
	return rec.principal, nil
}

// invalidate drops a token ahead of its natural expiry. Removing an unknown
// token is a no-op, matching a repeated logout for an already-expired
// session.
func (s *sessionStore) invalidate(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// XMPPDomainAuthority implements 4.I's XMPP-domain mode: the principal
// arrives already authenticated by the XMPP server's own SASL handshake, so
// Authenticate is just session issuance with no credential to check.
type XMPPDomainAuthority struct {
	store *sessionStore
}

// NewXMPPDomainAuthority constructs the XMPP-domain authentication mode.
func NewXMPPDomainAuthority(clock model.Clock) *XMPPDomainAuthority {
	return &XMPPDomainAuthority{store: newSessionStore(clock)}
}

func (a *XMPPDomainAuthority) Authenticate(ctx context.Context, principal, machineUID string) (string, error) {
	token, err := a.store.issue(principal, machineUID)
	if err != nil {
		return "", err
	}
	logging.Info(ctx, "issued xmpp-domain session", zap.String("principal", principal))
	return token, nil
}

func (a *XMPPDomainAuthority) Validate(ctx context.Context, token, machineUID string) (string, error) {
	return a.store.validate(token, machineUID)
}

func (a *XMPPDomainAuthority) Logout(ctx context.Context, token string) error {
	a.store.invalidate(token)
	return nil
}

// ExternalAuthority implements 4.I's external mode: principal identity comes
// from a JWT bearer token validated against an external issuer's JWKS,
// grounded on Validator's keyFunc/issuer/audience handling.
type ExternalAuthority struct {
	validator *Validator
	store     *sessionStore
}

// NewExternalAuthority wraps a Validator (constructed via NewValidator
// against the configured FOCUS_JWKS_URL domain) as an AuthenticationAuthority.
func NewExternalAuthority(validator *Validator, clock model.Clock) *ExternalAuthority {
	return &ExternalAuthority{validator: validator, store: newSessionStore(clock)}
}

// Authenticate takes principal as the raw bearer JWT, validates it, and
// issues a session token bound to machineUID and the JWT's own subject.
func (a *ExternalAuthority) Authenticate(ctx context.Context, principal, machineUID string) (string, error) {
	claims, err := a.validator.ValidateToken(principal)
	if err != nil {
		return "", focuserr.Wrap(focuserr.NotAuthorized, err, "bearer token rejected")
	}
	token, err := a.store.issue(claims.Subject, machineUID)
	if err != nil {
		return "", err
	}
	logging.Info(ctx, "issued external session", zap.String("subject", claims.Subject))
	return token, nil
}

func (a *ExternalAuthority) Validate(ctx context.Context, token, machineUID string) (string, error) {
	return a.store.validate(token, machineUID)
}

func (a *ExternalAuthority) Logout(ctx context.Context, token string) error {
	a.store.invalidate(token)
	return nil
}

var _ model.AuthenticationAuthority = (*XMPPDomainAuthority)(nil)
var _ model.AuthenticationAuthority = (*ExternalAuthority)(nil)

// NoopAuthority always authenticates without a real credential check, the
// AUTH_MODE=none development configuration (FOCUS_AUTH_MODE env var, 6.1).
type NoopAuthority struct{ store *sessionStore }

func NewNoopAuthority(clock model.Clock) *NoopAuthority {
	return &NoopAuthority{store: newSessionStore(clock)}
}

func (a *NoopAuthority) Authenticate(ctx context.Context, principal, machineUID string) (string, error) {
	if principal == "" {
		principal = fmt.Sprintf("anon-%s", machineUID)
	}
	return a.store.issue(principal, machineUID)
}

func (a *NoopAuthority) Validate(ctx context.Context, token, machineUID string) (string, error) {
	return a.store.validate(token, machineUID)
}

func (a *NoopAuthority) Logout(ctx context.Context, token string) error {
	a.store.invalidate(token)
	return nil
}

var _ model.AuthenticationAuthority = (*NoopAuthority)(nil)
