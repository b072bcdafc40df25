package accesscode

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the backend's account record as we see it: an opaque id plus
// the email it authenticates. We never read or derive anything else from it.
type Identity interface {
	ID() string
	Email() string
}

// Session is the capability token bundle issued by the backend. Its lifetime
// (issuance, refresh, expiry) is owned entirely by the backend; we carry it
// around and hand it back, never parsing its contents.
type Session interface {
	GetAccessToken() string
	GetIdentity() Identity
	GetExpiresAt() *time.Time
}

// AuthChangeEvent identifies what the backend's auth-state stream observed.
type AuthChangeEvent string

const (
	AuthChangeInitialSession AuthChangeEvent = "INITIAL_SESSION"
	AuthChangeSignedIn       AuthChangeEvent = "SIGNED_IN"
	AuthChangeSignedOut      AuthChangeEvent = "SIGNED_OUT"
	AuthChangeTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
)

// AuthChangeListener receives auth-state notifications. Session is nil for
// sign-out and expiry events.
type AuthChangeListener func(event AuthChangeEvent, session Session)

// SignUpParams is the payload for creating a backend identity on first login.
type SignUpParams struct {
	Email    string
	Password string
	Metadata map[string]any
}

// AdminCreateParams is the payload the privileged provisioning flow uses to
// create a confirmed backend identity.
type AdminCreateParams struct {
	Email        string
	Password     string
	EmailConfirm bool
	Metadata     map[string]any
}

// IdentityBackend is the fixed contract of the managed identity service. We
// consume these capabilities as-is and reimplement none of them.
type IdentityBackend interface {
	SignUp(ctx context.Context, params SignUpParams) (Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (Session, error)
	OnAuthStateChange(listener AuthChangeListener) (unsubscribe func())

	// Privileged operations. Require service-level credentials; in the
	// production topology only the provisioning endpoint and the credential
	// repair path reach them.
	AdminSetPassword(ctx context.Context, identityID, password string) error
	AdminCreateIdentity(ctx context.Context, params AdminCreateParams) (Identity, error)
	AdminDeleteIdentity(ctx context.Context, identityID string) error
	IdentityFromToken(ctx context.Context, accessToken string) (Identity, error)
}

// Notifier surfaces user-visible notifications (the application's toasts).
type Notifier interface {
	Welcome(profile *Profile)
	SignedOut()
	ProfileUpdated()
	Error(title, message string)
}

type noopNotifier struct{}

func (noopNotifier) Welcome(*Profile)     {}
func (noopNotifier) SignedOut()           {}
func (noopNotifier) ProfileUpdated()      {}
func (noopNotifier) Error(string, string) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCESSCODE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCESSCODE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCESSCODE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCESSCODE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
