package accesscode

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredential     = "access_code_invalid_credential"
	TextCodeAccountCreationFailed = "access_code_account_creation_failed"
	TextCodeAuthenticationFailed  = "access_code_authentication_failed"
	TextCodeAuthSetupFailed       = "access_code_auth_setup_failed"
	TextCodeNotAuthenticated      = "access_code_not_authenticated"
	TextCodePersistence           = "access_code_persistence_failed"
	TextCodeProfileNotLinked      = "access_code_profile_not_linked"
	TextCodeBackendUnavailable    = "access_code_backend_unavailable"
)

// ErrInvalidCredential is returned when no profile matches the submitted
// email and access code pair. Wrong email and wrong code are deliberately
// indistinguishable to avoid user enumeration.
var ErrInvalidCredential = errors.New("invalid email or access code", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredential).
	WithCode(errors.CodeUnauthorized)

// ErrAccountCreationFailed is returned when the backend refuses to create
// the identity on a first login.
var ErrAccountCreationFailed = errors.New("failed to create authentication account", errors.CategoryAuth).
	WithTextCode(TextCodeAccountCreationFailed).
	WithCode(errors.CodeInternal)

// ErrAuthenticationFailed is returned when sign-in against the backend fails
// after the credential bridge exhausted its options.
var ErrAuthenticationFailed = errors.New("authentication failed", errors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationFailed).
	WithCode(errors.CodeUnauthorized)

// ErrAuthSetupFailed is returned when the privileged credential repair call
// itself errors, e.g. the linked identity was deleted out-of-band.
var ErrAuthSetupFailed = errors.New("authentication setup failed", errors.CategoryAuth).
	WithTextCode(TextCodeAuthSetupFailed).
	WithCode(errors.CodeInternal)

// ErrNotAuthenticated is returned by operations that require a resolved user.
var ErrNotAuthenticated = errors.New("not authenticated", errors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrPersistence is returned when a profile write fails; in-memory state is
// left untouched.
var ErrPersistence = errors.New("failed to persist profile", errors.CategoryInternal).
	WithTextCode(TextCodePersistence).
	WithCode(errors.CodeInternal)

// ErrProfileNotLinked reports an identity that authenticated against the
// backend but has no matching profile row. The watcher logs it and clears
// state; it is never surfaced to the caller as a typed error.
var ErrProfileNotLinked = errors.New("identity has no matching profile", errors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotLinked).
	WithCode(errors.CodeNotFound)

// UserMessage maps a bridge error to the message the UI should render.
// Unknown errors collapse into a generic message so backend internals never
// leak to the login form.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rich *errors.Error
	if !errors.As(err, &rich) {
		return "An unexpected error occurred"
	}

	switch rich.TextCode {
	case TextCodeInvalidCredential:
		return "Invalid email or access code"
	case TextCodeAccountCreationFailed:
		return "Failed to create authentication account"
	case TextCodeAuthenticationFailed:
		return "Authentication failed"
	case TextCodeAuthSetupFailed:
		return "Authentication setup failed"
	case TextCodeNotAuthenticated:
		return "Not authenticated"
	case TextCodePersistence:
		return rich.Message
	default:
		return "An unexpected error occurred"
	}
}

// IsTextCode reports whether err carries the given text code.
func IsTextCode(err error, code string) bool {
	if err == nil {
		return false
	}

	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}

	return false
}
