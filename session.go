package accesscode

import (
	"time"
)

var _ Session = (*SessionObject)(nil)
var _ Identity = (*IdentityRef)(nil)

// IdentityRef is the minimal reference to a backend identity: its opaque id
// and the email it authenticates.
type IdentityRef struct {
	IdentityID    string `json:"id"`
	IdentityEmail string `json:"email"`
}

func (r *IdentityRef) ID() string {
	return r.IdentityID
}

func (r *IdentityRef) Email() string {
	return r.IdentityEmail
}

// SessionObject is the token bundle the backend issues. The access and
// refresh tokens are opaque capabilities; nothing here decodes them.
type SessionObject struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	User         *IdentityRef `json:"user,omitempty"`
}

func (s *SessionObject) GetAccessToken() string {
	return s.AccessToken
}

func (s *SessionObject) GetIdentity() Identity {
	if s.User == nil {
		return nil
	}
	return s.User
}

func (s *SessionObject) GetExpiresAt() *time.Time {
	return s.ExpiresAt
}
