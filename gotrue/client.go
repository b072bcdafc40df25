package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ekklesia/go-accesscode"
	"github.com/goliatone/go-errors"
)

// Client talks to a GoTrue-compatible identity service and implements
// accesscode.IdentityBackend.
type Client struct {
	config Config
	http   *http.Client
	logger accesscode.Logger

	mu        sync.RWMutex
	session   *accesscode.SessionObject
	nextSub   int
	listeners map[int]accesscode.AuthChangeListener
}

var _ accesscode.IdentityBackend = (*Client)(nil)

func New(config Config) *Client {
	return &Client{
		config:    config,
		http:      config.httpClient(),
		logger:    nil,
		listeners: map[int]accesscode.AuthChangeListener{},
	}
}

func (c *Client) WithLogger(logger accesscode.Logger) *Client {
	c.logger = logger
	return c
}

type identityPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionPayload struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int              `json:"expires_in"`
	User         *identityPayload `json:"user"`
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

func (p errorPayload) message() string {
	switch {
	case p.ErrorDescription != "":
		return p.ErrorDescription
	case p.Message != "":
		return p.Message
	case p.Error != "":
		return p.Error
	default:
		return "identity service request failed"
	}
}

// SignUp creates a new identity with the anon key. The service is configured
// without email confirmation for this flow, so the identity is usable for a
// password sign-in immediately after.
func (c *Client) SignUp(ctx context.Context, params accesscode.SignUpParams) (accesscode.Identity, error) {
	body := map[string]any{
		"email":    params.Email,
		"password": params.Password,
	}
	if len(params.Metadata) > 0 {
		body["data"] = params.Metadata
	}

	var out struct {
		identityPayload
		User *identityPayload `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, "/signup", c.config.AnonKey, "", body, &out); err != nil {
		return nil, err
	}

	// Depending on service settings /signup returns either the identity or
	// a full session wrapping it.
	identity := out.identityPayload
	if identity.ID == "" && out.User != nil {
		identity = *out.User
	}

	if identity.ID == "" {
		return nil, errors.New("signup response carried no identity", errors.CategoryInternal)
	}

	return &accesscode.IdentityRef{
		IdentityID:    identity.ID,
		IdentityEmail: identity.Email,
	}, nil
}

// SignInWithPassword exchanges email/password for a session, stores it as
// the current session, and notifies listeners.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (accesscode.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	var out sessionPayload
	if err := c.call(ctx, http.MethodPost, "/token?grant_type=password", c.config.AnonKey, "", body, &out); err != nil {
		return nil, err
	}

	if out.AccessToken == "" || out.User == nil {
		return nil, errors.New("token response carried no session", errors.CategoryInternal)
	}

	session := c.toSession(out)

	c.mu.Lock()
	c.session = session
	listeners := c.listenersLocked()
	c.mu.Unlock()

	fanOut(listeners, accesscode.AuthChangeSignedIn, session)

	return session, nil
}

// SignOut revokes the current session and notifies listeners. Revocation
// failure on the service side still clears the local session: the capability
// is gone either way from this process's point of view.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	listeners := c.listenersLocked()
	c.mu.Unlock()

	var err error
	if session != nil && session.AccessToken != "" {
		err = c.call(ctx, http.MethodPost, "/logout", c.config.AnonKey, session.AccessToken, nil, nil)
	}

	fanOut(listeners, accesscode.AuthChangeSignedOut, nil)

	return err
}

// CurrentSession returns the locally held session, nil when signed out or
// expired.
func (c *Client) CurrentSession(ctx context.Context) (accesscode.Session, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, nil
	}

	if session.ExpiresAt != nil && time.Now().After(*session.ExpiresAt) {
		return nil, nil
	}

	return session, nil
}

// OnAuthStateChange registers a listener and returns its teardown.
func (c *Client) OnAuthStateChange(listener accesscode.AuthChangeListener) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = listener
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// AdminSetPassword force-sets an identity's password with the service key.
func (c *Client) AdminSetPassword(ctx context.Context, identityID, password string) error {
	if err := c.requireServiceKey(); err != nil {
		return err
	}

	body := map[string]any{
		"password": password,
	}

	return c.call(ctx, http.MethodPut, "/admin/users/"+identityID, c.config.ServiceKey, c.config.ServiceKey, body, nil)
}

// AdminCreateIdentity creates a confirmed identity with the service key.
func (c *Client) AdminCreateIdentity(ctx context.Context, params accesscode.AdminCreateParams) (accesscode.Identity, error) {
	if err := c.requireServiceKey(); err != nil {
		return nil, err
	}

	body := map[string]any{
		"email":         params.Email,
		"password":      params.Password,
		"email_confirm": params.EmailConfirm,
	}
	if len(params.Metadata) > 0 {
		body["user_metadata"] = params.Metadata
	}

	var out identityPayload
	if err := c.call(ctx, http.MethodPost, "/admin/users", c.config.ServiceKey, c.config.ServiceKey, body, &out); err != nil {
		return nil, err
	}

	if out.ID == "" {
		return nil, errors.New("admin create response carried no identity", errors.CategoryInternal)
	}

	return &accesscode.IdentityRef{
		IdentityID:    out.ID,
		IdentityEmail: out.Email,
	}, nil
}

// AdminDeleteIdentity removes an identity with the service key.
func (c *Client) AdminDeleteIdentity(ctx context.Context, identityID string) error {
	if err := c.requireServiceKey(); err != nil {
		return err
	}

	return c.call(ctx, http.MethodDelete, "/admin/users/"+identityID, c.config.ServiceKey, c.config.ServiceKey, nil, nil)
}

// IdentityFromToken resolves the identity behind a bearer token. The token
// stays opaque; the service does the lookup.
func (c *Client) IdentityFromToken(ctx context.Context, accessToken string) (accesscode.Identity, error) {
	var out identityPayload
	if err := c.call(ctx, http.MethodGet, "/user", c.config.AnonKey, accessToken, nil, &out); err != nil {
		return nil, err
	}

	if out.ID == "" {
		return nil, errors.New("token resolved to no identity", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	return &accesscode.IdentityRef{
		IdentityID:    out.ID,
		IdentityEmail: out.Email,
	}, nil
}

func (c *Client) requireServiceKey() error {
	if c.config.ServiceKey == "" {
		return errors.New("admin endpoint requires a service key", errors.CategoryAuthz).
			WithCode(errors.CodeForbidden)
	}
	return nil
}

func (c *Client) toSession(payload sessionPayload) *accesscode.SessionObject {
	session := &accesscode.SessionObject{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
	}

	if payload.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
		session.ExpiresAt = &expiresAt
	}

	if payload.User != nil {
		session.User = &accesscode.IdentityRef{
			IdentityID:    payload.User.ID,
			IdentityEmail: payload.User.Email,
		}
	}

	return session
}

func (c *Client) listenersLocked() []accesscode.AuthChangeListener {
	listeners := make([]accesscode.AuthChangeListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func fanOut(listeners []accesscode.AuthChangeListener, event accesscode.AuthChangeEvent, session accesscode.Session) {
	for _, fn := range listeners {
		fn(event, session)
	}
}

func (c *Client) call(ctx context.Context, method, path, apiKey, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.baseURL()+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("apikey", apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "identity service unreachable").
			WithTextCode(accesscode.TextCodeBackendUnavailable)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to read response").
			WithTextCode(accesscode.TextCodeBackendUnavailable)
	}

	if res.StatusCode >= 400 {
		return c.statusError(res.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to decode response")
		}
	}

	return nil
}

func (c *Client) statusError(status int, raw []byte) error {
	payload := errorPayload{}
	_ = json.Unmarshal(raw, &payload)
	message := payload.message()

	if c.logger != nil {
		c.logger.Debug("identity service error", "status", status, "message", message)
	}

	switch {
	case status >= 500:
		return errors.New(fmt.Sprintf("identity service error: %s", message), errors.CategoryInternal).
			WithTextCode(accesscode.TextCodeBackendUnavailable).
			WithCode(status)
	case status == http.StatusNotFound:
		return errors.New(message, errors.CategoryNotFound).
			WithCode(errors.CodeNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.New(message, errors.CategoryAuth).
			WithCode(status)
	default:
		return errors.New(message, errors.CategoryBadInput).
			WithCode(status)
	}
}
