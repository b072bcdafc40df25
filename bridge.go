package accesscode

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Bridge reconciles the human-facing email + access-code credential with the
// backend's password-based identities. It owns the first-login identity
// creation, the linked-identity sign-in, and the credential repair path; on
// success the Watcher picks up the backend's auth-state event and populates
// AuthState, which stays the single source of truth for "current user".
type Bridge struct {
	repo         RepositoryManager
	backend      IdentityBackend
	state        *AuthState
	logger       Logger
	notifier     Notifier
	activitySink ActivitySink
}

func NewBridge(repo RepositoryManager, backend IdentityBackend, state *AuthState) *Bridge {
	return &Bridge{
		repo:         repo,
		backend:      backend,
		state:        state,
		logger:       defLogger{},
		notifier:     noopNotifier{},
		activitySink: noopActivitySink{},
	}
}

func (b *Bridge) WithLogger(logger Logger) *Bridge {
	b.logger = logger
	return b
}

func (b *Bridge) WithNotifier(notifier Notifier) *Bridge {
	b.notifier = normalizeNotifier(notifier)
	return b
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (b *Bridge) WithActivitySink(sink ActivitySink) *Bridge {
	b.activitySink = normalizeActivitySink(sink)
	return b
}

// derivedPassword maps an access code to the backend password. The password
// is literally the code: changing the derivation would strand every identity
// created against existing stored credentials.
func derivedPassword(accessCode string) string {
	return accessCode
}

// SignInWithAccessCode authenticates an email + 4-digit access code.
//
// A profile with no linked identity gets one created on the spot (first
// login). A linked profile signs in with the derived password; if the stored
// backend password has drifted, the bridge force-sets it back and retries
// once. The resolved user is not returned here: the auth-state event this
// sign-in triggers drives the Watcher, which populates AuthState.
func (b *Bridge) SignInWithAccessCode(ctx context.Context, email, accessCode string) error {
	b.state.setLoading(true)

	err := b.signIn(ctx, email, accessCode)
	if err != nil {
		b.state.setLoading(false)
		b.logger.Error("sign in with access code failed", "email", email, "error", err)
		b.emitEvent(ctx, ActivityEventLoginFailure, "", email, map[string]any{
			"error": err.Error(),
		})
		return err
	}

	return nil
}

func (b *Bridge) signIn(ctx context.Context, email, accessCode string) error {
	if err := ValidateAccessCode(accessCode); err != nil {
		// Indistinguishable from a lookup miss on purpose.
		return ErrInvalidCredential
	}

	profile, err := b.repo.Profiles().GetByAccessCode(ctx, email, accessCode)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidCredential
		}
		return errors.Wrap(err, errors.CategoryInternal, "profile lookup failed")
	}

	password := derivedPassword(accessCode)

	if !profile.Linked() {
		if err := b.firstLogin(ctx, profile, password); err != nil {
			return err
		}
	} else {
		if err := b.linkedLogin(ctx, profile, password); err != nil {
			return err
		}
	}

	b.notifier.Welcome(profile)
	b.emitEvent(ctx, ActivityEventLoginSuccess, profile.ID.String(), profile.Email, nil)

	return nil
}

// firstLogin creates the backend identity, persists the link, and signs in.
func (b *Bridge) firstLogin(ctx context.Context, profile *Profile, password string) error {
	identity, err := b.backend.SignUp(ctx, SignUpParams{
		Email:    profile.Email,
		Password: password,
		Metadata: map[string]any{
			"full_name": profile.FullName,
			"role":      profile.Role,
		},
	})
	if err != nil || identity == nil || identity.ID() == "" {
		return wrapSentinel(ErrAccountCreationFailed, err)
	}

	// A failed link is logged but does not abort the attempt: the resolver's
	// email fallback repairs it on the next auth-state event.
	if err := b.repo.Profiles().LinkIdentity(ctx, profile.ID, identity.ID()); err != nil {
		b.logger.Error("failed to link new identity", "profile_id", profile.ID.String(), "error", err)
	} else {
		id := identity.ID()
		profile.AuthUserID = &id
	}

	if _, err := b.backend.SignInWithPassword(ctx, profile.Email, password); err != nil {
		// Immediately after creation this should not happen; treat it as
		// fatal for the attempt, no automatic retry.
		return wrapSentinel(ErrAuthenticationFailed, err)
	}

	return nil
}

// linkedLogin signs in against the existing identity, repairing the stored
// credential when it has drifted from the access code.
func (b *Bridge) linkedLogin(ctx context.Context, profile *Profile, password string) error {
	_, err := b.backend.SignInWithPassword(ctx, profile.Email, password)
	if err == nil {
		return nil
	}

	b.logger.Info("sign in failed, attempting credential repair", "profile_id", profile.ID.String())

	if err := b.backend.AdminSetPassword(ctx, *profile.AuthUserID, password); err != nil {
		return wrapSentinel(ErrAuthSetupFailed, err)
	}

	b.emitEvent(ctx, ActivityEventCredentialRepair, profile.ID.String(), profile.Email, nil)

	if _, err := b.backend.SignInWithPassword(ctx, profile.Email, password); err != nil {
		return wrapSentinel(ErrAuthenticationFailed, err)
	}

	return nil
}

// SignOut invalidates the backend session. State clearing rides on the
// SIGNED_OUT auth-state event, same as every other state change.
func (b *Bridge) SignOut(ctx context.Context) error {
	if err := b.backend.SignOut(ctx); err != nil {
		b.logger.Error("sign out failed", "error", err)
		b.notifier.Error("Sign Out Error", err.Error())
		return errors.Wrap(err, errors.CategoryInternal, "sign out failed")
	}

	b.emitEvent(ctx, ActivityEventSignOut, "", "", nil)
	b.notifier.SignedOut()

	return nil
}

// UpdateProfile applies a partial update to the current user's profile, then
// merges the same fields into the resolved user. The merge is optimistic: we
// do not re-fetch to confirm. On write failure the in-memory state is left
// unchanged.
func (b *Bridge) UpdateProfile(ctx context.Context, updates ProfileUpdate) error {
	user := b.state.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	if err := b.repo.Profiles().UpdateFields(ctx, user.ID, updates); err != nil {
		b.logger.Error("profile update failed", "profile_id", user.ID.String(), "error", err)
		return errors.Wrap(err, ErrPersistence.Category, err.Error()).
			WithTextCode(TextCodePersistence)
	}

	b.state.mergeUser(updates)
	b.notifier.ProfileUpdated()
	b.emitEvent(ctx, ActivityEventProfileUpdated, user.ID.String(), user.Email, nil)

	return nil
}

func (b *Bridge) emitEvent(ctx context.Context, eventType ActivityEventType, profileID, email string, metadata map[string]any) {
	sink := normalizeActivitySink(b.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		ProfileID:  profileID,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		b.logger.Warn("activity sink record error: %v", err)
	}
}

// wrapSentinel chains the backend's error under our sentinel so callers match
// on the sentinel's text code while logs keep the cause.
func wrapSentinel(sentinel *errors.Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Wrap(cause, sentinel.Category, sentinel.Message).
		WithTextCode(sentinel.TextCode).
		WithCode(sentinel.Code)
}
