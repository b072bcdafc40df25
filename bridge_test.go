package accesscode_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ekklesia/go-accesscode"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func unlinkedProfile(email, code string) *accesscode.Profile {
	return &accesscode.Profile{
		ID:         uuid.New(),
		Email:      email,
		FullName:   "Joseph Kamga",
		Role:       accesscode.RolePere,
		AccessCode: code,
	}
}

func linkedProfile(email, code, authUserID string) *accesscode.Profile {
	profile := unlinkedProfile(email, code)
	profile.AuthUserID = &authUserID
	return profile
}

func newBridge(profiles *MockProfiles, backend *MockBackend, notifier accesscode.Notifier) (*accesscode.Bridge, *accesscode.AuthState) {
	state := accesscode.NewAuthState()
	bridge := accesscode.NewBridge(NewMockRepositoryManager(profiles), backend, state).
		WithNotifier(notifier)
	return bridge, state
}

func TestSignInWithAccessCode(t *testing.T) {
	ctx := context.Background()
	email := "pere.joseph@church.com"
	code := "3456"

	t.Run("First login creates identity and links profile", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		notifier := &RecordingNotifier{}
		bridge, _ := newBridge(profiles, backend, notifier)

		profile := unlinkedProfile(email, code)
		identity := &accesscode.IdentityRef{IdentityID: "auth-1", IdentityEmail: email}

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignUp", ctx, mock.MatchedBy(func(p accesscode.SignUpParams) bool {
			return p.Email == email && p.Password == code && p.Metadata["full_name"] == "Joseph Kamga"
		})).Return(identity, nil).Once()
		profiles.On("LinkIdentity", ctx, profile.ID, "auth-1").Return(nil).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(testSession("auth-1", email), nil).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.NoError(t, err)
		require.NotNil(t, profile.AuthUserID)
		assert.Equal(t, "auth-1", *profile.AuthUserID)
		assert.Equal(t, []string{"Joseph Kamga"}, notifier.Welcomed)

		profiles.AssertExpectations(t)
		backend.AssertExpectations(t)
	})

	t.Run("Unknown email or code fails without side effects", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profiles.On("GetByAccessCode", ctx, email, "9999").Return(nil, notFound()).Once()

		err := bridge.SignInWithAccessCode(ctx, email, "9999")

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodeInvalidCredential))
		assert.Equal(t, "Invalid email or access code", accesscode.UserMessage(err))
		backend.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything)
		backend.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Malformed code never reaches the store", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		err := bridge.SignInWithAccessCode(ctx, email, "12a4")

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodeInvalidCredential))
		profiles.AssertNotCalled(t, "GetByAccessCode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Second login hits the linked branch", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profile := linkedProfile(email, code, "auth-1")

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(testSession("auth-1", email), nil).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.NoError(t, err)
		backend.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything)
		profiles.AssertNotCalled(t, "LinkIdentity", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Drifted password repairs and retries once", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profile := linkedProfile(email, code, "auth-1")

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(nil, errors.New("invalid login credentials")).Once()
		backend.On("AdminSetPassword", ctx, "auth-1", code).Return(nil).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(testSession("auth-1", email), nil).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.NoError(t, err)
		backend.AssertNumberOfCalls(t, "SignInWithPassword", 2)
		backend.AssertExpectations(t)
	})

	t.Run("Repair failure on deleted identity", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profile := linkedProfile(email, code, "auth-gone")

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(nil, errors.New("invalid login credentials")).Once()
		backend.On("AdminSetPassword", ctx, "auth-gone", code).
			Return(errors.New("user not found")).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodeAuthSetupFailed))
		backend.AssertNumberOfCalls(t, "SignInWithPassword", 1)
	})

	t.Run("Retried sign in still failing is fatal for the attempt", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profile := linkedProfile(email, code, "auth-1")

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(nil, errors.New("invalid login credentials")).Twice()
		backend.On("AdminSetPassword", ctx, "auth-1", code).Return(nil).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodeAuthenticationFailed))
	})

	t.Run("Backend refusing signup fails account creation", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profile := unlinkedProfile(email, code)

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignUp", ctx, mock.Anything).
			Return(nil, errors.New("email rate limit exceeded")).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodeAccountCreationFailed))
		profiles.AssertNotCalled(t, "LinkIdentity", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Link failure is logged but does not abort the attempt", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		profile := unlinkedProfile(email, code)
		identity := &accesscode.IdentityRef{IdentityID: "auth-1", IdentityEmail: email}

		profiles.On("GetByAccessCode", ctx, email, code).Return(profile, nil).Once()
		backend.On("SignUp", ctx, mock.Anything).Return(identity, nil).Once()
		profiles.On("LinkIdentity", ctx, profile.ID, "auth-1").
			Return(errors.New("write conflict")).Once()
		backend.On("SignInWithPassword", ctx, email, code).
			Return(testSession("auth-1", email), nil).Once()

		err := bridge.SignInWithAccessCode(ctx, email, code)

		require.NoError(t, err)
		assert.Nil(t, profile.AuthUserID)
	})

	t.Run("Loading flag resets on failure", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, state := newBridge(profiles, backend, nil)

		profiles.On("GetByAccessCode", ctx, email, "0000").Return(nil, notFound()).Once()

		_ = bridge.SignInWithAccessCode(ctx, email, "0000")

		assert.False(t, state.Loading())
	})
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("Delegates to the backend and notifies", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		notifier := &RecordingNotifier{}
		bridge, _ := newBridge(profiles, backend, notifier)

		backend.On("SignOut", ctx).Return(nil).Once()

		err := bridge.SignOut(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, notifier.SignOuts)
	})

	t.Run("Backend failure surfaces as a notification", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		notifier := &RecordingNotifier{}
		bridge, _ := newBridge(profiles, backend, notifier)

		backend.On("SignOut", ctx).Return(errors.New("network down")).Once()

		err := bridge.SignOut(ctx)

		require.Error(t, err)
		assert.Equal(t, []string{"Sign Out Error"}, notifier.Failures)
		assert.Zero(t, notifier.SignOuts)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	strptr := func(s string) *string { return &s }

	t.Run("Requires a resolved user", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, _ := newBridge(profiles, backend, nil)

		err := bridge.UpdateProfile(ctx, accesscode.ProfileUpdate{Bio: strptr("hello")})

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodeNotAuthenticated))
		profiles.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Persists then merges optimistically", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		notifier := &RecordingNotifier{}
		bridge, state := newBridge(profiles, backend, notifier)

		profile := linkedProfile("pere.joseph@church.com", "3456", "auth-1")
		seedState(state, backend, profiles, profile)

		updates := accesscode.ProfileUpdate{
			FullName: strptr("Joseph K."),
			Bio:      strptr("Choir lead"),
		}
		profiles.On("UpdateFields", ctx, profile.ID, updates).Return(nil).Once()

		err := bridge.UpdateProfile(ctx, updates)

		require.NoError(t, err)
		user := state.CurrentUser()
		require.NotNil(t, user)
		assert.Equal(t, "Joseph K.", user.FullName)
		assert.Equal(t, "Choir lead", user.Bio)
		assert.Equal(t, 1, notifier.Updates)
	})

	t.Run("Write failure leaves state untouched", func(t *testing.T) {
		profiles := new(MockProfiles)
		backend := new(MockBackend)
		bridge, state := newBridge(profiles, backend, nil)

		profile := linkedProfile("pere.joseph@church.com", "3456", "auth-1")
		seedState(state, backend, profiles, profile)

		updates := accesscode.ProfileUpdate{FullName: strptr("Someone Else")}
		profiles.On("UpdateFields", ctx, profile.ID, updates).
			Return(errors.New("constraint violation")).Once()

		err := bridge.UpdateProfile(ctx, updates)

		require.Error(t, err)
		assert.True(t, accesscode.IsTextCode(err, accesscode.TextCodePersistence))
		user := state.CurrentUser()
		require.NotNil(t, user)
		assert.Equal(t, "Joseph Kamga", user.FullName)
	})
}

// seedState drives the watcher once so the state holds a resolved user, the
// same way a real sign-in would populate it.
func seedState(state *accesscode.AuthState, backend *MockBackend, profiles *MockProfiles, profile *accesscode.Profile) {
	resolver := accesscode.NewProfileResolver(profiles)
	watcher := accesscode.NewWatcher(backend, resolver, state)

	backend.On("CurrentSession", mock.Anything).Return(nil, nil).Once()
	profiles.On("GetByAuthID", mock.Anything, *profile.AuthUserID).Return(profile, nil).Once()

	watcher.Start(context.Background())
	backend.Emit(accesscode.AuthChangeSignedIn, testSession(*profile.AuthUserID, profile.Email))
	watcher.Stop()
}
