package accesscode_test

import (
	"context"
	"testing"

	"github.com/ekklesia/go-accesscode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileResolver(t *testing.T) {
	ctx := context.Background()
	email := "pere.joseph@church.com"

	t.Run("Linked profile resolves in one lookup", func(t *testing.T) {
		profiles := new(MockProfiles)
		resolver := accesscode.NewProfileResolver(profiles)

		profile := linkedProfile(email, "3456", "auth-1")
		profiles.On("GetByAuthID", ctx, "auth-1").Return(profile, nil).Once()

		got, err := resolver.Resolve(ctx, &accesscode.IdentityRef{
			IdentityID:    "auth-1",
			IdentityEmail: email,
		})

		require.NoError(t, err)
		assert.Equal(t, profile.ID, got.ID)
		profiles.AssertNotCalled(t, "GetByEmail", ctx, email)
		profiles.AssertNotCalled(t, "LinkIdentity", ctx, profile.ID, "auth-1")
	})

	t.Run("Email fallback links and confirms", func(t *testing.T) {
		profiles := new(MockProfiles)
		resolver := accesscode.NewProfileResolver(profiles)

		profile := unlinkedProfile(email, "3456")
		linked := linkedProfile(email, "3456", "auth-1")
		linked.ID = profile.ID

		profiles.On("GetByAuthID", ctx, "auth-1").Return(nil, notFound()).Once()
		profiles.On("GetByEmail", ctx, email).Return(profile, nil).Once()
		profiles.On("LinkIdentity", ctx, profile.ID, "auth-1").Return(nil).Once()
		profiles.On("GetByAuthID", ctx, "auth-1").Return(linked, nil).Once()

		got, err := resolver.Resolve(ctx, &accesscode.IdentityRef{
			IdentityID:    "auth-1",
			IdentityEmail: email,
		})

		require.NoError(t, err)
		require.NotNil(t, got.AuthUserID)
		assert.Equal(t, "auth-1", *got.AuthUserID)
		profiles.AssertExpectations(t)
	})

	t.Run("Miss on both paths reports an unlinked profile", func(t *testing.T) {
		profiles := new(MockProfiles)
		resolver := accesscode.NewProfileResolver(profiles)

		profiles.On("GetByAuthID", ctx, "auth-ghost").Return(nil, notFound()).Once()
		profiles.On("GetByEmail", ctx, "ghost@church.com").Return(nil, notFound()).Once()

		_, err := resolver.Resolve(ctx, &accesscode.IdentityRef{
			IdentityID:    "auth-ghost",
			IdentityEmail: "ghost@church.com",
		})

		assert.ErrorIs(t, err, accesscode.ErrProfileNotLinked)
	})

	t.Run("Lost link write surfaces as unlinked", func(t *testing.T) {
		profiles := new(MockProfiles)
		resolver := accesscode.NewProfileResolver(profiles)

		profile := unlinkedProfile(email, "3456")

		profiles.On("GetByAuthID", ctx, "auth-1").Return(nil, notFound()).Once()
		profiles.On("GetByEmail", ctx, email).Return(profile, nil).Once()
		profiles.On("LinkIdentity", ctx, profile.ID, "auth-1").Return(nil).Once()
		profiles.On("GetByAuthID", ctx, "auth-1").Return(nil, notFound()).Once()

		_, err := resolver.Resolve(ctx, &accesscode.IdentityRef{
			IdentityID:    "auth-1",
			IdentityEmail: email,
		})

		assert.ErrorIs(t, err, accesscode.ErrProfileNotLinked)
	})

	t.Run("Nil identity never hits the store", func(t *testing.T) {
		profiles := new(MockProfiles)
		resolver := accesscode.NewProfileResolver(profiles)

		_, err := resolver.Resolve(ctx, nil)

		assert.ErrorIs(t, err, accesscode.ErrProfileNotLinked)
		profiles.AssertNotCalled(t, "GetByAuthID")
	})
}
