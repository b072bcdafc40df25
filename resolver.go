package accesscode

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// ProfileResolver attaches the application profile to an authenticated
// backend identity.
type ProfileResolver struct {
	profiles Profiles
	logger   Logger
}

func NewProfileResolver(profiles Profiles) *ProfileResolver {
	return &ProfileResolver{
		profiles: profiles,
		logger:   defLogger{},
	}
}

func (r *ProfileResolver) WithLogger(logger Logger) *ProfileResolver {
	r.logger = logger
	return r
}

// Resolve finds the profile for an authenticated identity. Fast path is the
// stored identity link; the fallback matches by email, persists the link, and
// re-fetches by identity id to confirm the write landed.
//
// A miss on both paths means the account exists in the identity system but
// has no matching application profile: an inconsistent, reportable state, not
// a crash. The caller clears state and logs.
func (r *ProfileResolver) Resolve(ctx context.Context, identity Identity) (*Profile, error) {
	if identity == nil || identity.ID() == "" {
		return nil, ErrProfileNotLinked
	}

	profile, err := r.profiles.GetByAuthID(ctx, identity.ID())
	if err == nil {
		return profile, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "profile lookup by identity failed")
	}

	profile, err = r.profiles.GetByEmail(ctx, identity.Email())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrProfileNotLinked
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "profile lookup by email failed")
	}

	if err := r.profiles.LinkIdentity(ctx, profile.ID, identity.ID()); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to link profile to identity")
	}

	// Re-fetch by identity id so a lost write on the backend surfaces here
	// instead of leaving the profile permanently unlinked.
	linked, err := r.profiles.GetByAuthID(ctx, identity.ID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			r.logger.Error("profile link did not persist", "profile_id", profile.ID.String())
			return nil, ErrProfileNotLinked
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "profile re-fetch after linking failed")
	}

	return linked, nil
}
