package accesscode

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileRole is the profile's role within the program
type ProfileRole = string

const (
	// RoleAdmin manages users, announcements, and program settings
	RoleAdmin ProfileRole = "Admin"
	// RolePastor oversees the church-wide dashboard
	RolePastor ProfileRole = "Pastor"
	// RoleYouthCommittee coordinates youth activities
	RoleYouthCommittee ProfileRole = "Youth Committee"
	// RolePere is a father of a registered family
	RolePere ProfileRole = "Père"
	// RoleMere is a mother of a registered family
	RoleMere ProfileRole = "Mère"
)

// AccessCodeLength is the number of digits in an access code.
const AccessCodeLength = 4

// Profile is the application's record of a person, distinct from but linked
// to a backend identity. AuthUserID stays nil until the first successful
// login or a privileged provisioning run links it.
type Profile struct {
	bun.BaseModel  `bun:"table:profiles,alias:prf"`
	ID             uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthUserID     *string     `bun:"auth_user_id,nullzero,type:uuid" json:"auth_user_id,omitempty"`
	FullName       string      `bun:"full_name,notnull" json:"full_name,omitempty"`
	Gender         string      `bun:"gender" json:"gender,omitempty"`
	Email          string      `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string      `bun:"phone" json:"phone,omitempty"`
	FamilyCategory string      `bun:"family_category" json:"family_category,omitempty"`
	FamilyName     string      `bun:"family_name" json:"family_name,omitempty"`
	Role           ProfileRole `bun:"role,notnull" json:"role,omitempty"`
	AccessCode     string      `bun:"access_code,notnull" json:"access_code,omitempty"`
	ProfilePicture string      `bun:"profile_picture" json:"profile_picture,omitempty"`
	Bio            string      `bun:"bio" json:"bio,omitempty"`
	CreatedAt      *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Linked reports whether the profile has a backend identity attached.
func (p *Profile) Linked() bool {
	return p != nil && p.AuthUserID != nil && *p.AuthUserID != ""
}

// Resolved projects the profile into the session-scoped view the rest of the
// application reads.
func (p *Profile) Resolved() *ResolvedUser {
	if p == nil {
		return nil
	}
	return &ResolvedUser{
		ID:             p.ID,
		Email:          p.Email,
		FullName:       p.FullName,
		Role:           p.Role,
		FamilyCategory: p.FamilyCategory,
		FamilyName:     p.FamilyName,
		AccessCode:     p.AccessCode,
		ProfilePicture: p.ProfilePicture,
		Bio:            p.Bio,
	}
}

// ResolvedUser is the in-memory, session-scoped subset of Profile exposed to
// the application after a session is established. It is derived state and is
// never persisted.
type ResolvedUser struct {
	ID             uuid.UUID   `json:"id"`
	Email          string      `json:"email"`
	FullName       string      `json:"full_name"`
	Role           ProfileRole `json:"role"`
	FamilyCategory string      `json:"family_category,omitempty"`
	FamilyName     string      `json:"family_name,omitempty"`
	AccessCode     string      `json:"access_code"`
	ProfilePicture string      `json:"profile_picture,omitempty"`
	Bio            string      `json:"bio,omitempty"`
}

// ProfileUpdate carries a partial profile update. Nil fields are untouched.
type ProfileUpdate struct {
	FullName       *string `json:"full_name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	FamilyCategory *string `json:"family_category,omitempty"`
	FamilyName     *string `json:"family_name,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
	Bio            *string `json:"bio,omitempty"`
}

// IsZero reports whether the update carries no fields.
func (u ProfileUpdate) IsZero() bool {
	return u.FullName == nil &&
		u.Phone == nil &&
		u.FamilyCategory == nil &&
		u.FamilyName == nil &&
		u.ProfilePicture == nil &&
		u.Bio == nil
}

// ApplyTo merges the update into a resolved user. Used for the optimistic
// local merge after a successful write; we do not re-fetch to confirm.
func (u ProfileUpdate) ApplyTo(user *ResolvedUser) {
	if user == nil {
		return
	}
	if u.FullName != nil {
		user.FullName = *u.FullName
	}
	if u.FamilyCategory != nil {
		user.FamilyCategory = *u.FamilyCategory
	}
	if u.FamilyName != nil {
		user.FamilyName = *u.FamilyName
	}
	if u.ProfilePicture != nil {
		user.ProfilePicture = *u.ProfilePicture
	}
	if u.Bio != nil {
		user.Bio = *u.Bio
	}
}

// ValidateAccessCode checks the shape of an access code: exactly four ASCII
// digits.
func ValidateAccessCode(code string) error {
	if len(code) != AccessCodeLength {
		return errors.New("access code must be exactly 4 digits", errors.CategoryValidation).
			WithTextCode(TextCodeInvalidCredential)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return errors.New("access code must be exactly 4 digits", errors.CategoryValidation).
				WithTextCode(TextCodeInvalidCredential)
		}
	}
	return nil
}

// GenerateAccessCode produces a fresh 4-digit code in [1000, 9999], matching
// the range the provisioning flow has always issued.
func GenerateAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate access code")
	}
	return big.NewInt(0).Add(n, big.NewInt(1000)).String(), nil
}
