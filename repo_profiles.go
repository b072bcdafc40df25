package accesscode

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the profile store. Reads are equality-filtered selects; writes
// are partial updates by id, matching the table-style contract the managed
// backend exposes.
type Profiles interface {
	repository.Repository[*Profile]

	GetByAccessCode(ctx context.Context, email, accessCode string) (*Profile, error)
	GetByAccessCodeTx(ctx context.Context, tx bun.IDB, email, accessCode string) (*Profile, error)
	GetByAuthID(ctx context.Context, authUserID string) (*Profile, error)
	GetByAuthIDTx(ctx context.Context, tx bun.IDB, authUserID string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error)

	LinkIdentity(ctx context.Context, id uuid.UUID, authUserID string) error
	LinkIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, authUserID string) error

	UpdateFields(ctx context.Context, id uuid.UUID, updates ProfileUpdate) error
	UpdateFieldsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, updates ProfileUpdate) error

	Provision(ctx context.Context, record *Profile) (*Profile, error)
	ProvisionTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByAccessCode(ctx context.Context, email, accessCode string) (*Profile, error) {
	return r.GetByAccessCodeTx(ctx, r.db, email, accessCode)
}

func (r *profiles) GetByAccessCodeTx(ctx context.Context, tx bun.IDB, email, accessCode string) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Where("?TableAlias.access_code = ?", accessCode).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) GetByAuthID(ctx context.Context, authUserID string) (*Profile, error) {
	return r.GetByAuthIDTx(ctx, r.db, authUserID)
}

func (r *profiles) GetByAuthIDTx(ctx context.Context, tx bun.IDB, authUserID string) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.auth_user_id = ?", authUserID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"auth_user_id": authUserID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return r.GetByEmailTx(ctx, r.db, email)
}

func (r *profiles) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *profiles) LinkIdentity(ctx context.Context, id uuid.UUID, authUserID string) error {
	return r.LinkIdentityTx(ctx, r.db, id, authUserID)
}

func (r *profiles) LinkIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, authUserID string) error {
	res, err := tx.NewUpdate().
		Model((*Profile)(nil)).
		Set("auth_user_id = ?", authUserID).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (r *profiles) UpdateFields(ctx context.Context, id uuid.UUID, updates ProfileUpdate) error {
	return r.UpdateFieldsTx(ctx, r.db, id, updates)
}

func (r *profiles) UpdateFieldsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, updates ProfileUpdate) error {
	if updates.IsZero() {
		return nil
	}

	q := tx.NewUpdate().
		Model((*Profile)(nil)).
		Where("?TableAlias.id = ?", id)

	if updates.FullName != nil {
		q.Set("full_name = ?", *updates.FullName)
	}
	if updates.Phone != nil {
		q.Set("phone = ?", *updates.Phone)
	}
	if updates.FamilyCategory != nil {
		q.Set("family_category = ?", *updates.FamilyCategory)
	}
	if updates.FamilyName != nil {
		q.Set("family_name = ?", *updates.FamilyName)
	}
	if updates.ProfilePicture != nil {
		q.Set("profile_picture = ?", *updates.ProfilePicture)
	}
	if updates.Bio != nil {
		q.Set("bio = ?", *updates.Bio)
	}
	q.Set("updated_at = ?", time.Now())

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (r *profiles) Provision(ctx context.Context, record *Profile) (*Profile, error) {
	return r.ProvisionTx(ctx, r.db, record)
}

func (r *profiles) ProvisionTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	prepareProfileDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record)
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}

	record.Email = normalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
