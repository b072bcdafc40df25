package accesscode

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// ProvisionUserMessage is the request the admin provisioning flow handles.
// The access code is generated server side and returned to the admin for
// out-of-band delivery; callers never choose it.
type ProvisionUserMessage struct {
	FullName       string `json:"full_name"`
	Gender         string `json:"gender"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	FamilyCategory string `json:"family_category,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	Role           string `json:"role"`
	Bio            string `json:"bio,omitempty"`
}

func (e ProvisionUserMessage) Type() string { return "user.provision" }

// ProvisionResult is what the handler returns on success.
type ProvisionResult struct {
	Profile    *Profile `json:"user"`
	AccessCode string   `json:"access_code"`
}

// ProvisionUserHandler creates a backend identity and a linked profile pair.
// Unlike the bridge's first-login path, provisioning seeds the identity with
// a throwaway password: the real credential is established the first time the
// user signs in with the access code.
type ProvisionUserHandler struct {
	repo         RepositoryManager
	backend      IdentityBackend
	logger       Logger
	activitySink ActivitySink

	// overridable in tests
	generateCode func() (string, error)
	now          func() time.Time
}

func NewProvisionUserHandler(repo RepositoryManager, backend IdentityBackend) *ProvisionUserHandler {
	return &ProvisionUserHandler{
		repo:         repo,
		backend:      backend,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		generateCode: GenerateAccessCode,
		now:          time.Now,
	}
}

func (h *ProvisionUserHandler) WithLogger(logger Logger) *ProvisionUserHandler {
	h.logger = logger
	return h
}

func (h *ProvisionUserHandler) WithActivitySink(sink ActivitySink) *ProvisionUserHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

// WithCodeGenerator overrides access-code generation.
func (h *ProvisionUserHandler) WithCodeGenerator(fn func() (string, error)) *ProvisionUserHandler {
	if fn != nil {
		h.generateCode = fn
	}
	return h
}

func (h *ProvisionUserHandler) Execute(ctx context.Context, event ProvisionUserMessage) (*ProvisionResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionUserHandler) execute(ctx context.Context, event ProvisionUserMessage) (*ProvisionResult, error) {
	if _, ok := ParseProfileRole(event.Role); !ok {
		return nil, goerrors.New("unknown or invalid role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": event.Role})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	accessCode, err := h.generateCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate access code")
	}

	// The temp password is never delivered to anyone; the first sign-in with
	// the access code replaces it through the credential repair path.
	tempPassword := fmt.Sprintf("temp_%s_%d", accessCode, h.now().UnixMilli())

	identity, err := h.backend.AdminCreateIdentity(ctx, AdminCreateParams{
		Email:        event.Email,
		Password:     tempPassword,
		EmailConfirm: true,
		Metadata: map[string]any{
			"full_name": event.FullName,
			"role":      event.Role,
		},
	})
	if err != nil || identity == nil || identity.ID() == "" {
		return nil, wrapSentinel(ErrAccountCreationFailed, err)
	}

	authUserID := identity.ID()
	profile := &Profile{
		AuthUserID:     &authUserID,
		FullName:       event.FullName,
		Gender:         event.Gender,
		Email:          event.Email,
		Phone:          event.Phone,
		FamilyCategory: event.FamilyCategory,
		FamilyName:     event.FamilyName,
		Role:           event.Role,
		AccessCode:     accessCode,
		Bio:            event.Bio,
	}

	if id, err := hashid.NewUUID(event.Email); err == nil {
		profile.ID = id
	}

	created, err := h.repo.Profiles().Provision(ctx, profile)
	if err != nil {
		// Roll the identity back so a retried provisioning does not trip
		// over an orphaned backend account.
		if delErr := h.backend.AdminDeleteIdentity(ctx, authUserID); delErr != nil {
			h.logger.Error("provisioning rollback failed", "identity_id", authUserID, "error", delErr)
		}

		h.emitEvent(ctx, ActivityEventProvisionRollback, "", event.Email, map[string]any{
			"error": err.Error(),
		})

		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "failed to create user profile")
	}

	h.emitEvent(ctx, ActivityEventUserProvisioned, created.ID.String(), created.Email, map[string]any{
		"role": created.Role,
	})

	return &ProvisionResult{
		Profile:    created,
		AccessCode: accessCode,
	}, nil
}

func (h *ProvisionUserHandler) emitEvent(ctx context.Context, eventType ActivityEventType, profileID, email string, metadata map[string]any) {
	sink := normalizeActivitySink(h.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		ProfileID:  profileID,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: h.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink record error: %v", err)
	}
}
