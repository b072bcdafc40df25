package accesscode_test

import (
	"context"
	"database/sql"

	"github.com/ekklesia/go-accesscode"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockProfiles implements accesscode.Profiles. The embedded generic
// repository interface promotes the methods the bridge never touches.
type MockProfiles struct {
	mock.Mock
	repository.Repository[*accesscode.Profile]
}

func (m *MockProfiles) GetByAccessCode(ctx context.Context, email, accessCode string) (*accesscode.Profile, error) {
	args := m.Called(ctx, email, accessCode)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByAccessCodeTx(ctx context.Context, tx bun.IDB, email, accessCode string) (*accesscode.Profile, error) {
	args := m.Called(ctx, tx, email, accessCode)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByAuthID(ctx context.Context, authUserID string) (*accesscode.Profile, error) {
	args := m.Called(ctx, authUserID)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByAuthIDTx(ctx context.Context, tx bun.IDB, authUserID string) (*accesscode.Profile, error) {
	args := m.Called(ctx, tx, authUserID)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByEmail(ctx context.Context, email string) (*accesscode.Profile, error) {
	args := m.Called(ctx, email)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accesscode.Profile, error) {
	args := m.Called(ctx, tx, email)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) LinkIdentity(ctx context.Context, id uuid.UUID, authUserID string) error {
	args := m.Called(ctx, id, authUserID)
	return args.Error(0)
}

func (m *MockProfiles) LinkIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, authUserID string) error {
	args := m.Called(ctx, tx, id, authUserID)
	return args.Error(0)
}

func (m *MockProfiles) UpdateFields(ctx context.Context, id uuid.UUID, updates accesscode.ProfileUpdate) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockProfiles) UpdateFieldsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, updates accesscode.ProfileUpdate) error {
	args := m.Called(ctx, tx, id, updates)
	return args.Error(0)
}

func (m *MockProfiles) Provision(ctx context.Context, record *accesscode.Profile) (*accesscode.Profile, error) {
	args := m.Called(ctx, record)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) ProvisionTx(ctx context.Context, tx bun.IDB, record *accesscode.Profile) (*accesscode.Profile, error) {
	args := m.Called(ctx, tx, record)
	profile, _ := args.Get(0).(*accesscode.Profile)
	return profile, args.Error(1)
}

// MockRepositoryManager hands out a single MockProfiles.
type MockRepositoryManager struct {
	profiles *MockProfiles
}

func NewMockRepositoryManager(profiles *MockProfiles) *MockRepositoryManager {
	return &MockRepositoryManager{profiles: profiles}
}

func (m *MockRepositoryManager) Validate() error { return nil }
func (m *MockRepositoryManager) MustValidate()   {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Profiles() accesscode.Profiles {
	return m.profiles
}

// MockBackend implements accesscode.IdentityBackend.
type MockBackend struct {
	mock.Mock

	listener accesscode.AuthChangeListener
	unsubbed bool
}

func (m *MockBackend) SignUp(ctx context.Context, params accesscode.SignUpParams) (accesscode.Identity, error) {
	args := m.Called(ctx, params)
	identity, _ := args.Get(0).(accesscode.Identity)
	return identity, args.Error(1)
}

func (m *MockBackend) SignInWithPassword(ctx context.Context, email, password string) (accesscode.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(accesscode.Session)
	return session, args.Error(1)
}

func (m *MockBackend) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) CurrentSession(ctx context.Context) (accesscode.Session, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(accesscode.Session)
	return session, args.Error(1)
}

func (m *MockBackend) OnAuthStateChange(listener accesscode.AuthChangeListener) func() {
	m.listener = listener
	return func() {
		m.unsubbed = true
		m.listener = nil
	}
}

// Emit drives the captured listener the way the backend would.
func (m *MockBackend) Emit(event accesscode.AuthChangeEvent, session accesscode.Session) {
	if m.listener != nil {
		m.listener(event, session)
	}
}

func (m *MockBackend) AdminSetPassword(ctx context.Context, identityID, password string) error {
	args := m.Called(ctx, identityID, password)
	return args.Error(0)
}

func (m *MockBackend) AdminCreateIdentity(ctx context.Context, params accesscode.AdminCreateParams) (accesscode.Identity, error) {
	args := m.Called(ctx, params)
	identity, _ := args.Get(0).(accesscode.Identity)
	return identity, args.Error(1)
}

func (m *MockBackend) AdminDeleteIdentity(ctx context.Context, identityID string) error {
	args := m.Called(ctx, identityID)
	return args.Error(0)
}

func (m *MockBackend) IdentityFromToken(ctx context.Context, accessToken string) (accesscode.Identity, error) {
	args := m.Called(ctx, accessToken)
	identity, _ := args.Get(0).(accesscode.Identity)
	return identity, args.Error(1)
}

// RecordingNotifier captures user-visible notifications.
type RecordingNotifier struct {
	Welcomed []string
	SignOuts int
	Updates  int
	Failures []string
}

func (n *RecordingNotifier) Welcome(profile *accesscode.Profile) {
	if profile != nil {
		n.Welcomed = append(n.Welcomed, profile.FullName)
	}
}

func (n *RecordingNotifier) SignedOut() {
	n.SignOuts++
}

func (n *RecordingNotifier) ProfileUpdated() {
	n.Updates++
}

func (n *RecordingNotifier) Error(title, message string) {
	n.Failures = append(n.Failures, title)
}

func notFound() error {
	return repository.NewRecordNotFound()
}

func testSession(identityID, email string) *accesscode.SessionObject {
	return &accesscode.SessionObject{
		AccessToken: "token-" + identityID,
		User: &accesscode.IdentityRef{
			IdentityID:    identityID,
			IdentityEmail: email,
		},
	}
}
