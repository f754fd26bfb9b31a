package contacts_test

import (
	"context"
	"database/sql"
	"sync"

	contacts "github.com/goliatone/go-contacts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// TestIdentity is a simple implementation of Identity for testing
type TestIdentity struct {
	id        string
	email     string
	confirmed bool
}

func (t TestIdentity) ID() string      { return t.id }
func (t TestIdentity) Email() string   { return t.email }
func (t TestIdentity) Confirmed() bool { return t.confirmed }

// MockIdentityProvider implements contacts.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (contacts.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(contacts.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (contacts.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(contacts.Identity)
	return identity, args.Error(1)
}

// MockUserTracker implements contacts.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByEmail(ctx context.Context, email string) (*contacts.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*contacts.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *contacts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *contacts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockUsers stubs the subset of the Users repository the handlers touch.
// The embedded interface panics on anything a test forgot to set up.
type MockUsers struct {
	contacts.Users
	mock.Mock
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*contacts.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*contacts.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*contacts.User, error) {
	args := m.Called(ctx, tx, email)
	user, _ := args.Get(0).(*contacts.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *contacts.User, criteria ...repository.InsertCriteria) (*contacts.User, error) {
	args := m.Called(ctx, tx, record)
	user, _ := args.Get(0).(*contacts.User)
	return user, args.Error(1)
}

func (m *MockUsers) ConfirmEmail(ctx context.Context, id uuid.UUID) (*contacts.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*contacts.User)
	return user, args.Error(1)
}

func (m *MockUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, email, passwordHash string) error {
	args := m.Called(ctx, tx, email, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) UpdateAvatar(ctx context.Context, id uuid.UUID, avatarURL string) (*contacts.User, error) {
	args := m.Called(ctx, id, avatarURL)
	user, _ := args.Get(0).(*contacts.User)
	return user, args.Error(1)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *contacts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *contacts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockContacts stubs the contact book repository.
type MockContacts struct {
	contacts.Contacts
	mock.Mock
}

func (m *MockContacts) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*contacts.Contact, error) {
	args := m.Called(ctx, ownerID, id)
	record, _ := args.Get(0).(*contacts.Contact)
	return record, args.Error(1)
}

func (m *MockContacts) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter contacts.ContactFilter) ([]*contacts.Contact, error) {
	args := m.Called(ctx, ownerID, filter)
	records, _ := args.Get(0).([]*contacts.Contact)
	return records, args.Error(1)
}

func (m *MockContacts) UpcomingBirthdays(ctx context.Context, ownerID uuid.UUID, days int) ([]*contacts.Contact, error) {
	args := m.Called(ctx, ownerID, days)
	records, _ := args.Get(0).([]*contacts.Contact)
	return records, args.Error(1)
}

func (m *MockContacts) Create(ctx context.Context, record *contacts.Contact, criteria ...repository.InsertCriteria) (*contacts.Contact, error) {
	args := m.Called(ctx, record)
	created, _ := args.Get(0).(*contacts.Contact)
	return created, args.Error(1)
}

func (m *MockContacts) UpdateOwned(ctx context.Context, ownerID uuid.UUID, record *contacts.Contact) (*contacts.Contact, error) {
	args := m.Called(ctx, ownerID, record)
	updated, _ := args.Get(0).(*contacts.Contact)
	return updated, args.Error(1)
}

func (m *MockContacts) DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

// MockRepositoryManager runs transaction closures against a zero bun.Tx so
// handlers can be exercised without a database.
type MockRepositoryManager struct {
	users *MockUsers
	book  *MockContacts
}

func NewMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{users: &MockUsers{}, book: &MockContacts{}}
}

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Users() contacts.Users { return m.users }

func (m *MockRepositoryManager) Contacts() contacts.Contacts { return m.book }

// CaptureDispatcher records sent messages for inspection.
type CaptureDispatcher struct {
	mu       sync.Mutex
	messages []contacts.Message
	err      error
	sent     chan struct{}
}

func NewCaptureDispatcher() *CaptureDispatcher {
	return &CaptureDispatcher{sent: make(chan struct{}, 16)}
}

func (d *CaptureDispatcher) FailWith(err error) *CaptureDispatcher {
	d.err = err
	return d
}

func (d *CaptureDispatcher) Send(ctx context.Context, msg contacts.Message) error {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.mu.Unlock()

	select {
	case d.sent <- struct{}{}:
	default:
	}

	return d.err
}

func (d *CaptureDispatcher) Messages() []contacts.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]contacts.Message, len(d.messages))
	copy(out, d.messages)
	return out
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
