package accounts_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

const strongPassword = "Secur3P@ss"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureMailer struct {
	mu   sync.Mutex
	sent []accounts.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg accounts.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) Messages() []accounts.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accounts.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *captureMailer) Last(t *testing.T) accounts.Message {
	t.Helper()
	msgs := m.Messages()
	require.NotEmpty(t, msgs, "no message was sent")
	return msgs[len(msgs)-1]
}

type captureSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *captureSink) Find(kind accounts.ActivityEventType) (accounts.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == kind {
			return e, true
		}
	}
	return accounts.ActivityEvent{}, false
}

func fastHasher() *accounts.BcryptHasher {
	return accounts.NewBcryptHasher(bcrypt.MinCost)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, accounts.NewRepositoryManager(db).CreateSchema(context.Background()))
	return db
}

func newTestStore(t *testing.T) *accounts.BunStore {
	t.Helper()
	return accounts.NewBunStore(newTestDB(t))
}

func newTestTokens(t *testing.T, clock *testClock, opts ...accounts.TokenOption) *accounts.TokenService {
	t.Helper()
	opts = append([]accounts.TokenOption{accounts.WithTokenClock(clock.Now)}, opts...)
	ts, err := accounts.NewTokenService(accounts.TokenConfig{
		SigningKey:             []byte(testSigningKey),
		Issuer:                 "accounts-test",
		Audience:               "accounts-test-clients",
		Expiration:             time.Hour,
		VerificationExpiration: 24 * time.Hour,
	}, opts...)
	require.NoError(t, err)
	return ts
}

type fixture struct {
	store  *accounts.BunStore
	tokens *accounts.TokenService
	mailer *captureMailer
	sink   *captureSink
	clock  *testClock
	svc    *accounts.AuthService
}

func newFixture(t *testing.T, opts ...accounts.AuthServiceOption) *fixture {
	t.Helper()

	f := &fixture{
		store:  newTestStore(t),
		mailer: &captureMailer{},
		sink:   &captureSink{},
		clock:  newTestClock(),
	}
	f.tokens = newTestTokens(t, f.clock)

	base := []accounts.AuthServiceOption{
		accounts.WithHasher(fastHasher()),
		accounts.WithClock(f.clock.Now),
		accounts.WithActivitySink(f.sink),
		accounts.WithVerificationLink("https://accounts.test/verify"),
	}
	f.svc = accounts.NewAuthService(f.store, f.tokens, f.mailer, append(base, opts...)...)
	return f
}

// insert writes a user directly, bypassing registration.
func (f *fixture) insert(t *testing.T, username string, role accounts.Role, parent *accounts.User) *accounts.User {
	t.Helper()

	hash, err := fastHasher().Hash(strongPassword)
	require.NoError(t, err)

	now := f.clock.Now()
	user := &accounts.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if parent != nil {
		user.ParentID = &parent.ID
	}

	created, err := f.store.Insert(context.Background(), user)
	require.NoError(t, err)
	return created
}

func (f *fixture) claimsFor(t *testing.T, user *accounts.User) accounts.AuthClaims {
	t.Helper()

	token, err := f.tokens.Issue(user)
	require.NoError(t, err)
	claims, err := f.tokens.Validate(token)
	require.NoError(t, err)
	return claims
}

func registration(username string) accounts.RegistrationDetails {
	return accounts.RegistrationDetails{
		Username: username,
		Email:    username + "@example.com",
		Password: strongPassword,
		Role:     "User",
	}
}

func richMetadata(t *testing.T, err error) map[string]any {
	t.Helper()
	var rich *goerrors.Error
	require.True(t, errors.As(err, &rich), "expected *goerrors.Error, got %T", err)
	return rich.Metadata
}
