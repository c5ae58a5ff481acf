package accounts_test

import (
	"context"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/mock"
)

// MockStore implements accounts.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByID(ctx context.Context, id int64) (*accounts.User, error) {
	args := m.Called(ctx, id)
	return userArg(args, 0), args.Error(1)
}

func (m *MockStore) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	args := m.Called(ctx, email)
	return userArg(args, 0), args.Error(1)
}

func (m *MockStore) FindByUsername(ctx context.Context, username string) (*accounts.User, error) {
	args := m.Called(ctx, username)
	return userArg(args, 0), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, user)
	return userArg(args, 0), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, user)
	return userArg(args, 0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) ListChildrenOf(ctx context.Context, parentID int64) ([]*accounts.User, error) {
	args := m.Called(ctx, parentID)
	users, _ := args.Get(0).([]*accounts.User)
	return users, args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]*accounts.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*accounts.User)
	return users, args.Error(1)
}

func userArg(args mock.Arguments, i int) *accounts.User {
	user, _ := args.Get(i).(*accounts.User)
	return user
}

// MockDenylist implements accounts.Denylist
type MockDenylist struct {
	mock.Mock
}

func (m *MockDenylist) Add(ctx context.Context, jti string, until time.Time) error {
	args := m.Called(ctx, jti, until)
	return args.Error(0)
}

func (m *MockDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}
