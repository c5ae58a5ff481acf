package accounts_test

import (
	"context"
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHierarchyChildrenAndParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.insert(t, "company", accounts.RoleAdmin, nil)
	first := f.insert(t, "first", accounts.RoleUser, company)
	second := f.insert(t, "second", accounts.RoleUser, company)
	loner := f.insert(t, "loner", accounts.RoleUser, nil)

	h := f.svc.Hierarchy()

	children, err := h.ChildrenOf(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, first.ID, children[0].ID)
	assert.Equal(t, second.ID, children[1].ID)

	none, err := h.ChildrenOf(ctx, loner.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	parent, err := h.ParentOf(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, company.ID, parent.ID)

	parent, err = h.ParentOf(ctx, loner.ID)
	require.NoError(t, err)
	assert.Nil(t, parent)

	_, err = h.ParentOf(ctx, 9999)
	assert.True(t, accounts.IsNotFound(err))
}

func TestHierarchyIsSubordinate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.insert(t, "company", accounts.RoleAdmin, nil)
	employee := f.insert(t, "employee", accounts.RoleUser, company)
	other := f.insert(t, "other", accounts.RoleAdmin, nil)

	h := f.svc.Hierarchy()

	ok, err := h.IsSubordinate(ctx, company.ID, employee.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.IsSubordinate(ctx, other.ID, employee.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.IsSubordinate(ctx, company.ID, company.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.IsSubordinate(ctx, company.ID, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHierarchyValidateParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.insert(t, "company", accounts.RoleAdmin, nil)
	employee := f.insert(t, "employee", accounts.RoleUser, company)

	h := f.svc.Hierarchy()

	assert.NoError(t, h.ValidateParent(ctx, company.ID))

	err := h.ValidateParent(ctx, employee.ID)
	assert.True(t, accounts.IsValidationError(err), "grandchildren must be rejected: %v", err)

	err = h.ValidateParent(ctx, 9999)
	assert.True(t, accounts.IsValidationError(err))
}

func TestHierarchyPropagatesStoreFailures(t *testing.T) {
	repo := &MockStore{}
	storeErr := errors.New("timeout")
	repo.On("FindByID", mock.Anything, int64(1)).Return(nil, storeErr)
	repo.On("ListChildrenOf", mock.Anything, int64(1)).Return(nil, storeErr)

	h := accounts.NewHierarchy(repo)
	ctx := context.Background()

	_, err := h.ChildrenOf(ctx, 1)
	assert.ErrorIs(t, err, storeErr)

	_, err = h.IsSubordinate(ctx, 2, 1)
	assert.ErrorIs(t, err, storeErr)

	err = h.ValidateParent(ctx, 1)
	assert.ErrorIs(t, err, storeErr)
}
