package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
)

// BunStore is the Store backed by a bun database or transaction.
type BunStore struct {
	db bun.IDB
}

var _ Store = (*BunStore)(nil)

// NewBunStore returns a Store over db. db may be a *bun.DB or a bun.Tx.
func NewBunStore(db bun.IDB) *BunStore {
	return &BunStore{db: db}
}

// WithTx returns a copy of the store bound to tx.
func (s *BunStore) WithTx(tx bun.IDB) *BunStore {
	return &BunStore{db: tx}
}

func (s *BunStore) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.findOne(ctx, "id", id)
}

func (s *BunStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "email", NormalizeEmail(email))
}

func (s *BunStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, "username", strings.TrimSpace(username))
}

func (s *BunStore) findOne(ctx context.Context, column string, value any) (*User, error) {
	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, withMetadata(ErrIdentityNotFound, map[string]any{
				column: value,
			})
		}
		return nil, wrapStoreFailure(err, "failed to load user")
	}
	return record, nil
}

func (s *BunStore) Insert(ctx context.Context, user *User) (*User, error) {
	user.Email = NormalizeEmail(user.Email)
	if _, err := s.db.NewInsert().Model(user).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, withMetadata(ErrDuplicateIdentity, map[string]any{
				"email":    user.Email,
				"username": user.Username,
			})
		}
		return nil, wrapStoreFailure(err, "failed to insert user")
	}
	return user, nil
}

func (s *BunStore) Update(ctx context.Context, user *User) (*User, error) {
	user.Email = NormalizeEmail(user.Email)
	res, err := s.db.NewUpdate().
		Model(user).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withMetadata(ErrDuplicateIdentity, map[string]any{
				"user_id": user.ID,
			})
		}
		return nil, wrapStoreFailure(err, "failed to update user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, withMetadata(ErrIdentityNotFound, map[string]any{"id": user.ID})
	}
	return user, nil
}

func (s *BunStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return wrapStoreFailure(err, "failed to delete user")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return withMetadata(ErrIdentityNotFound, map[string]any{"id": id})
	}
	return nil
}

func (s *BunStore) ListChildrenOf(ctx context.Context, parentID int64) ([]*User, error) {
	records := []*User{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.parent_id = ?", parentID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreFailure(err, "failed to list employees")
	}
	return records, nil
}

func (s *BunStore) List(ctx context.Context) ([]*User, error) {
	records := []*User{}
	if err := s.db.NewSelect().Model(&records).Order("id ASC").Scan(ctx); err != nil {
		return nil, wrapStoreFailure(err, "failed to list users")
	}
	return records, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
