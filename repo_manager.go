package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager owns the database handle and hands out stores.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, store *BunStore) error) error
	CreateSchema(ctx context.Context) error
	Users() *BunStore
}

type mngr struct {
	db    *bun.DB
	users *BunStore
}

// NewRepositoryManager returns a manager over db.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:    db,
		users: NewBunStore(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f with a store bound to a transaction.
func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, store *BunStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
			return f(ctx, m.users.WithTx(tx))
		})
	}
}

// CreateSchema creates the users table and its parent index when missing.
func (m mngr) CreateSchema(ctx context.Context) error {
	_, err := m.db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		ForeignKey(`("parent_id") REFERENCES "users" ("id") ON DELETE RESTRICT`).
		Exec(ctx)
	if err != nil {
		return wrapStoreFailure(err, "failed to create users table")
	}

	_, err = m.db.NewCreateIndex().
		Model((*User)(nil)).
		Index("users_parent_id_idx").
		Column("parent_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return wrapStoreFailure(err, "failed to create users parent index")
	}

	return nil
}

func (m mngr) Users() *BunStore {
	return m.users
}
