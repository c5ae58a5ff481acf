// Package service assembles an accounts.AuthService from a config.Config:
// database, token denylist, mail transport and activity publishing.
package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/denylist"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/mailer"
	goerrors "github.com/goliatone/go-errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Service owns every resource opened by New.
type Service struct {
	DB    *bun.DB
	Repo  accounts.RepositoryManager
	Auth  *accounts.AuthService
	Mails accounts.Mailer

	logger  accounts.Logger
	closers []func() error
}

// OpenDB opens the configured SQLite database with the bun dialect.
func OpenDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "opening database").
			WithTextCode(accounts.TextCodeStoreFailure)
	}
	// every :memory: connection is its own database
	if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
		sqldb.SetMaxOpenConns(1)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// New wires the service. The schema is created when missing. A nil logger
// is built from cfg.Logging.
func New(ctx context.Context, cfg *config.Config, logger accounts.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.New(cfg.Logging, "accounts")
	}

	s := &Service{logger: logger}

	db, err := OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	s.DB = db
	s.closers = append(s.closers, db.Close)

	s.Repo = accounts.NewRepositoryManager(db)
	if err := s.Repo.Validate(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Repo.CreateSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}

	tokenOpts := []accounts.TokenOption{accounts.WithTokenLogger(logger)}
	deny, err := s.denylist(ctx, cfg.Denylist)
	if err != nil {
		s.Close()
		return nil, err
	}
	if deny != nil {
		tokenOpts = append(tokenOpts, accounts.WithTokenDenylist(deny))
	}

	tokens, err := accounts.NewTokenService(cfg.TokenConfig(), tokenOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	authOpts := []accounts.AuthServiceOption{
		accounts.WithLogger(logger),
		accounts.WithHasher(accounts.NewBcryptHasher(cfg.Password.BcryptCost)),
		accounts.WithVerificationLink(cfg.Mail.VerificationURL),
		accounts.WithComposer(mailer.MustCatalog()),
	}

	switch cfg.Mail.Transport {
	case config.TransportSMTP:
		s.Mails = mailer.NewSMTP(mailer.SMTPConfig{
			Host:       cfg.Mail.SMTP.Host,
			Port:       cfg.Mail.SMTP.Port,
			Username:   cfg.Mail.SMTP.Username,
			Password:   cfg.Mail.SMTP.Password,
			From:       cfg.Mail.From,
			SenderName: cfg.Mail.SenderName,
		})
	case config.TransportAMQP:
		m, err := mailer.DialAMQP(mailer.AMQPConfig{
			URL:        cfg.Mail.AMQP.URL,
			Exchange:   cfg.Mail.AMQP.Exchange,
			RoutingKey: cfg.Mail.AMQP.RoutingKey,
			From:       cfg.Mail.From,
			SenderName: cfg.Mail.SenderName,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Mails = m
		s.closers = append(s.closers, m.Close)

		events, err := mailer.DialActivityPublisher(cfg.Mail.AMQP.URL, cfg.Mail.AMQP.Exchange, "")
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, events.Close)
		authOpts = append(authOpts, accounts.WithActivitySink(events))
	}

	s.Auth = accounts.NewAuthService(s.Repo.Users(), tokens, s.Mails, authOpts...)

	logger.Info("accounts service ready",
		"db_driver", cfg.Database.Driver,
		"mail_transport", cfg.Mail.Transport,
		"denylist", cfg.Denylist.Backend,
	)
	return s, nil
}

func (s *Service) denylist(ctx context.Context, cfg config.DenylistConfig) (accounts.Denylist, error) {
	switch cfg.Backend {
	case config.DenylistMemory:
		return denylist.NewMemory(10 * time.Minute), nil
	case config.DenylistRedis:
		client := denylist.NewRedisClient(denylist.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "redis ping failed").
				WithMetadata(map[string]any{"addr": cfg.Redis.Addr})
		}
		return denylist.NewRedis(client, ""), nil
	default:
		return nil, nil
	}
}

// Seed inserts the default accounts in one transaction.
func (s *Service) Seed(ctx context.Context, hasher accounts.Hasher, password string) (int, error) {
	var created int
	err := s.Repo.RunInTx(ctx, nil, func(ctx context.Context, store *accounts.BunStore) error {
		n, err := accounts.Seed(ctx, store, hasher, password, accounts.DefaultSeedAccounts())
		created = n
		return err
	})
	return created, err
}

// Close releases resources in reverse order of acquisition.
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	if first != nil {
		s.logger.Warn("closing accounts service", "error", first)
	}
	return first
}
