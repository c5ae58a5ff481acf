// Package config loads the accounts service settings from YAML with
// ACCOUNTS_* environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	JWT      JWTConfig      `yaml:"jwt"`
	Password PasswordConfig `yaml:"password"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Mail     MailConfig     `yaml:"mail"`
	Denylist DenylistConfig `yaml:"denylist"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	SigningKey                    string `yaml:"signing_key"`
	Issuer                        string `yaml:"issuer"`
	Audience                      string `yaml:"audience"`
	ExpirationMinutes             int    `yaml:"expiration_minutes"`
	VerificationExpirationMinutes int    `yaml:"verification_expiration_minutes"`
}

// PasswordConfig holds hashing settings.
type PasswordConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// DatabaseConfig holds the SQL connection settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Transport       string     `yaml:"transport"`
	From            string     `yaml:"from"`
	SenderName      string     `yaml:"sender_name"`
	VerificationURL string     `yaml:"verification_url"`
	SMTP            SMTPConfig `yaml:"smtp"`
	AMQP            AMQPConfig `yaml:"amqp"`
}

// SMTPConfig configures direct delivery.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AMQPConfig configures delivery through a RabbitMQ queue.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// DenylistConfig selects the revoked token store.
type DenylistConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Mail transports and denylist backends.
const (
	TransportSMTP   = "smtp"
	TransportAMQP   = "amqp"
	TransportNone   = "none"
	DenylistMemory  = "memory"
	DenylistRedis   = "redis"
	DenylistNone    = "none"
	DefaultDBDriver = "sqlite3"
)

// Default returns a Config with every optional field set.
func Default() *Config {
	return &Config{
		JWT: JWTConfig{
			Issuer:                        "go-accounts",
			Audience:                      "go-accounts",
			ExpirationMinutes:             60,
			VerificationExpirationMinutes: 24 * 60,
		},
		Password: PasswordConfig{
			BcryptCost: accounts.DefaultBcryptCost,
		},
		Database: DatabaseConfig{
			Driver: DefaultDBDriver,
			DSN:    "file:accounts.db?cache=shared",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Mail: MailConfig{
			Transport:       TransportNone,
			From:            "no-reply@accounts.local",
			SenderName:      "Accounts",
			VerificationURL: accounts.DefaultVerificationURL,
			SMTP: SMTPConfig{
				Port: 587,
			},
			AMQP: AMQPConfig{
				Exchange:   "accounts",
				RoutingKey: "mail.outbound",
			},
		},
		Denylist: DenylistConfig{
			Backend: DenylistMemory,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
	}
}

// Load reads path over the defaults, applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "reading config file").
			WithTextCode(accounts.TextCodeConfiguration)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "parsing config file").
			WithTextCode(accounts.TextCodeConfiguration)
	}

	ApplyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ACCOUNTS_SECTION_KEY variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	str("ACCOUNTS_JWT_SIGNING_KEY", &cfg.JWT.SigningKey)
	str("ACCOUNTS_JWT_ISSUER", &cfg.JWT.Issuer)
	str("ACCOUNTS_JWT_AUDIENCE", &cfg.JWT.Audience)
	num("ACCOUNTS_JWT_EXPIRATION_MINUTES", &cfg.JWT.ExpirationMinutes)
	num("ACCOUNTS_JWT_VERIFICATION_EXPIRATION_MINUTES", &cfg.JWT.VerificationExpirationMinutes)
	num("ACCOUNTS_PASSWORD_BCRYPT_COST", &cfg.Password.BcryptCost)
	str("ACCOUNTS_DATABASE_DRIVER", &cfg.Database.Driver)
	str("ACCOUNTS_DATABASE_DSN", &cfg.Database.DSN)
	str("ACCOUNTS_LOGGING_LEVEL", &cfg.Logging.Level)
	str("ACCOUNTS_LOGGING_FORMAT", &cfg.Logging.Format)
	str("ACCOUNTS_MAIL_TRANSPORT", &cfg.Mail.Transport)
	str("ACCOUNTS_MAIL_FROM", &cfg.Mail.From)
	str("ACCOUNTS_MAIL_VERIFICATION_URL", &cfg.Mail.VerificationURL)
	str("ACCOUNTS_MAIL_SMTP_HOST", &cfg.Mail.SMTP.Host)
	num("ACCOUNTS_MAIL_SMTP_PORT", &cfg.Mail.SMTP.Port)
	str("ACCOUNTS_MAIL_SMTP_USERNAME", &cfg.Mail.SMTP.Username)
	str("ACCOUNTS_MAIL_SMTP_PASSWORD", &cfg.Mail.SMTP.Password)
	str("ACCOUNTS_MAIL_AMQP_URL", &cfg.Mail.AMQP.URL)
	str("ACCOUNTS_DENYLIST_BACKEND", &cfg.Denylist.Backend)
	str("ACCOUNTS_DENYLIST_REDIS_ADDR", &cfg.Denylist.Redis.Addr)
	str("ACCOUNTS_DENYLIST_REDIS_PASSWORD", &cfg.Denylist.Redis.Password)
	num("ACCOUNTS_DENYLIST_REDIS_DB", &cfg.Denylist.Redis.DB)
}

// Validate reports every invalid section at once as a configuration error.
func (c *Config) Validate() error {
	errs := validation.Errors{
		"jwt":      c.JWT.validate(),
		"password": c.Password.validate(),
		"database": c.Database.validate(),
		"mail":     c.Mail.validate(),
		"denylist": c.Denylist.validate(),
	}.Filter()
	if errs == nil {
		return nil
	}

	clone := accounts.ErrConfiguration.Clone()
	clone.Message = "configuration errors: " + errs.Error()
	clone.Source = accounts.ErrConfiguration
	return clone.WithMetadata(map[string]any{"errors": errs.Error()})
}

func (j JWTConfig) validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.SigningKey, validation.Required, validation.Length(accounts.MinSigningKeyLength, 0)),
		validation.Field(&j.Issuer, validation.Required),
		validation.Field(&j.Audience, validation.Required),
		validation.Field(&j.ExpirationMinutes, validation.Required, validation.Min(1)),
		validation.Field(&j.VerificationExpirationMinutes, validation.Min(0)),
	)
}

func (p PasswordConfig) validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BcryptCost, validation.Min(4), validation.Max(31)),
	)
}

func (d DatabaseConfig) validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DefaultDBDriver)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (m MailConfig) validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Transport, validation.Required, validation.In(TransportSMTP, TransportAMQP, TransportNone)),
		validation.Field(&m.From, validation.Required, accounts.EmailRule()),
		validation.Field(&m.VerificationURL, validation.Required, is.URL),
		validation.Field(&m.SMTP, validation.By(func(any) error {
			if m.Transport != TransportSMTP {
				return nil
			}
			return validation.ValidateStruct(&m.SMTP,
				validation.Field(&m.SMTP.Host, validation.Required),
				validation.Field(&m.SMTP.Port, validation.Required, validation.Min(1), validation.Max(65535)),
			)
		})),
		validation.Field(&m.AMQP, validation.By(func(any) error {
			if m.Transport != TransportAMQP {
				return nil
			}
			return validation.ValidateStruct(&m.AMQP,
				validation.Field(&m.AMQP.URL, validation.Required),
				validation.Field(&m.AMQP.RoutingKey, validation.Required),
			)
		})),
	)
}

func (d DenylistConfig) validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Backend, validation.Required, validation.In(DenylistMemory, DenylistRedis, DenylistNone)),
		validation.Field(&d.Redis, validation.By(func(any) error {
			if d.Backend != DenylistRedis {
				return nil
			}
			return validation.ValidateStruct(&d.Redis,
				validation.Field(&d.Redis.Addr, validation.Required),
			)
		})),
	)
}

// TokenConfig converts the jwt section for accounts.NewTokenService.
func (c *Config) TokenConfig() accounts.TokenConfig {
	return accounts.TokenConfig{
		SigningKey:             []byte(c.JWT.SigningKey),
		Issuer:                 c.JWT.Issuer,
		Audience:               c.JWT.Audience,
		Expiration:             time.Duration(c.JWT.ExpirationMinutes) * time.Minute,
		VerificationExpiration: time.Duration(c.JWT.VerificationExpirationMinutes) * time.Minute,
	}
}
