package accounts

import (
	"context"
	"sync"
	"time"
)

// AuthServiceOption customizes AuthService construction.
type AuthServiceOption func(*authServiceConfig)

type authServiceConfig struct {
	logger          Logger
	activitySink    ActivitySink
	hasher          Hasher
	now             func() time.Time
	rules           map[Action]Rule
	verificationURL string
	composer        VerificationComposer
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger Logger) AuthServiceOption {
	return func(c *authServiceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func WithActivitySink(sink ActivitySink) AuthServiceOption {
	return func(c *authServiceConfig) {
		c.activitySink = normalizeActivitySink(sink)
	}
}

// WithHasher replaces the bcrypt hasher.
func WithHasher(h Hasher) AuthServiceOption {
	return func(c *authServiceConfig) {
		if h != nil {
			c.hasher = h
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) AuthServiceOption {
	return func(c *authServiceConfig) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithRules replaces the default authorization table.
func WithRules(rules map[Action]Rule) AuthServiceOption {
	return func(c *authServiceConfig) {
		c.rules = rules
	}
}

// WithVerificationLink sets the base URL of verification links.
func WithVerificationLink(base string) AuthServiceOption {
	return func(c *authServiceConfig) {
		c.verificationURL = base
	}
}

// WithComposer replaces the verification email renderer.
func WithComposer(composer VerificationComposer) AuthServiceOption {
	return func(c *authServiceConfig) {
		c.composer = composer
	}
}

// AuthService is the entry point for callers such as an HTTP layer. It
// composes the hasher, token service, policy, hierarchy and lifecycle.
type AuthService struct {
	store        Store
	tokens       *TokenService
	hasher       Hasher
	hierarchy    *Hierarchy
	policy       *Policy
	lifecycle    *Lifecycle
	directory    *Directory
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires all components over store, tokens and mailer.
func NewAuthService(store Store, tokens *TokenService, mailer Mailer, opts ...AuthServiceOption) *AuthService {
	cfg := &authServiceConfig{
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		hasher:       NewBcryptHasher(0),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	hierarchy := NewHierarchy(store)
	policy := NewPolicy(hierarchy, WithPolicyRules(cfg.rules), WithPolicyLogger(cfg.logger))
	lifecycle := NewLifecycle(store, tokens, mailer,
		WithLifecycleLogger(cfg.logger),
		WithLifecycleActivitySink(cfg.activitySink),
		WithLifecycleClock(cfg.now),
		WithLifecycleHasher(cfg.hasher),
		WithVerificationURL(cfg.verificationURL),
		WithVerificationComposer(cfg.composer),
	)

	s := &AuthService{
		store:        store,
		tokens:       tokens,
		hasher:       cfg.hasher,
		hierarchy:    hierarchy,
		policy:       policy,
		lifecycle:    lifecycle,
		activitySink: cfg.activitySink,
		logger:       cfg.logger,
		now:          cfg.now,
	}
	s.directory = newDirectory(s)
	return s
}

// Tokens returns the TokenService used by this service
func (s *AuthService) Tokens() *TokenService { return s.tokens }

// Policy returns the authorization policy
func (s *AuthService) Policy() *Policy { return s.policy }

// Hierarchy returns the company/employee view of the store
func (s *AuthService) Hierarchy() *Hierarchy { return s.hierarchy }

// Lifecycle returns the registration and activation workflow
func (s *AuthService) Lifecycle() *Lifecycle { return s.lifecycle }

// Directory returns the policy-guarded user management operations
func (s *AuthService) Directory() *Directory { return s.directory }

// Login exchanges an email and password for a session token. Every
// credential failure is ErrUnauthenticated.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.loginFailed(ctx, nil, email, "missing credentials")
		return "", ErrUnauthenticated
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			s.logger.Error("login lookup failed", "error", err)
			return "", err
		}
		// keep the timing of unknown emails close to wrong passwords
		s.hasher.Verify(password, s.fakeHash())
		s.loginFailed(ctx, nil, email, "unknown email")
		return "", ErrUnauthenticated
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.loginFailed(ctx, user, email, "password mismatch")
		return "", ErrUnauthenticated
	}

	if user.Status() == StatusDeactivated {
		s.loginFailed(ctx, user, email, "account deactivated")
		return "", ErrUnauthenticated
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("login token issue failed", "user_id", user.ID, "error", err)
		return "", err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID, Type: "user"},
		UserID:    user.ID,
	})

	return token, nil
}

func (s *AuthService) loginFailed(ctx context.Context, user *User, email, reason string) {
	s.logger.Warn("login rejected", "reason", reason)

	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "unknown"},
		Metadata: map[string]any{
			"identifier": email,
			"reason":     reason,
		},
	}
	if user != nil {
		event.UserID = user.ID
		event.Actor = ActorRef{ID: user.ID, Type: "user"}
	}
	recordActivity(ctx, s.activitySink, s.logger, s.now, event)
}

func (s *AuthService) fakeHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password-" + s.now().String())
	})
	return s.dummyHash
}

// Logout revokes a session token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.session(ctx, token)
	if err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, token); err != nil {
		return err
	}

	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorFromClaims(claims),
		UserID:    claims.UserID(),
	})
	return nil
}

// Claims verifies a session token and returns its claims. Verification
// tokens are rejected: a mailed link is not a login.
func (s *AuthService) Claims(ctx context.Context, token string) (AuthClaims, error) {
	claims, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *AuthService) session(ctx context.Context, token string) (*JWTClaims, error) {
	claims, err := s.tokens.ValidateContext(ctx, token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if claims.Purpose() != PurposeSession {
		s.logger.Debug("token rejected", "purpose", claims.Purpose())
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// Register creates a pending account and mails its verification link.
func (s *AuthService) Register(ctx context.Context, details RegistrationDetails) (*RegistrationResult, error) {
	return s.lifecycle.Register(ctx, details)
}

// RegisterEmployee registers an employee under the calling company account.
func (s *AuthService) RegisterEmployee(ctx context.Context, claims AuthClaims, details RegistrationDetails) (*RegistrationResult, error) {
	if claims == nil {
		return nil, ErrUnauthenticated
	}
	if err := s.policy.Authorize(ctx, claims, ActionRegisterEmployee, claims.UserID()); err != nil {
		return nil, err
	}
	return s.lifecycle.RegisterEmployee(ctx, claims.UserID(), details)
}

// Verify consumes a verification token.
func (s *AuthService) Verify(ctx context.Context, token string) (*User, error) {
	return s.lifecycle.Verify(ctx, token)
}

// Resend mails a new verification link to a pending account.
func (s *AuthService) Resend(ctx context.Context, id int64) error {
	return s.lifecycle.Resend(ctx, id)
}

// SetActivation toggles an account on or off.
func (s *AuthService) SetActivation(ctx context.Context, claims AuthClaims, id int64, active bool) (*User, error) {
	if err := s.policy.Authorize(ctx, claims, ActionSetActivation, id); err != nil {
		return nil, err
	}
	return s.lifecycle.SetActivation(ctx, ActorFromClaims(claims), id, active)
}

// CanAct delegates to the policy.
func (s *AuthService) CanAct(ctx context.Context, claims AuthClaims, action Action, targetID int64) bool {
	return s.policy.CanAct(ctx, claims, action, targetID)
}
