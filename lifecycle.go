package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultVerificationURL is the landing page for verification links.
const DefaultVerificationURL = "https://localhost:7279/Auth/verify"

// RegistrationDetails is the input to Register and RegisterEmployee.
type RegistrationDetails struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (d RegistrationDetails) normalize() RegistrationDetails {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = NormalizeEmail(d.Email)
	d.Role = strings.TrimSpace(d.Role)
	return d
}

// Validate checks every field. Role is matched ignoring case.
func (d RegistrationDetails) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Username, validation.Required),
		validation.Field(&d.Email, validation.Required, EmailRule()),
		validation.Field(&d.Password, passwordRules()...),
		validation.Field(&d.Role, validation.Required, validation.By(knownRole)),
	)
}

func knownRole(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	if _, ok := ParseRole(raw); !ok {
		return errors.New("must be one of User, Admin, Super")
	}
	return nil
}

// RegistrationResult is returned by a successful registration. The account
// exists even when DeliveryErr is set; the caller can Resend later.
type RegistrationResult struct {
	User        *User
	DeliveryErr error
}

// VerificationComposer renders the verification email for a language tag.
type VerificationComposer interface {
	VerificationMessage(language string, user *User, link string) Message
}

type defaultComposer struct{}

func (defaultComposer) VerificationMessage(language string, user *User, link string) Message {
	return Message{
		To:       user.Email,
		Subject:  "Account Verification",
		Body:     fmt.Sprintf(`<p>Hello %s,</p><p>Confirm your email address: <a href="%s">%s</a></p>`, user.Username, link, link),
		HTML:     true,
		Language: language,
	}
}

// LifecycleOption customizes a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithLifecycleLogger sets the logger.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLifecycleActivitySink sets the sink for registration and status events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *Lifecycle) {
		l.activitySink = normalizeActivitySink(sink)
	}
}

// WithLifecycleClock injects a custom clock.
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithVerificationURL sets the base URL the token is appended to.
func WithVerificationURL(base string) LifecycleOption {
	return func(l *Lifecycle) {
		if base != "" {
			l.verificationURL = base
		}
	}
}

// WithVerificationComposer replaces the email renderer.
func WithVerificationComposer(c VerificationComposer) LifecycleOption {
	return func(l *Lifecycle) {
		if c != nil {
			l.composer = c
		}
	}
}

// WithLifecycleHasher replaces the password hasher.
func WithLifecycleHasher(h Hasher) LifecycleOption {
	return func(l *Lifecycle) {
		if h != nil {
			l.hasher = h
		}
	}
}

// Lifecycle runs registration, email verification and activation.
type Lifecycle struct {
	store           Store
	tokens          *TokenService
	mailer          Mailer
	hasher          Hasher
	hierarchy       *Hierarchy
	stateMachine    *StateMachine
	composer        VerificationComposer
	activitySink    ActivitySink
	logger          Logger
	verificationURL string
	now             func() time.Time
}

// NewLifecycle wires the workflow. A nil mailer drops messages.
func NewLifecycle(store Store, tokens *TokenService, mailer Mailer, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store:           store,
		tokens:          tokens,
		mailer:          mailer,
		hasher:          NewBcryptHasher(0),
		hierarchy:       NewHierarchy(store),
		composer:        defaultComposer{},
		activitySink:    noopActivitySink{},
		logger:          defLogger{},
		verificationURL: DefaultVerificationURL,
		now:             time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.mailer == nil {
		l.mailer = MailerFunc(nil)
	}

	l.stateMachine = NewStateMachine(store,
		WithStateMachineClock(l.now),
		WithStateMachineActivitySink(l.activitySink),
		WithStateMachineLogger(l.logger),
	)

	return l
}

// StateMachine exposes the status graph used by the lifecycle.
func (l *Lifecycle) StateMachine() *StateMachine {
	return l.stateMachine
}

// Register creates a pending account and sends the verification email.
func (l *Lifecycle) Register(ctx context.Context, details RegistrationDetails) (*RegistrationResult, error) {
	return l.register(ctx, nil, details)
}

// RegisterEmployee registers an account owned by parentID. The parent must
// exist and must not itself be an employee.
func (l *Lifecycle) RegisterEmployee(ctx context.Context, parentID int64, details RegistrationDetails) (*RegistrationResult, error) {
	if err := l.hierarchy.ValidateParent(ctx, parentID); err != nil {
		return nil, err
	}
	return l.register(ctx, &parentID, details)
}

func (l *Lifecycle) register(ctx context.Context, parentID *int64, details RegistrationDetails) (*RegistrationResult, error) {
	details = details.normalize()
	if err := details.Validate(); err != nil {
		return nil, fromValidation(err)
	}

	role, _ := ParseRole(details.Role)
	if parentID != nil && role == RoleSuper {
		return nil, validationError("employees cannot hold the Super role", map[string]any{
			"role": details.Role,
		})
	}

	if err := l.ensureUnique(ctx, details.Email, details.Username); err != nil {
		return nil, err
	}

	hash, err := l.hasher.Hash(details.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := l.now()
	user := &User{
		Username:     details.Username,
		Email:        details.Email,
		PasswordHash: hash,
		Role:         role,
		ParentID:     parentID,
		Active:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := l.store.Insert(ctx, user)
	if err != nil {
		if IsDuplicateError(err) || isUniqueViolation(err) {
			return nil, withMetadata(ErrDuplicateIdentity, map[string]any{
				"email":    details.Email,
				"username": details.Username,
			})
		}
		return nil, err
	}
	if created == nil {
		created = user
	}

	event := ActivityEventUserRegistered
	meta := map[string]any{"role": string(role)}
	if parentID != nil {
		event = ActivityEventEmployeeRegistered
		meta["parent_id"] = *parentID
	}
	recordActivity(ctx, l.activitySink, l.logger, l.now, ActivityEvent{
		EventType: event,
		UserID:    created.ID,
		ToStatus:  created.Status(),
		Metadata:  meta,
	})

	l.logger.Info("account registered", "user_id", created.ID, "role", role)

	result := &RegistrationResult{User: created}
	if err := l.sendVerification(ctx, created); err != nil {
		l.logger.Error("verification delivery failed", "user_id", created.ID, "error", err)
		result.DeliveryErr = err
	}

	return result, nil
}

func (l *Lifecycle) ensureUnique(ctx context.Context, email, username string) error {
	if _, err := l.store.FindByEmail(ctx, email); err == nil {
		return withMetadata(ErrDuplicateIdentity, map[string]any{"email": email})
	} else if !IsNotFound(err) {
		return err
	}

	if _, err := l.store.FindByUsername(ctx, username); err == nil {
		return withMetadata(ErrDuplicateIdentity, map[string]any{"username": username})
	} else if !IsNotFound(err) {
		return err
	}

	return nil
}

// Verify activates the account named by a verification token. Session
// tokens are rejected. Verifying an active account again succeeds without
// changes, and a deactivated account is left deactivated.
func (l *Lifecycle) Verify(ctx context.Context, token string) (*User, error) {
	claims, err := l.tokens.ValidateContext(ctx, token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if claims.Purpose() != PurposeVerification {
		l.logger.Debug("verification rejected", "purpose", claims.Purpose(), "user_id", claims.UserID())
		return nil, ErrUnauthenticated
	}

	user, err := l.store.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}

	switch user.Status() {
	case StatusActive, StatusDeactivated:
		return user, nil
	}

	return l.stateMachine.Transition(ctx, ActorRef{ID: user.ID, Type: "self"}, user, StatusActive,
		WithTransitionReason("email verified"))
}

// Resend issues a fresh verification token for a pending account.
func (l *Lifecycle) Resend(ctx context.Context, id int64) error {
	user, err := l.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if user.Active || user.IsVerified() {
		return withMetadata(ErrAlreadyActivated, map[string]any{"user_id": id})
	}

	return l.sendVerification(ctx, user)
}

// SetActivation is the administrative toggle. Setting the current value is
// a no-op.
func (l *Lifecycle) SetActivation(ctx context.Context, actor ActorRef, id int64, active bool) (*User, error) {
	user, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Active == active {
		return user, nil
	}

	target := StatusDeactivated
	if active {
		target = StatusActive
	}

	return l.stateMachine.Transition(ctx, actor, user, target, WithTransitionReason("administrative toggle"))
}

func (l *Lifecycle) sendVerification(ctx context.Context, user *User) error {
	token, err := l.tokens.IssueVerification(user)
	if err != nil {
		return err
	}

	link, err := l.verificationLink(token)
	if err != nil {
		return err
	}

	msg := l.composer.VerificationMessage(LanguageFromContext(ctx), user, link)
	if msg.To == "" {
		msg.To = user.Email
	}

	if err := l.mailer.Send(ctx, msg); err != nil {
		return err
	}

	recordActivity(ctx, l.activitySink, l.logger, l.now, ActivityEvent{
		EventType: ActivityEventVerificationSent,
		UserID:    user.ID,
	})
	return nil
}

func (l *Lifecycle) verificationLink(token string) (string, error) {
	u, err := url.Parse(l.verificationURL)
	if err != nil {
		return "", withMetadata(ErrConfiguration, map[string]any{
			"verification_url": l.verificationURL,
		})
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
