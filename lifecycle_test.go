package accounts_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenFromLink(t *testing.T, msg accounts.Message) string {
	t.Helper()

	start := strings.Index(msg.Body, "https://accounts.test/verify")
	require.GreaterOrEqual(t, start, 0, "no verification link in %q", msg.Body)
	rest := msg.Body[start:]
	end := strings.IndexAny(rest, `"<`)
	require.Greater(t, end, 0)

	link, err := url.Parse(strings.ReplaceAll(rest[:end], "&amp;", "&"))
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestRegisterCreatesPendingAccountAndSendsLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)
	require.NoError(t, result.DeliveryErr)

	user := result.User
	assert.NotZero(t, user.ID)
	assert.Equal(t, accounts.RoleUser, user.Role)
	assert.Equal(t, accounts.StatusPendingVerification, user.Status())
	assert.False(t, user.Active)
	assert.Nil(t, user.VerifiedAt)
	assert.NotEqual(t, strongPassword, user.PasswordHash)
	assert.True(t, fastHasher().Verify(strongPassword, user.PasswordHash))

	msg := f.mailer.Last(t)
	assert.Equal(t, "jdoe@example.com", msg.To)
	assert.Equal(t, "Account Verification", msg.Subject)
	assert.True(t, msg.HTML)

	claims, err := f.tokens.Validate(tokenFromLink(t, msg))
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, accounts.PurposeVerification, claims.Purpose())

	assert.Contains(t, f.sink.Types(), accounts.ActivityEventUserRegistered)
	assert.Contains(t, f.sink.Types(), accounts.ActivityEventVerificationSent)
}

func TestRegisterCanonicalizesRole(t *testing.T) {
	f := newFixture(t)

	details := registration("boss")
	details.Role = "admin"

	result, err := f.svc.Register(context.Background(), details)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleAdmin, result.User.Role)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*accounts.RegistrationDetails)
		field  string
	}{
		{"missing username", func(d *accounts.RegistrationDetails) { d.Username = "  " }, "username"},
		{"missing email", func(d *accounts.RegistrationDetails) { d.Email = "" }, "email"},
		{"malformed email", func(d *accounts.RegistrationDetails) { d.Email = "not-an-email" }, "email"},
		{"email without domain dot", func(d *accounts.RegistrationDetails) { d.Email = "a@b" }, "email"},
		{"weak password", func(d *accounts.RegistrationDetails) { d.Password = "password" }, "password"},
		{"empty password", func(d *accounts.RegistrationDetails) { d.Password = "" }, "password"},
		{"password over 72 bytes", func(d *accounts.RegistrationDetails) { d.Password = "Aa1!" + strings.Repeat("x", 80) }, "password"},
		{"missing role", func(d *accounts.RegistrationDetails) { d.Role = "" }, "role"},
		{"unknown role", func(d *accounts.RegistrationDetails) { d.Role = "Root" }, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			details := registration("jdoe")
			tt.mutate(&details)

			result, err := f.svc.Register(context.Background(), details)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, accounts.IsValidationError(err), "got %v", err)
			assert.Contains(t, richMetadata(t, err), tt.field)
			assert.Empty(t, f.mailer.Messages())

			all, err := f.store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)

	sameEmail := registration("other")
	sameEmail.Email = "jdoe@example.com"
	_, err = f.svc.Register(ctx, sameEmail)
	assert.True(t, accounts.IsDuplicateError(err), "got %v", err)

	sameUsername := registration("jdoe")
	sameUsername.Email = "fresh@example.com"
	_, err = f.svc.Register(ctx, sameUsername)
	assert.True(t, accounts.IsDuplicateError(err), "got %v", err)

	caseVariant := registration("shouty")
	caseVariant.Email = "JDoe@Example.COM"
	_, err = f.svc.Register(ctx, caseVariant)
	assert.True(t, accounts.IsDuplicateError(err), "got %v", err)

	all, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegisterStoresLowerCaseEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	details := registration("jdoe")
	details.Email = " JDoe@Example.com "

	result, err := f.svc.Register(ctx, details)
	require.NoError(t, err)
	assert.Equal(t, "jdoe@example.com", result.User.Email)
	assert.Equal(t, "jdoe@example.com", f.mailer.Last(t).To)

	_, err = f.svc.Login(ctx, "JDOE@EXAMPLE.COM", strongPassword)
	assert.NoError(t, err)
}

func TestRegisterKeepsAccountWhenDeliveryFails(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp unavailable")
	ctx := context.Background()

	result, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)
	require.Error(t, result.DeliveryErr)
	assert.Contains(t, result.DeliveryErr.Error(), "smtp unavailable")

	stored, err := f.store.FindByEmail(ctx, "jdoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, stored.ID)

	f.mailer.err = nil
	require.NoError(t, f.svc.Resend(ctx, stored.ID))
	assert.Len(t, f.mailer.Messages(), 1)
}

func TestRegistrationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)
	userID := result.User.ID

	// pending accounts can sign in before verifying
	session, err := f.svc.Login(ctx, "jdoe@example.com", strongPassword)
	require.NoError(t, err)
	assert.True(t, f.tokens.Verify(session))

	verified, err := f.svc.Verify(ctx, tokenFromLink(t, f.mailer.Last(t)))
	require.NoError(t, err)
	assert.Equal(t, userID, verified.ID)
	assert.Equal(t, accounts.StatusActive, verified.Status())
	require.NotNil(t, verified.VerifiedAt)
	assert.Equal(t, f.clock.Now(), verified.VerifiedAt.UTC())

	err = f.svc.Resend(ctx, userID)
	assert.True(t, accounts.IsAlreadyActivated(err), "got %v", err)

	event, ok := f.sink.Find(accounts.ActivityEventUserStatusChanged)
	require.True(t, ok)
	assert.Equal(t, accounts.StatusActive, event.ToStatus)
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)
	token := tokenFromLink(t, f.mailer.Last(t))

	first, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusActive, second.Status())
	assert.Equal(t, first.VerifiedAt.UTC(), second.VerifiedAt.UTC())
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)
	token := tokenFromLink(t, f.mailer.Last(t))

	_, err = f.svc.Verify(ctx, "garbage")
	assert.True(t, accounts.IsUnauthenticated(err))

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.Verify(ctx, token)
	assert.True(t, accounts.IsUnauthenticated(err))

	stored, err := f.store.FindByEmail(ctx, "jdoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusPendingVerification, stored.Status())
}

func TestVerifyRejectsSessionToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registration("mallory"))
	require.NoError(t, err)

	session, err := f.svc.Login(ctx, "mallory@example.com", strongPassword)
	require.NoError(t, err)

	user, err := f.svc.Verify(ctx, session)
	assert.Nil(t, user)
	assert.True(t, accounts.IsUnauthenticated(err), "got %v", err)

	stored, err := f.store.FindByEmail(ctx, "mallory@example.com")
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusPendingVerification, stored.Status())
	assert.Nil(t, stored.VerifiedAt)
}

func TestVerifyUnknownAccount(t *testing.T) {
	f := newFixture(t)

	token, err := f.tokens.IssueVerification(&accounts.User{ID: 404, Username: "ghost", Role: accounts.RoleUser})
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), token)
	assert.True(t, accounts.IsNotFound(err))
}

func TestVerifyLeavesDeactivatedAccountDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	super := f.insert(t, "super", accounts.RoleSuper, nil)
	target := f.insert(t, "target", accounts.RoleUser, nil)

	_, err := f.svc.SetActivation(ctx, f.claimsFor(t, super), target.ID, false)
	require.NoError(t, err)

	token, err := f.tokens.IssueVerification(target)
	require.NoError(t, err)

	user, err := f.svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusDeactivated, user.Status())
}

func TestResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.Resend(ctx, result.User.ID))

	msgs := f.mailer.Messages()
	require.Len(t, msgs, 2)
	assert.NotEqual(t, tokenFromLink(t, msgs[0]), tokenFromLink(t, msgs[1]))

	err = f.svc.Resend(ctx, 9999)
	assert.True(t, accounts.IsNotFound(err))
}

func TestResendDeactivatedAccountIsAlreadyActivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	super := f.insert(t, "super", accounts.RoleSuper, nil)
	target := f.insert(t, "target", accounts.RoleUser, nil)
	_, err := f.svc.SetActivation(ctx, f.claimsFor(t, super), target.ID, false)
	require.NoError(t, err)

	err = f.svc.Resend(ctx, target.ID)
	assert.True(t, accounts.IsAlreadyActivated(err))
}

func TestRegisterEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.insert(t, "company", accounts.RoleAdmin, nil)

	result, err := f.svc.RegisterEmployee(ctx, f.claimsFor(t, company), registration("worker"))
	require.NoError(t, err)
	require.NotNil(t, result.User.ParentID)
	assert.Equal(t, company.ID, *result.User.ParentID)
	assert.Equal(t, accounts.StatusPendingVerification, result.User.Status())
	assert.Len(t, f.mailer.Messages(), 1)

	event, ok := f.sink.Find(accounts.ActivityEventEmployeeRegistered)
	require.True(t, ok)
	assert.Equal(t, company.ID, event.Metadata["parent_id"])
}

func TestRegisterEmployeeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.insert(t, "company", accounts.RoleAdmin, nil)
	employee := f.insert(t, "employee", accounts.RoleUser, company)
	promotedEmployee := f.insert(t, "promoted", accounts.RoleAdmin, company)
	guest := f.insert(t, "guest", accounts.RoleUser, nil)

	_, err := f.svc.RegisterEmployee(ctx, f.claimsFor(t, guest), registration("a"))
	assert.True(t, accounts.IsForbidden(err), "users cannot register employees: %v", err)

	_, err = f.svc.RegisterEmployee(ctx, f.claimsFor(t, employee), registration("b"))
	assert.True(t, accounts.IsForbidden(err))

	_, err = f.svc.RegisterEmployee(ctx, f.claimsFor(t, promotedEmployee), registration("c"))
	assert.True(t, accounts.IsValidationError(err), "employees cannot own employees: %v", err)

	super := registration("d")
	super.Role = "Super"
	_, err = f.svc.RegisterEmployee(ctx, f.claimsFor(t, company), super)
	assert.True(t, accounts.IsValidationError(err))

	_, err = f.svc.RegisterEmployee(ctx, nil, registration("e"))
	assert.True(t, accounts.IsUnauthenticated(err))
}

func TestLifecycleRegisterEmployeeRequiresExistingParent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Lifecycle().RegisterEmployee(context.Background(), 9999, registration("orphan"))
	assert.True(t, accounts.IsValidationError(err))
}

func TestSetActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	super := f.insert(t, "super", accounts.RoleSuper, nil)
	admin := f.insert(t, "admin", accounts.RoleAdmin, nil)
	target := f.insert(t, "target", accounts.RoleUser, nil)
	claims := f.claimsFor(t, super)

	user, err := f.svc.SetActivation(ctx, claims, target.ID, false)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusDeactivated, user.Status())

	_, err = f.svc.Login(ctx, target.Email, strongPassword)
	assert.True(t, accounts.IsUnauthenticated(err))

	user, err = f.svc.SetActivation(ctx, claims, target.ID, false)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusDeactivated, user.Status())

	user, err = f.svc.SetActivation(ctx, claims, target.ID, true)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusActive, user.Status())

	_, err = f.svc.SetActivation(ctx, f.claimsFor(t, admin), target.ID, false)
	assert.True(t, accounts.IsForbidden(err))

	_, err = f.svc.SetActivation(ctx, claims, 9999, true)
	assert.True(t, accounts.IsNotFound(err))
}

func TestSetActivationOnPendingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	super := f.insert(t, "super", accounts.RoleSuper, nil)
	result, err := f.svc.Register(ctx, registration("jdoe"))
	require.NoError(t, err)

	user, err := f.svc.SetActivation(ctx, f.claimsFor(t, super), result.User.ID, false)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusPendingVerification, user.Status())

	user, err = f.svc.SetActivation(ctx, f.claimsFor(t, super), result.User.ID, true)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatusActive, user.Status())
	assert.NotNil(t, user.VerifiedAt)
}

func TestVerificationEmailIsLocalized(t *testing.T) {
	f := newFixture(t, accounts.WithComposer(mailer.MustCatalog()))

	ctx := accounts.WithLanguage(context.Background(), "es-MX")
	_, err := f.svc.Register(ctx, registration("juan"))
	require.NoError(t, err)

	msg := f.mailer.Last(t)
	assert.Equal(t, "Verificación de cuenta", msg.Subject)
	assert.Contains(t, msg.Body, "Hola juan")
	assert.True(t, strings.HasPrefix(msg.Language, "es"))
	tokenFromLink(t, msg)

	_, err = f.svc.Register(context.Background(), registration("john"))
	require.NoError(t, err)
	assert.Equal(t, "Account Verification", f.mailer.Last(t).Subject)
}
