package accounts

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MinSigningKeyLength is the shortest HS256 key we accept, in bytes.
const MinSigningKeyLength = 32

// TokenService mints and checks HS256 credentials. It is safe for
// concurrent use once constructed.
type TokenService struct {
	signingKey             []byte
	issuer                 string
	audience               string
	expiration             time.Duration
	verificationExpiration time.Duration
	now                    func() time.Time
	denylist               Denylist
	logger                 Logger
}

// TokenOption customizes TokenService construction.
type TokenOption func(*TokenService)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenDenylist enables revocation checks.
func WithTokenDenylist(d Denylist) TokenOption {
	return func(ts *TokenService) {
		ts.denylist = d
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService validates cfg and returns a ready service. Missing or
// weak settings are reported as ErrConfiguration.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	problems := map[string]any{}
	if len(cfg.SigningKey) == 0 {
		problems["signing_key"] = "is required"
	} else if len(cfg.SigningKey) < MinSigningKeyLength {
		problems["signing_key"] = "must be at least 32 bytes"
	}
	if cfg.Issuer == "" {
		problems["issuer"] = "is required"
	}
	if cfg.Audience == "" {
		problems["audience"] = "is required"
	}
	if cfg.Expiration <= 0 {
		problems["expiration"] = "must be positive"
	}
	if cfg.VerificationExpiration < 0 {
		problems["verification_expiration"] = "must be positive"
	}
	if len(problems) > 0 {
		return nil, withMetadata(ErrConfiguration, problems)
	}

	verification := cfg.VerificationExpiration
	if verification == 0 {
		verification = cfg.Expiration
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	ts := &TokenService{
		signingKey:             key,
		issuer:                 cfg.Issuer,
		audience:               cfg.Audience,
		expiration:             cfg.Expiration,
		verificationExpiration: verification,
		now:                    time.Now,
		logger:                 defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// Issue mints a session credential for identity.
func (ts *TokenService) Issue(identity TokenIdentity) (string, error) {
	return ts.issue(identity, PurposeSession, ts.expiration)
}

// IssueVerification mints the credential embedded in verification links.
func (ts *TokenService) IssueVerification(identity TokenIdentity) (string, error) {
	return ts.issue(identity, PurposeVerification, ts.verificationExpiration)
}

func (ts *TokenService) issue(identity TokenIdentity, purpose string, ttl time.Duration) (string, error) {
	if identity == nil {
		return "", goerrors.New("identity must not be nil", goerrors.CategoryInternal)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.GetUsername(),
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:        identity.GetID(),
		UserRole:   identity.GetRole(),
		TokenUsage: purpose,
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims with the configured key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Verify reports whether token is authentic, unexpired and addressed to us.
func (ts *TokenService) Verify(token string) bool {
	_, err := ts.ValidateContext(context.Background(), token)
	return err == nil
}

// Validate is Verify returning the claims, or ErrUnauthenticated.
func (ts *TokenService) Validate(token string) (AuthClaims, error) {
	claims, err := ts.ValidateContext(context.Background(), token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateContext is Validate with a context for the denylist lookup.
func (ts *TokenService) ValidateContext(ctx context.Context, token string) (*JWTClaims, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims := &JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return ts.signingKey, nil
	}, ts.parserOptions()...)
	if err != nil || !parsed.Valid {
		ts.logger.Debug("token rejected", "error", err)
		return nil, ErrUnauthenticated
	}

	if ts.denylist != nil && claims.TokenID() != "" {
		revoked, err := ts.denylist.Contains(ctx, claims.TokenID())
		if err != nil {
			ts.logger.Error("token denylist lookup failed", "error", err)
			return nil, ErrUnauthenticated
		}
		if revoked {
			return nil, ErrUnauthenticated
		}
	}

	return claims, nil
}

// Claims decodes the token payload without checking the signature or
// expiry. The result is not proof of anything.
func (ts *TokenService) Claims(token string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, goerrors.Wrap(err, ErrMalformedToken.Category, ErrMalformedToken.Message).
			WithTextCode(ErrMalformedToken.TextCode).
			WithCode(goerrors.CodeBadRequest)
	}
	return claims, nil
}

// Revoke denylists a verified token until it expires.
func (ts *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := ts.ValidateContext(ctx, token)
	if err != nil {
		return err
	}
	if ts.denylist == nil {
		ts.logger.Warn("token revoke requested without a denylist", "jti", claims.TokenID())
		return nil
	}
	return ts.denylist.Add(ctx, claims.TokenID(), claims.Expires())
}

func (ts *TokenService) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
}
