package accounts

import "context"

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}
var languageCtxKey = &contextKey{"language"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(ctx context.Context, claims AuthClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithLanguage records the caller's preferred language tag (for example
// "en-US" or "es") so outbound messages can be localized per request.
func WithLanguage(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, languageCtxKey, tag)
}

// LanguageFromContext returns the tag set by WithLanguage, or "".
func LanguageFromContext(ctx context.Context) string {
	tag, _ := ctx.Value(languageCtxKey).(string)
	return tag
}

// Can checks the claims stored in ctx against policy.
func Can(ctx context.Context, policy *Policy, action Action, targetID int64) bool {
	claims, ok := GetClaims(ctx)
	if !ok || policy == nil {
		return false
	}
	return policy.CanAct(ctx, claims, action, targetID)
}
