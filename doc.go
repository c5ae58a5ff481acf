// Package accounts is an identity and access core for a multi-tenant user
// directory: password hashing, HS256 session tokens, role and ownership
// based authorization, and the email verification workflow.
//
// Accounts:
//   - A User is either a top-level account or an employee owned by a
//     company account through ParentID. Hierarchies are two levels deep and
//     Hierarchy.ValidateParent rejects anything deeper.
//   - Status is derived from Active and VerifiedAt: pending_verification,
//     active or deactivated. StateMachine owns the transitions and persists
//     them through the Store.
//
// Tokens:
//   - TokenService signs JWTClaims with HS256 and checks issuer, audience
//     and expiry. Session and verification tokens share the format and
//     differ only in the purpose claim. An optional Denylist makes Logout
//     effective before expiry.
//
// Authorization:
//   - Policy maps each Action to a Rule: the roles allowed and a Scope
//     (any, self, subordinate). Role names are matched exactly.
//
// AuthService composes the pieces and is what an HTTP layer would call.
// Directory adds the guarded user management operations. ActivitySink
// receives best-effort audit events for registration, login and status
// changes.
package accounts
