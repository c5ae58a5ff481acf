package accounts

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// UpdateDetails is a partial update. Empty fields are left unchanged.
type UpdateDetails struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate checks the fields that are present.
func (d UpdateDetails) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Email, EmailRule()),
		validation.Field(&d.Password, validation.By(func(value interface{}) error {
			pw, _ := value.(string)
			if pw == "" {
				return nil
			}
			return validation.Validate(pw, passwordRules()...)
		})),
		validation.Field(&d.Role, validation.By(knownRole)),
	)
}

// Directory is the policy-guarded user management surface. Every call
// takes verified claims and is authorized before touching the store.
type Directory struct {
	svc *AuthService
}

func newDirectory(svc *AuthService) *Directory {
	return &Directory{svc: svc}
}

// List returns every account.
func (d *Directory) List(ctx context.Context, claims AuthClaims) ([]*User, error) {
	if err := d.svc.policy.Authorize(ctx, claims, ActionListUsers, 0); err != nil {
		return nil, err
	}
	return d.svc.store.List(ctx)
}

// Get returns one account.
func (d *Directory) Get(ctx context.Context, claims AuthClaims, id int64) (*User, error) {
	if err := d.svc.policy.Authorize(ctx, claims, ActionViewUser, id); err != nil {
		return nil, err
	}
	return d.svc.store.FindByID(ctx, id)
}

// Update changes another account. Allowed for Super, and for a company
// admin on its own employees.
func (d *Directory) Update(ctx context.Context, claims AuthClaims, id int64, changes UpdateDetails) (*User, error) {
	if !d.canAny(ctx, claims, id, ActionUpdateUser, ActionManageEmployee) {
		return nil, forbidden(ActionUpdateUser, id)
	}
	return d.update(ctx, claims, id, changes)
}

// UpdateSelf changes the caller's own account.
func (d *Directory) UpdateSelf(ctx context.Context, claims AuthClaims, changes UpdateDetails) (*User, error) {
	if claims == nil {
		return nil, ErrUnauthenticated
	}
	if err := d.svc.policy.Authorize(ctx, claims, ActionUpdateSelf, claims.UserID()); err != nil {
		return nil, err
	}
	return d.update(ctx, claims, claims.UserID(), changes)
}

// Delete removes another account.
func (d *Directory) Delete(ctx context.Context, claims AuthClaims, id int64) error {
	if !d.canAny(ctx, claims, id, ActionDeleteUser, ActionManageEmployee) {
		return forbidden(ActionDeleteUser, id)
	}
	return d.delete(ctx, claims, id)
}

// DeleteSelf removes the caller's own account.
func (d *Directory) DeleteSelf(ctx context.Context, claims AuthClaims) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	if err := d.svc.policy.Authorize(ctx, claims, ActionDeleteSelf, claims.UserID()); err != nil {
		return err
	}
	return d.delete(ctx, claims, claims.UserID())
}

// Employees lists the accounts owned by companyID. Company admins may list
// their own, Super may list any.
func (d *Directory) Employees(ctx context.Context, claims AuthClaims, companyID int64) ([]*User, error) {
	if !d.canAny(ctx, claims, companyID, ActionListEmployees, ActionListAnyEmployees) {
		return nil, forbidden(ActionListEmployees, companyID)
	}
	return d.svc.hierarchy.ChildrenOf(ctx, companyID)
}

// Company returns the company the calling employee belongs to.
func (d *Directory) Company(ctx context.Context, claims AuthClaims) (*User, error) {
	if claims == nil {
		return nil, ErrUnauthenticated
	}
	if err := d.svc.policy.Authorize(ctx, claims, ActionViewOwnCompany, claims.UserID()); err != nil {
		return nil, err
	}

	parent, err := d.svc.hierarchy.ParentOf(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, withMetadata(ErrIdentityNotFound, map[string]any{
			"reason":  "account has no company",
			"user_id": claims.UserID(),
		})
	}
	return parent, nil
}

func (d *Directory) canAny(ctx context.Context, claims AuthClaims, target int64, actions ...Action) bool {
	for _, action := range actions {
		if d.svc.policy.CanAct(ctx, claims, action, target) {
			return true
		}
	}
	return false
}

func (d *Directory) update(ctx context.Context, claims AuthClaims, id int64, changes UpdateDetails) (*User, error) {
	changes.Username = strings.TrimSpace(changes.Username)
	changes.Email = NormalizeEmail(changes.Email)
	changes.Role = strings.TrimSpace(changes.Role)

	if err := changes.Validate(); err != nil {
		return nil, fromValidation(err)
	}

	user, err := d.svc.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	dirty := false
	meta := map[string]any{}

	if changes.Email != "" && changes.Email != user.Email {
		if _, err := d.svc.store.FindByEmail(ctx, changes.Email); err == nil {
			return nil, withMetadata(ErrDuplicateIdentity, map[string]any{"email": changes.Email})
		} else if !IsNotFound(err) {
			return nil, err
		}
		user.Email = changes.Email
		meta["email"] = true
		dirty = true
	}

	if changes.Username != "" && changes.Username != user.Username {
		if _, err := d.svc.store.FindByUsername(ctx, changes.Username); err == nil {
			return nil, withMetadata(ErrDuplicateIdentity, map[string]any{"username": changes.Username})
		} else if !IsNotFound(err) {
			return nil, err
		}
		user.Username = changes.Username
		meta["username"] = true
		dirty = true
	}

	if changes.Password != "" && !d.svc.hasher.Verify(changes.Password, user.PasswordHash) {
		hash, err := d.svc.hasher.Hash(changes.Password)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		user.PasswordHash = hash
		meta["password"] = true
		dirty = true
	}

	if changes.Role != "" {
		role, _ := ParseRole(changes.Role)
		if role != user.Role {
			// only the global user manager may change roles
			if !d.svc.policy.CanAct(ctx, claims, ActionUpdateUser, id) {
				return nil, forbidden(ActionUpdateUser, id)
			}
			if user.HasParent() && role == RoleSuper {
				return nil, validationError("employees cannot hold the Super role", map[string]any{
					"role": changes.Role,
				})
			}
			user.Role = role
			meta["role"] = string(role)
			dirty = true
		}
	}

	if !dirty {
		return user, nil
	}

	user.UpdatedAt = d.svc.now()
	updated, err := d.svc.store.Update(ctx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, withMetadata(ErrDuplicateIdentity, map[string]any{"user_id": id})
		}
		return nil, err
	}
	if updated == nil {
		updated = user
	}

	recordActivity(ctx, d.svc.activitySink, d.svc.logger, d.svc.now, ActivityEvent{
		EventType: ActivityEventUserUpdated,
		Actor:     ActorFromClaims(claims),
		UserID:    id,
		Metadata:  meta,
	})

	return updated, nil
}

func (d *Directory) delete(ctx context.Context, claims AuthClaims, id int64) error {
	if _, err := d.svc.store.FindByID(ctx, id); err != nil {
		return err
	}

	children, err := d.svc.hierarchy.ChildrenOf(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return validationError("account still owns employees", map[string]any{
			"user_id":   id,
			"employees": len(children),
		})
	}

	if err := d.svc.store.Delete(ctx, id); err != nil {
		return err
	}

	recordActivity(ctx, d.svc.activitySink, d.svc.logger, d.svc.now, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     ActorFromClaims(claims),
		UserID:    id,
	})
	return nil
}

func forbidden(action Action, target int64) error {
	return withMetadata(ErrForbidden, map[string]any{
		"action": string(action),
		"target": target,
	})
}
