package accounts

import "context"

// Action names an operation guarded by the policy.
type Action string

const (
	ActionListUsers        Action = "users.list"
	ActionViewUser         Action = "users.view"
	ActionUpdateUser       Action = "users.update"
	ActionDeleteUser       Action = "users.delete"
	ActionSetActivation    Action = "users.activation"
	ActionUpdateSelf       Action = "self.update"
	ActionDeleteSelf       Action = "self.delete"
	ActionListEmployees    Action = "company.employees.list"
	ActionListAnyEmployees Action = "company.employees.list_any"
	ActionRegisterEmployee Action = "company.employees.register"
	ActionManageEmployee   Action = "company.employees.manage"
	ActionViewOwnCompany   Action = "company.view"
)

// Scope is the ownership gate applied after the role gate.
type Scope int

const (
	// ScopeAny applies no ownership check
	ScopeAny Scope = iota
	// ScopeSelf requires the target to be the caller
	ScopeSelf
	// ScopeSubordinate requires the target to be a child of the caller
	ScopeSubordinate
	// ScopeSelfOrSubordinate accepts either
	ScopeSelfOrSubordinate
)

// Rule is the permission for one action.
type Rule struct {
	Roles []Role
	Scope Scope
}

func (r Rule) allows(role string) bool {
	for _, allowed := range r.Roles {
		if string(allowed) == role {
			return true
		}
	}
	return false
}

// DefaultRules is the action table used when none is supplied.
func DefaultRules() map[Action]Rule {
	all := AllRoles()
	return map[Action]Rule{
		ActionListUsers:        {Roles: []Role{RoleAdmin, RoleSuper}, Scope: ScopeAny},
		ActionViewUser:         {Roles: all, Scope: ScopeAny},
		ActionUpdateUser:       {Roles: []Role{RoleSuper}, Scope: ScopeAny},
		ActionDeleteUser:       {Roles: []Role{RoleSuper}, Scope: ScopeAny},
		ActionSetActivation:    {Roles: []Role{RoleSuper}, Scope: ScopeAny},
		ActionUpdateSelf:       {Roles: all, Scope: ScopeSelf},
		ActionDeleteSelf:       {Roles: all, Scope: ScopeSelf},
		ActionListEmployees:    {Roles: []Role{RoleAdmin}, Scope: ScopeSelf},
		ActionListAnyEmployees: {Roles: []Role{RoleSuper}, Scope: ScopeAny},
		ActionRegisterEmployee: {Roles: []Role{RoleAdmin}, Scope: ScopeSelf},
		ActionManageEmployee:   {Roles: []Role{RoleAdmin}, Scope: ScopeSubordinate},
		ActionViewOwnCompany:   {Roles: []Role{RoleUser}, Scope: ScopeSelf},
	}
}

// PolicyOption customizes a Policy.
type PolicyOption func(*Policy)

// WithPolicyRules replaces the action table.
func WithPolicyRules(rules map[Action]Rule) PolicyOption {
	return func(p *Policy) {
		if rules != nil {
			p.rules = rules
		}
	}
}

// WithPolicyLogger sets the logger.
func WithPolicyLogger(logger Logger) PolicyOption {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Policy decides whether verified claims may perform an action on a
// target identity. Decisions are pure apart from the ownership lookup.
type Policy struct {
	rules     map[Action]Rule
	hierarchy *Hierarchy
	logger    Logger
}

// NewPolicy returns a Policy using hierarchy for subordinate checks.
func NewPolicy(hierarchy *Hierarchy, opts ...PolicyOption) *Policy {
	p := &Policy{
		rules:     DefaultRules(),
		hierarchy: hierarchy,
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CanAct reports whether claims authorize action on targetID. Unknown
// actions and unknown roles never authorize. Role names are compared
// case-sensitively.
func (p *Policy) CanAct(ctx context.Context, claims AuthClaims, action Action, targetID int64) bool {
	if claims == nil {
		return false
	}

	rule, ok := p.rules[action]
	if !ok {
		return false
	}

	if !rule.allows(claims.Role()) {
		return false
	}

	caller := claims.UserID()
	switch rule.Scope {
	case ScopeAny:
		return true
	case ScopeSelf:
		return caller == targetID
	case ScopeSubordinate:
		return p.isSubordinate(ctx, caller, targetID)
	case ScopeSelfOrSubordinate:
		return caller == targetID || p.isSubordinate(ctx, caller, targetID)
	default:
		return false
	}
}

// Authorize is CanAct returning ErrForbidden on denial.
func (p *Policy) Authorize(ctx context.Context, claims AuthClaims, action Action, targetID int64) error {
	if p.CanAct(ctx, claims, action, targetID) {
		return nil
	}
	return forbidden(action, targetID)
}

func (p *Policy) isSubordinate(ctx context.Context, owner, target int64) bool {
	if p.hierarchy == nil {
		return false
	}
	ok, err := p.hierarchy.IsSubordinate(ctx, owner, target)
	if err != nil {
		p.logger.Error("policy ownership lookup failed", "owner", owner, "target", target, "error", err)
		return false
	}
	return ok
}
