package accounts

import "context"

// Hierarchy answers parent/child questions over the store. Accounts are
// at most two levels deep: a company and its employees.
type Hierarchy struct {
	store Store
}

// NewHierarchy returns a Hierarchy backed by store.
func NewHierarchy(store Store) *Hierarchy {
	return &Hierarchy{store: store}
}

// ChildrenOf lists the direct subordinates of id.
func (h *Hierarchy) ChildrenOf(ctx context.Context, id int64) ([]*User, error) {
	children, err := h.store.ListChildrenOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if children == nil {
		children = []*User{}
	}
	return children, nil
}

// ParentOf returns the parent of id, or nil when id has none.
func (h *Hierarchy) ParentOf(ctx context.Context, id int64) (*User, error) {
	user, err := h.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.ParentID == nil {
		return nil, nil
	}
	return h.store.FindByID(ctx, *user.ParentID)
}

// IsSubordinate reports whether target has owner as its parent.
func (h *Hierarchy) IsSubordinate(ctx context.Context, owner, target int64) (bool, error) {
	user, err := h.store.FindByID(ctx, target)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return user.ParentID != nil && *user.ParentID == owner, nil
}

// ValidateParent checks that parentID can own employees: it must exist
// and must not itself have a parent.
func (h *Hierarchy) ValidateParent(ctx context.Context, parentID int64) error {
	parent, err := h.store.FindByID(ctx, parentID)
	if err != nil {
		if IsNotFound(err) {
			return validationError("parent account does not exist", map[string]any{
				"parent_id": parentID,
			})
		}
		return err
	}

	if parent.HasParent() {
		return validationError("parent account already belongs to a company", map[string]any{
			"parent_id": parentID,
		})
	}
	return nil
}
