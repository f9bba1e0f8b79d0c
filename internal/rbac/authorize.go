package rbac

import (
	"context"
	"errors"
	"strings"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Authorizer decides whether a principal's roles collectively grant a named
// resource. It is read-only and safe for concurrent use: each call resolves
// the principal once, walks the loaded user -> roles -> resources graph and
// returns.
//
// Role activity is not consulted on the allow path: an inactive
// role still grants its resources here. Deactivation takes effect through the
// assignment layer, which filters inactive roles when building role sets.
type Authorizer struct {
	users UserLookup
}

// NewAuthorizer constructs an Authorizer over the given principal lookup.
func NewAuthorizer(users UserLookup) (*Authorizer, error) {
	if users == nil {
		return nil, errors.New("user lookup is required")
	}
	return &Authorizer{users: users}, nil
}

// Authorize returns Allow iff any role assigned to the named principal has a
// resource whose name matches resourceName case-insensitively.
//
// A blank resource name, an unknown principal and a principal with no
// matching role all yield (Deny, nil). A non-nil error is returned only for
// infrastructure failures, so callers can tell an outage apart from a
// denial; the decision value accompanying an error is always Deny, never
// Allow.
func (a *Authorizer) Authorize(ctx context.Context, principalName, resourceName string) (Decision, error) {
	if strings.TrimSpace(resourceName) == "" {
		return Deny, nil
	}
	principalName = strings.TrimSpace(principalName)
	if principalName == "" {
		return Deny, nil
	}

	user, err := a.users.GetByName(ctx, principalName)
	if errors.Is(err, ErrNotFound) {
		return Deny, nil
	}
	if err != nil {
		return Deny, err
	}

	for _, role := range user.Roles {
		if role.HasResourceAssigned(resourceName) {
			return Allow, nil
		}
	}
	return Deny, nil
}
