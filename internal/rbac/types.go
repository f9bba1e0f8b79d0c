package rbac

import (
	"strings"
	"time"
)

// RoleAdministrator is the name of the built-in role for administrator users.
const RoleAdministrator = "Administrator"

// NormalizeName returns the canonical upper-cased form of a user or role name,
// used for case-insensitive uniqueness and lookup.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Claim is a typed key-value fact attached to a user or role.
type Claim struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Issuer    string `json:"issuer,omitempty"`
	ValueType string `json:"value_type,omitempty"`
}

// RoleClaim is a claim owned by a role. The Role back-pointer is maintained by
// Role.AddClaim and Role.DeleteClaim; it is never set directly.
type RoleClaim struct {
	Claim
	Role *Role `json:"-"`
}

// UserClaim is a claim owned by a user. The User back-pointer is maintained by
// User.AddClaim and User.DeleteClaim; it is never set directly.
type UserClaim struct {
	Claim
	User *User `json:"-"`
}

// Resource is a named, protectable operation. An authorization check tests a
// principal's roles against a resource name.
type Resource struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Roles holds the back-reference set of roles granting this resource.
	// Populated by the store on read paths that need it; not serialized to
	// avoid cycles.
	Roles []*Role `json:"-"`
}

// Role groups resources. Permissions are granted to roles, roles to users.
type Role struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"-"`
	Description    string    `json:"description,omitempty"`
	IsSystemRole   bool      `json:"is_system_role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Resources []*Resource  `json:"resources,omitempty"`
	Claims    []*RoleClaim `json:"-"`
	Users     []*User      `json:"-"`
}

// User is an authenticated account. Password credentials are opaque to this
// package; hashing happens at the boundary that receives the plaintext.
type User struct {
	ID                 int64     `json:"id"`
	UserName           string    `json:"user_name"`
	NormalizedUserName string    `json:"-"`
	Email              string    `json:"email"`
	NormalizedEmail    string    `json:"-"`
	Active             bool      `json:"active"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Roles  []*Role      `json:"roles,omitempty"`
	Claims []*UserClaim `json:"-"`
}

// --- Role: resources ---

// HasResourceAssigned reports whether the role grants the named resource.
// The match is case-insensitive.
func (r *Role) HasResourceAssigned(resourceName string) bool {
	if strings.TrimSpace(resourceName) == "" {
		return false
	}
	for _, res := range r.Resources {
		if strings.EqualFold(res.Name, resourceName) {
			return true
		}
	}
	return false
}

// AddResource adds a resource to the role's set. Adding a resource the role
// already has (by name, case-insensitive) reports no change.
func (r *Role) AddResource(res *Resource) bool {
	if res == nil || r.HasResourceAssigned(res.Name) {
		return false
	}
	r.Resources = append(r.Resources, res)
	return true
}

// AddResources adds every resource in the collection, skipping duplicates.
func (r *Role) AddResources(resources []*Resource) {
	for _, res := range resources {
		r.AddResource(res)
	}
}

// DeleteResource removes a resource from the role's set.
func (r *Role) DeleteResource(res *Resource) bool {
	if res == nil {
		return false
	}
	for i, existing := range r.Resources {
		if existing == res || strings.EqualFold(existing.Name, res.Name) {
			r.Resources = append(r.Resources[:i], r.Resources[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteAllResources clears the role's resource set.
func (r *Role) DeleteAllResources() {
	r.Resources = nil
}

// --- Role: claims ---

// GetClaim finds a role claim matching claim type and value, both compared
// case-insensitively. Returns nil when either argument is blank or no claim
// matches.
func (r *Role) GetClaim(claimType, claimValue string) *RoleClaim {
	if strings.TrimSpace(claimType) == "" || strings.TrimSpace(claimValue) == "" {
		return nil
	}
	for _, c := range r.Claims {
		if strings.EqualFold(c.Type, claimType) && strings.EqualFold(c.Value, claimValue) {
			return c
		}
	}
	return nil
}

// AddClaim attaches a claim to the role and sets the claim's back-pointer.
// A duplicate (type, value) pair reports no change.
func (r *Role) AddClaim(claim *RoleClaim) bool {
	if claim == nil || r.GetClaim(claim.Type, claim.Value) != nil {
		return false
	}
	claim.Role = r
	r.Claims = append(r.Claims, claim)
	return true
}

// DeleteClaim detaches a claim from the role and clears its back-pointer.
func (r *Role) DeleteClaim(claim *RoleClaim) bool {
	if claim == nil {
		return false
	}
	for i, existing := range r.Claims {
		if existing == claim {
			existing.Role = nil
			r.Claims = append(r.Claims[:i], r.Claims[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceClaim deletes any claim matching (claimType, claimValue) and adds
// the new claim, so at most one claim with a given pair exists per owner.
func (r *Role) ReplaceClaim(claimType, claimValue string, newClaim *RoleClaim) {
	if existing := r.GetClaim(claimType, claimValue); existing != nil {
		r.DeleteClaim(existing)
	}
	r.AddClaim(newClaim)
}

// --- User: roles ---

// HasRoleAssigned reports whether the user holds the named role. The match is
// case-insensitive; when checkActive is true an inactive role does not count.
func (u *User) HasRoleAssigned(roleName string, checkActive bool) bool {
	if strings.TrimSpace(roleName) == "" {
		return false
	}
	for _, role := range u.Roles {
		if !strings.EqualFold(role.Name, roleName) {
			continue
		}
		if checkActive && !role.Active {
			continue
		}
		return true
	}
	return false
}

// GetRole finds an assigned role by normalized name. Returns nil on blank
// input, on a miss, or when checkActive filters out an inactive role.
func (u *User) GetRole(normalizedRoleName string, checkActive bool) *Role {
	if strings.TrimSpace(normalizedRoleName) == "" {
		return nil
	}
	for _, role := range u.Roles {
		if !strings.EqualFold(role.NormalizedName, normalizedRoleName) {
			continue
		}
		if checkActive && !role.Active {
			continue
		}
		return role
	}
	return nil
}

// AddRole assigns a role to the user. A role the user already holds (by name)
// reports no change.
func (u *User) AddRole(role *Role) bool {
	if role == nil || u.HasRoleAssigned(role.Name, false) {
		return false
	}
	u.Roles = append(u.Roles, role)
	return true
}

// AddRoles assigns every role in the collection, skipping duplicates.
func (u *User) AddRoles(roles []*Role) {
	for _, role := range roles {
		u.AddRole(role)
	}
}

// DeleteRole removes a role from the user's set.
func (u *User) DeleteRole(role *Role) bool {
	if role == nil {
		return false
	}
	for i, existing := range u.Roles {
		if existing == role || strings.EqualFold(existing.Name, role.Name) {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteAllRoles clears the user's role set.
func (u *User) DeleteAllRoles() {
	u.Roles = nil
}

// RevokeRole removes the role with the given normalized name from the user's
// set. An inactive role can still be revoked. Reports whether anything was
// removed.
func (u *User) RevokeRole(normalizedRoleName string) bool {
	role := u.GetRole(normalizedRoleName, false)
	if role == nil {
		return false
	}
	return u.DeleteRole(role)
}

// --- User: claims ---

// GetClaim finds a user claim matching claim type and value, both compared
// case-insensitively.
func (u *User) GetClaim(claimType, claimValue string) *UserClaim {
	if strings.TrimSpace(claimType) == "" || strings.TrimSpace(claimValue) == "" {
		return nil
	}
	for _, c := range u.Claims {
		if strings.EqualFold(c.Type, claimType) && strings.EqualFold(c.Value, claimValue) {
			return c
		}
	}
	return nil
}

// AddClaim attaches a claim to the user and sets the claim's back-pointer.
// A duplicate (type, value) pair reports no change.
func (u *User) AddClaim(claim *UserClaim) bool {
	if claim == nil || u.GetClaim(claim.Type, claim.Value) != nil {
		return false
	}
	claim.User = u
	u.Claims = append(u.Claims, claim)
	return true
}

// DeleteClaim detaches a claim from the user and clears its back-pointer.
func (u *User) DeleteClaim(claim *UserClaim) bool {
	if claim == nil {
		return false
	}
	for i, existing := range u.Claims {
		if existing == claim {
			existing.User = nil
			u.Claims = append(u.Claims[:i], u.Claims[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceClaim deletes any claim matching (claimType, claimValue) and adds
// the new claim.
func (u *User) ReplaceClaim(claimType, claimValue string, newClaim *UserClaim) {
	if existing := u.GetClaim(claimType, claimValue); existing != nil {
		u.DeleteClaim(existing)
	}
	u.AddClaim(newClaim)
}
