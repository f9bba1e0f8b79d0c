package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NewUser carries the fields needed to register a user. PasswordHash is an
// opaque credential produced by the caller; this package never sees
// plaintext passwords.
type NewUser struct {
	UserName     string
	Email        string
	PasswordHash string
	Active       bool
	// RoleIDs are resolved and added to the user's role set before the user
	// is persisted for the first time. Unknown ids are silently dropped.
	RoleIDs []int64
}

// UserUpdate describes a partial user update. Nil fields are left unchanged.
type UserUpdate struct {
	UserName *string
	Email    *string
	Active   *bool
}

// RoleUpdate describes a partial role update. Nil fields are left unchanged.
type RoleUpdate struct {
	Name        *string
	Description *string
	Active      *bool
}

// ResourceUpdate describes a partial resource update.
type ResourceUpdate struct {
	Name        *string
	Description *string
}

// Service mutates the user/role/resource graph while preserving its
// invariants. Cheap validation runs before any repository call; graph
// replacements are staged fully in memory and handed to the repository as a
// single Update so partial states are never durably visible.
type Service struct {
	users     UserRepository
	roles     RoleRepository
	resources ResourceRepository
}

// NewService constructs the assignment service.
func NewService(users UserRepository, roles RoleRepository, resources ResourceRepository) (*Service, error) {
	if users == nil || roles == nil || resources == nil {
		return nil, errors.New("user, role and resource repositories are required")
	}
	return &Service{users: users, roles: roles, resources: resources}, nil
}

// NewServiceFromStore is a convenience wrapper over NewService.
func NewServiceFromStore(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	return NewService(store.Users(), store.Roles(), store.Resources())
}

// --- Users ---

// CreateUser registers a new user, resolving and attaching any requested
// roles before the first persist.
func (s *Service) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	userName := strings.TrimSpace(nu.UserName)
	if userName == "" {
		return nil, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(nu.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(nu.PasswordHash) == "" {
		return nil, fmt.Errorf("%w: password credential is required", ErrInvalidInput)
	}

	user := &User{
		UserName:           userName,
		NormalizedUserName: NormalizeName(userName),
		Email:              email,
		NormalizedEmail:    NormalizeName(email),
		PasswordHash:       nu.PasswordHash,
		Active:             nu.Active,
	}

	if ids := dedupeIDs(nu.RoleIDs); len(ids) > 0 {
		roles, err := s.roles.GetAllByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		user.AddRoles(roles)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser fetches a user aggregate by id.
func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

// GetUserByName fetches a user aggregate by name, case-insensitively.
func (s *Service) GetUserByName(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	return s.users.GetByName(ctx, name)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.users.GetAll(ctx)
}

// UpdateUser applies a partial update to the user's own fields. Role
// assignments are managed by AssignRolesToUser and RevokeRole.
func (s *Service) UpdateUser(ctx context.Context, userID int64, upd UserUpdate) (*User, error) {
	if upd.UserName != nil {
		trimmed := strings.TrimSpace(*upd.UserName)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: user name is required", ErrInvalidInput)
		}
		upd.UserName = &trimmed
	}
	if upd.Email != nil {
		trimmed := strings.TrimSpace(strings.ToLower(*upd.Email))
		if trimmed == "" || !strings.Contains(trimmed, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &trimmed
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.UserName != nil {
		user.UserName = *upd.UserName
		user.NormalizedUserName = NormalizeName(*upd.UserName)
	}
	if upd.Email != nil {
		user.Email = *upd.Email
		user.NormalizedEmail = NormalizeName(*upd.Email)
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the user's opaque password credential.
func (s *Service) ChangePassword(ctx context.Context, userID int64, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return fmt.Errorf("%w: password credential is required", ErrInvalidInput)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.PasswordHash = passwordHash
	return s.users.Update(ctx, user)
}

// DeleteUser removes the user. The store cascades removal of the user's role
// associations and owned claims; roles themselves survive.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	return s.users.DeleteByID(ctx, userID)
}

// --- Roles ---

// CreateRole registers a new role. Roles created through this path are never
// system roles; the built-in Administrator role is seeded by EnsureBuiltins.
func (s *Service) CreateRole(ctx context.Context, name, description string, active bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		Name:           name,
		NormalizedName: NormalizeName(name),
		Description:    strings.TrimSpace(description),
		Active:         active,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole fetches a role aggregate by id.
func (s *Service) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	return s.roles.GetByID(ctx, roleID)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.roles.GetAll(ctx)
}

// UpdateRole applies a partial update to the role's own fields. The resource
// set is managed by AssignResourcesToRole.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, upd RoleUpdate) (*Role, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		role.Name = *upd.Name
		role.NormalizedName = NormalizeName(*upd.Name)
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Active != nil {
		role.Active = *upd.Active
	}
	if err := s.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role. System roles are rejected before any write.
// Removal cascades to user associations and the role's claims; the resources
// it referenced are independently owned and survive.
func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}
	return s.roles.DeleteByID(ctx, roleID)
}

// --- Resources ---

// CreateResource adds a resource to the catalog.
func (s *Service) CreateResource(ctx context.Context, name, description string) (*Resource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: resource name is required", ErrInvalidInput)
	}
	res := &Resource{Name: name, Description: strings.TrimSpace(description)}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetResource fetches a resource by id.
func (s *Service) GetResource(ctx context.Context, resourceID int64) (*Resource, error) {
	return s.resources.GetByID(ctx, resourceID)
}

// ListResources returns the resource catalog.
func (s *Service) ListResources(ctx context.Context) ([]*Resource, error) {
	return s.resources.GetAll(ctx)
}

// UpdateResource applies a partial update to a resource.
func (s *Service) UpdateResource(ctx context.Context, resourceID int64, upd ResourceUpdate) (*Resource, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: resource name is required", ErrInvalidInput)
		}
		upd.Name = &trimmed
	}
	res, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		res.Name = *upd.Name
	}
	if upd.Description != nil {
		res.Description = strings.TrimSpace(*upd.Description)
	}
	if err := s.resources.Update(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteResource removes a resource from the catalog and, through the store,
// from every role that granted it.
func (s *Service) DeleteResource(ctx context.Context, resourceID int64) error {
	return s.resources.DeleteByID(ctx, resourceID)
}

// --- Graph assignment ---

// AssignResourcesToRole replaces the role's resource set with the resources
// matching resourceIDs. Unknown ids are silently dropped. The replacement is
// declarative: the previous set is discarded, not merged. An empty id list
// is invalid input; "remove everything" is not expressible through this
// operation.
func (s *Service) AssignResourcesToRole(ctx context.Context, roleID int64, resourceIDs []int64) error {
	ids := dedupeIDs(resourceIDs)
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one resource id is required", ErrInvalidInput)
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	resources, err := s.resources.GetAllByIDs(ctx, ids)
	if err != nil {
		return err
	}

	role.DeleteAllResources()
	role.AddResources(resources)
	return s.roles.Update(ctx, role)
}

// AssignRolesToUser replaces the user's role set with the roles matching
// roleIDs, with the same full-replacement semantics as
// AssignResourcesToRole.
func (s *Service) AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) error {
	ids := dedupeIDs(roleIDs)
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one role id is required", ErrInvalidInput)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	roles, err := s.roles.GetAllByIDs(ctx, ids)
	if err != nil {
		return err
	}

	user.DeleteAllRoles()
	user.AddRoles(roles)
	return s.users.Update(ctx, user)
}

// RevokeRole removes the named role from the user's set. A role the user
// does not hold is reported as nothing-to-revoke (false, nil), not an error.
func (s *Service) RevokeRole(ctx context.Context, userID int64, roleName string) (bool, error) {
	if strings.TrimSpace(roleName) == "" {
		return false, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !user.RevokeRole(NormalizeName(roleName)) {
		return false, nil
	}
	if err := s.users.Update(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// --- Claims ---

// ReplaceRoleClaim sets the (type, value) claim on a role, replacing any
// claim with the same pair so duplicates can not accumulate.
func (s *Service) ReplaceRoleClaim(ctx context.Context, roleID int64, claim Claim) error {
	if strings.TrimSpace(claim.Type) == "" || strings.TrimSpace(claim.Value) == "" {
		return fmt.Errorf("%w: claim type and value are required", ErrInvalidInput)
	}
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	role.ReplaceClaim(claim.Type, claim.Value, &RoleClaim{Claim: claim})
	return s.roles.Update(ctx, role)
}

// DeleteRoleClaim removes the (type, value) claim from a role. Reports
// whether a claim was removed.
func (s *Service) DeleteRoleClaim(ctx context.Context, roleID int64, claimType, claimValue string) (bool, error) {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return false, err
	}
	claim := role.GetClaim(claimType, claimValue)
	if claim == nil {
		return false, nil
	}
	role.DeleteClaim(claim)
	if err := s.roles.Update(ctx, role); err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceUserClaim sets the (type, value) claim on a user.
func (s *Service) ReplaceUserClaim(ctx context.Context, userID int64, claim Claim) error {
	if strings.TrimSpace(claim.Type) == "" || strings.TrimSpace(claim.Value) == "" {
		return fmt.Errorf("%w: claim type and value are required", ErrInvalidInput)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.ReplaceClaim(claim.Type, claim.Value, &UserClaim{Claim: claim})
	return s.users.Update(ctx, user)
}

// DeleteUserClaim removes the (type, value) claim from a user.
func (s *Service) DeleteUserClaim(ctx context.Context, userID int64, claimType, claimValue string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	claim := user.GetClaim(claimType, claimValue)
	if claim == nil {
		return false, nil
	}
	user.DeleteClaim(claim)
	if err := s.users.Update(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// --- Builtins ---

// EnsureBuiltins seeds the resource catalog and the Administrator system
// role, granting it every builtin resource. Safe to call on every startup.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	existing, err := s.resources.GetAll(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]*Resource, len(existing))
	for _, res := range existing {
		byName[strings.ToUpper(res.Name)] = res
	}

	all := make([]*Resource, 0, len(BuiltinResources))
	for _, builtin := range BuiltinResources {
		if res, ok := byName[strings.ToUpper(builtin.Name)]; ok {
			all = append(all, res)
			continue
		}
		res := &Resource{Name: builtin.Name, Description: builtin.Description}
		if err := s.resources.Create(ctx, res); err != nil {
			return fmt.Errorf("seed resource %s: %w", builtin.Name, err)
		}
		all = append(all, res)
	}

	roles, err := s.roles.GetAll(ctx)
	if err != nil {
		return err
	}
	var admin *Role
	for _, role := range roles {
		if role.NormalizedName == NormalizeName(RoleAdministrator) {
			admin = role
			break
		}
	}
	if admin == nil {
		admin = &Role{
			Name:           RoleAdministrator,
			NormalizedName: NormalizeName(RoleAdministrator),
			Description:    "Built-in administrator role",
			IsSystemRole:   true,
			Active:         true,
		}
		if err := s.roles.Create(ctx, admin); err != nil {
			return fmt.Errorf("seed role %s: %w", RoleAdministrator, err)
		}
	}

	changed := false
	for _, res := range all {
		if admin.AddResource(res) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.roles.Update(ctx, admin)
}

func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
