package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory is a process-local Store implementation. It keeps normalized
// records guarded by a single mutex and assembles fresh aggregate copies on
// every read, so callers can stage mutations on the returned graph without
// them becoming visible until the next Create/Update. Used by tests and as
// the fallback backend when no database is configured.
type InMemory struct {
	mu sync.RWMutex

	users     map[int64]*User
	roles     map[int64]*Role
	resources map[int64]*Resource

	userRoles     map[int64]map[int64]struct{}
	roleResources map[int64]map[int64]struct{}
	userClaims    map[int64][]Claim
	roleClaims    map[int64][]Claim

	nextUser     int64
	nextRole     int64
	nextResource int64
	nextClaim    int64

	now func() time.Time
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:         make(map[int64]*User),
		roles:         make(map[int64]*Role),
		resources:     make(map[int64]*Resource),
		userRoles:     make(map[int64]map[int64]struct{}),
		roleResources: make(map[int64]map[int64]struct{}),
		userClaims:    make(map[int64][]Claim),
		roleClaims:    make(map[int64][]Claim),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the user repository view of the store.
func (m *InMemory) Users() UserRepository { return (*memUsers)(m) }

// Roles returns the role repository view of the store.
func (m *InMemory) Roles() RoleRepository { return (*memRoles)(m) }

// Resources returns the resource repository view of the store.
func (m *InMemory) Resources() ResourceRepository { return (*memResources)(m) }

type memUsers InMemory
type memRoles InMemory
type memResources InMemory

// --- users ---

func (r *memUsers) Create(ctx context.Context, user *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.NormalizedUserName == user.NormalizedUserName {
			return fmt.Errorf("%w: user name %s already taken", ErrConflict, user.UserName)
		}
		if existing.NormalizedEmail == user.NormalizedEmail {
			return fmt.Errorf("%w: email %s already taken", ErrConflict, user.Email)
		}
	}
	for _, role := range user.Roles {
		if _, ok := m.roles[role.ID]; !ok {
			return fmt.Errorf("%w: role %d", ErrNotFound, role.ID)
		}
	}

	m.nextUser++
	user.ID = m.nextUser
	user.CreatedAt = m.now()
	user.UpdatedAt = user.CreatedAt

	m.users[user.ID] = cloneUserBase(user)
	m.userRoles[user.ID] = idSet(len(user.Roles))
	for _, role := range user.Roles {
		m.userRoles[user.ID][role.ID] = struct{}{}
	}
	m.userClaims[user.ID] = m.snapshotClaims(userClaimBases(user.Claims))
	return nil
}

func (r *memUsers) Update(ctx context.Context, user *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, user.ID)
	}
	for id, existing := range m.users {
		if id == user.ID {
			continue
		}
		if existing.NormalizedUserName == user.NormalizedUserName {
			return fmt.Errorf("%w: user name %s already taken", ErrConflict, user.UserName)
		}
		if existing.NormalizedEmail == user.NormalizedEmail {
			return fmt.Errorf("%w: email %s already taken", ErrConflict, user.Email)
		}
	}
	for _, role := range user.Roles {
		if _, ok := m.roles[role.ID]; !ok {
			return fmt.Errorf("%w: role %d", ErrNotFound, role.ID)
		}
	}

	user.UpdatedAt = m.now()
	m.users[user.ID] = cloneUserBase(user)
	m.userRoles[user.ID] = idSet(len(user.Roles))
	for _, role := range user.Roles {
		m.userRoles[user.ID][role.ID] = struct{}{}
	}
	m.userClaims[user.ID] = m.snapshotClaims(userClaimBases(user.Claims))
	return nil
}

func (r *memUsers) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrInvalidInput)
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	delete(m.users, id)
	delete(m.userRoles, id)
	delete(m.userClaims, id)
	return nil
}

func (r *memUsers) GetByID(ctx context.Context, id int64) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assembleUser(id)
}

func (r *memUsers) GetByName(ctx context.Context, name string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := NormalizeName(name)
	for id, user := range m.users {
		if user.NormalizedUserName == normalized {
			return m.assembleUser(id)
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, name)
}

func (r *memUsers) GetAllByIDs(ctx context.Context, ids []int64) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(ids))
	for _, id := range ids {
		user, err := m.assembleUser(id)
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *memUsers) GetAll(ctx context.Context) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for id := range m.users {
		user, err := m.assembleUser(id)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	sortByID(users, func(u *User) int64 { return u.ID })
	return users, nil
}

// --- roles ---

func (r *memRoles) Create(ctx context.Context, role *Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.roles {
		if existing.NormalizedName == role.NormalizedName {
			return fmt.Errorf("%w: role name %s already taken", ErrConflict, role.Name)
		}
	}
	for _, res := range role.Resources {
		if _, ok := m.resources[res.ID]; !ok {
			return fmt.Errorf("%w: resource %d", ErrNotFound, res.ID)
		}
	}

	m.nextRole++
	role.ID = m.nextRole
	role.CreatedAt = m.now()
	role.UpdatedAt = role.CreatedAt

	m.roles[role.ID] = cloneRoleBase(role)
	m.roleResources[role.ID] = idSet(len(role.Resources))
	for _, res := range role.Resources {
		m.roleResources[role.ID][res.ID] = struct{}{}
	}
	m.roleClaims[role.ID] = m.snapshotClaims(roleClaimBases(role.Claims))
	return nil
}

func (r *memRoles) Update(ctx context.Context, role *Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[role.ID]; !ok {
		return fmt.Errorf("%w: role %d", ErrNotFound, role.ID)
	}
	for id, existing := range m.roles {
		if id != role.ID && existing.NormalizedName == role.NormalizedName {
			return fmt.Errorf("%w: role name %s already taken", ErrConflict, role.Name)
		}
	}
	for _, res := range role.Resources {
		if _, ok := m.resources[res.ID]; !ok {
			return fmt.Errorf("%w: resource %d", ErrNotFound, res.ID)
		}
	}

	role.UpdatedAt = m.now()
	m.roles[role.ID] = cloneRoleBase(role)
	m.roleResources[role.ID] = idSet(len(role.Resources))
	for _, res := range role.Resources {
		m.roleResources[role.ID][res.ID] = struct{}{}
	}
	m.roleClaims[role.ID] = m.snapshotClaims(roleClaimBases(role.Claims))
	return nil
}

func (r *memRoles) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: role id must be positive", ErrInvalidInput)
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("%w: role %d", ErrNotFound, id)
	}
	delete(m.roles, id)
	delete(m.roleResources, id)
	delete(m.roleClaims, id)
	for _, roleIDs := range m.userRoles {
		delete(roleIDs, id)
	}
	return nil
}

func (r *memRoles) GetByID(ctx context.Context, id int64) (*Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: role %d", ErrNotFound, id)
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assembleRole(id)
}

func (r *memRoles) GetAllByIDs(ctx context.Context, ids []int64) ([]*Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	roles := make([]*Role, 0, len(ids))
	for _, id := range ids {
		role, err := m.assembleRole(id)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *memRoles) GetAll(ctx context.Context) ([]*Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	roles := make([]*Role, 0, len(m.roles))
	for id := range m.roles {
		role, err := m.assembleRole(id)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	sortByID(roles, func(r *Role) int64 { return r.ID })
	return roles, nil
}

// --- resources ---

func (r *memResources) Create(ctx context.Context, res *Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.resources {
		if strings.EqualFold(existing.Name, res.Name) {
			return fmt.Errorf("%w: resource name %s already taken", ErrConflict, res.Name)
		}
	}

	m.nextResource++
	res.ID = m.nextResource
	res.CreatedAt = m.now()
	res.UpdatedAt = res.CreatedAt
	m.resources[res.ID] = cloneResourceBase(res)
	return nil
}

func (r *memResources) Update(ctx context.Context, res *Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[res.ID]; !ok {
		return fmt.Errorf("%w: resource %d", ErrNotFound, res.ID)
	}
	for id, existing := range m.resources {
		if id != res.ID && strings.EqualFold(existing.Name, res.Name) {
			return fmt.Errorf("%w: resource name %s already taken", ErrConflict, res.Name)
		}
	}
	res.UpdatedAt = m.now()
	m.resources[res.ID] = cloneResourceBase(res)
	return nil
}

func (r *memResources) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("%w: resource id must be positive", ErrInvalidInput)
	}
	m := (*InMemory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[id]; !ok {
		return fmt.Errorf("%w: resource %d", ErrNotFound, id)
	}
	delete(m.resources, id)
	for _, resourceIDs := range m.roleResources {
		delete(resourceIDs, id)
	}
	return nil
}

func (r *memResources) GetByID(ctx context.Context, id int64) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: resource %d", ErrNotFound, id)
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: resource %d", ErrNotFound, id)
	}
	return cloneResourceBase(res), nil
}

func (r *memResources) GetAllByIDs(ctx context.Context, ids []int64) ([]*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	resources := make([]*Resource, 0, len(ids))
	for _, id := range ids {
		res, ok := m.resources[id]
		if !ok {
			continue
		}
		resources = append(resources, cloneResourceBase(res))
	}
	return resources, nil
}

func (r *memResources) GetAll(ctx context.Context) ([]*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := (*InMemory)(r)
	m.mu.RLock()
	defer m.mu.RUnlock()

	resources := make([]*Resource, 0, len(m.resources))
	for _, res := range m.resources {
		resources = append(resources, cloneResourceBase(res))
	}
	sortByID(resources, func(r *Resource) int64 { return r.ID })
	return resources, nil
}

// --- aggregate assembly (callers hold at least a read lock) ---

func (m *InMemory) assembleUser(id int64) (*User, error) {
	base, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	user := cloneUserBase(base)
	for roleID := range m.userRoles[id] {
		role, err := m.assembleRole(roleID)
		if err != nil {
			return nil, err
		}
		user.Roles = append(user.Roles, role)
	}
	sortByID(user.Roles, func(r *Role) int64 { return r.ID })
	for _, claim := range m.userClaims[id] {
		user.AddClaim(&UserClaim{Claim: claim})
	}
	return user, nil
}

func (m *InMemory) assembleRole(id int64) (*Role, error) {
	base, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %d", ErrNotFound, id)
	}
	role := cloneRoleBase(base)
	for resourceID := range m.roleResources[id] {
		res, ok := m.resources[resourceID]
		if !ok {
			return nil, fmt.Errorf("%w: resource %d", ErrNotFound, resourceID)
		}
		role.Resources = append(role.Resources, cloneResourceBase(res))
	}
	sortByID(role.Resources, func(r *Resource) int64 { return r.ID })
	for _, claim := range m.roleClaims[id] {
		role.AddClaim(&RoleClaim{Claim: claim})
	}
	return role, nil
}

// snapshotClaims copies claim records and assigns ids to new ones. Caller
// holds the write lock.
func (m *InMemory) snapshotClaims(claims []Claim) []Claim {
	out := make([]Claim, len(claims))
	for i, claim := range claims {
		if claim.ID == 0 {
			m.nextClaim++
			claim.ID = m.nextClaim
		}
		out[i] = claim
	}
	return out
}

func cloneUserBase(u *User) *User {
	clone := *u
	clone.Roles = nil
	clone.Claims = nil
	return &clone
}

func cloneRoleBase(r *Role) *Role {
	clone := *r
	clone.Resources = nil
	clone.Claims = nil
	clone.Users = nil
	return &clone
}

func cloneResourceBase(r *Resource) *Resource {
	clone := *r
	clone.Roles = nil
	return &clone
}

func userClaimBases(claims []*UserClaim) []Claim {
	out := make([]Claim, len(claims))
	for i, claim := range claims {
		out[i] = claim.Claim
	}
	return out
}

func roleClaimBases(claims []*RoleClaim) []Claim {
	out := make([]Claim, len(claims))
	for i, claim := range claims {
		out[i] = claim.Claim
	}
	return out
}

func idSet(size int) map[int64]struct{} {
	return make(map[int64]struct{}, size)
}

func sortByID[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
