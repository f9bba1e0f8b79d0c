package rbac

import "context"

// Store bundles the per-entity repositories required by the service layer.
type Store interface {
	Users() UserRepository
	Roles() RoleRepository
	Resources() ResourceRepository
}

// UserLookup resolves an authenticated principal name to a user aggregate
// with roles and their resources loaded. It is the only persistence
// capability the authorizer needs.
type UserLookup interface {
	GetByName(ctx context.Context, name string) (*User, error)
}

// UserRepository manages user aggregates. Implementations must honor context
// cancellation before starting any I/O, load the user's roles (with their
// resources) and claims on read paths, and persist the full aggregate,
// including role assignments and claims, as a single atomic unit on write
// paths.
//
// DeleteByID with id <= 0 returns ErrInvalidInput without touching storage;
// GetByID with id <= 0 returns ErrNotFound so callers may probe safely.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	DeleteByID(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByName(ctx context.Context, name string) (*User, error)
	// GetAllByIDs returns only the found subset; missing ids are silently
	// skipped, not an error.
	GetAllByIDs(ctx context.Context, ids []int64) ([]*User, error)
	GetAll(ctx context.Context) ([]*User, error)
}

// RoleRepository manages role aggregates with the same contract as
// UserRepository: aggregates are loaded with resources and claims, writes
// replace the persisted resource set and claims atomically.
type RoleRepository interface {
	Create(ctx context.Context, r *Role) error
	Update(ctx context.Context, r *Role) error
	DeleteByID(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Role, error)
	GetAllByIDs(ctx context.Context, ids []int64) ([]*Role, error)
	GetAll(ctx context.Context) ([]*Role, error)
}

// ResourceRepository manages the resource catalog.
type ResourceRepository interface {
	Create(ctx context.Context, r *Resource) error
	Update(ctx context.Context, r *Resource) error
	DeleteByID(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Resource, error)
	GetAllByIDs(ctx context.Context, ids []int64) ([]*Resource, error)
	GetAll(ctx context.Context) ([]*Resource, error)
}
