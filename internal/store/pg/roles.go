package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"accessd.org/internal/rbac"
)

type roleRepo struct {
	store *Store
}

var _ rbac.RoleRepository = (*roleRepo)(nil)

const roleColumns = `id, name, normalized_name, coalesce(description,''), is_system_role, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(
		&role.ID, &role.Name, &role.NormalizedName, &role.Description,
		&role.IsSystemRole, &role.Active, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) Create(ctx context.Context, role *rbac.Role) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into roles (name, normalized_name, description, is_system_role, active)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at
	`, role.Name, role.NormalizedName, nullIfEmpty(role.Description), role.IsSystemRole, role.Active).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if err := replaceRoleGraph(ctx, tx, role); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *roleRepo) Update(ctx context.Context, role *rbac.Role) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		update roles
		set name = $2, normalized_name = $3, description = $4,
		    is_system_role = $5, active = $6, updated_at = now()
		where id = $1
		returning updated_at
	`, role.ID, role.Name, role.NormalizedName, nullIfEmpty(role.Description),
		role.IsSystemRole, role.Active).Scan(&role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: role %d", rbac.ErrNotFound, role.ID)
	}
	if err != nil {
		return mapPgError(err)
	}
	if err := replaceRoleGraph(ctx, tx, role); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *roleRepo) DeleteByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: role id must be positive", rbac.ErrInvalidInput)
	}
	// role_resources, user_roles and role_claims rows go with the role via
	// on delete cascade; resources and users survive.
	res, err := r.store.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: role %d", rbac.ErrNotFound, id)
	}
	return nil
}

func (r *roleRepo) GetByID(ctx context.Context, id int64) (*rbac.Role, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: role %d", rbac.ErrNotFound, id)
	}
	role, err := scanRole(r.store.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %d", rbac.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := loadRoleGraph(ctx, r.store.db, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (r *roleRepo) GetAllByIDs(ctx context.Context, ids []int64) ([]*rbac.Role, error) {
	roles := make([]*rbac.Role, 0, len(ids))
	for _, id := range ids {
		role, err := r.GetByID(ctx, id)
		if errors.Is(err, rbac.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *roleRepo) GetAll(ctx context.Context) ([]*rbac.Role, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`select `+roleColumns+` from roles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range roles {
		if err := loadRoleGraph(ctx, r.store.db, role); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// loadRoleGraph fills the role's resource set and claims.
func loadRoleGraph(ctx context.Context, q querier, role *rbac.Role) error {
	rows, err := q.QueryContext(ctx, `
		select r.id, r.name, coalesce(r.description,''), r.created_at, r.updated_at
		from resources r
		join role_resources rr on rr.resource_id = r.id
		where rr.role_id = $1
		order by r.id
	`, role.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var res rbac.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Description, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return err
		}
		role.Resources = append(role.Resources, &res)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	claims, err := loadClaims(ctx, q, `
		select id, claim_type, claim_value, coalesce(issuer,''), coalesce(value_type,'')
		from role_claims
		where role_id = $1
		order by id
	`, role.ID)
	if err != nil {
		return err
	}
	for _, claim := range claims {
		role.AddClaim(&rbac.RoleClaim{Claim: claim})
	}
	return nil
}

// replaceRoleGraph rewrites the role's join rows and claims from the
// in-memory aggregate. Runs inside the caller's transaction.
func replaceRoleGraph(ctx context.Context, tx *sql.Tx, role *rbac.Role) error {
	if _, err := tx.ExecContext(ctx, `delete from role_resources where role_id = $1`, role.ID); err != nil {
		return err
	}
	for _, res := range role.Resources {
		if _, err := tx.ExecContext(ctx, `
			insert into role_resources (role_id, resource_id)
			values ($1, $2)
		`, role.ID, res.ID); err != nil {
			return mapPgError(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from role_claims where role_id = $1`, role.ID); err != nil {
		return err
	}
	for _, claim := range role.Claims {
		err := tx.QueryRowContext(ctx, `
			insert into role_claims (role_id, claim_type, claim_value, issuer, value_type)
			values ($1, $2, $3, $4, $5)
			returning id
		`, role.ID, claim.Type, claim.Value, nullIfEmpty(claim.Issuer), nullIfEmpty(claim.ValueType)).
			Scan(&claim.ID)
		if err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

func loadClaims(ctx context.Context, q querier, query string, ownerID int64) ([]rbac.Claim, error) {
	rows, err := q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []rbac.Claim
	for rows.Next() {
		var claim rbac.Claim
		if err := rows.Scan(&claim.ID, &claim.Type, &claim.Value, &claim.Issuer, &claim.ValueType); err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}
