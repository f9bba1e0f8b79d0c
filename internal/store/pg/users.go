package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"accessd.org/internal/rbac"
)

type userRepo struct {
	store *Store
}

var _ rbac.UserRepository = (*userRepo)(nil)

const userColumns = `id, user_name, normalized_user_name, email, normalized_email, active, password_hash, created_at, updated_at`

func scanUser(row rowScanner) (*rbac.User, error) {
	var user rbac.User
	err := row.Scan(
		&user.ID, &user.UserName, &user.NormalizedUserName,
		&user.Email, &user.NormalizedEmail, &user.Active,
		&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Create(ctx context.Context, user *rbac.User) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into users (user_name, normalized_user_name, email, normalized_email, active, password_hash)
		values ($1, $2, $3, $4, $5, $6)
		returning id, created_at, updated_at
	`, user.UserName, user.NormalizedUserName, user.Email, user.NormalizedEmail,
		user.Active, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if err := replaceUserGraph(ctx, tx, user); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *userRepo) Update(ctx context.Context, user *rbac.User) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		update users
		set user_name = $2, normalized_user_name = $3, email = $4,
		    normalized_email = $5, active = $6, password_hash = $7, updated_at = now()
		where id = $1
		returning updated_at
	`, user.ID, user.UserName, user.NormalizedUserName, user.Email,
		user.NormalizedEmail, user.Active, user.PasswordHash).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: user %d", rbac.ErrNotFound, user.ID)
	}
	if err != nil {
		return mapPgError(err)
	}
	if err := replaceUserGraph(ctx, tx, user); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *userRepo) DeleteByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: user id must be positive", rbac.ErrInvalidInput)
	}
	// user_roles and user_claims rows cascade; roles survive.
	res, err := r.store.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: user %d", rbac.ErrNotFound, id)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*rbac.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: user %d", rbac.ErrNotFound, id)
	}
	user, err := scanUser(r.store.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", rbac.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := loadUserGraph(ctx, r.store.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetByName(ctx context.Context, name string) (*rbac.User, error) {
	user, err := scanUser(r.store.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where normalized_user_name = $1`,
		rbac.NormalizeName(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", rbac.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if err := loadUserGraph(ctx, r.store.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetAllByIDs(ctx context.Context, ids []int64) ([]*rbac.User, error) {
	users := make([]*rbac.User, 0, len(ids))
	for _, id := range ids {
		user, err := r.GetByID(ctx, id)
		if errors.Is(err, rbac.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *userRepo) GetAll(ctx context.Context) ([]*rbac.User, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`select `+userColumns+` from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*rbac.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, user := range users {
		if err := loadUserGraph(ctx, r.store.db, user); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// loadUserGraph fills the user's roles (each with its resource set, so an
// authorization check can walk user -> role -> resource) and claims.
func loadUserGraph(ctx context.Context, q querier, user *rbac.User) error {
	rows, err := q.QueryContext(ctx, `
		select r.id, r.name, r.normalized_name, coalesce(r.description,''),
		       r.is_system_role, r.active, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.id
	`, user.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return err
		}
		user.Roles = append(user.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, role := range user.Roles {
		if err := loadRoleGraph(ctx, q, role); err != nil {
			return err
		}
	}

	claims, err := loadClaims(ctx, q, `
		select id, claim_type, claim_value, coalesce(issuer,''), coalesce(value_type,'')
		from user_claims
		where user_id = $1
		order by id
	`, user.ID)
	if err != nil {
		return err
	}
	for _, claim := range claims {
		user.AddClaim(&rbac.UserClaim{Claim: claim})
	}
	return nil
}

// replaceUserGraph rewrites the user's role assignments and claims from the
// in-memory aggregate. Runs inside the caller's transaction.
func replaceUserGraph(ctx context.Context, tx *sql.Tx, user *rbac.User) error {
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, user.ID); err != nil {
		return err
	}
	for _, role := range user.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
		`, user.ID, role.ID); err != nil {
			return mapPgError(err)
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from user_claims where user_id = $1`, user.ID); err != nil {
		return err
	}
	for _, claim := range user.Claims {
		err := tx.QueryRowContext(ctx, `
			insert into user_claims (user_id, claim_type, claim_value, issuer, value_type)
			values ($1, $2, $3, $4, $5)
			returning id
		`, user.ID, claim.Type, claim.Value, nullIfEmpty(claim.Issuer), nullIfEmpty(claim.ValueType)).
			Scan(&claim.ID)
		if err != nil {
			return mapPgError(err)
		}
	}
	return nil
}
