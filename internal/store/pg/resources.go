package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"accessd.org/internal/rbac"
)

type resourceRepo struct {
	store *Store
}

var _ rbac.ResourceRepository = (*resourceRepo)(nil)

const resourceColumns = `id, name, coalesce(description,''), created_at, updated_at`

func scanResource(row rowScanner) (*rbac.Resource, error) {
	var res rbac.Resource
	err := row.Scan(&res.ID, &res.Name, &res.Description, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resourceRepo) Create(ctx context.Context, res *rbac.Resource) error {
	err := r.store.db.QueryRowContext(ctx, `
		insert into resources (name, description)
		values ($1, $2)
		returning id, created_at, updated_at
	`, res.Name, nullIfEmpty(res.Description)).
		Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *resourceRepo) Update(ctx context.Context, res *rbac.Resource) error {
	err := r.store.db.QueryRowContext(ctx, `
		update resources
		set name = $2, description = $3, updated_at = now()
		where id = $1
		returning updated_at
	`, res.ID, res.Name, nullIfEmpty(res.Description)).Scan(&res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: resource %d", rbac.ErrNotFound, res.ID)
	}
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *resourceRepo) DeleteByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: resource id must be positive", rbac.ErrInvalidInput)
	}
	// role_resources rows cascade; roles survive with a smaller grant set.
	res, err := r.store.db.ExecContext(ctx, `delete from resources where id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: resource %d", rbac.ErrNotFound, id)
	}
	return nil
}

func (r *resourceRepo) GetByID(ctx context.Context, id int64) (*rbac.Resource, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: resource %d", rbac.ErrNotFound, id)
	}
	res, err := scanResource(r.store.db.QueryRowContext(ctx,
		`select `+resourceColumns+` from resources where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resource %d", rbac.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *resourceRepo) GetAllByIDs(ctx context.Context, ids []int64) ([]*rbac.Resource, error) {
	resources := make([]*rbac.Resource, 0, len(ids))
	for _, id := range ids {
		res, err := r.GetByID(ctx, id)
		if errors.Is(err, rbac.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func (r *resourceRepo) GetAll(ctx context.Context) ([]*rbac.Resource, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`select `+resourceColumns+` from resources order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*rbac.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}
