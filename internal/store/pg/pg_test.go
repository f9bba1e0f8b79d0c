package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"accessd.org/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestGetResourceNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from resources where id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}))

	_, err := store.Resources().GetByID(context.Background(), 42)
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNonPositiveIDShortCircuits(t *testing.T) {
	store, mock := newMockStore(t)
	// no expectations: neither call may reach the database

	if _, err := store.Users().GetByID(context.Background(), 0); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Roles().DeleteByID(context.Background(), -5); !errors.Is(err, rbac.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database traffic: %v", err)
	}
}

func TestCreateResourceConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into resources").
		WithArgs("GetAllUsers", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "resources_name_key"})

	err := store.Resources().Create(context.Background(), &rbac.Resource{Name: "GetAllUsers"})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateRoleReplacesJoinRows(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	role := &rbac.Role{ID: 7, Name: "Manager", NormalizedName: "MANAGER", Active: true}
	role.AddResource(&rbac.Resource{ID: 3, Name: "ViewReports"})
	role.AddResource(&rbac.Resource{ID: 4, Name: "ExportReports"})

	mock.ExpectBegin()
	mock.ExpectQuery("update roles").
		WithArgs(int64(7), "Manager", "MANAGER", sqlmock.AnyArg(), false, true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectExec("delete from role_resources where role_id").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into role_resources").
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_resources").
		WithArgs(int64(7), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from role_claims where role_id").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := store.Roles().Update(context.Background(), role); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateMissingRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("update roles").
		WithArgs(int64(99), "Ghost", "GHOST", sqlmock.AnyArg(), false, true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	mock.ExpectRollback()

	role := &rbac.Role{ID: 99, Name: "Ghost", NormalizedName: "GHOST", Active: true}
	if err := store.Roles().Update(context.Background(), role); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserByNameLoadsGraph(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select (.+) from users where normalized_user_name").
		WithArgs("ALICE").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_name", "normalized_user_name", "email", "normalized_email",
			"active", "password_hash", "created_at", "updated_at",
		}).AddRow(int64(1), "alice", "ALICE", "alice@example.com", "ALICE@EXAMPLE.COM", true, "hash", now, now))
	mock.ExpectQuery("from roles r").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "normalized_name", "description", "is_system_role",
			"active", "created_at", "updated_at",
		}).AddRow(int64(2), "Manager", "MANAGER", "", false, true, now, now))
	mock.ExpectQuery("from resources r").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow(int64(3), "ViewReports", "", now, now))
	mock.ExpectQuery("from role_claims").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "claim_type", "claim_value", "issuer", "value_type"}))
	mock.ExpectQuery("from user_claims").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "claim_type", "claim_value", "issuer", "value_type"}))

	user, err := store.Users().GetByName(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if len(user.Roles) != 1 || !user.Roles[0].HasResourceAssigned("ViewReports") {
		t.Fatalf("expected role graph with resources, got %+v", user.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteUserCascadesAtStore(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from users where id").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Users().DeleteByID(context.Background(), 1); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
