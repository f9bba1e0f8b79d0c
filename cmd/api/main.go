package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accessd.org/internal/auth"
	"accessd.org/internal/httpapi"
	"accessd.org/internal/obs"
	"accessd.org/internal/rbac"
	"accessd.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store rbac.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("ACCESSD_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Println("ACCESSD_PG_DSN not set, using in-memory store")
		store = rbac.NewInMemory()
	}

	svc, err := rbac.NewServiceFromStore(store)
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("seed builtins: %v", err)
	}
	if err := bootstrapAdmin(ctx, svc); err != nil {
		cancel()
		log.Fatalf("bootstrap admin: %v", err)
	}
	cancel()

	az, err := rbac.NewAuthorizer(store.Users())
	if err != nil {
		log.Fatalf("init authorizer: %v", err)
	}

	api := httpapi.New(svc, az, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("ACCESSD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting accessd-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// bootstrapAdmin creates the initial administrator account when
// ACCESSD_ADMIN_PASSWORD is set and the account does not exist yet.
func bootstrapAdmin(ctx context.Context, svc *rbac.Service) error {
	password := os.Getenv("ACCESSD_ADMIN_PASSWORD")
	if password == "" {
		return nil
	}
	userName := os.Getenv("ACCESSD_ADMIN_USER")
	if userName == "" {
		userName = "admin"
	}

	if _, err := svc.GetUserByName(ctx, userName); err == nil {
		return nil
	} else if !errors.Is(err, rbac.ErrNotFound) {
		return err
	}

	roles, err := svc.ListRoles(ctx)
	if err != nil {
		return err
	}
	var adminRoleID int64
	for _, role := range roles {
		if role.IsSystemRole && role.Name == rbac.RoleAdministrator {
			adminRoleID = role.ID
			break
		}
	}
	if adminRoleID == 0 {
		return errors.New("administrator role missing")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = svc.CreateUser(ctx, rbac.NewUser{
		UserName:     userName,
		Email:        userName + "@localhost",
		PasswordHash: hash,
		Active:       true,
		RoleIDs:      []int64{adminRoleID},
	})
	if err != nil {
		return err
	}
	log.Printf("created administrator account %q", userName)
	return nil
}
