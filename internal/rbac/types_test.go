package rbac

import "testing"

func TestHasResourceAssignedCaseInsensitive(t *testing.T) {
	role := &Role{Name: "Manager"}
	role.AddResource(&Resource{ID: 1, Name: "GetAllUsers"})

	if !role.HasResourceAssigned("GetAllUsers") {
		t.Fatal("expected exact match")
	}
	if !role.HasResourceAssigned("getallusers") {
		t.Fatal("expected case-insensitive match")
	}
	if role.HasResourceAssigned("DeleteUser") {
		t.Fatal("unexpected match for unassigned resource")
	}
	if role.HasResourceAssigned("") {
		t.Fatal("blank resource must never match")
	}
}

func TestAddResourceIdempotent(t *testing.T) {
	role := &Role{Name: "Manager"}
	res := &Resource{ID: 1, Name: "GetAllUsers"}

	if !role.AddResource(res) {
		t.Fatal("first add must report true")
	}
	if role.AddResource(&Resource{ID: 2, Name: "getallusers"}) {
		t.Fatal("same name must not be added twice")
	}
	if len(role.Resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(role.Resources))
	}
}

func TestUserHasRoleAssigned(t *testing.T) {
	user := &User{UserName: "alice"}
	user.AddRole(&Role{ID: 1, Name: "Manager", NormalizedName: "MANAGER", Active: true})
	user.AddRole(&Role{ID: 2, Name: "Auditor", NormalizedName: "AUDITOR", Active: false})

	if !user.HasRoleAssigned("manager", true) {
		t.Fatal("expected active role to match case-insensitively")
	}
	if user.HasRoleAssigned("Auditor", true) {
		t.Fatal("inactive role must not match when checkActive is set")
	}
	if !user.HasRoleAssigned("Auditor", false) {
		t.Fatal("inactive role must match when checkActive is not set")
	}
	if user.HasRoleAssigned("Ghost", false) {
		t.Fatal("unassigned role must not match")
	}
}

func TestRevokeRole(t *testing.T) {
	user := &User{UserName: "alice"}
	user.AddRole(&Role{ID: 1, Name: "Manager", NormalizedName: "MANAGER", Active: false})

	if !user.RevokeRole("MANAGER") {
		t.Fatal("revoke must find the role regardless of its active flag")
	}
	if user.RevokeRole("MANAGER") {
		t.Fatal("second revoke must report nothing to remove")
	}
	if len(user.Roles) != 0 {
		t.Fatalf("expected empty role set, got %d", len(user.Roles))
	}
}

func TestRoleClaimBackPointer(t *testing.T) {
	role := &Role{ID: 7, Name: "Manager"}
	claim := &RoleClaim{Claim: Claim{Type: "scope", Value: "reports"}}

	if !role.AddClaim(claim) {
		t.Fatal("expected claim to be added")
	}
	if claim.Role != role {
		t.Fatal("add must set the owner back-pointer")
	}
	if role.AddClaim(&RoleClaim{Claim: Claim{Type: "scope", Value: "reports"}}) {
		t.Fatal("duplicate (type, value) must be rejected")
	}
	if !role.DeleteClaim(claim) {
		t.Fatal("expected claim to be deleted")
	}
	if claim.Role != nil {
		t.Fatal("delete must clear the owner back-pointer")
	}
}

func TestReplaceClaim(t *testing.T) {
	user := &User{ID: 3, UserName: "alice"}
	user.AddClaim(&UserClaim{Claim: Claim{Type: "scope", Value: "reports", Issuer: "old"}})

	user.ReplaceClaim("scope", "reports", &UserClaim{Claim: Claim{Type: "scope", Value: "reports", Issuer: "new"}})

	if len(user.Claims) != 1 {
		t.Fatalf("expected 1 claim after replace, got %d", len(user.Claims))
	}
	if user.Claims[0].Issuer != "new" {
		t.Fatalf("expected replacement claim, got issuer %q", user.Claims[0].Issuer)
	}
	if user.Claims[0].User != user {
		t.Fatal("replacement claim must carry the owner back-pointer")
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  alice "); got != "ALICE" {
		t.Fatalf("expected ALICE, got %q", got)
	}
	if got := NormalizeName(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
