package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermTopologyRead, true},
		{RoleAdmin, PermTopologyWrite, true},
		{RoleAdmin, PermAuditRead, true},
		{RoleReseller, PermTopologyRead, true},
		{RoleReseller, PermTopologyWrite, true},
		{RoleReseller, PermAuditRead, false},
		{RoleSupport, PermTopologyRead, false},
		{RoleSupport, PermTopologyWrite, false},
		{RoleSupport, PermAuditRead, true},
		{Role("guest"), PermTopologyRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPrincipal_Can(t *testing.T) {
	p := Principal{UserID: "usr-1", Role: RoleReseller, AreaID: Int64Ptr(3)}
	if !p.Can(PermTopologyWrite) {
		t.Error("reseller should write topology")
	}
	if p.Can(PermAuditRead) {
		t.Error("reseller should not read audit")
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) == 0 {
		t.Fatal("admin should have permissions")
	}
	perms[0] = "tampered"
	if PermissionsForRole(RoleAdmin)[0] == "tampered" {
		t.Error("PermissionsForRole must return a copy")
	}
	if PermissionsForRole(Role("nobody")) != nil {
		t.Error("unknown role should have nil permissions")
	}
}

func TestIsValidUserRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidUserRole(r) {
			t.Errorf("IsValidUserRole(%q) = false", r)
		}
	}
	if IsValidUserRole("owner") {
		t.Error("owner is not a netdiag role")
	}
}

func TestIsValidUsername(t *testing.T) {
	valid := []string{"admin", "noc.ops", "reseller_12", "a-b"}
	invalid := []string{"", "has space", "semi;colon", string(make([]byte, 65))}
	for _, u := range valid {
		if !IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = false", u)
		}
	}
	for _, u := range invalid {
		if IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = true", u)
		}
	}
}
