package core

import (
	"context"
	"testing"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/core/coretest"
)

func ptr[T any](v T) *T { return &v }

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	_, adminCtx := env.seedUser(t, "boss", RoleAdmin, "password1")
	_, superCtx := env.seedUser(t, "root", RoleSuperAdmin, "password1")
	_, userCtx := env.seedUser(t, "clerk", RoleUser, "password1")

	tests := []struct {
		name     string
		ctx      context.Context
		in       CreateUserInput
		wantKind Kind
	}{
		{"admin creates user", adminCtx, CreateUserInput{Username: "NewGuy"}, 0},
		{"admin creates admin", adminCtx, CreateUserInput{Username: "second", Role: RoleAdmin}, 0},
		{"protected flag ignored", adminCtx, CreateUserInput{Username: "ninth", Protected: true}, 0},
		{"admin cannot create superadmin", adminCtx, CreateUserInput{Username: "third", Role: RoleSuperAdmin}, KindForbidden},
		{"superadmin creates superadmin", superCtx, CreateUserInput{Username: "fourth", Role: RoleSuperAdmin}, 0},
		{"user cannot create", userCtx, CreateUserInput{Username: "fifth"}, KindForbidden},
		{"no principal", context.Background(), CreateUserInput{Username: "sixth"}, KindAuth},
		{"short username", adminCtx, CreateUserInput{Username: "ab"}, KindValidation},
		{"bad role", adminCtx, CreateUserInput{Username: "seventh", Role: "OWNER"}, KindValidation},
		{"short password", adminCtx, CreateUserInput{Username: "eighth", Password: "short"}, KindValidation},
		{"duplicate", adminCtx, CreateUserInput{Username: "clerk"}, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.svc.CreateUser(tt.ctx, tt.in)
			if tt.wantKind != 0 {
				wantKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("CreateUser() error = %v", err)
			}
			if got.Protected {
				t.Error("CreateUser() returned a protected account")
			}
			if len(got.Password) != GeneratedPasswordLength {
				t.Errorf("generated password length = %d, want %d", len(got.Password), GeneratedPasswordLength)
			}
			stored, err := env.store.GetUserByUsername(context.Background(), got.Username)
			if err != nil {
				t.Fatalf("stored user missing: %v", err)
			}
			if ok, _ := auth.VerifyPassword(stored.PasswordHash, got.Password); !ok {
				t.Error("returned password does not match stored hash")
			}
			if env.store.LastAudit().Action != string(ActionUserCreated) {
				t.Errorf("last audit = %s, want USER_CREATED", env.store.LastAudit().Action)
			}
		})
	}

	t.Run("username is lowercased", func(t *testing.T) {
		u, err := env.store.GetUserByUsername(context.Background(), "newguy")
		if err != nil {
			t.Fatalf("lowercased username not stored: %v", err)
		}
		if u.Role != string(RoleUser) {
			t.Errorf("default role = %s, want USER", u.Role)
		}
	})

	t.Run("explicit password is not echoed", func(t *testing.T) {
		got, err := env.svc.CreateUser(adminCtx, CreateUserInput{Username: "tenth", Password: "longenough"})
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if got.Password != "" {
			t.Errorf("Password = %q, want empty", got.Password)
		}
	})

	t.Run("admin username is protected", func(t *testing.T) {
		got, err := env.svc.CreateUser(superCtx, CreateUserInput{Username: "Admin", Role: RoleAdmin})
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		if !got.Protected {
			t.Error("admin account should be protected")
		}
	})
}

func TestSuperAdminInvisibleToAdmins(t *testing.T) {
	env := newTestEnv(t)
	_, adminCtx := env.seedUser(t, "boss", RoleAdmin, "password1")
	root, superCtx := env.seedUser(t, "root", RoleSuperAdmin, "password1")
	env.seedUser(t, "clerk", RoleUser, "password1")

	users, err := env.svc.ListUsers(adminCtx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("admin sees %d users, want 2", len(users))
	}
	for _, u := range users {
		if u.Role == RoleSuperAdmin {
			t.Errorf("admin can see superadmin %s", u.Username)
		}
	}

	all, err := env.svc.ListUsers(superCtx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("superadmin sees %d users, want 3", len(all))
	}

	rootID := uuidToString(root.ID)
	_, err = env.svc.GetUser(adminCtx, rootID)
	wantKind(t, err, KindNotFound)
	_, err = env.svc.UpdateUser(adminCtx, rootID, UpdateUserInput{IsActive: ptr(false)})
	wantKind(t, err, KindNotFound)
	_, err = env.svc.ResetPassword(adminCtx, rootID)
	wantKind(t, err, KindNotFound)
	_, err = env.svc.DeactivateUser(adminCtx, rootID)
	wantKind(t, err, KindNotFound)

	if _, err := env.svc.GetUser(superCtx, rootID); err != nil {
		t.Errorf("superadmin GetUser() error = %v", err)
	}
	_, err = env.svc.GetUser(superCtx, "not-a-uuid")
	wantKind(t, err, KindNotFound)
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	boss, adminCtx := env.seedUser(t, "boss", RoleAdmin, "password1")
	adminAcct, adminSelfCtx := env.seedUser(t, "admin", RoleAdmin, "password1")
	_, superCtx := env.seedUser(t, "root", RoleSuperAdmin, "password1")
	clerk, _ := env.seedUser(t, "clerk", RoleUser, "password1")

	tests := []struct {
		name     string
		ctx      context.Context
		id       string
		in       UpdateUserInput
		wantKind Kind
	}{
		{"promote clerk", adminCtx, uuidToString(clerk.ID), UpdateUserInput{Role: ptr(RoleAdmin)}, 0},
		{"admin cannot assign superadmin", adminCtx, uuidToString(clerk.ID), UpdateUserInput{Role: ptr(RoleSuperAdmin)}, KindForbidden},
		{"invalid role", adminCtx, uuidToString(clerk.ID), UpdateUserInput{Role: ptr(Role("X"))}, KindValidation},
		{"short password", adminCtx, uuidToString(clerk.ID), UpdateUserInput{Password: ptr("short")}, KindValidation},
		{"admin account by other admin", adminCtx, uuidToString(adminAcct.ID), UpdateUserInput{Role: ptr(RoleUser)}, KindForbidden},
		{"admin account by itself", adminSelfCtx, uuidToString(adminAcct.ID), UpdateUserInput{Password: ptr("new-password")}, 0},
		{"admin account by superadmin", superCtx, uuidToString(adminAcct.ID), UpdateUserInput{IsActive: ptr(true)}, 0},
		{"cannot deactivate self", adminCtx, uuidToString(boss.ID), UpdateUserInput{IsActive: ptr(false)}, KindValidation},
		{"missing user", adminCtx, uuidToString(coretest.NewUUID()), UpdateUserInput{}, KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.UpdateUser(tt.ctx, tt.id, tt.in)
			if tt.wantKind != 0 {
				wantKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("UpdateUser() error = %v", err)
			}
			if env.store.LastAudit().Action != string(ActionUserUpdated) {
				t.Errorf("last audit = %s, want USER_UPDATED", env.store.LastAudit().Action)
			}
		})
	}

	t.Run("password change is applied", func(t *testing.T) {
		stored, _ := env.store.GetUserByID(context.Background(), adminAcct.ID)
		if ok, _ := auth.VerifyPassword(stored.PasswordHash, "new-password"); !ok {
			t.Error("password was not updated")
		}
	})

	t.Run("protected non-admin account", func(t *testing.T) {
		guarded, _ := env.seedUser(t, "guarded", RoleUser, "password1")
		env.store.SetProtected(guarded.ID, true)

		_, err := env.svc.UpdateUser(adminCtx, uuidToString(guarded.ID), UpdateUserInput{Role: ptr(RoleAdmin)})
		wantKind(t, err, KindForbidden)
		if _, err := env.svc.UpdateUser(superCtx, uuidToString(guarded.ID), UpdateUserInput{Role: ptr(RoleAdmin)}); err != nil {
			t.Errorf("superadmin update error = %v", err)
		}
	})
}

func TestDeactivateUser(t *testing.T) {
	env := newTestEnv(t)
	boss, adminCtx := env.seedUser(t, "boss", RoleAdmin, "password1")
	adminAcct, adminSelfCtx := env.seedUser(t, "admin", RoleAdmin, "password1")
	_, superCtx := env.seedUser(t, "root", RoleSuperAdmin, "password1")
	clerk, userCtx := env.seedUser(t, "clerk", RoleUser, "password1")

	_, err := env.svc.DeactivateUser(userCtx, uuidToString(boss.ID))
	wantKind(t, err, KindForbidden)

	_, err = env.svc.DeactivateUser(adminCtx, uuidToString(boss.ID))
	wantKind(t, err, KindValidation)

	_, err = env.svc.DeactivateUser(adminCtx, uuidToString(adminAcct.ID))
	wantKind(t, err, KindForbidden)

	// Even the admin account itself may not delete itself.
	_, err = env.svc.DeactivateUser(adminSelfCtx, uuidToString(adminAcct.ID))
	wantKind(t, err, KindForbidden)

	got, err := env.svc.DeactivateUser(adminCtx, uuidToString(clerk.ID))
	if err != nil {
		t.Fatalf("DeactivateUser() error = %v", err)
	}
	if got.IsActive {
		t.Error("clerk still active")
	}
	if a := env.store.LastAudit(); a.Action != string(ActionUserDeleted) || a.Severity != string(SeverityCritical) {
		t.Errorf("last audit = %s/%s, want USER_DELETED/critical", a.Action, a.Severity)
	}

	if _, err := env.svc.DeactivateUser(superCtx, uuidToString(adminAcct.ID)); err != nil {
		t.Errorf("superadmin deactivating admin: %v", err)
	}

	if _, err := env.svc.Login(context.Background(), "clerk", "password1"); KindOf(err) != KindAuth {
		t.Errorf("deactivated user login error = %v, want auth error", err)
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	_, adminCtx := env.seedUser(t, "boss", RoleAdmin, "password1")
	adminAcct, adminSelfCtx := env.seedUser(t, "admin", RoleAdmin, "password1")
	clerk, _ := env.seedUser(t, "clerk", RoleUser, "password1")

	res, err := env.svc.ResetPassword(adminCtx, uuidToString(clerk.ID))
	if err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if res.Username != "clerk" || len(res.Password) != GeneratedPasswordLength {
		t.Errorf("ResetPassword() = %+v", res)
	}
	if _, err := env.svc.Login(context.Background(), "clerk", res.Password); err != nil {
		t.Errorf("login with reset password: %v", err)
	}
	if _, err := env.svc.Login(context.Background(), "clerk", "password1"); err == nil {
		t.Error("old password still works")
	}

	_, err = env.svc.ResetPassword(adminCtx, uuidToString(adminAcct.ID))
	wantKind(t, err, KindForbidden)

	if _, err := env.svc.ResetPassword(adminSelfCtx, uuidToString(adminAcct.ID)); err != nil {
		t.Errorf("admin resetting own password: %v", err)
	}
}

func TestBootstrapUserAndFindUser(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.BootstrapUser(context.Background(), CreateUserInput{Username: "Root", Role: RoleSuperAdmin, Password: "bootstrap-pw", Protected: true})
	if err != nil {
		t.Fatalf("BootstrapUser() error = %v", err)
	}
	if created.Role != RoleSuperAdmin || created.Password != "" || !created.Protected {
		t.Errorf("BootstrapUser() = %+v", created)
	}

	found, err := env.svc.FindUser(context.Background(), "ROOT")
	if err != nil {
		t.Fatalf("FindUser() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("FindUser() id = %s, want %s", found.ID, created.ID)
	}

	_, err = env.svc.FindUser(context.Background(), "missing")
	wantKind(t, err, KindNotFound)

	if a := env.store.LastAudit(); a.Username.String != "portalctl" {
		t.Errorf("bootstrap audit username = %q, want portalctl", a.Username.String)
	}
}
