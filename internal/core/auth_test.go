package core

import (
	"context"
	"testing"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "clerk", RoleUser, "correct horse")
	inactive, _ := env.seedUser(t, "gone", RoleUser, "correct horse")
	env.store.UpdateUser(context.Background(), dbDeactivate(inactive.ID))

	tests := []struct {
		name       string
		username   string
		password   string
		wantKind   Kind
		wantAction AuditAction
	}{
		{"success with mixed case", "  Clerk ", "correct horse", 0, ActionLoginSuccess},
		{"wrong password", "clerk", "wrong", KindAuth, ActionLoginFailed},
		{"unknown user", "nobody", "correct horse", KindAuth, ActionLoginFailed},
		{"inactive user", "gone", "correct horse", KindAuth, ActionLoginFailed},
		{"missing username", "", "x", KindValidation, ""},
		{"missing password", "clerk", "", KindValidation, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.store.Actions())
			res, err := env.svc.Login(context.Background(), tt.username, tt.password)

			if tt.wantKind != 0 {
				wantKind(t, err, tt.wantKind)
				if tt.wantKind == KindAuth && err.Error() != "Invalid username or password" {
					t.Errorf("message = %q", err.Error())
				}
			} else {
				if err != nil {
					t.Fatalf("Login() error = %v", err)
				}
				if res.Username != "clerk" || res.Role != RoleUser || res.Token == "" {
					t.Errorf("Login() = %+v", res)
				}
				if !res.ExpiresAt.After(testNow) {
					t.Errorf("ExpiresAt = %v, want after %v", res.ExpiresAt, testNow)
				}
			}

			actions := env.store.Actions()
			if tt.wantAction == "" {
				if len(actions) != before {
					t.Errorf("unexpected audit entries: %v", actions[before:])
				}
				return
			}
			if len(actions) != before+1 || actions[len(actions)-1] != string(tt.wantAction) {
				t.Errorf("audit actions = %v, want trailing %s", actions, tt.wantAction)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.seedUser(t, "clerk", RoleUser, "correct horse")

	res, err := env.svc.Login(context.Background(), "clerk", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	p, err := env.svc.Authenticate(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if p.Username != "clerk" || p.Role != RoleUser || p.UserID != uuidToString(user.ID) {
		t.Errorf("Authenticate() = %+v", p)
	}

	t.Run("role change takes effect", func(t *testing.T) {
		env.store.UpdateUser(context.Background(), dbSetRole(user.ID, RoleAdmin))
		p, err := env.svc.Authenticate(context.Background(), res.Token)
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if p.Role != RoleAdmin {
			t.Errorf("Role = %s, want ADMIN", p.Role)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		env.store.UpdateUser(context.Background(), dbDeactivate(user.ID))
		_, err := env.svc.Authenticate(context.Background(), res.Token)
		wantKind(t, err, KindAuth)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := env.svc.Authenticate(context.Background(), "not-a-jwt")
		wantKind(t, err, KindAuth)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other, _ := auth.NewTokenIssuer("other-secret", 0)
		tok, _ := other.Issue(uuidToString(user.ID), "clerk", "USER")
		_, err := env.svc.Authenticate(context.Background(), tok)
		wantKind(t, err, KindAuth)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := env.svc.Authenticate(context.Background(), "")
		wantKind(t, err, KindAuth)
	})
}

func TestCheckCredentials(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.seedUser(t, "clerk", RoleUser, "correct horse")
	before := len(env.store.Actions())

	info, err := env.svc.CheckCredentials(context.Background(), " Clerk ", "correct horse")
	if err != nil {
		t.Fatalf("CheckCredentials() error = %v", err)
	}
	if info.Username != "clerk" {
		t.Errorf("Username = %q", info.Username)
	}

	_, err = env.svc.CheckCredentials(context.Background(), "clerk", "wrong")
	wantKind(t, err, KindAuth)

	_, err = env.svc.CheckCredentials(context.Background(), "ghost", "x")
	wantKind(t, err, KindNotFound)

	env.store.UpdateUser(context.Background(), dbDeactivate(user.ID))
	info, err = env.svc.CheckCredentials(context.Background(), "clerk", "correct horse")
	wantKind(t, err, KindAuth)
	if info.IsActive {
		t.Error("IsActive = true after deactivation")
	}

	if got := len(env.store.Actions()); got != before {
		t.Errorf("audit entries written: %d", got-before)
	}
}

func dbDeactivate(id pgtype.UUID) dbUpdate {
	return dbUpdate{ID: id, IsActive: pgtype.Bool{Bool: false, Valid: true}}
}

func dbSetRole(id pgtype.UUID, role Role) dbUpdate {
	return dbUpdate{ID: id, Role: pgtype.Text{String: string(role), Valid: true}}
}
