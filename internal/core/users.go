package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvportal/internal/auth"
	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// protectedUsername is the built-in administrator account.
const protectedUsername = "admin"

const (
	minUsernameLength = 3
	minPasswordLength = 8
)

func isProtectedName(username string) bool {
	return strings.EqualFold(username, protectedUsername)
}

// ListUsers returns all accounts the caller may see, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]UserInfo, error) {
	actor, err := requireAdmin(ctx, "Only administrators can view users")
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]UserInfo, 0, len(rows))
	for _, u := range rows {
		if Role(u.Role) == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
			continue
		}
		users = append(users, userToInfo(u))
	}
	return users, nil
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, id string) (UserInfo, error) {
	actor, err := requireAdmin(ctx, "Only administrators can view users")
	if err != nil {
		return UserInfo{}, err
	}
	u, err := s.loadVisibleUser(ctx, actor, id)
	if err != nil {
		return UserInfo{}, err
	}
	return userToInfo(u), nil
}

// loadVisibleUser fetches id, hiding SUPERADMIN accounts from everyone but
// another SUPERADMIN.
func (s *Service) loadVisibleUser(ctx context.Context, actor Principal, id string) (db.User, error) {
	uid := toPgUUID(strings.TrimSpace(id))
	if !uid.Valid {
		return db.User{}, notFound("User not found")
	}

	u, err := s.store.GetUserByID(ctx, uid)
	if db.IsNotFound(err) {
		return db.User{}, notFound("User not found")
	}
	if err != nil {
		return db.User{}, fmt.Errorf("get user: %w", err)
	}
	if Role(u.Role) == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
		return db.User{}, notFound("User not found")
	}
	return u, nil
}

// CreateUser adds an account. Without a password a random one is generated
// and returned once.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (CreatedUser, error) {
	actor, err := requireAdmin(ctx, "Only administrators can create users")
	if err != nil {
		return CreatedUser{}, err
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if in.Role == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
		return CreatedUser{}, forbidden("Only super administrators can create SUPERADMIN users")
	}
	in.Protected = false

	created, err := s.createUser(ctx, in)
	if err != nil {
		return CreatedUser{}, err
	}

	s.LogAudit(ctx, AuditEvent{
		Action: ActionUserCreated,
		Details: map[string]any{
			"createdBy":   actor.Username,
			"newUsername": created.Username,
			"role":        created.Role,
		},
	})
	return created, nil
}

// BootstrapUser creates an account without an authenticated caller. It is
// used by portalctl to seed the first administrators.
func (s *Service) BootstrapUser(ctx context.Context, in CreateUserInput) (CreatedUser, error) {
	if in.Role == "" {
		in.Role = RoleUser
	}
	created, err := s.createUser(ctx, in)
	if err != nil {
		return CreatedUser{}, err
	}

	s.LogAudit(ctx, AuditEvent{
		Action:   ActionUserCreated,
		Username: "portalctl",
		Details: map[string]any{
			"createdBy":   "portalctl",
			"newUsername": created.Username,
			"role":        created.Role,
		},
	})
	return created, nil
}

func (s *Service) createUser(ctx context.Context, in CreateUserInput) (CreatedUser, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if len(username) < minUsernameLength {
		return CreatedUser{}, validationError("Username must be at least %d characters", minUsernameLength)
	}
	if !in.Role.Valid() {
		return CreatedUser{}, validationError("Role must be USER, ADMIN, or SUPERADMIN")
	}

	password := in.Password
	generated := password == ""
	if generated {
		var err error
		if password, err = auth.GeneratePassword(GeneratedPasswordLength); err != nil {
			return CreatedUser{}, fmt.Errorf("generate password: %w", err)
		}
	} else if len(password) < minPasswordLength {
		return CreatedUser{}, validationError("Password must be at least %d characters", minPasswordLength)
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return CreatedUser{}, validationError("Username already exists")
	} else if !db.IsNotFound(err) {
		return CreatedUser{}, fmt.Errorf("check username: %w", err)
	}

	hash, err := auth.HashPassword(password, s.opts.PasswordParams)
	if err != nil {
		return CreatedUser{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, db.CreateUserParams{
		Username:     username,
		PasswordHash: hash,
		Role:         string(in.Role),
		Protected:    in.Protected || isProtectedName(username),
	})
	if db.IsUniqueViolation(err) {
		return CreatedUser{}, validationError("Username already exists")
	}
	if err != nil {
		return CreatedUser{}, fmt.Errorf("create user: %w", err)
	}

	created := CreatedUser{UserInfo: userToInfo(u)}
	if generated {
		created.Password = password
	}
	return created, nil
}

// checkEditable applies the protection rules shared by update and password
// reset: the admin account and protected accounts may only be changed by a
// SUPERADMIN, or by the admin account itself.
func checkEditable(actor Principal, target db.User, adminMsg, protectedMsg string) error {
	if actor.Role == RoleSuperAdmin {
		return nil
	}
	isAdminUser := isProtectedName(target.Username)
	isSelf := strings.EqualFold(target.Username, actor.Username)

	if isAdminUser && !isSelf {
		return forbidden(adminMsg)
	}
	if target.Protected && !(isAdminUser && isSelf) {
		return forbidden(protectedMsg)
	}
	return nil
}

// UpdateUser changes role, active flag and/or password of an account.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (UserInfo, error) {
	actor, err := requireAdmin(ctx, "Only administrators can update users")
	if err != nil {
		return UserInfo{}, err
	}
	target, err := s.loadVisibleUser(ctx, actor, id)
	if err != nil {
		return UserInfo{}, err
	}
	if err := checkEditable(actor, target,
		"The admin user can only be edited by super administrators or itself",
		"Protected users cannot be edited by regular administrators"); err != nil {
		return UserInfo{}, err
	}

	params := db.UpdateUserParams{ID: target.ID}
	changes := map[string]any{}

	if in.Role != nil {
		if !in.Role.Valid() {
			return UserInfo{}, validationError("Role must be USER, ADMIN, or SUPERADMIN")
		}
		if *in.Role == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
			return UserInfo{}, forbidden("Only super administrators can assign SUPERADMIN role")
		}
		params.Role = pgtype.Text{String: string(*in.Role), Valid: true}
		changes["role"] = *in.Role
	}
	if in.IsActive != nil {
		if !*in.IsActive && strings.EqualFold(target.Username, actor.Username) {
			return UserInfo{}, validationError("Cannot deactivate your own account")
		}
		params.IsActive = pgtype.Bool{Bool: *in.IsActive, Valid: true}
		changes["isActive"] = *in.IsActive
	}
	if in.Password != nil && len(*in.Password) < minPasswordLength {
		return UserInfo{}, validationError("Password must be at least %d characters", minPasswordLength)
	}

	updated, err := s.store.UpdateUser(ctx, params)
	if err != nil {
		return UserInfo{}, fmt.Errorf("update user: %w", err)
	}

	if in.Password != nil {
		if err := s.setPassword(ctx, target.ID, *in.Password); err != nil {
			return UserInfo{}, err
		}
	}
	changes["passwordChanged"] = in.Password != nil

	s.LogAudit(ctx, AuditEvent{
		Action: ActionUserUpdated,
		Details: map[string]any{
			"updatedBy": actor.Username,
			"userId":    uuidToString(updated.ID),
			"username":  updated.Username,
			"changes":   changes,
		},
	})
	return userToInfo(updated), nil
}

// DeactivateUser disables an account. Accounts are never removed so their
// audit history keeps its owner.
func (s *Service) DeactivateUser(ctx context.Context, id string) (UserInfo, error) {
	actor, err := requireAdmin(ctx, "Only administrators can delete users")
	if err != nil {
		return UserInfo{}, err
	}
	target, err := s.loadVisibleUser(ctx, actor, id)
	if err != nil {
		return UserInfo{}, err
	}

	if actor.Role != RoleSuperAdmin {
		if isProtectedName(target.Username) {
			return UserInfo{}, forbidden("The admin user can only be deleted by super administrators")
		}
		if target.Protected {
			return UserInfo{}, forbidden("Protected users cannot be deleted by regular administrators")
		}
	}
	if strings.EqualFold(target.Username, actor.Username) {
		return UserInfo{}, validationError("Cannot delete your own account")
	}

	updated, err := s.store.UpdateUser(ctx, db.UpdateUserParams{
		ID:       target.ID,
		IsActive: pgtype.Bool{Bool: false, Valid: true},
	})
	if err != nil {
		return UserInfo{}, fmt.Errorf("deactivate user: %w", err)
	}

	s.LogAudit(ctx, AuditEvent{
		Action: ActionUserDeleted,
		Details: map[string]any{
			"deletedBy": actor.Username,
			"userId":    uuidToString(updated.ID),
			"username":  updated.Username,
		},
	})
	return userToInfo(updated), nil
}

// ResetPassword replaces an account's password with a generated one, which is
// returned once.
func (s *Service) ResetPassword(ctx context.Context, id string) (PasswordReset, error) {
	actor, err := requireAdmin(ctx, "Only administrators can reset passwords")
	if err != nil {
		return PasswordReset{}, err
	}
	target, err := s.loadVisibleUser(ctx, actor, id)
	if err != nil {
		return PasswordReset{}, err
	}
	if err := checkEditable(actor, target,
		"The admin user password can only be reset by super administrators or itself",
		"Protected users cannot have their passwords reset by regular administrators"); err != nil {
		return PasswordReset{}, err
	}

	password, err := auth.GeneratePassword(GeneratedPasswordLength)
	if err != nil {
		return PasswordReset{}, fmt.Errorf("generate password: %w", err)
	}
	if err := s.setPassword(ctx, target.ID, password); err != nil {
		return PasswordReset{}, err
	}

	s.LogAudit(ctx, AuditEvent{
		Action: ActionUserPasswordReset,
		Details: map[string]any{
			"resetBy":  actor.Username,
			"userId":   uuidToString(target.ID),
			"username": target.Username,
		},
	})
	return PasswordReset{
		ID:       uuidToString(target.ID),
		Username: target.Username,
		Password: password,
	}, nil
}

func (s *Service) setPassword(ctx context.Context, id pgtype.UUID, password string) error {
	hash, err := auth.HashPassword(password, s.opts.PasswordParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	n, err := s.store.SetUserPassword(ctx, db.SetUserPasswordParams{ID: id, PasswordHash: hash})
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if n == 0 {
		return notFound("User not found")
	}
	return nil
}

// FindUser looks an account up by name without permission checks. It backs
// portalctl's user check command.
func (s *Service) FindUser(ctx context.Context, username string) (UserInfo, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if db.IsNotFound(err) {
		return UserInfo{}, notFound("User not found")
	}
	if err != nil {
		return UserInfo{}, fmt.Errorf("get user: %w", err)
	}
	return userToInfo(u), nil
}
