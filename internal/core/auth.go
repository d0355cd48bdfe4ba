package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/csvportal/internal/auth"
	db "github.com/JonMunkholm/csvportal/internal/database"
)

const invalidCredentials = "Invalid username or password"

// Login checks a username and password and issues a session token.
// Unknown, inactive and wrong-password logins all fail with the same message
// and take the same time.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if s.tokens == nil {
		return LoginResult{}, errors.New("core: token issuer not configured")
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return LoginResult{}, validationError("Username is required")
	}
	if password == "" {
		return LoginResult{}, validationError("Password is required")
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil && !db.IsNotFound(err) {
		return LoginResult{}, fmt.Errorf("get user: %w", err)
	}
	if err != nil || !user.IsActive {
		auth.DummyVerify(password)
		return LoginResult{}, s.loginFailed(ctx, username)
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		slog.Error("stored password hash unreadable", "user_id", uuidToString(user.ID), "error", err)
	}
	if !ok {
		return LoginResult{}, s.loginFailed(ctx, username)
	}

	userID := uuidToString(user.ID)
	token, err := s.tokens.Issue(userID, user.Username, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	ctx = ContextWithPrincipal(ctx, Principal{UserID: userID, Username: user.Username, Role: Role(user.Role)})
	s.LogAudit(ctx, AuditEvent{
		Action:  ActionLoginSuccess,
		Details: map[string]any{"username": user.Username},
	})

	return LoginResult{
		Token:     token,
		Username:  user.Username,
		Role:      Role(user.Role),
		ExpiresAt: s.calendar.Now().Add(s.tokens.TTL()),
	}, nil
}

// CheckCredentials verifies a password without issuing a token or writing
// the audit log. portalctl uses it to diagnose failed logins.
func (s *Service) CheckCredentials(ctx context.Context, username, password string) (UserInfo, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if db.IsNotFound(err) {
		return UserInfo{}, notFound("User not found")
	}
	if err != nil {
		return UserInfo{}, fmt.Errorf("get user: %w", err)
	}
	info := userToInfo(u)
	if !u.IsActive {
		return info, authError("Account is disabled")
	}
	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return info, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return info, authError(invalidCredentials)
	}
	return info, nil
}

func (s *Service) loginFailed(ctx context.Context, username string) error {
	s.LogAudit(ctx, AuditEvent{
		Action:   ActionLoginFailed,
		Username: username,
		Details:  map[string]any{"username": username},
	})
	return authError(invalidCredentials)
}

// Authenticate resolves a bearer token to the caller. The account must still
// exist and be active; its current role wins over the role in the token.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	if s.tokens == nil {
		return Principal{}, errors.New("core: token issuer not configured")
	}
	if token == "" {
		return Principal{}, authError("Authentication required")
	}

	claims, err := s.tokens.Verify(token)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return Principal{}, authError("Token has expired")
	case err != nil:
		return Principal{}, authError("Invalid token")
	}

	user, err := s.store.GetUserByID(ctx, toPgUUID(claims.UserID))
	if db.IsNotFound(err) {
		return Principal{}, authError("Invalid token")
	}
	if err != nil {
		return Principal{}, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return Principal{}, authError("Account is disabled")
	}

	return Principal{
		UserID:   uuidToString(user.ID),
		Username: user.Username,
		Role:     Role(user.Role),
	}, nil
}
