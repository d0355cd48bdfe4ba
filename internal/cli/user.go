package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/csvportal/internal/core"
	"github.com/spf13/cobra"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal accounts directly in the database",
	}
	cmd.AddCommand(newUserCreateCmd(a), newUserSuperAdminCmd(a), newUserCheckCmd(a))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var role, password string
	cmd := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create a USER or ADMIN account",
		Long: `Creates an account. Without --password a random password is generated
and printed once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := core.Role(strings.ToUpper(role))
			if r != core.RoleUser && r != core.RoleAdmin {
				return errors.New("role must be USER or ADMIN (use 'user superadmin' for SUPERADMIN)")
			}
			return a.createUser(cmd.Context(), core.CreateUserInput{
				Username: args[0],
				Role:     r,
				Password: password,
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(core.RoleUser), "Role: USER or ADMIN")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (generated when empty)")
	return cmd
}

func newUserSuperAdminCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "superadmin USERNAME",
		Short: "Create a protected SUPERADMIN account with a generated password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.createUser(cmd.Context(), core.CreateUserInput{
				Username:  args[0],
				Role:      core.RoleSuperAdmin,
				Protected: true,
			})
		},
	}
}

func (a *app) createUser(ctx context.Context, in core.CreateUserInput) error {
	svc, closeFn, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	created, err := svc.BootstrapUser(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "User created")
	fmt.Fprintf(a.out, "  Username:  %s\n", created.Username)
	fmt.Fprintf(a.out, "  Role:      %s\n", created.Role)
	fmt.Fprintf(a.out, "  Protected: %t\n", created.Protected)
	fmt.Fprintf(a.out, "  ID:        %s\n", created.ID)
	if created.Password != "" {
		fmt.Fprintf(a.out, "\nGenerated password: %s\n", created.Password)
		fmt.Fprintln(a.out, "Save this password now; it cannot be retrieved later.")
	}
	return nil
}

func newUserCheckCmd(a *app) *cobra.Command {
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "check USERNAME",
		Short: "Show an account and optionally verify its password",
		Long: `Prints the stored account. With --password-stdin the password read from
standard input is verified the same way login does; the exit status is 1 when
the account could not log in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.checkUser(cmd.Context(), args[0], passwordStdin)
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read a password from stdin and verify it")
	return cmd
}

func (a *app) checkUser(ctx context.Context, username string, verify bool) error {
	var password string
	if verify {
		p, err := readSecret(a.in)
		if err != nil {
			return err
		}
		password = p
	}

	svc, closeFn, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	info, err := svc.FindUser(ctx, username)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Username:  %s\n", info.Username)
	fmt.Fprintf(a.out, "ID:        %s\n", info.ID)
	fmt.Fprintf(a.out, "Role:      %s\n", info.Role)
	fmt.Fprintf(a.out, "Active:    %t\n", info.IsActive)
	fmt.Fprintf(a.out, "Protected: %t\n", info.Protected)
	fmt.Fprintf(a.out, "Created:   %s\n", info.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))

	if !verify {
		return nil
	}
	if _, err := svc.CheckCredentials(ctx, username, password); err != nil {
		return fmt.Errorf("login would fail: %w", err)
	}
	fmt.Fprintln(a.out, "\nPassword is correct; the account can log in.")
	return nil
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}
