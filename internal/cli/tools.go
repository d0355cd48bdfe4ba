package cli

import (
	"fmt"
	"runtime"

	"github.com/JonMunkholm/csvportal/internal/auth"
	"github.com/JonMunkholm/csvportal/internal/config"
	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/spf13/cobra"
)

// Version and BuildDate are set at build time:
//
//	go build -ldflags "-X github.com/JonMunkholm/csvportal/internal/cli.Version=1.2.0"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the portalctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "portalctl %s\n", Version)
			fmt.Fprintf(a.out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(a.out, "Go Version: %s\n", runtime.Version())
		},
	}
}

func newHashPasswordCmd(a *app) *cobra.Command {
	params := auth.DefaultArgon2Params
	var memory, iterations, parallelism uint
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print the argon2id hash of a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations < 1 || parallelism < 1 || parallelism > 255 || memory < 8*parallelism {
				return fmt.Errorf("invalid argon2 parameters: memory=%d iterations=%d parallelism=%d", memory, iterations, parallelism)
			}
			password, err := readSecret(a.in)
			if err != nil {
				return err
			}
			params.Memory = uint32(memory)
			params.Iterations = uint32(iterations)
			params.Parallelism = uint8(parallelism)

			hash, err := auth.HashPassword(password, params)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, hash)
			return nil
		},
	}
	cmd.Flags().UintVar(&memory, "memory", uint(params.Memory), "Argon2 memory in KiB")
	cmd.Flags().UintVar(&iterations, "iterations", uint(params.Iterations), "Argon2 iterations")
	cmd.Flags().UintVar(&parallelism, "parallelism", uint(params.Parallelism), "Argon2 parallelism")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var dbCfg config.DatabaseConfig
			if err := config.LoadSection(&dbCfg); err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.Open(ctx, dbCfg.URL, db.PoolOptions{MaxConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Schema applied")
			return nil
		},
	}
}
