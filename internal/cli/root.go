// Package cli implements portalctl, the operator command line of the upload
// portal.
//
//	portalctl
//	├── validate FILE      check a licence file locally
//	├── user create        create an account
//	├── user superadmin    create a protected SUPERADMIN
//	├── user check         inspect an account, optionally verify its password
//	├── hash-password      argon2id hash of a password read from stdin
//	├── migrate            apply the database schema
//	└── version
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/config"
	"github.com/JonMunkholm/csvportal/internal/core"
	db "github.com/JonMunkholm/csvportal/internal/database"
	"github.com/JonMunkholm/csvportal/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// errInvalidFile makes validate exit with status 1 without an error banner;
// the report has already been printed.
var errInvalidFile = errors.New("file failed validation")

// app carries the I/O streams and the database hook shared by all commands.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	verbose bool

	// openService connects to the portal database. Tests replace it.
	openService func(ctx context.Context) (*core.Service, func(), error)
}

func newApp() *app {
	return &app{
		in:          os.Stdin,
		out:         os.Stdout,
		errOut:      os.Stderr,
		openService: openDatabaseService,
	}
}

// Execute runs portalctl and returns the process exit code.
func Execute() int {
	_ = godotenv.Overload()
	return run(newApp(), os.Args[1:])
}

func run(a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errInvalidFile) {
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Operate the daily licence file upload portal",
		Long: `portalctl validates licence files locally and manages the portal database.

Database commands read DATABASE_URL (and a .env file in the working directory).

Example Usage:
  portalctl validate 20240305.csv --format json
  portalctl user create alice --role ADMIN
  echo -n 'secret' | portalctl hash-password`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if a.verbose {
				level = "debug"
			}
			logging.Setup(level, "text", a.errOut)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newValidateCmd(a),
		newUserCmd(a),
		newHashPasswordCmd(a),
		newMigrateCmd(a),
		newVersionCmd(a),
	)
	return root
}

// openDatabaseService builds a service backed by DATABASE_URL. Blob storage
// and token signing are not configured.
func openDatabaseService(ctx context.Context) (*core.Service, func(), error) {
	var dbCfg config.DatabaseConfig
	if err := config.LoadSection(&dbCfg); err != nil {
		return nil, nil, err
	}
	var bizCfg config.BusinessConfig
	if err := config.LoadSection(&bizCfg); err != nil {
		return nil, nil, err
	}

	pool, err := db.Open(ctx, dbCfg.URL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	calendar, err := bizdate.New(bizCfg.Timezone)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	svc, err := core.NewService(db.NewStore(pool), nil, calendar, nil, core.Options{})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool.Close, nil
}
