package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/csvportal/internal/bizdate"
	"github.com/JonMunkholm/csvportal/internal/config"
	"github.com/JonMunkholm/csvportal/internal/csvcheck"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type validateOptions struct {
	format   string
	timezone string
}

func newValidateCmd(a *app) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a licence file against the upload rules",
		Long: `Runs the same checks as the portal's upload validation on a local file.
The exit status is 1 when the file is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(a, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "", "Business timezone (default: BUSINESS_TIMEZONE or America/Bogota)")
	return cmd
}

func runValidate(a *app, opts *validateOptions, path string) error {
	switch opts.format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", opts.format)
	}

	tz := opts.timezone
	if tz == "" {
		var biz config.BusinessConfig
		if err := config.LoadSection(&biz); err != nil {
			return err
		}
		tz = biz.Timezone
	}
	calendar, err := bizdate.New(tz)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	verdict := csvcheck.New(calendar).Validate(content, filepath.Base(path))

	switch opts.format {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(verdict)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		err = enc.Encode(verdict)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	default:
		printVerdict(a.out, filepath.Base(path), verdict)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if !verdict.Valid {
		return errInvalidFile
	}
	return nil
}

func printVerdict(w io.Writer, name string, v csvcheck.Verdict) {
	status := "VALID"
	if !v.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s (%d data rows)\n", name, status, v.RowCount)

	if len(v.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(v.Errors))
		for _, e := range v.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if len(v.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(v.Warnings))
		for _, e := range v.Warnings {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if v.SuggestedFilename != nil {
		fmt.Fprintf(w, "\nUpload as: %s\n", *v.SuggestedFilename)
	}
}
