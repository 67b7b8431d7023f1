package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bookportal/internal/admintoken"
	"bookportal/internal/util"
	"bookportal/pkg/domain"
	"bookportal/services/book/internal/app"
	"bookportal/services/book/internal/config"
)

// errUnhealthy makes the process exit non-zero when a run found problems.
var errUnhealthy = errors.New("storage is not fully aligned")

type appOpener func(ctx context.Context, fc config.FileConfig, logger *slog.Logger) (*app.App, error)

func openApp(ctx context.Context, fc config.FileConfig, logger *slog.Logger) (*app.App, error) {
	return app.New(ctx, app.ConfigFromFile(fc, logger))
}

type cli struct {
	out  io.Writer
	open appOpener

	configPath  string
	logLevel    string
	jsonOutput  bool
	concurrency int
	strict      bool
}

func newRootCmd(out io.Writer, open appOpener) *cobra.Command {
	c := &cli{out: out, open: open}
	root := &cobra.Command{
		Use:           "bookctl",
		Short:         "Audit and repair e-book storage alignment",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default $BOOK_CONFIG or config.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")
	flags.BoolVar(&c.jsonOutput, "json", false, "print full JSON results")
	flags.IntVar(&c.concurrency, "concurrency", 0, "parallel rows for repair and cleanup (overrides config)")
	flags.BoolVar(&c.strict, "strict", false, "resolve by exact key and prefix variants only")

	root.AddCommand(
		&cobra.Command{
			Use:   "audit",
			Short: "Classify every active book as accessible, path-mismatch or missing",
			Args:  cobra.NoArgs,
			RunE:  c.runAudit,
		},
		newRepairCmd(c),
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete placeholder catalog rows and temp objects",
			Args:  cobra.NoArgs,
			RunE:  c.runCleanup,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check active books by exact object key",
			Args:  cobra.NoArgs,
			RunE:  c.runValidate,
		},
		&cobra.Command{
			Use:   "resolve <path>",
			Short: "Show which object a recorded path resolves to",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runResolve,
		},
		newTokenCmd(c),
	)
	return root
}

func (c *cli) loadConfig() (config.FileConfig, error) {
	fc, err := config.Load(c.configPath)
	if err != nil {
		return fc, err
	}
	if c.concurrency > 0 {
		fc.ReconcileWorkers = c.concurrency
	}
	if c.strict {
		fc.StrictResolve = true
	}
	return fc, nil
}

func (c *cli) app(ctx context.Context) (*app.App, error) {
	fc, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := util.InitLogger(nil, c.logLevel)
	return c.open(ctx, fc, logger)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) runAudit(cmd *cobra.Command, _ []string) error {
	a, err := c.app(cmd.Context())
	if err != nil {
		return err
	}
	report, err := a.Audit(cmd.Context())
	if err != nil {
		return err
	}
	if c.jsonOutput {
		return c.printJSON(report)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOOK\tTITLE\tRECORDED\tCLASS\tSUGGESTED")
	for _, e := range report.Entries {
		if e.Class == domain.FileAccessible {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.BookID, e.Title, e.DatabasePath, e.Class, e.SuggestedPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printSummary(c.out, report.Summary)
	if report.Summary.PathMismatches+report.Summary.MissingFiles > 0 {
		return errUnhealthy
	}
	return nil
}

func printSummary(w io.Writer, s domain.AuditSummary) {
	fmt.Fprintf(w, "total=%d accessible=%d path-mismatch=%d missing=%d\n",
		s.TotalBooks, s.AccessibleFiles, s.PathMismatches, s.MissingFiles)
}

func newRepairCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Audit, then point mismatched records at the object that exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}
			if dryRun {
				report, err := a.Audit(cmd.Context())
				if err != nil {
					return err
				}
				for _, m := range report.Mismatches {
					if m.Exists && m.SuggestedPath != "" {
						fmt.Fprintf(c.out, "would fix %s: %s -> %s\n", m.BookID, m.DatabasePath, m.SuggestedPath)
					}
				}
				return nil
			}
			report, err := a.Repair(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(report)
			}
			fmt.Fprintf(c.out, "fixed=%d failed=%d\n", report.Fixed, report.Failed)
			for _, msg := range report.Errors {
				fmt.Fprintln(c.out, "  "+msg)
			}
			if report.Summary != nil {
				printSummary(c.out, *report.Summary)
			}
			if report.Failed > 0 {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print the changes")
	return cmd
}

func (c *cli) runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := c.app(cmd.Context())
	if err != nil {
		return err
	}
	res := a.Cleanup(cmd.Context())
	if c.jsonOutput {
		return c.printJSON(res)
	}
	fmt.Fprintf(c.out, "cleaned=%d objects-removed=%d\n", res.Cleaned, res.ObjectsRemoved)
	for _, msg := range res.Errors {
		fmt.Fprintln(c.out, "  "+msg)
	}
	if len(res.Errors) > 0 {
		return errUnhealthy
	}
	return nil
}

func (c *cli) runValidate(cmd *cobra.Command, _ []string) error {
	a, err := c.app(cmd.Context())
	if err != nil {
		return err
	}
	res, err := a.Validate(cmd.Context())
	if err != nil {
		return err
	}
	if c.jsonOutput {
		return c.printJSON(res)
	}
	fmt.Fprintf(c.out, "valid=%d invalid=%d\n", res.Valid, res.Invalid)
	for _, issue := range res.Issues {
		fmt.Fprintln(c.out, "  "+issue)
	}
	if res.Invalid > 0 {
		return errUnhealthy
	}
	return nil
}

func (c *cli) runResolve(cmd *cobra.Command, args []string) error {
	a, err := c.app(cmd.Context())
	if err != nil {
		return err
	}
	res, err := a.ResolvePath(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if c.jsonOutput {
		return c.printJSON(res)
	}
	if !res.Exists {
		fmt.Fprintf(c.out, "%s: not found\n", args[0])
		return errUnhealthy
	}
	fmt.Fprintf(c.out, "%s -> %s\n", args[0], res.ActualPath)
	return nil
}

func newTokenCmd(c *cli) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token for the storage endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := c.loadConfig()
			if err != nil {
				return err
			}
			signer, err := admintoken.NewSigner(fc.AdminTokenSecret, ttl)
			if err != nil {
				return err
			}
			token, err := signer.Sign(strings.TrimSpace(subject), admintoken.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "who the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", admintoken.DefaultTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
