package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/api/handler"
	"github.com/rostilos/CodeCrow-sub008/internal/check"
	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/idgen"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Check that the configuration file exists and is valid.

Use --init on a new installation to create the file from the bundled
template, and --db to also verify the database connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []check.Option
		if initFlag, _ := cmd.Flags().GetBool("init"); initFlag {
			opts = append(opts, check.WithInteractive(nil))
		}
		if dbFlag, _ := cmd.Flags().GetBool("db"); dbFlag {
			opts = append(opts, check.WithDatabase())
			defer database.Close()
		}

		check.PrintHeader(os.Stdout)
		result := check.NewChecker(configPath, opts...).Run()
		check.PrintCheckResult(os.Stdout, result)

		if !result.Success {
			return errors.New(errors.ErrCodeConfigInvalid, "environment check failed")
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pr-url>",
	Short: "Analyze a pull request and print the progress",
	Long: `Run one analysis synchronously for a pull request URL, e.g.

  codecrow analyze https://github.com/acme/api/pull/42

The repository must be a configured project. Results are persisted and
published exactly as for webhook-triggered analyses.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and maintain analysis locks",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active analysis locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataStore, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		locks, err := dataStore.Lock().ListActive(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}
		if len(locks) == 0 {
			fmt.Println("No active locks")
			return nil
		}
		for _, l := range locks {
			fmt.Printf("%s  owner=%s  expires=%s\n", l.LockKey, l.OwnerInstanceID, l.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

var locksPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired analysis locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataStore, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		n := store.NewLockCleanupService(dataStore.Lock(), "").Purge(cmd.Context())
		fmt.Printf("Purged %d expired lock(s)\n", n)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for the analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New(errors.ErrCodeConfigInvalid, "auth.jwt_secret is not set")
		}

		subject, _ := cmd.Flags().GetString("subject")
		expiry, _ := cmd.Flags().GetDuration("expiry")
		if expiry <= 0 {
			expiry = time.Duration(cfg.Auth.TokenExpiry) * time.Hour
		}

		token, expiresAt, err := handler.NewTokenService(cfg.Auth.JWTSecret, expiry).Issue(subject)
		if err != nil {
			return err
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
		return nil
	},
}

var tokenSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random value for auth.jwt_secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetInt("length")
		if length < minSecretLength {
			return errors.New(errors.ErrCodeValidation, fmt.Sprintf("secret length must be at least %d", minSecretLength))
		}
		fmt.Fprintln(cmd.OutOrStdout(), idgen.NewSecureSecret(length))
		return nil
	},
}

const minSecretLength = 32

func init() {
	checkCmd.Flags().Bool("init", false, "offer to create a missing config file from the template")
	checkCmd.Flags().Bool("db", false, "also check the database connection")

	analyzeCmd.Flags().String("commit", "", "commit to analyze (default: PR head)")
	analyzeCmd.Flags().String("language", "", "output language (overrides config)")

	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksPurgeCmd)

	tokenIssueCmd.Flags().String("subject", "cli", "token subject, logged as the requester")
	tokenIssueCmd.Flags().Duration("expiry", 0, "token lifetime (default: auth.expiry_hours)")
	tokenSecretCmd.Flags().Int("length", 48, "secret length in characters")
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenSecretCmd)
}

// openStore loads the configuration and opens the database
func openStore() (store.Store, error) {
	cfg, err := loadValidConfig()
	if err != nil {
		return nil, err
	}
	if err := database.Init(cfg.Database); err != nil {
		return nil, err
	}
	return store.NewStore(database.Get()), nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	info, err := rt.parser.Parse(args[0])
	if err != nil {
		return errors.Wrap(errors.ErrCodeValidation, "invalid pull request URL", err)
	}

	project, err := rt.store.Project().GetByRepo(ctx, info.Provider, info.Owner, info.Repo)
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(errors.ErrCodeNotFound,
			fmt.Sprintf("%s/%s on %s is not a configured project", info.Owner, info.Repo, info.Provider))
	}
	if err != nil {
		return err
	}

	commit, _ := cmd.Flags().GetString("commit")
	language, _ := cmd.Flags().GetString("language")

	res := rt.orchestrator.Run(ctx, orchestrator.Request{
		Project:        project,
		PRNumber:       info.Number,
		CommitHash:     commit,
		OutputLanguage: language,
		Author:         "cli",
	}, printEvent)

	printResult(res)
	return res.Err
}

// printEvent writes one stream event as a progress line
func printEvent(ev aiclient.Event) {
	cyan := color.New(color.FgCyan)
	if ev.IsFinal() {
		return
	}
	if msg := ev.Message(); msg != "" {
		cyan.Printf("[%s] ", ev.Type)
		fmt.Println(msg)
	}
}

func printResult(res *orchestrator.Result) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	switch res.Outcome {
	case orchestrator.OutcomeSuccess, orchestrator.OutcomeCacheHit:
		green.Printf("✓ %s\n", res.Outcome)
	case orchestrator.OutcomeLockTimeout:
		yellow.Printf("⚠ %s: %s\n", res.Outcome, res.LockKey)
	default:
		red.Printf("✗ %s\n", res.Outcome)
	}

	if a := res.Analysis; a != nil {
		fmt.Printf("  analysis #%d  commit %s  version %d\n", a.ID, a.CommitHash, a.PRVersion)
		fmt.Printf("  issues: %d (high %d, medium %d, low %d, info %d), resolved %d\n",
			a.TotalIssues, a.HighSeverityCount, a.MediumSeverityCount, a.LowSeverityCount, a.InfoSeverityCount, a.ResolvedCount)
	}
	for _, w := range res.Warnings {
		yellow.Printf("  warning: %s\n", w)
	}
	if len(res.Trace) > 0 {
		states := make([]string, len(res.Trace))
		for i, s := range res.Trace {
			states[i] = string(s)
		}
		fmt.Printf("  trace: %s\n", strings.Join(states, " → "))
	}
}
