// Package main is the entry point for the CodeCrow application.
// CodeCrow reviews pull requests with an external AI service and publishes
// the findings back to the VCS.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/git/providers"
	"github.com/rostilos/CodeCrow-sub008/internal/git/prurl"
	"github.com/rostilos/CodeCrow-sub008/internal/lock"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/idgen"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// Build information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// configPath holds the path to the configuration file
var configPath string

var rootCmd = &cobra.Command{
	Use:   "codecrow",
	Short: "CodeCrow - AI pull request review service",
	Long: `CodeCrow receives VCS webhooks, sends pull request diffs to an AI review
service and publishes the resulting issues back to the pull request.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CodeCrow %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.HasCode(err, errors.ErrCodeConfigInvalid) {
		return errors.ExitCodeConfigValidation
	}
	return 1
}

// loadValidConfig loads the configuration, applies overrides, validates it
// and initializes the logger from it
func loadValidConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// runtime is the wired analysis core shared by serve and analyze
type runtime struct {
	store        store.Store
	providers    *providers.Set
	parser       *prurl.Parser
	locks        *lock.Manager
	orchestrator *orchestrator.Orchestrator
}

// buildRuntime opens the database, syncs configured projects and wires the
// orchestrator. Callers close the database.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := database.Init(cfg.Database); err != nil {
		return nil, err
	}
	dataStore := store.NewStore(database.Get())

	for i := range cfg.Projects {
		if err := dataStore.Project().Save(ctx, cfg.Projects[i].ToModel()); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to sync project "+cfg.Projects[i].Repo, err)
		}
	}

	set := providers.NewSet(cfg.ProviderOptions())
	parser := prurl.NewParser()
	for _, p := range cfg.Providers {
		parser.RegisterBaseURL(p.Type, p.URL)
	}

	instanceID := cfg.Analysis.InstanceID
	if instanceID == "" {
		instanceID = idgen.NewInstanceID()
	}
	locks := lock.NewManager(dataStore.Lock(), lock.Options{
		OwnerInstanceID: instanceID,
		TTL:             cfg.Analysis.LockTTL(),
		PollInterval:    cfg.Analysis.PollInterval(),
	})

	ai, err := aiclient.New(aiclient.Config{
		Endpoint: cfg.AI.Endpoint,
		Timeout:  cfg.AI.AITimeout(),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to create AI client", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		LockWait:         cfg.Analysis.LockWait(),
		OutputLanguage:   cfg.AI.OutputLanguage,
		MaxAllowedTokens: cfg.AI.MaxAllowedTokens,
		MaxFileChecks:    cfg.Analysis.MaxFileChecks,
	}, orchestrator.Deps{
		Locks:     locks,
		Analyses:  dataStore.Analysis(),
		AI:        ai,
		Providers: set,
	})

	return &runtime{
		store:        dataStore,
		providers:    set,
		parser:       parser,
		locks:        locks,
		orchestrator: orch,
	}, nil
}
