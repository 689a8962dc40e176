package main

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/okian/tutormarket/internal/adapters/repository"
	service "github.com/okian/tutormarket/internal/app"
	"github.com/okian/tutormarket/internal/config"
	"github.com/okian/tutormarket/pkg/logger"
)

// runtimeEnv is shared by every subcommand once the root has loaded config.
type runtimeEnv struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
	log      logger.Logger
}

func newRootCommand() *cobra.Command {
	env := &runtimeEnv{}

	root := &cobra.Command{
		Use:   "tutormarket",
		Short: "Market-based tutor pricing and search ranking",
		Long: `tutormarket suggests hourly prices for tutor profiles from comparable
peers and ranks tutors for search.

Examples:
  tutormarket migrate
  tutormarket seed --profiles 1500
  tutormarket serve
  tutormarket suggest <profile-id> --months 6 --grade grade_10
  tutormarket rank <profile-id> --interest algebra`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&env.cfgFile, "config", "", "YAML config file (default $TUTORMARKET_CONFIG)")
	root.PersistentFlags().StringVar(&env.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(env),
		newMigrateCommand(env),
		newSeedCommand(env),
		newSuggestCommand(env),
		newRankCommand(env),
	)
	return root
}

// load reads config and initializes logging on stderr, keeping stdout for
// command output.
func (e *runtimeEnv) load(cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(cmd.Context(), e.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	if err := logger.InitWith(cfg.LogFormat, cmd.ErrOrStderr()); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	e.cfg = cfg
	e.log = logger.Named("cli")
	return nil
}

func (e *runtimeEnv) openStore() (*repository.Store, error) {
	store, err := repository.Open(e.cfg.DBDriver, e.cfg.DBDSN, repository.WithLogger(logger.Named("repository")))
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newService maps config onto service options.
func (e *runtimeEnv) newService(store *repository.Store) *service.Service {
	c := e.cfg
	return service.New(store,
		service.WithLogger(logger.Named("service")),
		service.WithWorkerCount(c.LogWorkerCount),
		service.WithQueueSize(c.LogQueueSize),
		service.WithDedupeSize(c.AcceptanceDedupeSize),
		service.WithSinkBreaker(c.SinkFailureThreshold, c.SinkOpenTimeout()),
		service.WithPricingConfig(c.Pricing),
		service.WithRankingCaps(c.Ranking),
		service.WithRankingConcurrency(c.RankingConcurrency),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
