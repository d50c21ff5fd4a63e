package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/gartstein/ymm/internal/registry/config"
	"github.com/gartstein/ymm/internal/registry/controller"
	"github.com/gartstein/ymm/internal/registry/db"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what the subcommands share. The repository is opened on
// first use so that commands without a database do not need one.
type app struct {
	configPath string
	envFile    string
	operator   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	repo   *db.Repository
	svc    *controller.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ymmctl",
		Short:         "ymmctl - operator tool for the YMM registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultPath, "path to the registry config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with YMM_* overrides")
	flags.StringVar(&a.operator, "as", "ymmctl", "username recorded in the audit log")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newMigrateCmd(a),
		newYearCmd(a),
		newCountersCmd(a),
		newVerifyCmd(a),
		newEventsCmd(a),
	)
	return root
}

func (a *app) init() error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", a.envFile, err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if a.verbose {
		logCfg = zap.NewDevelopmentConfig()
	}
	a.logger, err = logCfg.Build()
	return err
}

func (a *app) close() error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.repo != nil {
		return a.repo.Close()
	}
	return nil
}

// actor is the operator identity. ymmctl talks to the database directly,
// so it acts with full rights.
func (a *app) actor() models.Actor {
	return models.Actor{Username: a.operator, IsStaff: true, IsSuperuser: true}
}

func (a *app) repository() (*db.Repository, error) {
	if a.repo == nil {
		repo, err := db.NewRepository(a.cfg.Database())
		if err != nil {
			return nil, err
		}
		a.repo = repo
	}
	return a.repo, nil
}

func (a *app) service() (*controller.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	repo, err := a.repository()
	if err != nil {
		return nil, err
	}
	engine := numbering.NewEngine(a.cfg.LicenseNo, a.cfg.ManualCutoffYear, a.logger)
	// Changes made here are not published; the registry is the only producer.
	a.svc = controller.NewService(repo, engine, events.NopProducer{}, controller.Options{
		DefaultWorkingYear: a.cfg.DefaultWorkingYear(time.Now()),
	}, a.logger)
	return a.svc, nil
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1900 || year > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the registry schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.repository()
			if err != nil {
				return err
			}
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", repo.Dialect())
			return nil
		},
	}
}
