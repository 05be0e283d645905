package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/console"
	"startup-positioning-map/internal/envutil"
	"startup-positioning-map/internal/pipeline"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	envFile       string
	projectDir    string
	failurePolicy string
	failFast      bool
	logLevel      string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var flags pipeline.Flags

	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the AI startup positioning map pipeline",
		Long: `Runs the data pipeline: bootstrap the Python environment when needed,
then scrape, process, analyze and launch the dashboard.

With no mode flag the full pipeline runs. --setup only prepares the
environment; a single stage flag runs just that stage.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := pipeline.PlanFor(flags)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, plan, streamsFor(cmd))
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	f := rootCmd.Flags()
	f.BoolVar(&flags.Setup, "setup", false, "Only set up the Python environment")
	f.BoolVar(&flags.Scrape, "scrape", false, "Only run the scrapers")
	f.BoolVar(&flags.Process, "process", false, "Only process the scraped data")
	f.BoolVar(&flags.Analyze, "analyze", false, "Only run the clustering analysis")
	f.BoolVar(&flags.Dashboard, "dashboard", false, "Only launch the dashboard")
	f.BoolVar(&flags.All, "all", false, "Run the full pipeline (default)")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", "", "Env file loaded before reading configuration (default $PIPELINE_ENV_FILE or .env)")
	pf.StringVar(&opts.projectDir, "project-dir", ".", "Project root holding the venv, requirements and scripts")
	pf.StringVar(&opts.failurePolicy, "failure-policy", config.FailurePolicyFail, "What to do when bootstrap fails: fail or prompt")
	pf.BoolVar(&opts.failFast, "fail-fast", false, "Stop at the first failed stage")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newDoctorCmd(opts),
		newHistoryCmd(opts),
		newLabelClustersCmd(opts),
	)
	return rootCmd
}

// loadConfig loads the env file, applies flags the operator set on top of
// the environment and validates the result.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := o.loadViper(cmd)
	if err != nil {
		return nil, err
	}
	return config.NewConfig(v)
}

func (o *globalOptions) loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	fl := cmd.Flags()
	if err := loadEnvFile(o.envFile, fl.Changed("env-file")); err != nil {
		return nil, err
	}

	v := config.NewViper()
	if fl.Changed("project-dir") {
		v.Set("PROJECT_DIR", o.projectDir)
	}
	if fl.Changed("failure-policy") {
		v.Set("BOOTSTRAP_FAILURE_POLICY", o.failurePolicy)
	}
	if fl.Changed("fail-fast") {
		v.Set("PIPELINE_FAIL_FAST", strconv.FormatBool(o.failFast))
	}
	if fl.Changed("log-level") {
		v.Set("LOG_LEVEL", o.logLevel)
	}
	return v, nil
}

// loadEnvFile never overrides variables already set in the environment. A
// missing default file is fine; a missing explicit one is not.
func loadEnvFile(path string, explicit bool) error {
	if strings.TrimSpace(path) == "" {
		path = envutil.String(os.Getenv, "PIPELINE_ENV_FILE", ".env")
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &exitError{code: exitUsage, err: fmt.Errorf("load env file %s: %w", path, err)}
	}
	return nil
}

func streamsFor(cmd *cobra.Command) console.Streams {
	return console.Streams{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	}
}
