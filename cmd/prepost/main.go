package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prepost/internal/config"
)

var (
	envFile string
	verbose bool
	plain   bool

	cfg    *config.Config
	logger *zap.Logger

	overrides flagOverrides
)

// flagOverrides hold CLI values that replace configuration when set
type flagOverrides struct {
	rawDir     string
	sources    string
	cleanFile  string
	outputDir  string
	treatment  string
	response   string
	groupby    string
	confidence float64
	workers    int
	idColumns  []string
	database   string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "prepost",
		Short: "Pre/post survey reshaping and Fisher's LSD pairwise comparison",
		Long: `prepost cleans the camp survey workbooks, pairs every client's pre-test and
post-test answers per question, and compares the change between treatment
groups with Fisher's Least Significant Difference.

Configuration is read from the environment (optionally a .env file) and can be
overridden with flags:
- PREPOST_RAW_DIR, PREPOST_SOURCES, PREPOST_DATA_FILE
- LSD_TREATMENT (default: race/ethnicity), LSD_RESPONSE (default: delta)
- LSD_GROUPBY (default: question), LSD_CONFIDENCE (default: 0.95), LSD_WORKERS
- RESHAPE_ID_COLUMNS, OUTPUT_DIR, DATABASE_URL, LOG_LEVEL`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Print plain Markdown instead of styled terminal output")
	rootCmd.PersistentFlags().StringVar(&overrides.outputDir, "output-dir", "", "Directory for all outputs (OUTPUT_DIR)")

	rootCmd.AddCommand(
		newCleanCmd(),
		newReshapeCmd(),
		newLSDCmd(),
		newRunCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return err
	}
	applyOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err = newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		return cmd.Flags().Lookup(name) != nil && cmd.Flags().Changed(name)
	}
	if changed("raw-dir") {
		cfg.Input.RawDir = overrides.rawDir
	}
	if changed("sources") {
		cfg.Input.SourcesFile = overrides.sources
	}
	if changed("clean-file") {
		cfg.Input.CleanFile = overrides.cleanFile
	}
	if changed("output-dir") {
		cfg.Output.Dir = overrides.outputDir
	}
	if changed("treatment") {
		cfg.Analysis.Treatment = overrides.treatment
	}
	if changed("response") {
		cfg.Analysis.Response = overrides.response
	}
	if changed("groupby") {
		cfg.Analysis.Groupby = overrides.groupby
	}
	if changed("confidence") {
		cfg.Analysis.Confidence = overrides.confidence
	}
	if changed("workers") {
		cfg.Analysis.Workers = overrides.workers
	}
	if changed("id-columns") {
		cfg.Analysis.IDColumns = overrides.idColumns
	}
	if changed("database-url") {
		cfg.Database.URL = overrides.database
	}
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}
