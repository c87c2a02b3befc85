package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prepost/adapters/excel"
	"prepost/internal/config"
	"prepost/internal/lsd"
	"prepost/internal/pipeline"
)

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&overrides.rawDir, "raw-dir", "", "Directory holding the yearly survey workbooks (PREPOST_RAW_DIR)")
	cmd.Flags().StringVar(&overrides.sources, "sources", "", "YAML list of sheets to read instead of the default workbooks (PREPOST_SOURCES)")
}

func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&overrides.treatment, "treatment", "", "Treatment column (LSD_TREATMENT)")
	cmd.Flags().StringVar(&overrides.response, "response", "", "Numeric response column (LSD_RESPONSE)")
	cmd.Flags().StringVar(&overrides.groupby, "groupby", "", "Column whose values define the analysed slices (LSD_GROUPBY)")
	cmd.Flags().Float64Var(&overrides.confidence, "confidence", lsd.DefaultConfidence, "Confidence level, 0 < c < 1 (LSD_CONFIDENCE)")
	cmd.Flags().IntVar(&overrides.workers, "workers", 4, "Slices analysed concurrently (LSD_WORKERS)")
}

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Read and clean the raw survey workbooks",
		Long: `Read every survey sheet, tag it with its cohort, clean and recode the
answers and write the wide table to the clean file.

Example: prepost clean --raw-dir data/raw --clean-file data/processed/girls_rock_data.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			raw, err := p.Ingest(cmd.Context())
			if err != nil {
				return err
			}
			wide, err := p.Clean(raw)
			if err != nil {
				return err
			}
			if err := p.WriteWide(cfg.Input.CleanFile, wide); err != nil {
				return err
			}
			printLine(cmd, "cleaned %d rows into %s", wide.Len(), cfg.Input.CleanFile)
			return nil
		},
	}
	addInputFlags(cmd)
	cmd.Flags().StringVar(&overrides.cleanFile, "clean-file", "", "Output file for the cleaned wide table, .csv or .xlsx (PREPOST_DATA_FILE)")
	return cmd
}

func newReshapeCmd() *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "reshape",
		Short: "Pair pre-test and post-test answers per client and question",
		Long: `Reshape the cleaned wide table into one row per (client, question) with
score_pretest, score_posttest and delta. Pairs present on only one side are
written to a separate file.

Example: prepost reshape --clean-file data/processed/girls_rock_data.csv --id-columns client,age_group,year,age,race/ethnicity`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			wide, err := excel.NewDataReader(cfg.Input.CleanFile, logger).ReadSheet(sheet, 0)
			if err != nil {
				return err
			}
			result, err := p.Reshape(wide)
			if err != nil {
				return err
			}
			files, err := p.WriteLong(cfg.Output.Dir, result)
			if err != nil {
				return err
			}
			printLine(cmd, "%d paired records, %d unmatched pairs: %v", len(result.Records), len(result.Dropped), files)
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.cleanFile, "clean-file", "", "Cleaned wide table to read (PREPOST_DATA_FILE)")
	cmd.Flags().StringVar(&sheet, "sheet", "data", "Sheet to read when the clean file is a workbook")
	cmd.Flags().StringSliceVar(&overrides.idColumns, "id-columns", nil, "Identifier columns kept on every long row (RESHAPE_ID_COLUMNS)")
	return cmd
}

func newLSDCmd() *cobra.Command {
	var input, sheet, value, figure string

	cmd := &cobra.Command{
		Use:   "lsd",
		Short: "Run Fisher's LSD over the paired records",
		Long: `Compare the treatment groups of every slice of the long table, or of a single
slice with --value, using Fisher's Least Significant Difference.

Example: prepost lsd --value 3 --treatment age_group --confidence 0.99`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = filepath.Join(cfg.Output.Dir, pipeline.LongFile)
			}
			long, err := excel.NewDataReader(input, logger).ReadSheet(sheet, 0)
			if err != nil {
				return err
			}

			if value != "" {
				return runSingleSlice(cmd, long, value, figure)
			}

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			analysis, err := p.Analyze(cmd.Context(), long)
			if err != nil {
				return err
			}
			rep := p.Report(pipeline.NewRunID(), long.Len(), 0, analysis)
			files, err := p.WriteAnalysis(cfg.Output.Dir, analysis, rep)
			if err != nil {
				return err
			}
			logger.Info("analysis written", zap.Strings("files", files))
			return printMarkdown(cmd, rep.Markdown())
		},
	}
	addAnalysisFlags(cmd)
	cmd.Flags().StringVar(&input, "input", "", "Long table to read (default: <output-dir>/"+pipeline.LongFile+")")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet to read when the input is a workbook")
	cmd.Flags().StringVar(&value, "value", "", "Analyse only the slice with this groupby value")
	cmd.Flags().StringVar(&figure, "figure", "", "With --value, write the Plotly figure JSON to this file")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean, reshape and compare in one pass",
		Long: `Run every stage and write all outputs: the cleaned wide table, the paired
long table, the LSD workbook, the HTML report and one Plotly figure per slice.
Results are also stored when DATABASE_URL is set (postgres:// or sqlite://).

Example: prepost run --raw-dir data/raw --output-dir data/processed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := pipeline.Run(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}
	addInputFlags(cmd)
	addAnalysisFlags(cmd)
	cmd.Flags().StringVar(&overrides.cleanFile, "clean-file", "", "Output file for the cleaned wide table (PREPOST_DATA_FILE)")
	cmd.Flags().StringSliceVar(&overrides.idColumns, "id-columns", nil, "Identifier columns kept on every long row (RESHAPE_ID_COLUMNS)")
	cmd.Flags().StringVar(&overrides.database, "database-url", "", "Store results in this database (DATABASE_URL)")
	return cmd
}

// newPipeline builds a pipeline for a single stage; only run persists, so no
// store is opened here
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if cfg.Input.SourcesFile != "" {
		sources, err := excel.LoadSources(cfg.Input.SourcesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithSources(sources...))
	}
	return pipeline.New(cfg, logger, opts...), nil
}

func writeFigure(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
