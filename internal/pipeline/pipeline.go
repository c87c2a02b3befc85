// Package pipeline wires ingestion, cleaning, reshaping and the pairwise
// comparison into one run, and writes every output of that run.
package pipeline

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prepost/adapters/excel"
	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/cleaning"
	"prepost/internal/config"
	"prepost/internal/errors"
	"prepost/internal/lsd"
	"prepost/internal/report"
	"prepost/internal/reshape"
	"prepost/internal/store"
)

// Pipeline runs the analysis stages with one configuration
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	sources  []excel.Source
	layout   cleaning.Layout
	cleaning cleaning.Options
	reshape  reshape.Options
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithStore persists records and results of every run
func WithStore(s *store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithSources replaces the default survey workbooks
func WithSources(sources ...excel.Source) Option {
	return func(p *Pipeline) { p.sources = sources }
}

// WithLayout replaces the positional description of the raw sheets
func WithLayout(l cleaning.Layout) Option {
	return func(p *Pipeline) { p.layout = l }
}

// WithCleaning replaces the cleaning options; Layout still fills the
// positional column lists
func WithCleaning(opts cleaning.Options) Option {
	return func(p *Pipeline) { p.cleaning = opts }
}

// New creates a pipeline. The logger may be nil.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	reshapeOpts := reshape.DefaultOptions()
	reshapeOpts.IDColumns = cfg.Analysis.IDColumns

	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		sources:  excel.DefaultSources(cfg.Input.RawDir),
		layout:   cleaning.DefaultLayout(),
		cleaning: cleaning.DefaultOptions(),
		reshape:  reshapeOpts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Slice is the analysis of one groupby value
type Slice struct {
	GroupbyValue string
	ANOVA        lsd.AnovaTable
	Results      []survey.PairwiseResult
	Summaries    []survey.GroupSummary
	Series       []survey.ComparisonSeries
	Figure       []byte
}

// Analysis holds every slice of a long table, in order of first appearance
// of the groupby value
type Analysis struct {
	Slices  []Slice
	Skipped []report.Skipped
}

// Summary describes a completed run
type Summary struct {
	RunID    uuid.UUID
	Wide     int
	Records  int
	Dropped  int
	Analysis *Analysis
	Files    []string
}

// Ingest reads and stacks the raw survey sheets
func (p *Pipeline) Ingest(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return excel.ReadSources(p.sources, p.logger)
}

// Clean resolves the raw layout and cleans the stacked sheets
func (p *Pipeline) Clean(raw *frame.Frame) (*frame.Frame, error) {
	opts, err := p.layout.Resolve(raw, p.cleaning)
	if err != nil {
		return nil, err
	}
	wide, err := cleaning.Clean(raw, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Info("survey cleaned",
		zap.Int("rows", wide.Len()),
		zap.Int("columns", wide.Width()),
		zap.Int("dropped_columns", len(opts.Drop)))
	return wide, nil
}

// Reshape turns the cleaned wide table into paired long records
func (p *Pipeline) Reshape(wide *frame.Frame) (*reshape.Result, error) {
	result, err := reshape.Reshape(wide, p.reshape)
	if err != nil {
		return nil, err
	}
	if len(result.Dropped) > 0 {
		p.logger.Warn("unmatched pre/post pairs dropped", zap.Int("count", len(result.Dropped)))
	}
	p.logger.Info("survey reshaped",
		zap.Int("records", len(result.Records)),
		zap.Strings("identifiers", result.IDColumns))
	return result, nil
}

// Analyze runs the comparison for every distinct groupby value of long.
// Slices run concurrently. A slice with fewer than two treatment groups or a
// degenerate fit is recorded as skipped with its reason; any other failure
// aborts the analysis.
func (p *Pipeline) Analyze(ctx context.Context, long *frame.Frame) (*Analysis, error) {
	a := p.cfg.Analysis
	values, err := long.Distinct(a.Groupby)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline: list slices")
	}

	slices := make([]*Slice, len(values))
	var (
		mu      sync.Mutex
		skipped = make(map[int]report.Skipped)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Workers)
	for i, value := range values {
		i, value := i, value
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := p.analyzeSlice(long, value)
			if skippable(err) {
				p.logger.Warn("slice skipped", zap.String(a.Groupby, value), zap.Error(err))
				mu.Lock()
				skipped[i] = report.Skipped{GroupbyValue: value, Reason: err.Error()}
				mu.Unlock()
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "pipeline: %s %s", a.Groupby, value)
			}
			slices[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Analysis{}
	for i := range values {
		if slices[i] != nil {
			out.Slices = append(out.Slices, *slices[i])
		} else if s, ok := skipped[i]; ok {
			out.Skipped = append(out.Skipped, s)
		}
	}
	p.logger.Info("slices analysed", zap.Int("analysed", len(out.Slices)), zap.Int("skipped", len(out.Skipped)))
	return out, nil
}

// skippable reports whether a slice failure leaves the other slices valid
func skippable(err error) bool {
	return stderrors.Is(err, errors.InsufficientGroups("")) ||
		stderrors.Is(err, errors.New(errors.CodeComputation, ""))
}

func (p *Pipeline) analyzeSlice(long *frame.Frame, value string) (*Slice, error) {
	a := p.cfg.Analysis
	cmp, err := lsd.New(long, a.Treatment, a.Response, a.Groupby, value, lsd.WithConfidence(a.Confidence))
	if err != nil {
		return nil, err
	}
	c, err := cmp.Compare()
	if err != nil {
		return nil, err
	}
	p.logger.Debug("slice analysed",
		zap.String(a.Groupby, value),
		zap.Int("groups", len(cmp.Groups())),
		zap.Float64("f", c.ANOVA.F),
		zap.Float64("p", c.ANOVA.PValue))
	return &Slice{
		GroupbyValue: value,
		ANOVA:        c.ANOVA,
		Results:      c.Results,
		Summaries:    c.Summaries,
		Series:       c.Series,
		Figure:       c.Figure,
	}, nil
}

// Report builds the run report of an analysis
func (p *Pipeline) Report(runID uuid.UUID, records, dropped int, analysis *Analysis) *report.Report {
	a := p.cfg.Analysis
	r := &report.Report{
		RunID:      runID.String(),
		Title:      "Pre/post change by " + a.Treatment,
		Treatment:  a.Treatment,
		Response:   a.Response,
		Groupby:    a.Groupby,
		Confidence: a.Confidence,
		Records:    records,
		Dropped:    dropped,
		Skipped:    analysis.Skipped,
	}
	for _, s := range analysis.Slices {
		r.Sections = append(r.Sections, report.Section{
			GroupbyValue: s.GroupbyValue,
			ANOVA:        s.ANOVA,
			Results:      s.Results,
			Summaries:    s.Summaries,
		})
	}
	return r
}

// Run executes every stage over the configured sources and writes outputs
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := NewRunID()
	logger := p.logger.With(zap.String("run_id", runID.String()))
	logger.Info("run started", zap.Int("sources", len(p.sources)))

	raw, err := p.Ingest(ctx)
	if err != nil {
		return nil, err
	}
	wide, err := p.Clean(raw)
	if err != nil {
		return nil, err
	}
	reshaped, err := p.Reshape(wide)
	if err != nil {
		return nil, err
	}
	long := reshaped.Frame()
	analysis, err := p.Analyze(ctx, long)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:    runID,
		Wide:     wide.Len(),
		Records:  len(reshaped.Records),
		Dropped:  len(reshaped.Dropped),
		Analysis: analysis,
	}

	files, err := p.writeOutputs(wide, reshaped, analysis, p.Report(runID, summary.Records, summary.Dropped, analysis))
	if err != nil {
		return nil, err
	}
	summary.Files = files

	if p.store != nil {
		if err := p.persist(ctx, runID, reshaped.Records, analysis); err != nil {
			return nil, err
		}
	}

	logger.Info("run finished",
		zap.Int("records", summary.Records),
		zap.Int("slices", len(analysis.Slices)),
		zap.Strings("files", files))
	return summary, nil
}

func (p *Pipeline) persist(ctx context.Context, runID uuid.UUID, records []survey.LongRecord, analysis *Analysis) error {
	a := p.cfg.Analysis
	if err := p.store.Migrate(ctx); err != nil {
		return err
	}
	if err := p.store.SaveRun(ctx, store.Run{
		ID:         runID,
		Treatment:  a.Treatment,
		Response:   a.Response,
		Groupby:    a.Groupby,
		Confidence: a.Confidence,
	}); err != nil {
		return err
	}
	if err := p.store.SaveLongRecords(ctx, runID, records); err != nil {
		return err
	}
	for _, s := range analysis.Slices {
		if err := p.store.SaveResults(ctx, runID, s.GroupbyValue, s.Results); err != nil {
			return err
		}
	}
	return nil
}

// NewRunID returns a time-ordered run identifier
func NewRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Options translates cfg into pipeline options: the configured source list
// and, when a database URL is set, an open results store. The returned
// closer releases the store.
func Options(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]Option, func(), error) {
	var opts []Option
	closer := func() {}
	if cfg.Input.SourcesFile != "" {
		sources, err := excel.LoadSources(cfg.Input.SourcesFile)
		if err != nil {
			return nil, closer, err
		}
		opts = append(opts, WithSources(sources...))
	}
	if cfg.Database.URL != "" {
		s, err := store.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { _ = s.Close() }
		opts = append(opts, WithStore(s))
	}
	return opts, closer, nil
}

// Run builds the pipeline described by cfg and runs it
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Summary, error) {
	opts, closer, err := Options(ctx, cfg, logger)
	defer closer()
	if err != nil {
		return nil, err
	}
	return New(cfg, logger, opts...).Run(ctx)
}
