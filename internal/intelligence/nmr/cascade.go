package nmr

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// Options tunes a Cascade. Zero timeouts disable the per-stage deadline.
type Options struct {
	LLMTimeout      time.Duration
	WebTimeout      time.Duration
	LocalTimeout    time.Duration
	MaxSMILESLength int
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithLLM installs the language-model back-end.
func WithLLM(r LLMResponder) Option { return func(c *Cascade) { c.llm = r } }

// WithWebPredictor installs the web prediction back-end.
func WithWebPredictor(w WebPredictor) Option { return func(c *Cascade) { c.web = w } }

// WithLocalPredictor installs the offline back-end.
func WithLocalPredictor(l LocalPredictor) Option { return func(c *Cascade) { c.local = l } }

// WithConverter installs the structure-to-SMILES converter.
func WithConverter(sc StructureConverter) Option { return func(c *Cascade) { c.converter = sc } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(c *Cascade) { c.logger = logging.OrNop(l) } }

// WithOptions sets timeouts and limits.
func WithOptions(o Options) Option { return func(c *Cascade) { c.opts = o } }

// ─────────────────────────────────────────────────────────────────────────────
// Cascade
// ─────────────────────────────────────────────────────────────────────────────

// Cascade runs the back-ends in priority order and stops at the first one
// that yields peaks. The local stage is terminal and always produces a
// result, possibly empty. A Cascade is safe for concurrent use.
type Cascade struct {
	catalog   *Catalog
	extractor *Extractor
	llm       LLMResponder
	web       WebPredictor
	local     LocalPredictor
	converter StructureConverter
	logger    logging.Logger
	opts      Options
}

// NewCascade builds a cascade over catalog. Back-ends left unset are skipped.
func NewCascade(catalog *Catalog, opts ...Option) *Cascade {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	c := &Cascade{
		catalog:   catalog,
		extractor: NewExtractor(catalog),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.opts.MaxSMILESLength <= 0 {
		c.opts.MaxSMILESLength = DefaultMaxSMILESLength
	}
	return c
}

// Catalog returns the catalog the cascade clusters with.
func (c *Cascade) Catalog() *Catalog { return c.catalog }

// runState carries per-run structure information between stages.
type runState struct {
	id        string
	input     string
	smiles    string
	smilesErr error
}

type stageFunc func(ctx context.Context, run *runState) (types.PredictionResult, error)

type stage struct {
	name    types.Stage
	timeout time.Duration
	run     stageFunc
	// terminal stages always succeed; an error becomes the diagnostic reason.
	terminal bool
}

// errSkipped marks a stage that was not attempted.
var errSkipped = stderrors.New("stage skipped")

func skip(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errSkipped, fmt.Sprintf(format, args...))
}

func (c *Cascade) stages() []stage {
	return []stage{
		{name: types.StageLLM, timeout: c.opts.LLMTimeout, run: c.llmStage},
		{name: types.StageWebService, timeout: c.opts.WebTimeout, run: c.webStage},
		{name: types.StageLocalDatabase, timeout: c.opts.LocalTimeout, run: c.localStage, terminal: true},
	}
}

// Predict runs the cascade for structureID. A blank identifier is the only
// input error. Cancellation of ctx stops the run before the next stage and
// discards any result still in flight.
func (c *Cascade) Predict(ctx context.Context, structureID string) (*types.Prediction, error) {
	input := strings.TrimSpace(structureID)
	if input == "" {
		return nil, errors.New(errors.ErrCodeNoStructure, "structure identifier is empty")
	}

	run := &runState{id: uuid.NewString(), input: input, smiles: FirstFragment(input)}
	run.smilesErr = ValidateSMILES(run.smiles, c.opts.MaxSMILESLength)
	logger := c.logger.With(logging.RunID(run.id))

	pred := &types.Prediction{
		RunID:       run.id,
		Structure:   input,
		Stage:       types.StageNone,
		Result:      types.NewPredictionResult(),
		Diagnostics: make([]types.StageDiagnostic, 0, 3),
	}

	for _, st := range c.stages() {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err, st.name)
		}

		start := time.Now()
		res, status, reason := c.runStage(ctx, st, run)
		pred.Diagnostics = append(pred.Diagnostics, types.StageDiagnostic{
			Stage:    st.name,
			Status:   status,
			Reason:   reason,
			Duration: time.Since(start),
		})

		switch status {
		case types.StatusCancelled:
			return nil, cancelled(ctx.Err(), st.name)
		case types.StatusFailed:
			logger.Warn("prediction stage failed", logging.Stage(string(st.name)), logging.String("reason", reason))
		case types.StatusSkipped, types.StatusEmpty:
			logger.Debug("prediction stage produced nothing", logging.Stage(string(st.name)),
				logging.String("status", string(status)), logging.String("reason", reason))
		case types.StatusSucceeded:
			pred.Stage = st.name
			pred.Result = res
			if run.smilesErr == nil {
				pred.Structure = run.smiles
			}
			pred.CompletedAt = time.Now().UTC()
			logger.Info("prediction completed", logging.Stage(string(st.name)),
				logging.Int("signals", res.TotalSignals()))
			return pred, nil
		}
	}

	pred.CompletedAt = time.Now().UTC()
	return pred, nil
}

func cancelled(cause error, at types.Stage) error {
	if cause == nil {
		cause = context.Canceled
	}
	return errors.Wrap(cause, errors.ErrCodePredictionCancelled, "prediction cancelled").
		WithDetail("before completing stage " + string(at))
}

type stageOutcome struct {
	res types.PredictionResult
	err error
}

// runStage executes one stage in its own goroutine so that a back-end which
// ignores its context cannot hold the run past cancellation.
func (c *Cascade) runStage(ctx context.Context, st stage, run *runState) (types.PredictionResult, types.StageStatus, string) {
	stageCtx := ctx
	if st.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, st.timeout)
		defer cancel()
	}

	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stageOutcome{err: fmt.Errorf("panic in %s stage: %v", st.name, r)}
			}
		}()
		res, err := st.run(stageCtx, run)
		done <- stageOutcome{res: res, err: err}
	}()

	var out stageOutcome
	select {
	case <-ctx.Done():
		return nil, types.StatusCancelled, ctx.Err().Error()
	case out = <-done:
	}
	if ctx.Err() != nil {
		return nil, types.StatusCancelled, ctx.Err().Error()
	}

	if st.terminal {
		res := out.res
		if res == nil {
			res = types.NewPredictionResult()
		}
		reason := ""
		if out.err != nil {
			reason = out.err.Error()
		}
		return res, types.StatusSucceeded, reason
	}

	switch {
	case stderrors.Is(out.err, errSkipped):
		return nil, types.StatusSkipped, strings.TrimPrefix(out.err.Error(), errSkipped.Error()+": ")
	case out.err != nil:
		return nil, types.StatusFailed, out.err.Error()
	case out.res == nil || out.res.IsEmpty():
		return nil, types.StatusEmpty, "no peaks"
	}
	return out.res, types.StatusSucceeded, ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Stages
// ─────────────────────────────────────────────────────────────────────────────

func (c *Cascade) llmStage(ctx context.Context, run *runState) (types.PredictionResult, error) {
	if c.llm == nil {
		return nil, skip("no language model configured")
	}
	if run.smilesErr != nil {
		return nil, skip("structure is not valid SMILES: %v", run.smilesErr)
	}

	text, err := c.llm.Complete(ctx, BuildPrompt(run.smiles, c.catalog))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeLLMEmptyResponse, "language model returned no text")
	}
	return ClusterAll(c.catalog, c.extractor.Extract(text)), nil
}

func (c *Cascade) webStage(ctx context.Context, run *runState) (types.PredictionResult, error) {
	if c.web == nil {
		return nil, skip("no web prediction service configured")
	}
	if run.smilesErr != nil {
		if c.converter == nil {
			return nil, skip("structure is not SMILES and no converter is configured")
		}
		converted, err := c.converter.ToSMILES(ctx, run.input)
		if err != nil {
			return nil, skip("structure conversion failed: %v", err)
		}
		converted = FirstFragment(converted)
		if err := ValidateSMILES(converted, c.opts.MaxSMILESLength); err != nil {
			return nil, skip("converted structure is not valid SMILES: %v", err)
		}
		run.smiles, run.smilesErr = converted, nil
	}

	peaks, err := c.web.Predict(ctx, run.smiles)
	if err != nil {
		return nil, err
	}
	if peaks == nil || (len(peaks.Proton) == 0 && len(peaks.Carbon) == 0) {
		return nil, nil
	}
	res := types.NewPredictionResult()
	res[types.Nucleus1H] = ClusterNucleus(c.catalog, types.Nucleus1H, peaks.Proton)
	res[types.Nucleus13C] = ClusterNucleus(c.catalog, types.Nucleus13C, peaks.Carbon)
	return res, nil
}

// localStage never fails the run. Dataset and predictor problems are
// reported through the returned error, which becomes the diagnostic reason.
func (c *Cascade) localStage(ctx context.Context, run *runState) (types.PredictionResult, error) {
	res := types.NewPredictionResult()
	if c.local == nil {
		return res, fmt.Errorf("no local predictor configured")
	}
	if err := c.local.EnsureLoaded(ctx); err != nil {
		c.logger.Warn("local shift dataset unavailable", logging.RunID(run.id), logging.Err(err))
		return res, errors.Wrap(err, errors.ErrCodeDatasetUnavailable, "local dataset unavailable")
	}

	var (
		mu       sync.Mutex
		problems []string
		proton   []types.RawPeak
		carbon   []types.RawPeak
		g        errgroup.Group
	)
	predict := func(name string, fn func(context.Context, string) ([]types.RawPeak, error), dst *[]types.RawPeak) func() error {
		return func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err != nil {
					c.logger.Warn("local predictor failed", logging.RunID(run.id),
						logging.String("predictor", name), logging.Err(err))
					mu.Lock()
					problems = append(problems, name+": "+err.Error())
					mu.Unlock()
				}
			}()
			peaks, err := fn(ctx, run.smiles)
			if err != nil {
				return err
			}
			*dst = peaks
			return nil
		}
	}
	g.Go(isolate(predict("proton", c.local.PredictProton, &proton)))
	g.Go(isolate(predict("carbon", c.local.PredictCarbon, &carbon)))
	_ = g.Wait()

	res[types.Nucleus1H] = ClusterNucleus(c.catalog, types.Nucleus1H, proton)
	res[types.Nucleus13C] = ClusterNucleus(c.catalog, types.Nucleus13C, carbon)
	if len(problems) > 0 {
		return res, errors.New(errors.ErrCodeLocalPredictionFailed, strings.Join(problems, "; "))
	}
	return res, nil
}

// isolate swallows a predictor's error so that errgroup never treats one
// predictor's failure as the group's failure.
func isolate(fn func() error) func() error {
	return func() error {
		_ = fn()
		return nil
	}
}
