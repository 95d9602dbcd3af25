package nmr

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShiftScope/internal/testutil"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeLLM struct {
	text    string
	err     error
	block   bool // ignore ctx and never return
	honour  bool // wait for ctx
	calls   int32
	prompts chan PromptContext
}

func (f *fakeLLM) Complete(ctx context.Context, p PromptContext) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.prompts != nil {
		f.prompts <- p
	}
	if f.block {
		select {}
	}
	if f.honour {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type fakeWeb struct {
	peaks  *ServicePeaks
	err    error
	calls  int32
	mu     sync.Mutex
	smiles []string
}

func (f *fakeWeb) Predict(_ context.Context, smiles string) (*ServicePeaks, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.smiles = append(f.smiles, smiles)
	f.mu.Unlock()
	return f.peaks, f.err
}

type fakeLocal struct {
	proton      []types.RawPeak
	carbon      []types.RawPeak
	loadErr     error
	protonErr   error
	panicCarbon bool
	loads       int32
	predictions int32
}

func (f *fakeLocal) EnsureLoaded(context.Context) error {
	atomic.AddInt32(&f.loads, 1)
	return f.loadErr
}

func (f *fakeLocal) PredictProton(context.Context, string) ([]types.RawPeak, error) {
	atomic.AddInt32(&f.predictions, 1)
	return f.proton, f.protonErr
}

func (f *fakeLocal) PredictCarbon(context.Context, string) ([]types.RawPeak, error) {
	atomic.AddInt32(&f.predictions, 1)
	if f.panicCarbon {
		panic("carbon table corrupted")
	}
	return f.carbon, nil
}

type fakeConverter struct {
	out string
	err error
}

func (f fakeConverter) ToSMILES(context.Context, string) (string, error) { return f.out, f.err }

const ethanolReply = "1H: δ 1.22 ppm (3H)\n1H: δ 3.69 ppm (2H)\n1H: δ 2.61 ppm (1H)\n13C: δ 18.1 ppm (1C)\n13C: δ 58.3 ppm (1C)"

func ethanolLocal() *fakeLocal {
	return &fakeLocal{
		proton: []types.RawPeak{{Delta: 1.18, AtomCount: 3, AtomIDs: []int{0}}, {Delta: 3.62, AtomCount: 2, AtomIDs: []int{1}}},
		carbon: []types.RawPeak{{Delta: 17.9, AtomCount: 1, AtomIDs: []int{0}}, {Delta: 58.0, AtomCount: 1, AtomIDs: []int{1}}},
	}
}

func statuses(p *types.Prediction) []types.StageStatus {
	out := make([]types.StageStatus, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		out = append(out, d.Status)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Stage order
// ─────────────────────────────────────────────────────────────────────────────

func TestCascade_LLMSuccessStopsCascade(t *testing.T) {
	llm := &fakeLLM{text: ethanolReply}
	web := &fakeWeb{peaks: &ServicePeaks{Proton: []types.RawPeak{{Delta: 1.0, AtomCount: 1}}}}
	local := ethanolLocal()
	c := NewCascade(DefaultCatalog(), WithLLM(llm), WithWebPredictor(web), WithLocalPredictor(local))

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)

	assert.Equal(t, types.StageLLM, pred.Stage)
	assert.Equal(t, "CCO", pred.Structure)
	assert.NotEmpty(t, pred.RunID)
	assert.Len(t, pred.Result[types.Nucleus1H], 3)
	assert.Len(t, pred.Result[types.Nucleus13C], 2)
	assert.Len(t, pred.Result, 5)
	assert.Equal(t, []types.StageStatus{types.StatusSucceeded}, statuses(pred))
	assert.EqualValues(t, 0, atomic.LoadInt32(&web.calls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&local.loads))
}

func TestCascade_FallsThroughToWebService(t *testing.T) {
	tests := []struct {
		name   string
		llm    *fakeLLM
		status types.StageStatus
	}{
		{"llm error", &fakeLLM{err: errors.New(errors.ErrCodeLLMFailed, "boom")}, types.StatusFailed},
		{"blank reply", &fakeLLM{text: "   "}, types.StatusFailed},
		{"reply without peaks", &fakeLLM{text: "I cannot predict this molecule."}, types.StatusEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			web := &fakeWeb{peaks: &ServicePeaks{
				Proton: []types.RawPeak{{Delta: 1.20, AtomCount: 3}, {Delta: 1.22, AtomCount: 3}},
				Carbon: []types.RawPeak{{Delta: 18.0, AtomCount: 1}},
			}}
			local := ethanolLocal()
			c := NewCascade(DefaultCatalog(), WithLLM(tt.llm), WithWebPredictor(web), WithLocalPredictor(local))

			pred, err := c.Predict(context.Background(), "CCO")
			require.NoError(t, err)

			assert.Equal(t, types.StageWebService, pred.Stage)
			assert.Equal(t, []types.StageStatus{tt.status, types.StatusSucceeded}, statuses(pred))
			require.Len(t, pred.Result[types.Nucleus1H], 1)
			assert.Equal(t, 6, pred.Result[types.Nucleus1H][0].Count)
			assert.InDelta(t, 1.20, pred.Result[types.Nucleus1H][0].Delta, 1e-9)
			assert.Empty(t, pred.Result[types.Nucleus15N])
			assert.EqualValues(t, 0, atomic.LoadInt32(&local.loads))
		})
	}
}

func TestCascade_FallsThroughToLocal(t *testing.T) {
	llm := &fakeLLM{err: stderrors.New("unreachable")}
	web := &fakeWeb{err: errors.New(errors.ErrCodeWebServiceFailed, "503")}
	local := ethanolLocal()
	c := NewCascade(DefaultCatalog(), WithLLM(llm), WithWebPredictor(web), WithLocalPredictor(local))

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)

	assert.Equal(t, types.StageLocalDatabase, pred.Stage)
	assert.Equal(t, []types.StageStatus{types.StatusFailed, types.StatusFailed, types.StatusSucceeded}, statuses(pred))
	assert.Len(t, pred.Result[types.Nucleus1H], 2)
	assert.Len(t, pred.Result[types.Nucleus13C], 2)
	assert.Equal(t, []int{0}, pred.Result[types.Nucleus13C][0].AtomIDs)
	assert.Contains(t, pred.Diagnostics[1].Reason, "503")
}

func TestCascade_WebEmptyAnswerFallsThrough(t *testing.T) {
	web := &fakeWeb{peaks: &ServicePeaks{}}
	c := NewCascade(DefaultCatalog(), WithWebPredictor(web), WithLocalPredictor(ethanolLocal()))

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Equal(t, types.StageLocalDatabase, pred.Stage)
	assert.Equal(t, []types.StageStatus{types.StatusSkipped, types.StatusEmpty, types.StatusSucceeded}, statuses(pred))
}

func TestCascade_UnconfiguredStagesAreSkipped(t *testing.T) {
	c := NewCascade(nil)

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)

	assert.Equal(t, types.StageLocalDatabase, pred.Stage)
	assert.Equal(t, []types.StageStatus{types.StatusSkipped, types.StatusSkipped, types.StatusSucceeded}, statuses(pred))
	assert.True(t, pred.Result.IsEmpty())
	assert.Len(t, pred.Result, 5)
}

// ─────────────────────────────────────────────────────────────────────────────
// Local stage
// ─────────────────────────────────────────────────────────────────────────────

func TestCascade_LocalDatasetFailureYieldsEmptyResult(t *testing.T) {
	logger := testutil.NewMockLogger()
	local := &fakeLocal{loadErr: stderrors.New("dataset file missing")}
	c := NewCascade(DefaultCatalog(), WithLocalPredictor(local), WithLogger(logger))

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)

	assert.Equal(t, types.StageLocalDatabase, pred.Stage)
	assert.True(t, pred.Result.IsEmpty())
	last := pred.Diagnostics[len(pred.Diagnostics)-1]
	assert.Equal(t, types.StatusSucceeded, last.Status)
	assert.Contains(t, last.Reason, "dataset file missing")
	assert.EqualValues(t, 0, atomic.LoadInt32(&local.predictions))
	assert.NotEmpty(t, logger.Find("warn", "local shift dataset unavailable"))
}

func TestCascade_LocalPredictorsAreIsolated(t *testing.T) {
	t.Run("proton error keeps carbon", func(t *testing.T) {
		local := ethanolLocal()
		local.protonErr = stderrors.New("no proton table")
		c := NewCascade(DefaultCatalog(), WithLocalPredictor(local))

		pred, err := c.Predict(context.Background(), "CCO")
		require.NoError(t, err)
		assert.Empty(t, pred.Result[types.Nucleus1H])
		assert.Len(t, pred.Result[types.Nucleus13C], 2)
		assert.Contains(t, pred.Diagnostics[2].Reason, "no proton table")
	})

	t.Run("carbon panic keeps proton", func(t *testing.T) {
		local := ethanolLocal()
		local.panicCarbon = true
		c := NewCascade(DefaultCatalog(), WithLocalPredictor(local))

		pred, err := c.Predict(context.Background(), "CCO")
		require.NoError(t, err)
		assert.Len(t, pred.Result[types.Nucleus1H], 2)
		assert.Empty(t, pred.Result[types.Nucleus13C])
		assert.Contains(t, pred.Diagnostics[2].Reason, "carbon table corrupted")
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Input handling
// ─────────────────────────────────────────────────────────────────────────────

func TestCascade_BlankStructure(t *testing.T) {
	local := ethanolLocal()
	c := NewCascade(DefaultCatalog(), WithLocalPredictor(local))

	for _, in := range []string{"", "   ", "\t\n"} {
		pred, err := c.Predict(context.Background(), in)
		assert.Nil(t, pred)
		assert.True(t, errors.IsCode(err, errors.ErrCodeNoStructure), in)
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&local.loads))
}

func TestCascade_UsesFirstFragment(t *testing.T) {
	llm := &fakeLLM{text: ethanolReply, prompts: make(chan PromptContext, 1)}
	c := NewCascade(DefaultCatalog(), WithLLM(llm))

	pred, err := c.Predict(context.Background(), "CCO.Cl")
	require.NoError(t, err)
	assert.Equal(t, "CCO", pred.Structure)
	assert.Equal(t, "CCO", (<-llm.prompts).SMILES)
}

func TestCascade_NonSMILESIsConvertedForWebStage(t *testing.T) {
	llm := &fakeLLM{text: ethanolReply}
	web := &fakeWeb{peaks: &ServicePeaks{Carbon: []types.RawPeak{{Delta: 58.0, AtomCount: 1}}}}
	inchi := "InChI=1S/C2H6O/c1-2-3/h3H,2H2,1H3"
	c := NewCascade(DefaultCatalog(),
		WithLLM(llm), WithWebPredictor(web),
		WithConverter(fakeConverter{out: "CCO"}))

	pred, err := c.Predict(context.Background(), inchi)
	require.NoError(t, err)

	assert.Equal(t, types.StageWebService, pred.Stage)
	assert.Equal(t, types.StatusSkipped, pred.Diagnostics[0].Status)
	assert.EqualValues(t, 0, atomic.LoadInt32(&llm.calls))
	assert.Equal(t, []string{"CCO"}, web.smiles)
	assert.Equal(t, "CCO", pred.Structure)
}

func TestCascade_NonSMILESWithoutConverter(t *testing.T) {
	web := &fakeWeb{}
	c := NewCascade(DefaultCatalog(), WithWebPredictor(web), WithLocalPredictor(ethanolLocal()))

	pred, err := c.Predict(context.Background(), "InChI=1S/CH4/h1H4")
	require.NoError(t, err)
	assert.Equal(t, types.StageLocalDatabase, pred.Stage)
	assert.Equal(t, types.StatusSkipped, pred.Diagnostics[1].Status)
	assert.EqualValues(t, 0, atomic.LoadInt32(&web.calls))
	assert.Equal(t, "InChI=1S/CH4/h1H4", pred.Structure)
}

func TestCascade_ConverterFailureSkipsWebStage(t *testing.T) {
	web := &fakeWeb{}
	c := NewCascade(DefaultCatalog(), WithWebPredictor(web),
		WithConverter(fakeConverter{err: errors.New(errors.ErrCodeStructureConversion, "unsupported")}))

	pred, err := c.Predict(context.Background(), "M  END")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSkipped, pred.Diagnostics[1].Status)
	assert.Contains(t, pred.Diagnostics[1].Reason, "unsupported")
	assert.EqualValues(t, 0, atomic.LoadInt32(&web.calls))
}

// ─────────────────────────────────────────────────────────────────────────────
// Cancellation and timeouts
// ─────────────────────────────────────────────────────────────────────────────

func TestCascade_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &fakeLLM{text: ethanolReply}
	local := ethanolLocal()
	c := NewCascade(DefaultCatalog(), WithLLM(llm), WithLocalPredictor(local))

	pred, err := c.Predict(ctx, "CCO")
	assert.Nil(t, pred)
	assert.True(t, errors.IsCode(err, errors.ErrCodePredictionCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCancelled(err))
	assert.EqualValues(t, 0, atomic.LoadInt32(&llm.calls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&local.loads))
}

func TestCascade_CancelledDuringStageDiscardsLateResult(t *testing.T) {
	llm := &fakeLLM{block: true, prompts: make(chan PromptContext, 1)}
	web := &fakeWeb{peaks: &ServicePeaks{Proton: []types.RawPeak{{Delta: 1, AtomCount: 1}}}}
	local := ethanolLocal()
	c := NewCascade(DefaultCatalog(), WithLLM(llm), WithWebPredictor(web), WithLocalPredictor(local))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-llm.prompts
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.Predict(ctx, "CCO")
		done <- err
	}()

	select {
	case err := <-done:
		assert.True(t, errors.IsCode(err, errors.ErrCodePredictionCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("cascade did not observe cancellation")
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&web.calls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&local.loads))
}

func TestCascade_StageTimeoutFallsThrough(t *testing.T) {
	llm := &fakeLLM{honour: true}
	web := &fakeWeb{peaks: &ServicePeaks{Proton: []types.RawPeak{{Delta: 1.5, AtomCount: 2}}}}
	c := NewCascade(DefaultCatalog(), WithLLM(llm), WithWebPredictor(web),
		WithOptions(Options{LLMTimeout: 20 * time.Millisecond}))

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)
	assert.Equal(t, types.StageWebService, pred.Stage)
	assert.Equal(t, types.StatusFailed, pred.Diagnostics[0].Status)
	assert.Contains(t, pred.Diagnostics[0].Reason, "deadline")
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging and concurrency
// ─────────────────────────────────────────────────────────────────────────────

func TestCascade_LogsStageFailures(t *testing.T) {
	logger := testutil.NewMockLogger()
	llm := &fakeLLM{err: stderrors.New("rate limited")}
	c := NewCascade(DefaultCatalog(), WithLLM(llm), WithLocalPredictor(ethanolLocal()), WithLogger(logger))

	pred, err := c.Predict(context.Background(), "CCO")
	require.NoError(t, err)

	warns := logger.Find("warn", "prediction stage failed")
	require.Len(t, warns, 1)
	assert.Equal(t, "llm", warns[0].Field("stage"))
	assert.Equal(t, pred.RunID, warns[0].Field("run_id"))
	assert.True(t, logger.HasMessage("info", "prediction completed"))
}

func TestCascade_ConcurrentRuns(t *testing.T) {
	local := ethanolLocal()
	c := NewCascade(DefaultCatalog(), WithLLM(&fakeLLM{text: ethanolReply}), WithLocalPredictor(local))

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pred, err := c.Predict(context.Background(), "CCO")
			if assert.NoError(t, err) {
				ids[i] = pred.RunID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate run id")
		seen[id] = true
	}
}
