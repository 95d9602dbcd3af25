package shift_stats

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// DatasetLoader loads the shift dataset once and shares it between
// concurrent prediction runs. Concurrent first calls collapse into a single
// load; a failed load is retried on the next call.
type DatasetLoader struct {
	path   string
	logger logging.Logger

	mu       sync.RWMutex
	dataset  *Dataset
	loadedAt time.Time
	group    singleflight.Group

	observer LoadObserver

	// load is replaced in tests.
	load func(ctx context.Context) (*Dataset, error)
}

// LoadObserver is told about every load attempt. counts is nil on failure.
type LoadObserver func(source string, elapsed time.Duration, counts map[string]int, err error)

// NewDatasetLoader creates a loader for the SQLite file at path. An empty
// path selects the embedded seed dataset.
func NewDatasetLoader(path string, log logging.Logger) *DatasetLoader {
	l := &DatasetLoader{path: path, logger: logging.OrNop(log)}
	l.load = l.loadFromSource
	return l
}

// OnLoad installs fn as the load observer. It must be called before the
// first Ensure.
func (l *DatasetLoader) OnLoad(fn LoadObserver) {
	l.observer = fn
}

// Ensure returns the dataset, loading it if necessary.
func (l *DatasetLoader) Ensure(ctx context.Context) (*Dataset, error) {
	l.mu.RLock()
	d := l.dataset
	l.mu.RUnlock()
	if d != nil {
		return d, nil
	}

	ch := l.group.DoChan("dataset", func() (interface{}, error) {
		l.mu.RLock()
		cached := l.dataset
		l.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		start := time.Now()
		// Detach from the first caller so that its cancellation does not fail
		// the load for every waiter.
		ds, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			l.logger.Error("failed to load shift dataset", logging.String("path", l.source()), logging.Err(err))
			l.notify(time.Since(start), nil, err)
			return nil, err
		}
		l.mu.Lock()
		l.dataset = ds
		l.loadedAt = time.Now()
		l.mu.Unlock()
		l.logger.Info("shift dataset loaded",
			logging.String("path", l.source()),
			logging.Int("proton_records", ds.Len(types.Nucleus1H)),
			logging.Int("carbon_records", ds.Len(types.Nucleus13C)),
			logging.Duration("elapsed", time.Since(start)))
		l.notify(time.Since(start), map[string]int{
			string(types.Nucleus1H):  ds.Len(types.Nucleus1H),
			string(types.Nucleus13C): ds.Len(types.Nucleus13C),
		}, nil)
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	}
}

// Loaded reports whether a dataset is held and when it was loaded.
func (l *DatasetLoader) Loaded() (bool, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dataset != nil, l.loadedAt
}

// Reset drops the held dataset; the next Ensure reloads it.
func (l *DatasetLoader) Reset() {
	l.mu.Lock()
	l.dataset = nil
	l.loadedAt = time.Time{}
	l.mu.Unlock()
}

func (l *DatasetLoader) notify(elapsed time.Duration, counts map[string]int, err error) {
	if l.observer != nil {
		l.observer(l.source(), elapsed, counts, err)
	}
}

func (l *DatasetLoader) source() string {
	if l.path == "" {
		return "embedded"
	}
	return l.path
}

func (l *DatasetLoader) loadFromSource(ctx context.Context) (*Dataset, error) {
	if l.path == "" {
		ds, err := SeedDataset()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatasetUnavailable, "embedded shift dataset is corrupt")
		}
		return ds, nil
	}

	if _, err := os.Stat(l.path); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetUnavailable, "shift database not found").WithDetail(l.path)
	}
	store, err := OpenStore(ctx, l.path, l.logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetUnavailable, "cannot open shift database")
	}
	defer store.Close()

	ds, err := store.LoadDataset(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetUnavailable, "cannot read shift database")
	}
	if ds.Len(types.Nucleus1H) == 0 && ds.Len(types.Nucleus13C) == 0 {
		return nil, errors.New(errors.ErrCodeDatasetUnavailable, "shift database is empty").WithDetail(l.path)
	}
	return ds, nil
}
