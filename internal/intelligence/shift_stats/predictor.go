package shift_stats

import (
	"context"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/internal/intelligence/nmr"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// Predictor answers ¹H and ¹³C predictions from a DatasetLoader.
type Predictor struct {
	loader *DatasetLoader
	logger logging.Logger
}

var _ nmr.LocalPredictor = (*Predictor)(nil)

// NewPredictor creates a Predictor backed by loader.
func NewPredictor(loader *DatasetLoader, log logging.Logger) *Predictor {
	return &Predictor{loader: loader, logger: logging.OrNop(log)}
}

// EnsureLoaded loads the dataset if it is not held yet.
func (p *Predictor) EnsureLoaded(ctx context.Context) error {
	_, err := p.loader.Ensure(ctx)
	return err
}

// PredictProton emits one peak per hydrogen-bearing heavy atom. The peak
// counts the attached hydrogens and names the heavy atom's index.
func (p *Predictor) PredictProton(ctx context.Context, structure string) ([]types.RawPeak, error) {
	return p.predict(ctx, structure, types.Nucleus1H, func(m *Molecule, i int) (bool, int) {
		h := m.HydrogenCount(i)
		return h > 0, h
	})
}

// PredictCarbon emits one peak per carbon atom.
func (p *Predictor) PredictCarbon(ctx context.Context, structure string) ([]types.RawPeak, error) {
	return p.predict(ctx, structure, types.Nucleus13C, func(m *Molecule, i int) (bool, int) {
		return m.Atoms[i].Symbol == "C", 1
	})
}

type atomSelector func(m *Molecule, i int) (selected bool, count int)

func (p *Predictor) predict(ctx context.Context, structure string, nucleus types.NucleusKey, sel atomSelector) ([]types.RawPeak, error) {
	ds, err := p.loader.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	mol, err := ParseSMILES(nmr.FirstFragment(structure))
	if err != nil {
		return nil, err
	}

	peaks := make([]types.RawPeak, 0, len(mol.Atoms))
	misses := 0
	for i := range mol.Atoms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, count := sel(mol, i)
		if !ok {
			continue
		}
		stat, _, found := ds.Lookup(nucleus, mol.EnvironmentOf(i))
		if !found {
			misses++
			continue
		}
		peaks = append(peaks, types.RawPeak{Delta: stat.Mean, AtomCount: count, AtomIDs: []int{i}})
	}
	if misses > 0 {
		p.logger.Debug("atoms without shift statistics",
			logging.String("nucleus", string(nucleus)), logging.Int("missing", misses))
	}
	return peaks, nil
}
