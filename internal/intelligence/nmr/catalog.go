// Package nmr implements the chemical-shift prediction cascade: the nucleus
// catalog, free-text peak extraction, tolerance clustering and the ordered
// fallback across the language-model, web-service and local-dataset
// back-ends.
package nmr

import (
	"fmt"
	"math"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// ─────────────────────────────────────────────────────────────────────────────
// Catalog
// ─────────────────────────────────────────────────────────────────────────────

var builtinNuclei = map[types.NucleusKey]types.NucleusConfig{
	types.Nucleus1H: {
		Key: types.Nucleus1H, Label: "¹H NMR", MassNumber: "1", AtomSuffix: "H",
		ClusterTolerance: 0.05, MinShift: -1, MaxShift: 16,
	},
	types.Nucleus13C: {
		Key: types.Nucleus13C, Label: "¹³C NMR", MassNumber: "13", AtomSuffix: "C",
		ClusterTolerance: 0.5, MinShift: -10, MaxShift: 250,
	},
	types.Nucleus15N: {
		Key: types.Nucleus15N, Label: "¹⁵N NMR", MassNumber: "15", AtomSuffix: "N",
		ClusterTolerance: 1.0, MinShift: -400, MaxShift: 1000,
	},
	types.Nucleus31P: {
		Key: types.Nucleus31P, Label: "³¹P NMR", MassNumber: "31", AtomSuffix: "P",
		ClusterTolerance: 1.0, MinShift: -300, MaxShift: 300,
	},
	types.Nucleus19F: {
		Key: types.Nucleus19F, Label: "¹⁹F NMR", MassNumber: "19", AtomSuffix: "F",
		ClusterTolerance: 1.0, MinShift: -350, MaxShift: 150,
	},
}

// Override replaces selected catalog values for one nucleus.
type Override struct {
	Tolerance *float64
	MinShift  *float64
	MaxShift  *float64
}

// Catalog is the immutable set of per-nucleus settings.
type Catalog struct {
	configs map[types.NucleusKey]types.NucleusConfig
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(nil)
	return c
}

// NewCatalog builds a catalog from the built-in table with overrides applied.
func NewCatalog(overrides map[types.NucleusKey]Override) (*Catalog, error) {
	configs := make(map[types.NucleusKey]types.NucleusConfig, len(builtinNuclei))
	for k, v := range builtinNuclei {
		configs[k] = v
	}
	for key, o := range overrides {
		cfg, ok := configs[key]
		if !ok {
			return nil, fmt.Errorf("nmr: unknown nucleus %q", key)
		}
		if o.Tolerance != nil {
			cfg.ClusterTolerance = *o.Tolerance
		}
		if o.MinShift != nil {
			cfg.MinShift = *o.MinShift
		}
		if o.MaxShift != nil {
			cfg.MaxShift = *o.MaxShift
		}
		if !(cfg.ClusterTolerance > 0) || math.IsInf(cfg.ClusterTolerance, 0) {
			return nil, fmt.Errorf("nmr: %s tolerance must be positive and finite", key)
		}
		if !(cfg.MinShift < cfg.MaxShift) {
			return nil, fmt.Errorf("nmr: %s shift range [%g, %g] is empty", key, cfg.MinShift, cfg.MaxShift)
		}
		configs[key] = cfg
	}
	return &Catalog{configs: configs}, nil
}

// Config returns the settings for key. Unknown keys resolve to the ¹H
// record so the lookup is total.
func (c *Catalog) Config(key types.NucleusKey) types.NucleusConfig {
	if cfg, ok := c.configs[key]; ok {
		return cfg
	}
	return c.configs[types.Nucleus1H]
}

// Keys returns the catalog's nuclei in canonical order.
func (c *Catalog) Keys() []types.NucleusKey {
	return types.AllNuclei()
}
