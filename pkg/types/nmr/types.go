// Package nmr defines the plain data types shared by every layer of
// ShiftScope: nucleus identifiers, raw and clustered peaks, prediction
// results and the per-stage diagnostics of a prediction run. No prediction
// logic lives here.
package nmr

import (
	"encoding/json"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// NucleusKey
// ─────────────────────────────────────────────────────────────────────────────

// NucleusKey identifies one of the supported NMR-active nuclei.
type NucleusKey string

const (
	Nucleus1H  NucleusKey = "1H"
	Nucleus13C NucleusKey = "13C"
	Nucleus15N NucleusKey = "15N"
	Nucleus31P NucleusKey = "31P"
	Nucleus19F NucleusKey = "19F"
)

var allNuclei = []NucleusKey{Nucleus1H, Nucleus13C, Nucleus15N, Nucleus31P, Nucleus19F}

// AllNuclei returns every supported nucleus in canonical order.
func AllNuclei() []NucleusKey {
	out := make([]NucleusKey, len(allNuclei))
	copy(out, allNuclei)
	return out
}

// IsValid reports whether k is one of the supported nuclei.
func (k NucleusKey) IsValid() bool {
	for _, n := range allNuclei {
		if n == k {
			return true
		}
	}
	return false
}

func (k NucleusKey) String() string { return string(k) }

// NucleusConfig is the static description of one nucleus. Values are built
// once at start-up and never mutated.
type NucleusConfig struct {
	Key NucleusKey `json:"key"`
	// Label is the display label, e.g. "¹H NMR".
	Label string `json:"label"`
	// MassNumber is the ASCII isotope prefix used in text, e.g. "13".
	MassNumber string `json:"mass_number"`
	// AtomSuffix is the element letter used in counts such as "(3H)".
	AtomSuffix string `json:"atom_suffix"`
	// ClusterTolerance is the maximum ppm distance from a cluster's anchor.
	ClusterTolerance float64 `json:"cluster_tolerance"`
	MinShift         float64 `json:"min_shift"`
	MaxShift         float64 `json:"max_shift"`
}

// InRange reports whether delta lies inside [MinShift, MaxShift].
func (c NucleusConfig) InRange(delta float64) bool {
	return delta >= c.MinShift && delta <= c.MaxShift
}

// ─────────────────────────────────────────────────────────────────────────────
// Peaks
// ─────────────────────────────────────────────────────────────────────────────

// RawPeak is a single unclustered shift observation.
type RawPeak struct {
	// Delta is the chemical shift in ppm.
	Delta float64 `json:"delta"`
	// AtomCount is the number of equivalent atoms contributing, at least 1.
	AtomCount int `json:"atom_count"`
	// AtomIDs optionally lists the structure atom indices behind the peak.
	AtomIDs []int `json:"atom_ids,omitempty"`
}

// ClusteredSignal is a consolidated signal produced from one or more raw peaks.
type ClusteredSignal struct {
	// Delta is the shift of the cluster's first (lowest) member.
	Delta float64 `json:"delta"`
	// Count is the sum of member atom counts.
	Count int `json:"count"`
	// AtomIDs is the sorted union of member atom IDs.
	AtomIDs []int `json:"atom_ids,omitempty"`
}

// PredictionResult maps every nucleus to its ascending list of signals.
type PredictionResult map[NucleusKey][]ClusteredSignal

// NewPredictionResult returns a result holding an empty list for every nucleus.
func NewPredictionResult() PredictionResult {
	r := make(PredictionResult, len(allNuclei))
	for _, k := range allNuclei {
		r[k] = []ClusteredSignal{}
	}
	return r
}

// TotalSignals counts signals across all nuclei.
func (r PredictionResult) TotalSignals() int {
	n := 0
	for _, s := range r {
		n += len(s)
	}
	return n
}

// IsEmpty reports whether no nucleus has any signal.
func (r PredictionResult) IsEmpty() bool {
	return r.TotalSignals() == 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Stages and diagnostics
// ─────────────────────────────────────────────────────────────────────────────

// Stage names a back-end in the prediction cascade.
type Stage string

const (
	StageLLM           Stage = "llm"
	StageWebService    Stage = "web_service"
	StageLocalDatabase Stage = "local_database"
	// StageNone marks a run in which no stage produced a result.
	StageNone Stage = "none"
)

// StageStatus is the outcome of a single stage attempt.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusEmpty     StageStatus = "empty"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
	StatusCancelled StageStatus = "cancelled"
)

// StageDiagnostic records what happened to one stage during a run.
type StageDiagnostic struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Prediction is the outcome of one cascade run.
type Prediction struct {
	RunID       string            `json:"run_id"`
	Structure   string            `json:"structure"`
	Stage       Stage             `json:"stage"`
	Result      PredictionResult  `json:"result"`
	Diagnostics []StageDiagnostic `json:"diagnostics"`
	Cached      bool              `json:"cached"`
	CompletedAt time.Time         `json:"completed_at"`
}

// TotalSignals counts signals across all nuclei of the result.
func (p *Prediction) TotalSignals() int {
	if p == nil {
		return 0
	}
	return p.Result.TotalSignals()
}

// MarshalJSON emits the result with all five nucleus keys even when the map
// was built sparsely.
func (p Prediction) MarshalJSON() ([]byte, error) {
	type alias Prediction
	full := NewPredictionResult()
	for k, v := range p.Result {
		if v != nil {
			full[k] = v
		}
	}
	a := alias(p)
	a.Result = full
	return json.Marshal(a)
}
