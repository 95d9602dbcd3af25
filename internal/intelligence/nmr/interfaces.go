package nmr

import (
	"context"

	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

// PromptContext is the request handed to a language-model back-end.
type PromptContext struct {
	System string
	User   string
	// SMILES is the structure the prompt was built for.
	SMILES string
}

// LLMResponder returns free text in answer to a prompt.
type LLMResponder interface {
	Complete(ctx context.Context, prompt PromptContext) (string, error)
}

// ServicePeaks is the machine-readable answer of a web prediction service.
type ServicePeaks struct {
	Proton []types.RawPeak
	Carbon []types.RawPeak
}

// WebPredictor predicts ¹H and ¹³C peaks for a single-fragment SMILES.
type WebPredictor interface {
	Predict(ctx context.Context, smiles string) (*ServicePeaks, error)
}

// LocalPredictor predicts ¹H and ¹³C peaks from an offline dataset.
// EnsureLoaded is idempotent and safe to call from concurrent runs.
type LocalPredictor interface {
	EnsureLoaded(ctx context.Context) error
	PredictProton(ctx context.Context, structure string) ([]types.RawPeak, error)
	PredictCarbon(ctx context.Context, structure string) ([]types.RawPeak, error)
}

// StructureConverter turns a structure in any supported notation into SMILES.
type StructureConverter interface {
	ToSMILES(ctx context.Context, structure string) (string, error)
}
