package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrModelUnavailable is returned by the model path when no model is loaded.
var ErrModelUnavailable = errors.New("predictor: model not loaded")

// Scaler applies the fitted feature transform.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
}

// Model is a fitted 3-class classifier operating on scaled features.
// Class indices follow RiskLevels.
type Model interface {
	PredictProba(x []float64) ([]float64, error)
	Predict(x []float64) (int, error)
}

// StandardScaler computes (x - mean) / scale per feature.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform implements Scaler.
func (s StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) || len(features) != len(s.Scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(features))
	}
	out := make([]float64, len(features))
	for i, x := range features {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x - s.Mean[i]) / scale
	}
	return out, nil
}

// SoftmaxModel is a multinomial linear classifier: p = softmax(W·x + b).
type SoftmaxModel struct {
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// PredictProba implements Model.
func (m SoftmaxModel) PredictProba(x []float64) ([]float64, error) {
	if len(m.Coefficients) != len(m.Intercepts) {
		return nil, fmt.Errorf("model has %d coefficient rows and %d intercepts", len(m.Coefficients), len(m.Intercepts))
	}

	logits := make([]float64, len(m.Coefficients))
	maxLogit := math.Inf(-1)
	for k, row := range m.Coefficients {
		if len(row) != len(x) {
			return nil, fmt.Errorf("class %d expects %d features, got %d", k, len(row), len(x))
		}
		z := m.Intercepts[k]
		for i, w := range row {
			z += w * x[i]
		}
		logits[k] = z
		maxLogit = math.Max(maxLogit, z)
	}

	var sum float64
	proba := make([]float64, len(logits))
	for k, z := range logits {
		proba[k] = math.Exp(z - maxLogit)
		sum += proba[k]
	}
	for k := range proba {
		proba[k] /= sum
	}
	return proba, nil
}

// Predict implements Model by taking the most probable class.
func (m SoftmaxModel) Predict(x []float64) (int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// Artifact is the on-disk form of a trained model.
type Artifact struct {
	Type     string         `json:"type"`
	Version  string         `json:"version"`
	Features []string       `json:"features"`
	Classes  []string       `json:"classes"`
	Scaler   StandardScaler `json:"scaler"`
	Model    SoftmaxModel   `json:"model"`
}

// LoadArtifact reads and validates a model artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := art.Validate(); err != nil {
		return nil, err
	}
	return &art, nil
}

// Validate checks the artifact against the expected features and classes.
func (a *Artifact) Validate() error {
	if len(a.Features) != len(FeatureNames) {
		return fmt.Errorf("model artifact has %d features, want %d", len(a.Features), len(FeatureNames))
	}
	for i, name := range FeatureNames {
		if a.Features[i] != name {
			return fmt.Errorf("model feature %d is %q, want %q", i, a.Features[i], name)
		}
	}
	if len(a.Classes) != len(RiskLevels) {
		return fmt.Errorf("model artifact has %d classes, want %d", len(a.Classes), len(RiskLevels))
	}
	for i, level := range RiskLevels {
		if a.Classes[i] != string(level) {
			return fmt.Errorf("model class %d is %q, want %q", i, a.Classes[i], level)
		}
	}
	if len(a.Scaler.Mean) != len(FeatureNames) || len(a.Scaler.Scale) != len(FeatureNames) {
		return errors.New("model scaler dimensions do not match features")
	}
	if len(a.Model.Coefficients) != len(RiskLevels) || len(a.Model.Intercepts) != len(RiskLevels) {
		return errors.New("model weights do not match classes")
	}
	for k, row := range a.Model.Coefficients {
		if len(row) != len(FeatureNames) {
			return fmt.Errorf("model coefficient row %d has %d weights, want %d", k, len(row), len(FeatureNames))
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
