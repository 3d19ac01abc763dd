package predictor

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// class weights used to collapse probabilities into a single score.
var classWeights = []float64{0.0, 0.5, 1.0}

// Info describes the classifier for the model-info endpoint.
type Info struct {
	ModelType  string             `json:"model_type"`
	Features   []string           `json:"features"`
	RiskLevels []RiskLevel        `json:"risk_levels"`
	Thresholds map[string]float64 `json:"thresholds"`
	Status     string             `json:"status"`
	Version    string             `json:"version"`
}

// Predictor classifies vitals with a fitted model and falls back to rules.
type Predictor struct {
	scaler  Scaler
	model   Model
	kind    string
	version string
	logger  zerolog.Logger
}

// New constructs a predictor around an explicit scaler and model. Either may
// be nil, in which case every prediction takes the rule path.
func New(scaler Scaler, model Model, kind, version string, logger zerolog.Logger) *Predictor {
	return &Predictor{
		scaler:  scaler,
		model:   model,
		kind:    kind,
		version: version,
		logger:  logger.With().Str("component", "predictor").Logger(),
	}
}

// FromArtifact builds a predictor from a loaded artifact.
func FromArtifact(art *Artifact, logger zerolog.Logger) *Predictor {
	return New(art.Scaler, art.Model, art.Type, art.Version, logger)
}

// Load builds a predictor from the artifact at path. An empty path, or an
// artifact that fails to load, yields a rule-only predictor.
func Load(path string, logger zerolog.Logger) *Predictor {
	if path == "" {
		logger.Warn().Msg("model.path not configured; using rule-based classification")
		return New(nil, nil, "", "", logger)
	}
	art, err := LoadArtifact(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to load model; using rule-based classification")
		return New(nil, nil, "", "", logger)
	}
	logger.Info().Str("path", path).Str("type", art.Type).Str("version", art.Version).Msg("model loaded")
	return FromArtifact(art, logger)
}

// Loaded reports whether a fitted model is available.
func (p *Predictor) Loaded() bool {
	return p.scaler != nil && p.model != nil
}

// Predict classifies v. Model failures are logged and replaced by the
// rule-based result; they are never returned.
func (p *Predictor) Predict(v Vitals) Result {
	res, err := p.predictModel(v)
	if err == nil {
		return res
	}
	if errors.Is(err, ErrModelUnavailable) {
		p.logger.Debug().Msg("no model loaded; rule-based classification")
	} else {
		p.logger.Warn().Err(err).Msg("model prediction failed; falling back to rules")
	}
	return RuleBased(v)
}

func (p *Predictor) predictModel(v Vitals) (res Result, err error) {
	if !p.Loaded() {
		return Result{}, ErrModelUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()

	x, err := p.scaler.Transform(v.Features())
	if err != nil {
		return Result{}, fmt.Errorf("scale features: %w", err)
	}

	proba, err := p.model.PredictProba(x)
	if err != nil {
		return Result{}, fmt.Errorf("predict probabilities: %w", err)
	}
	if len(proba) != len(RiskLevels) {
		return Result{}, fmt.Errorf("model returned %d probabilities, want %d", len(proba), len(RiskLevels))
	}

	class, err := p.model.Predict(x)
	if err != nil {
		return Result{}, fmt.Errorf("predict class: %w", err)
	}
	if class < 0 || class >= len(RiskLevels) {
		return Result{}, fmt.Errorf("model returned class %d", class)
	}

	var score, confidence float64
	for k, pk := range proba {
		if math.IsNaN(pk) || pk < 0 || pk > 1 {
			return Result{}, fmt.Errorf("model returned probability %v for class %d", pk, k)
		}
		score += pk * classWeights[k]
		confidence = math.Max(confidence, pk)
	}

	predicted := RiskLevels[class]
	level := RiskLow
	switch {
	case predicted == RiskHigh || score >= ModerateThreshold:
		level = RiskHigh
	case predicted == RiskModerate || score >= LowThreshold:
		level = RiskModerate
	}

	return Result{
		Level:           level,
		Score:           score,
		Confidence:      confidence,
		Recommendations: Recommendations(v, level),
		Source:          SourceModel,
	}, nil
}

// Info reports the classifier configuration.
func (p *Predictor) Info() Info {
	info := Info{
		ModelType:  "Rule-based fallback",
		Features:   append([]string(nil), FeatureNames...),
		RiskLevels: append([]RiskLevel(nil), RiskLevels...),
		Thresholds: map[string]float64{"low": LowThreshold, "moderate": ModerateThreshold},
		Status:     "rule_based",
		Version:    "1.0.0",
	}
	if p.Loaded() {
		info.ModelType = p.kind
		if info.ModelType == "" {
			info.ModelType = "Softmax Classifier"
		}
		info.Status = "operational"
		if p.version != "" {
			info.Version = p.version
		}
	}
	return info
}
