// Package ml holds the forecasting numerics: feature scaling, the LSTM
// sequence model, its trainer and output clipping.
package ml

import (
	"encoding/json"
	"io"
	"math/rand"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned when a preprocessor is used before Fit.
var ErrNotFitted = errors.New("preprocessor not fitted")

// ScalerKind selects a feature scaler.
type ScalerKind string

// Supported scalers.
const (
	ScalerMinMax   ScalerKind = "minmax"
	ScalerStandard ScalerKind = "standard"
)

// Scaler is a per-column affine map x' = (x - Offset) / Scale. Columns with
// a zero scale are constant and map to 0.
type Scaler struct {
	Kind   ScalerKind `json:"kind"`
	Offset []float64  `json:"offset"`
	Scale  []float64  `json:"scale"`
}

func fitScaler(kind ScalerKind, cols [][]float64) *Scaler {
	s := &Scaler{Kind: kind, Offset: make([]float64, len(cols)), Scale: make([]float64, len(cols))}
	for j, col := range cols {
		switch kind {
		case ScalerStandard:
			mean, std := stat.PopMeanStdDev(col, nil)
			s.Offset[j], s.Scale[j] = mean, std
		default:
			lo, hi := floats.Min(col), floats.Max(col)
			s.Offset[j], s.Scale[j] = lo, hi-lo
		}
	}
	return s
}

func (s *Scaler) apply(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if s.Scale[j] == 0 {
			continue
		}
		out[j] = (v - s.Offset[j]) / s.Scale[j]
	}
	return out
}

func (s *Scaler) invert(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Offset[j]
	}
	return out
}

// Preprocessor scales sequence features and targets.
type Preprocessor struct {
	kind         ScalerKind
	features     *Scaler
	targets      *Scaler
	featureNames []string
	targetNames  []string
}

// NewPreprocessor creates an unfitted preprocessor. An unknown kind falls
// back to min-max.
func NewPreprocessor(kind ScalerKind, featureNames, targetNames []string) *Preprocessor {
	if kind != ScalerStandard {
		kind = ScalerMinMax
	}
	return &Preprocessor{kind: kind, featureNames: featureNames, targetNames: targetNames}
}

// Fitted reports whether Fit has run.
func (p *Preprocessor) Fitted() bool {
	return p.features != nil && p.targets != nil
}

// FeatureNames returns the feature labels.
func (p *Preprocessor) FeatureNames() []string { return p.featureNames }

// TargetNames returns the target labels.
func (p *Preprocessor) TargetNames() []string { return p.targetNames }

// Fit learns the feature scaler over X flattened across time and a
// min-max scaler over y.
func (p *Preprocessor) Fit(X [][][]float64, y [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 || len(y) == 0 {
		return errors.New("fitting preprocessor: empty data")
	}
	nf := len(X[0][0])
	fcols := make([][]float64, nf)
	for _, seq := range X {
		for _, row := range seq {
			if len(row) != nf {
				return errors.Newf("fitting preprocessor: row has %d features, want %d", len(row), nf)
			}
			for j, v := range row {
				fcols[j] = append(fcols[j], v)
			}
		}
	}

	nt := len(y[0])
	tcols := make([][]float64, nt)
	for _, row := range y {
		if len(row) != nt {
			return errors.Newf("fitting preprocessor: target row has %d values, want %d", len(row), nt)
		}
		for j, v := range row {
			tcols[j] = append(tcols[j], v)
		}
	}

	p.features = fitScaler(p.kind, fcols)
	p.targets = fitScaler(ScalerMinMax, tcols)
	return nil
}

// Transform scales X and, when y is not nil, y.
func (p *Preprocessor) Transform(X [][][]float64, y [][]float64) ([][][]float64, [][]float64, error) {
	if !p.Fitted() {
		return nil, nil, ErrNotFitted
	}
	xs := make([][][]float64, len(X))
	for i, seq := range X {
		xs[i] = p.TransformSequence(seq)
	}
	if y == nil {
		return xs, nil, nil
	}
	ys := make([][]float64, len(y))
	for i, row := range y {
		ys[i] = p.targets.apply(row)
	}
	return xs, ys, nil
}

// FitTransform is Fit followed by Transform.
func (p *Preprocessor) FitTransform(X [][][]float64, y [][]float64) ([][][]float64, [][]float64, error) {
	if err := p.Fit(X, y); err != nil {
		return nil, nil, err
	}
	return p.Transform(X, y)
}

// TransformSequence scales one sequence. The preprocessor must be fitted.
func (p *Preprocessor) TransformSequence(seq [][]float64) [][]float64 {
	out := make([][]float64, len(seq))
	for t, row := range seq {
		out[t] = p.features.apply(row)
	}
	return out
}

// InverseTransformFeatures maps scaled sequences back to raw units.
func (p *Preprocessor) InverseTransformFeatures(X [][][]float64) ([][][]float64, error) {
	if !p.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][][]float64, len(X))
	for i, seq := range X {
		out[i] = make([][]float64, len(seq))
		for t, row := range seq {
			out[i][t] = p.features.invert(row)
		}
	}
	return out, nil
}

// InverseTransformTargets maps scaled target rows back to raw units.
func (p *Preprocessor) InverseTransformTargets(y [][]float64) ([][]float64, error) {
	if !p.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(y))
	for i, row := range y {
		out[i] = p.targets.invert(row)
	}
	return out, nil
}

type preprocessorState struct {
	ScalerType    ScalerKind `json:"scaler_type"`
	FeatureScaler *Scaler    `json:"feature_scaler"`
	TargetScaler  *Scaler    `json:"target_scaler"`
	FeatureNames  []string   `json:"feature_names"`
	TargetNames   []string   `json:"target_names"`
}

// Save writes the fitted scalers and labels as JSON.
func (p *Preprocessor) Save(w io.Writer) error {
	if !p.Fitted() {
		return ErrNotFitted
	}
	return json.NewEncoder(w).Encode(preprocessorState{
		ScalerType:    p.kind,
		FeatureScaler: p.features,
		TargetScaler:  p.targets,
		FeatureNames:  p.featureNames,
		TargetNames:   p.targetNames,
	})
}

// LoadPreprocessor reads a preprocessor written by Save.
func LoadPreprocessor(r io.Reader) (*Preprocessor, error) {
	var st preprocessorState
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return nil, errors.Wrap(err, "decoding preprocessor")
	}
	if st.FeatureScaler == nil || st.TargetScaler == nil {
		return nil, errors.Wrap(ErrNotFitted, "decoding preprocessor")
	}
	return &Preprocessor{
		kind:         st.ScalerType,
		features:     st.FeatureScaler,
		targets:      st.TargetScaler,
		featureNames: st.FeatureNames,
		targetNames:  st.TargetNames,
	}, nil
}

// SplitSeed is the default shuffle seed for SplitTrainVal.
const SplitSeed = 42

// Split is a train/validation partition.
type Split struct {
	TrainX [][][]float64
	TrainY [][]float64
	ValX   [][][]float64
	ValY   [][]float64
}

// SplitTrainVal holds out floor(n*valFrac) samples for validation. With
// shuffle the samples are permuted by a seeded RNG first; the first
// indices of the permutation form the validation set.
func SplitTrainVal(X [][][]float64, y [][]float64, valFrac float64, shuffle bool, seed int64) Split {
	n := len(X)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if shuffle {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}

	nVal := int(float64(n) * valFrac)
	var sp Split
	for k, i := range idx {
		if k < nVal {
			sp.ValX = append(sp.ValX, X[i])
			sp.ValY = append(sp.ValY, y[i])
			continue
		}
		sp.TrainX = append(sp.TrainX, X[i])
		sp.TrainY = append(sp.TrainY, y[i])
	}
	return sp
}
