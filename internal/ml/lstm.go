package ml

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// ModelConfig shapes the sequence model.
type ModelConfig struct {
	NumFeatures int     `json:"num_features"`
	HiddenSize  int     `json:"hidden_size"`
	NumLayers   int     `json:"num_layers"`
	NumTargets  int     `json:"num_targets"`
	Dropout     float64 `json:"dropout"`
	FCSize      int     `json:"fc_size"`
}

// DefaultModelConfig is two 64-unit layers, a 32-unit head and 0.2 dropout.
func DefaultModelConfig(numFeatures, numTargets int) ModelConfig {
	return ModelConfig{
		NumFeatures: numFeatures,
		HiddenSize:  64,
		NumLayers:   2,
		NumTargets:  numTargets,
		Dropout:     0.2,
		FCSize:      32,
	}
}

func (c ModelConfig) validate() error {
	if c.NumFeatures <= 0 || c.HiddenSize <= 0 || c.NumLayers <= 0 || c.NumTargets <= 0 || c.FCSize <= 0 {
		return errors.Newf("invalid model config %+v", c)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Newf("dropout must be in [0,1), got %v", c.Dropout)
	}
	return nil
}

// Param is one weight tensor stored row-major. Bias vectors have one column.
type Param struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func (p *Param) row(r int) []float64 {
	return p.Data[r*p.Cols : (r+1)*p.Cols]
}

// Gradients holds one buffer per model parameter, in parameter order.
type Gradients [][]float64

func (g Gradients) zero() {
	for _, b := range g {
		for i := range b {
			b[i] = 0
		}
	}
}

func (g Gradients) add(o Gradients) {
	for i := range g {
		floats.Add(g[i], o[i])
	}
}

// LSTM is a stacked LSTM over a sequence whose last hidden state feeds a
// two-layer fully connected head. Gate rows are ordered i, f, g, o.
type LSTM struct {
	cfg    ModelConfig
	params []*Param
}

// NewLSTM creates a model with uniform(-1/sqrt(fan), 1/sqrt(fan))
// initialization, fan being the hidden size for recurrent layers and the
// input width for the head.
func NewLSTM(cfg ModelConfig, seed int64) (*LSTM, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &LSTM{cfg: cfg}
	m.params = m.layout()

	rng := rand.New(rand.NewSource(seed))
	H := cfg.HiddenSize
	for l := 0; l < cfg.NumLayers; l++ {
		for _, p := range m.params[4*l : 4*l+4] {
			uniform(rng, p.Data, 1/math.Sqrt(float64(H)))
		}
	}
	fc1w, fc1b, fc2w, fc2b := m.head()
	uniform(rng, fc1w.Data, 1/math.Sqrt(float64(H)))
	uniform(rng, fc1b.Data, 1/math.Sqrt(float64(H)))
	uniform(rng, fc2w.Data, 1/math.Sqrt(float64(cfg.FCSize)))
	uniform(rng, fc2b.Data, 1/math.Sqrt(float64(cfg.FCSize)))
	return m, nil
}

func uniform(rng *rand.Rand, dst []float64, bound float64) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * bound
	}
}

func (m *LSTM) layout() []*Param {
	H := m.cfg.HiddenSize
	var ps []*Param
	in := m.cfg.NumFeatures
	for l := 0; l < m.cfg.NumLayers; l++ {
		ps = append(ps,
			newParam(layerName(l, "weight_ih"), 4*H, in),
			newParam(layerName(l, "weight_hh"), 4*H, H),
			newParam(layerName(l, "bias_ih"), 4*H, 1),
			newParam(layerName(l, "bias_hh"), 4*H, 1),
		)
		in = H
	}
	return append(ps,
		newParam("fc1.weight", m.cfg.FCSize, H),
		newParam("fc1.bias", m.cfg.FCSize, 1),
		newParam("fc2.weight", m.cfg.NumTargets, m.cfg.FCSize),
		newParam("fc2.bias", m.cfg.NumTargets, 1),
	)
}

func newParam(name string, rows, cols int) *Param {
	return &Param{Name: name, Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func layerName(l int, suffix string) string {
	return fmt.Sprintf("lstm.%s_l%d", suffix, l)
}

func (m *LSTM) layer(l int) (wih, whh, bih, bhh *Param) {
	p := m.params[4*l : 4*l+4]
	return p[0], p[1], p[2], p[3]
}

func (m *LSTM) head() (fc1w, fc1b, fc2w, fc2b *Param) {
	p := m.params[4*m.cfg.NumLayers:]
	return p[0], p[1], p[2], p[3]
}

// Config returns the model shape.
func (m *LSTM) Config() ModelConfig { return m.cfg }

// Params returns the model parameters in a fixed order.
func (m *LSTM) Params() []*Param { return m.params }

// ParamCount returns the number of scalar weights.
func (m *LSTM) ParamCount() int {
	n := 0
	for _, p := range m.params {
		n += len(p.Data)
	}
	return n
}

// NewGradients allocates zeroed gradient buffers matching the parameters.
func (m *LSTM) NewGradients() Gradients {
	g := make(Gradients, len(m.params))
	for i, p := range m.params {
		g[i] = make([]float64, len(p.Data))
	}
	return g
}

// Weights returns a deep copy of the parameter values.
func (m *LSTM) Weights() [][]float64 {
	out := make([][]float64, len(m.params))
	for i, p := range m.params {
		out[i] = append([]float64(nil), p.Data...)
	}
	return out
}

// SetWeights overwrites the parameter values with w, as returned by Weights.
func (m *LSTM) SetWeights(w [][]float64) {
	for i, p := range m.params {
		copy(p.Data, w[i])
	}
}

type step struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	c, h            []float64
}

type trace struct {
	// steps is indexed [layer][t].
	steps [][]step
	// masks holds the dropout applied to each layer's outputs, [layer][t].
	masks [][][]float64
	z1    []float64
	mask1 []float64
	d1    []float64
	out   []float64
}

// Predict runs the model in eval mode over one sequence.
func (m *LSTM) Predict(seq [][]float64) []float64 {
	return m.forward(seq, nil).out
}

// PredictBatch runs Predict over each sequence.
func (m *LSTM) PredictBatch(X [][][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, seq := range X {
		out[i] = m.Predict(seq)
	}
	return out
}

// forward runs the model. A non-nil rng enables dropout.
func (m *LSTM) forward(seq [][]float64, rng *rand.Rand) *trace {
	H := m.cfg.HiddenSize
	L := m.cfg.NumLayers
	train := rng != nil && m.cfg.Dropout > 0
	tr := &trace{steps: make([][]step, L), masks: make([][][]float64, L)}

	input := seq
	for l := 0; l < L; l++ {
		wih, whh, bih, bhh := m.layer(l)
		h := make([]float64, H)
		c := make([]float64, H)
		steps := make([]step, len(input))
		outs := make([][]float64, len(input))
		gates := make([]float64, 4*H)

		for t, x := range input {
			for r := 0; r < 4*H; r++ {
				gates[r] = floats.Dot(wih.row(r), x) + floats.Dot(whh.row(r), h) + bih.Data[r] + bhh.Data[r]
			}
			st := step{
				x: x, hPrev: h, cPrev: c,
				i: make([]float64, H), f: make([]float64, H), g: make([]float64, H), o: make([]float64, H),
				c: make([]float64, H), h: make([]float64, H),
			}
			for k := 0; k < H; k++ {
				st.i[k] = sigmoid(gates[k])
				st.f[k] = sigmoid(gates[H+k])
				st.g[k] = math.Tanh(gates[2*H+k])
				st.o[k] = sigmoid(gates[3*H+k])
				st.c[k] = st.f[k]*c[k] + st.i[k]*st.g[k]
				st.h[k] = st.o[k] * math.Tanh(st.c[k])
			}
			steps[t] = st
			h, c = st.h, st.c
			outs[t] = st.h
		}
		tr.steps[l] = steps

		if train && l < L-1 {
			tr.masks[l] = make([][]float64, len(outs))
			dropped := make([][]float64, len(outs))
			for t, o := range outs {
				tr.masks[l][t] = dropoutMask(rng, H, m.cfg.Dropout)
				dropped[t] = make([]float64, H)
				floats.MulTo(dropped[t], o, tr.masks[l][t])
			}
			input = dropped
		} else {
			input = outs
		}
	}

	last := tr.steps[L-1][len(seq)-1].h
	fc1w, fc1b, fc2w, fc2b := m.head()
	tr.z1 = affine(fc1w, fc1b, last)
	tr.d1 = make([]float64, len(tr.z1))
	for k, v := range tr.z1 {
		tr.d1[k] = math.Max(v, 0)
	}
	if train {
		tr.mask1 = dropoutMask(rng, len(tr.d1), m.cfg.Dropout)
		floats.Mul(tr.d1, tr.mask1)
	}
	tr.out = affine(fc2w, fc2b, tr.d1)
	return tr
}

// backward accumulates into grads the gradient of the loss whose
// derivative with respect to the output is dOut.
func (m *LSTM) backward(tr *trace, dOut []float64, grads Gradients) {
	H := m.cfg.HiddenSize
	L := m.cfg.NumLayers
	nl := 4 * L
	fc1w, _, fc2w, _ := m.head()

	// Head.
	dd1 := make([]float64, m.cfg.FCSize)
	for r, d := range dOut {
		floats.AddScaled(grads[nl+2][r*fc2w.Cols:(r+1)*fc2w.Cols], d, tr.d1)
		grads[nl+3][r] += d
		floats.AddScaled(dd1, d, fc2w.row(r))
	}
	dz1 := dd1
	for k := range dz1 {
		if tr.mask1 != nil {
			dz1[k] *= tr.mask1[k]
		}
		if tr.z1[k] <= 0 {
			dz1[k] = 0
		}
	}
	T := len(tr.steps[0])
	dh := make([]float64, H)
	last := tr.steps[L-1][T-1].h
	for r, d := range dz1 {
		floats.AddScaled(grads[nl][r*fc1w.Cols:(r+1)*fc1w.Cols], d, last)
		grads[nl+1][r] += d
		floats.AddScaled(dh, d, fc1w.row(r))
	}

	// Recurrent layers, top down, each through time.
	dOuts := make([][]float64, T)
	dOuts[T-1] = dh
	da := make([]float64, 4*H)
	for l := L - 1; l >= 0; l-- {
		wih, whh, _, _ := m.layer(l)
		gWih, gWhh, gBih, gBhh := grads[4*l], grads[4*l+1], grads[4*l+2], grads[4*l+3]

		dhNext := make([]float64, H)
		dcNext := make([]float64, H)
		var dIn [][]float64
		if l > 0 {
			dIn = make([][]float64, T)
		}

		for t := T - 1; t >= 0; t-- {
			st := tr.steps[l][t]
			for k := 0; k < H; k++ {
				dhk := dhNext[k]
				if dOuts[t] != nil {
					dhk += dOuts[t][k]
				}
				tc := math.Tanh(st.c[k])
				dc := dcNext[k] + dhk*st.o[k]*(1-tc*tc)
				do := dhk * tc
				di := dc * st.g[k]
				dg := dc * st.i[k]
				df := dc * st.cPrev[k]
				dcNext[k] = dc * st.f[k]

				da[k] = di * st.i[k] * (1 - st.i[k])
				da[H+k] = df * st.f[k] * (1 - st.f[k])
				da[2*H+k] = dg * (1 - st.g[k]*st.g[k])
				da[3*H+k] = do * st.o[k] * (1 - st.o[k])
			}

			for k := range dhNext {
				dhNext[k] = 0
			}
			var dx []float64
			if l > 0 {
				dx = make([]float64, wih.Cols)
			}
			for r, d := range da {
				if d == 0 {
					continue
				}
				floats.AddScaled(gWih[r*wih.Cols:(r+1)*wih.Cols], d, st.x)
				floats.AddScaled(gWhh[r*whh.Cols:(r+1)*whh.Cols], d, st.hPrev)
				gBih[r] += d
				gBhh[r] += d
				floats.AddScaled(dhNext, d, whh.row(r))
				if dx != nil {
					floats.AddScaled(dx, d, wih.row(r))
				}
			}
			if dx != nil {
				if mask := tr.masks[l-1]; mask != nil {
					floats.Mul(dx, mask[t])
				}
				dIn[t] = dx
			}
		}
		dOuts = dIn
	}
}

func affine(w, b *Param, x []float64) []float64 {
	out := make([]float64, w.Rows)
	for r := range out {
		out[r] = floats.Dot(w.row(r), x) + b.Data[r]
	}
	return out
}

func dropoutMask(rng *rand.Rand, n int, p float64) []float64 {
	mask := make([]float64, n)
	keep := 1 / (1 - p)
	for i := range mask {
		if rng.Float64() >= p {
			mask[i] = keep
		}
	}
	return mask
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

type modelState struct {
	Config  ModelConfig `json:"config"`
	Weights []*Param    `json:"weights"`
}

// Save writes the configuration and weights as JSON.
func (m *LSTM) Save(w io.Writer) error {
	return json.NewEncoder(w).Encode(modelState{Config: m.cfg, Weights: m.params})
}

// LoadModel reads a model written by Save.
func LoadModel(r io.Reader) (*LSTM, error) {
	var st modelState
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return nil, errors.Wrap(err, "decoding model")
	}
	if err := st.Config.validate(); err != nil {
		return nil, errors.Wrap(err, "decoding model")
	}

	m := &LSTM{cfg: st.Config}
	m.params = m.layout()
	byName := make(map[string]*Param, len(st.Weights))
	for _, p := range st.Weights {
		byName[p.Name] = p
	}
	for _, p := range m.params {
		saved, ok := byName[p.Name]
		if !ok {
			return nil, errors.Newf("decoding model: missing weight %s", p.Name)
		}
		if saved.Rows != p.Rows || saved.Cols != p.Cols || len(saved.Data) != len(p.Data) {
			return nil, errors.Newf("decoding model: weight %s is %dx%d, want %dx%d",
				p.Name, saved.Rows, saved.Cols, p.Rows, p.Cols)
		}
		copy(p.Data, saved.Data)
	}
	return m, nil
}
