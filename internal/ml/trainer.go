package ml

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna/courtcast/internal/logging"
)

// TrainConfig holds the optimizer and schedule settings.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Patience     int
	Seed         int64
	Device       string
	Workers      int
}

// DefaultTrainConfig is Adam at 0.001, batches of 16, up to 100 epochs
// with patience 15.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       100,
		BatchSize:    16,
		LearningRate: 0.001,
		Patience:     15,
		Seed:         SplitSeed,
		Device:       "cpu",
	}
}

// Device is where training runs. Only the CPU is supported; Workers
// bounds the goroutines computing per-sample gradients.
type Device struct {
	Name    string
	Workers int
}

// ResolveDevice maps the configured device name and worker count to a
// Device. Zero workers means GOMAXPROCS.
func ResolveDevice(name string, workers int) Device {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if n := strings.ToLower(name); n != "" && n != "cpu" {
		logger := logging.Component("trainer")
		logger.Warn().Str("requested", name).Msg("device not available, using cpu")
	}
	return Device{Name: "cpu", Workers: workers}
}

// History records a training run.
type History struct {
	TrainLoss    []float64 `json:"train_loss"`
	ValLoss      []float64 `json:"val_loss"`
	BestEpoch    int       `json:"best_epoch"`
	BestValLoss  float64   `json:"best_val_loss"`
	StoppedEarly bool      `json:"stopped_early"`
}

// EpochsRun is the number of completed epochs.
func (h *History) EpochsRun() int {
	return len(h.TrainLoss)
}

// Evaluation holds regression errors over a set of predictions.
type Evaluation struct {
	MSE          float64   `json:"mse"`
	MAE          float64   `json:"mae"`
	PerTargetMAE []float64 `json:"per_target_mae"`
}

// Evaluate compares predictions with targets row by row.
func Evaluate(pred, y [][]float64) Evaluation {
	if len(y) == 0 {
		return Evaluation{}
	}
	nt := len(y[0])
	ev := Evaluation{PerTargetMAE: make([]float64, nt)}
	for i, row := range y {
		for j, want := range row {
			d := pred[i][j] - want
			ev.MSE += d * d
			ev.MAE += math.Abs(d)
			ev.PerTargetMAE[j] += math.Abs(d)
		}
	}
	n := float64(len(y))
	ev.MSE /= n * float64(nt)
	ev.MAE /= n * float64(nt)
	for j := range ev.PerTargetMAE {
		ev.PerTargetMAE[j] /= n
	}
	return ev
}

// Trainer fits an LSTM with Adam on mean squared error and early stopping.
type Trainer struct {
	model  *LSTM
	opt    *Adam
	cfg    TrainConfig
	device Device
	logger zerolog.Logger
}

// NewTrainer creates a trainer for model and resolves its device.
func NewTrainer(model *LSTM, cfg TrainConfig) *Trainer {
	def := DefaultTrainConfig()
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Patience <= 0 {
		cfg.Patience = def.Patience
	}
	if cfg.LearningRate < 0 {
		cfg.LearningRate = def.LearningRate
	}
	return &Trainer{
		model:  model,
		opt:    NewAdam(cfg.LearningRate, model.Params()),
		cfg:    cfg,
		device: ResolveDevice(cfg.Device, cfg.Workers),
		logger: logging.Component("trainer"),
	}
}

// Model returns the model being trained.
func (t *Trainer) Model() *LSTM { return t.model }

// Device returns the resolved device.
func (t *Trainer) Device() Device { return t.device }

// Fit trains for up to Epochs epochs, stopping once the validation loss has
// not improved for Patience epochs, and leaves the model holding the
// weights of the best validation epoch. Without validation data the
// training loss is monitored instead.
func (t *Trainer) Fit(ctx context.Context, trainX [][][]float64, trainY [][]float64, valX [][][]float64, valY [][]float64) (*History, error) {
	n := len(trainX)
	if n == 0 || len(trainY) != n {
		return nil, errors.Newf("training on %d sequences and %d targets", n, len(trainY))
	}

	t.logger.Info().
		Int("samples", n).
		Int("val_samples", len(valX)).
		Str("params", humanize.Comma(int64(t.model.ParamCount()))).
		Str("device", t.device.Name).
		Int("workers", t.device.Workers).
		Msg("training started")
	start := time.Now()

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	bufs := make([]Gradients, min(t.cfg.BatchSize, n))
	for i := range bufs {
		bufs[i] = t.model.NewGradients()
	}
	total := t.model.NewGradients()

	hist := &History{BestEpoch: -1, BestValLoss: math.Inf(1)}
	var best [][]float64
	wait := 0
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return hist, err
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var sum float64
		for lo := 0; lo < n; lo += t.cfg.BatchSize {
			idx := order[lo:min(lo+t.cfg.BatchSize, n)]
			seeds := make([]int64, len(idx))
			for k := range seeds {
				seeds[k] = rng.Int63()
			}
			loss, err := t.batchGradients(ctx, trainX, trainY, idx, seeds, bufs, total)
			if err != nil {
				return hist, err
			}
			t.opt.Step(t.model.Params(), total)
			sum += loss * float64(len(idx))
		}

		trainLoss := sum / float64(n)
		valLoss := trainLoss
		if len(valX) > 0 {
			valLoss = Evaluate(t.model.PredictBatch(valX), valY).MSE
		}
		hist.TrainLoss = append(hist.TrainLoss, trainLoss)
		hist.ValLoss = append(hist.ValLoss, valLoss)

		t.logger.Debug().Int("epoch", epoch).Float64("train_loss", trainLoss).Float64("val_loss", valLoss).Msg("epoch")

		if valLoss < hist.BestValLoss {
			hist.BestValLoss = valLoss
			hist.BestEpoch = epoch
			best = t.model.Weights()
			wait = 0
			continue
		}
		wait++
		if wait >= t.cfg.Patience {
			hist.StoppedEarly = true
			break
		}
	}

	if best != nil {
		t.model.SetWeights(best)
	}
	t.logger.Info().
		Int("epochs", hist.EpochsRun()).
		Int("best_epoch", hist.BestEpoch).
		Float64("best_val_loss", hist.BestValLoss).
		Bool("stopped_early", hist.StoppedEarly).
		Dur("duration", time.Since(start)).
		Msg("training finished")
	return hist, nil
}

// batchGradients computes the mean squared error of one minibatch and its
// gradient into total. Per-sample gradients run on the device workers and
// are summed in sample order.
func (t *Trainer) batchGradients(ctx context.Context, X [][][]float64, Y [][]float64, idx []int, seeds []int64, bufs []Gradients, total Gradients) (float64, error) {
	nt := t.model.cfg.NumTargets
	scale := 1 / float64(len(idx)*nt)
	losses := make([]float64, len(idx))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.device.Workers)
	for k, i := range idx {
		k, i := k, i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bufs[k].zero()
			tr := t.model.forward(X[i], rand.New(rand.NewSource(seeds[k])))
			dOut := make([]float64, nt)
			for j, out := range tr.out {
				d := out - Y[i][j]
				losses[k] += d * d
				dOut[j] = 2 * d * scale
			}
			t.model.backward(tr, dOut, bufs[k])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total.zero()
	var loss float64
	for k := range idx {
		total.add(bufs[k])
		loss += losses[k]
	}
	return loss * scale, nil
}

// Evaluate runs the model over X and compares with y.
func (t *Trainer) Evaluate(X [][][]float64, y [][]float64) Evaluation {
	return Evaluate(t.model.PredictBatch(X), y)
}

// Predict runs the model in eval mode.
func (t *Trainer) Predict(X [][][]float64) [][]float64 {
	return t.model.PredictBatch(X)
}
