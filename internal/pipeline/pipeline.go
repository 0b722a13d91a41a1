// Package pipeline trains the sequence model, registers it as the active
// model and turns it into per-team season predictions.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/artifacts"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/history"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/metrics"
	"github.com/fortuna/courtcast/internal/ml"
	"github.com/fortuna/courtcast/internal/store"
)

// ErrTrainingInProgress is returned when TrainAndSave is called while a
// training run is active.
var ErrTrainingInProgress = errors.New("training already in progress")

// Model types recorded in model metadata.
const (
	ModelTypeLSTM   = "lstm"
	ModelTypeSimple = "simple_weighted_avg"
)

// History supplies training and inference sequences.
type History interface {
	TrainingData(ctx context.Context) (*history.Dataset, error)
	InferenceSequence(ctx context.Context, teamID int, season string) ([][]float64, error)
	Seasons() []string
	Sequence() history.SequenceConfig
}

// TeamStore lists teams.
type TeamStore interface {
	GetAll(ctx context.Context) ([]*store.Team, error)
}

// SeasonStatsStore reads team season aggregates.
type SeasonStatsStore interface {
	ListForTeam(ctx context.Context, teamID int) ([]*store.TeamSeasonStats, error)
}

// PredictionStore writes prediction snapshots.
type PredictionStore interface {
	Upsert(ctx context.Context, p *store.TeamPrediction) (int, error)
}

// ModelStore reads and swaps the active model.
type ModelStore interface {
	Active(ctx context.Context) (*store.ModelMetadata, error)
	Activate(ctx context.Context, m *store.ModelMetadata) error
}

// Stores groups the repositories the pipeline uses.
type Stores struct {
	Teams       TeamStore
	SeasonStats SeasonStatsStore
	Predictions PredictionStore
	Models      ModelStore
}

// Config holds the model shape and training schedule.
type Config struct {
	HiddenSize  int
	NumLayers   int
	Dropout     float64
	Scaler      ml.ScalerKind
	ValFraction float64
	Train       ml.TrainConfig
	Now         func() time.Time
}

// Pipeline is the training pipeline.
type Pipeline struct {
	history   History
	stores    Stores
	artifacts artifacts.Store
	cache     cache.Cache
	cfg       Config
	logger    zerolog.Logger

	training sync.Mutex

	loadedMu sync.Mutex
	loaded   map[string]*loadedModel
}

type loadedModel struct {
	model *ml.LSTM
	pre   *ml.Preprocessor
}

// New creates a pipeline. A nil cache disables invalidation.
func New(h History, stores Stores, art artifacts.Store, c cache.Cache, cfg Config) *Pipeline {
	def := ml.DefaultModelConfig(history.NumFeatures, history.NumTargets)
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = def.HiddenSize
	}
	if cfg.NumLayers <= 0 {
		cfg.NumLayers = def.NumLayers
	}
	if cfg.ValFraction <= 0 || cfg.ValFraction >= 1 {
		cfg.ValFraction = 0.2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		history:   h,
		stores:    stores,
		artifacts: art,
		cache:     c,
		cfg:       cfg,
		logger:    logging.Component("pipeline"),
		loaded:    make(map[string]*loadedModel),
	}
}

func (p *Pipeline) modelConfig() ml.ModelConfig {
	mc := ml.DefaultModelConfig(history.NumFeatures, history.NumTargets)
	mc.HiddenSize = p.cfg.HiddenSize
	mc.NumLayers = p.cfg.NumLayers
	mc.Dropout = p.cfg.Dropout
	return mc
}

// ScalerArtifact names the preprocessor artifact of a model version.
func ScalerArtifact(version string) string {
	return version + "_scaler"
}

// TrainResult summarizes a training run.
type TrainResult struct {
	ModelVersion      string             `json:"model_version"`
	TrainingSamples   int                `json:"training_samples"`
	ValidationSamples int                `json:"validation_samples"`
	EpochsRun         int                `json:"epochs_run"`
	BestEpoch         int                `json:"best_epoch"`
	BestValLoss       float64            `json:"best_val_loss"`
	FinalTrainLoss    float64            `json:"final_train_loss"`
	MAE               float64            `json:"mae"`
	PerTargetMAE      map[string]float64 `json:"per_target_mae"`
	ModelPath         string             `json:"model_path"`
	ScalerPath        string             `json:"scaler_path"`
	Duration          time.Duration      `json:"duration"`
}

// TrainAndSave trains a new model on every buildable training season,
// stores its artifacts and makes it the active model. An empty version
// defaults to lstm_vYYYYMMDD_HHMM. Concurrent calls fail with
// ErrTrainingInProgress.
func (p *Pipeline) TrainAndSave(ctx context.Context, version string) (*TrainResult, error) {
	if !p.training.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer p.training.Unlock()

	res, err := p.trainAndSave(ctx, version)
	if err != nil {
		metrics.RecordTraining("failed", 0)
		metrics.RecordError("pipeline", "training")
		p.logger.Error().Err(err).Str("version", version).Msg("training failed")
		return nil, err
	}
	metrics.RecordTraining("success", res.BestValLoss)
	return res, nil
}

func (p *Pipeline) trainAndSave(ctx context.Context, version string) (*TrainResult, error) {
	start := p.cfg.Now()
	if version == "" {
		version = "lstm_v" + start.Format("20060102_1504")
	}

	ds, err := p.history.TrainingData(ctx)
	if err != nil {
		return nil, err
	}
	split := ml.SplitTrainVal(ds.X, ds.Y, p.cfg.ValFraction, true, ml.SplitSeed)
	if len(split.TrainX) == 0 {
		return nil, apperr.Mark(
			fmt.Errorf("%d samples leave nothing to train on", ds.Len()),
			apperr.ErrInsufficientTrainingData,
		)
	}
	p.logger.Info().
		Str("version", version).
		Int("train", len(split.TrainX)).
		Int("val", len(split.ValX)).
		Msg("training data split")

	pre := ml.NewPreprocessor(p.cfg.Scaler, history.FeatureNames, history.TargetNames)
	trX, trY, err := pre.FitTransform(split.TrainX, split.TrainY)
	if err != nil {
		return nil, err
	}
	vX, vY, err := pre.Transform(split.ValX, split.ValY)
	if err != nil {
		return nil, err
	}

	model, err := ml.NewLSTM(p.modelConfig(), p.cfg.Train.Seed)
	if err != nil {
		return nil, err
	}
	trainer := ml.NewTrainer(model, p.cfg.Train)
	hist, err := trainer.Fit(ctx, trX, trY, vX, vY)
	if err != nil {
		return nil, errors.Wrap(err, "fitting model")
	}

	// Errors are reported in raw units, on validation data when there is any.
	evalX, evalY := vX, split.ValY
	if len(evalX) == 0 {
		evalX, evalY = trX, split.TrainY
	}
	pred, err := pre.InverseTransformTargets(trainer.Predict(evalX))
	if err != nil {
		return nil, err
	}
	ev := ml.Evaluate(pred, evalY)
	perTarget := make(map[string]float64, len(history.TargetNames))
	for i, name := range history.TargetNames {
		perTarget[name] = ev.PerTargetMAE[i]
	}

	var modelBuf, scalerBuf bytes.Buffer
	if err := model.Save(&modelBuf); err != nil {
		return nil, errors.Wrap(err, "encoding model")
	}
	if err := pre.Save(&scalerBuf); err != nil {
		return nil, errors.Wrap(err, "encoding preprocessor")
	}
	meta := map[string]string{
		"model_type":    ModelTypeLSTM,
		"best_epoch":    strconv.Itoa(hist.BestEpoch),
		"best_val_loss": strconv.FormatFloat(hist.BestValLoss, 'g', -1, 64),
		"trained_at":    start.UTC().Format(time.RFC3339),
	}
	modelPath, err := p.artifacts.Save(ctx, version, modelBuf.Bytes(), meta)
	if err != nil {
		return nil, err
	}
	scalerPath, err := p.artifacts.Save(ctx, ScalerArtifact(version), scalerBuf.Bytes(), nil)
	if err != nil {
		return nil, err
	}

	seq := p.history.Sequence()
	finalTrain := hist.TrainLoss[len(hist.TrainLoss)-1]
	md := &store.ModelMetadata{
		ModelVersion:    version,
		ModelType:       ModelTypeLSTM,
		TrainedAt:       start,
		TrainingSeasons: p.history.Seasons(),
		EpochsTrained:   store.Ptr(hist.BestEpoch + 1),
		BatchSize:       store.Ptr(trainerBatch(p.cfg.Train)),
		SequenceLength:  store.Ptr(seq.SequenceLength),
		HiddenUnits:     []int{p.cfg.HiddenSize, model.Config().FCSize},
		DropoutRate:     store.Ptr(p.cfg.Dropout),
		LearningRate:    store.Ptr(p.cfg.Train.LearningRate),
		TrainingLoss:    store.Ptr(finalTrain),
		ValidationLoss:  store.Ptr(hist.BestValLoss),
		MAEWins:         store.Ptr(perTarget["wins"]),
		MAEPPG:          store.Ptr(perTarget["ppg"]),
		ModelPath:       store.Ptr(modelPath),
		ScalerPath:      store.Ptr(scalerPath),
	}
	if err := p.stores.Models.Activate(ctx, md); err != nil {
		return nil, err
	}
	p.remember(version, &loadedModel{model: model, pre: pre})
	p.invalidateActive(ctx)

	res := &TrainResult{
		ModelVersion:      version,
		TrainingSamples:   len(split.TrainX),
		ValidationSamples: len(split.ValX),
		EpochsRun:         hist.EpochsRun(),
		BestEpoch:         hist.BestEpoch,
		BestValLoss:       hist.BestValLoss,
		FinalTrainLoss:    finalTrain,
		MAE:               ev.MAE,
		PerTargetMAE:      perTarget,
		ModelPath:         modelPath,
		ScalerPath:        scalerPath,
		Duration:          p.cfg.Now().Sub(start),
	}
	p.logger.Info().
		Str("version", version).
		Int("best_epoch", res.BestEpoch).
		Float64("best_val_loss", res.BestValLoss).
		Float64("mae_wins", perTarget["wins"]).
		Msg("model trained and activated")
	return res, nil
}

func trainerBatch(cfg ml.TrainConfig) int {
	if cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return ml.DefaultTrainConfig().BatchSize
}

func (p *Pipeline) invalidateActive(ctx context.Context) {
	if p.cache != nil {
		p.cache.Delete(ctx, cache.ActiveModelKey())
	}
}

func (p *Pipeline) remember(version string, lm *loadedModel) {
	p.loadedMu.Lock()
	defer p.loadedMu.Unlock()
	p.loaded[version] = lm
}

// load returns the model and preprocessor of a version, reading the
// artifacts once per process.
func (p *Pipeline) load(ctx context.Context, version string) (*loadedModel, error) {
	p.loadedMu.Lock()
	lm, ok := p.loaded[version]
	p.loadedMu.Unlock()
	if ok {
		return lm, nil
	}

	blob, _, err := p.artifacts.Load(ctx, version)
	if err != nil {
		return nil, errors.Wrapf(err, "loading model %s", version)
	}
	model, err := ml.LoadModel(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	blob, _, err = p.artifacts.Load(ctx, ScalerArtifact(version))
	if err != nil {
		return nil, errors.Wrapf(err, "loading preprocessor %s", version)
	}
	pre, err := ml.LoadPreprocessor(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}

	lm = &loadedModel{model: model, pre: pre}
	p.remember(version, lm)
	p.logger.Info().Str("version", version).Msg("loaded model artifacts")
	return lm, nil
}
