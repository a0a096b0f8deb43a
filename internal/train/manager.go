// Package train drives training and evaluation of the bilinear embedding
// network over the half-panorama triplet dataset.
package train

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn/internal/dataset"
	"github.com/born-ml/bcnn/internal/errdefs"
	"github.com/born-ml/bcnn/internal/imageio"
	"github.com/born-ml/bcnn/internal/model"
	"github.com/born-ml/bcnn/internal/scheduler"
)

// checkpointTimeFormat is appended to the checkpoint prefix (YYYYMMDDHHMMSS).
const checkpointTimeFormat = "20060102150405"

// ModelType is the model type recorded in checkpoint headers.
const ModelType = "BilinearAlexNet"

// ErrFrozen is returned by Train when the freeze mode leaves nothing to train.
var ErrFrozen = fmt.Errorf("%w: network is fully frozen", errdefs.ErrInvalidConfiguration)

// Manager owns the network, loss, optimizer and scheduler and runs the
// train and test loops. It is not safe for concurrent use.
type Manager[B model.Backend] struct {
	cfg       Config
	backend   B
	net       *model.BilinearAlexNet[B]
	criterion *model.TripletMarginLoss[B]
	optimizer *optim.SGD[B]      // nil when fully frozen
	plateau   *scheduler.Plateau // nil when fully frozen
	indexer   *dataset.Indexer
	loader    *imageio.Loader[B]
	log       logr.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	log     logr.Logger
	now     func() time.Time
	indexer *dataset.Indexer
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithClock sets the time source used to name checkpoints.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIndexer replaces the dataset indexer built from the config.
func WithIndexer(ix *dataset.Indexer) Option {
	return func(o *options) {
		o.indexer = ix
	}
}

// NewManager builds the network in cfg.Freeze mode, loads the backbone and
// checkpoint when configured, and, unless the network is fully frozen,
// creates an SGD optimizer over the trainable parameters and a plateau
// scheduler on top of it.
func NewManager[B model.Backend](cfg Config, backend B, opts ...Option) (*Manager[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: logr.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.indexer == nil {
		o.indexer = dataset.NewIndexer(
			dataset.Layout{Root: cfg.DatasetRoot, ImagesDir: cfg.ImagesDir},
			dataset.WithLogger(o.log.WithName("dataset")),
		)
	}

	net, err := model.NewBilinearAlexNet(cfg.Freeze, cfg.Arch, backend)
	if err != nil {
		return nil, err
	}
	loader, err := imageio.NewLoader(cfg.Arch.ImageSize, cfg.Workers, backend)
	if err != nil {
		return nil, err
	}

	m := &Manager[B]{
		cfg:       cfg,
		backend:   backend,
		net:       net,
		criterion: model.NewTripletMarginLoss(cfg.Margin, backend),
		indexer:   o.indexer,
		loader:    loader,
		log:       o.log,
		now:       o.now,
	}
	m.log.V(1).Info("network built", "model", net.String())

	if cfg.BackbonePath != "" {
		loaded, err := net.LoadBackbone(cfg.BackbonePath)
		if err != nil {
			return nil, err
		}
		m.log.Info("backbone loaded", "path", cfg.BackbonePath, "tensors", len(loaded))
	}
	if cfg.ParamPath != "" {
		if err := m.Load(cfg.ParamPath); err != nil {
			return nil, err
		}
	}

	if cfg.Freeze != model.FreezeAll {
		m.optimizer = optim.NewSGD(net.TrainableParameters(), optim.SGDConfig{
			LR:       cfg.LR,
			Momentum: cfg.Momentum,
		}, backend)
		m.plateau, err = scheduler.NewPlateau(m.optimizer, cfg.Scheduler)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Network returns the managed network.
func (m *Manager[B]) Network() *model.BilinearAlexNet[B] {
	return m.net
}

// Config returns the configuration the manager was built with.
func (m *Manager[B]) Config() Config {
	return m.cfg
}

// EpochStats summarizes one training epoch.
type EpochStats struct {
	Epoch    int
	Batches  int
	Samples  int
	MeanLoss float32
	LastLoss float32
	Accuracy float64 // training triplet accuracy
	LR       float32 // learning rate after the scheduler step
	Reduced  bool    // whether the scheduler lowered the rate
}

// TrainReport is the result of Train.
type TrainReport struct {
	Epochs     []EpochStats
	Checkpoint string
}

// EvalReport is the result of Test.
type EvalReport struct {
	Correct  int
	Total    int
	Accuracy float64 // Correct / Total, 0 when Total is 0
}

// Train runs cfg.Epochs epochs over the training partition and saves a
// checkpoint afterwards.
//
// Each batch goes through: load images, zero gradients, three forward
// passes, triplet loss, backward, optimizer step. The plateau scheduler is
// stepped once per epoch on the training triplet accuracy. Cancellation is
// honored between batches.
func (m *Manager[B]) Train(ctx context.Context) (*TrainReport, error) {
	if m.optimizer == nil {
		return nil, ErrFrozen
	}
	m.log.Info("training", "epochs", m.cfg.Epochs, "batch", m.cfg.BatchSize, "freeze", m.cfg.Freeze)

	tape := m.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		if !wasRecording {
			tape.StopRecording()
		}
	}()
	m.net.Train()

	report := &TrainReport{}
	iter := 0
	for epoch := 1; epoch <= m.cfg.Epochs; epoch++ {
		batches, err := m.indexer.Load(dataset.Train, m.cfg.Version, m.cfg.BatchSize)
		if err != nil {
			return nil, err
		}

		stats := EpochStats{Epoch: epoch}
		var lossSum float32
		correct := 0
		for _, batch := range batches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			loss, ok, err := m.trainStep(ctx, batch)
			if err != nil {
				return nil, err
			}

			iter++
			stats.Batches++
			stats.Samples += batch.Len()
			stats.LastLoss = loss
			lossSum += loss
			correct += ok
			if iter%m.cfg.LogEvery == 0 {
				m.log.Info("triplet loss", "epoch", epoch, "iter", iter, "loss", loss)
			}
			m.log.V(1).Info("batch done", "epoch", epoch, "iter", iter, "loss", loss, "size", batch.Len())
		}

		if stats.Batches > 0 {
			stats.MeanLoss = lossSum / float32(stats.Batches)
			stats.Accuracy = float64(correct) / float64(stats.Samples)
		}
		stats.Reduced = m.plateau.Step(stats.Accuracy)
		stats.LR = m.optimizer.GetLR()
		if stats.Reduced {
			m.log.Info("learning rate reduced", "epoch", epoch, "lr", stats.LR)
		}
		m.log.Info("epoch done", "epoch", epoch, "batches", stats.Batches,
			"meanLoss", stats.MeanLoss, "lastLoss", stats.LastLoss, "accuracy", stats.Accuracy)
		report.Epochs = append(report.Epochs, stats)
	}

	path, err := m.Save()
	if err != nil {
		return nil, err
	}
	report.Checkpoint = path
	return report, nil
}

// trainStep runs one optimization step and returns the loss and the number
// of triplets the embeddings already classify correctly.
func (m *Manager[B]) trainStep(ctx context.Context, batch dataset.Batch) (float32, int, error) {
	triplet, err := m.loader.LoadTriplet(ctx, batch)
	if err != nil {
		return 0, 0, err
	}

	tape := m.backend.Tape()
	defer tape.Clear()

	m.optimizer.ZeroGrad()
	anchors := m.net.Forward(triplet.Anchors)
	positives := m.net.Forward(triplet.Positives)
	negatives := m.net.Forward(triplet.Negatives)
	loss := m.criterion.Forward(anchors, positives, negatives)
	lossValue := loss.Data()[0]

	outputGrad, err := tensor.NewRaw(loss.Shape(), loss.DType(), m.backend.Device())
	if err != nil {
		return 0, 0, fmt.Errorf("create output gradient: %w", err)
	}
	outputGrad.AsFloat32()[0] = 1
	grads := tape.Backward(outputGrad, m.backend)
	m.optimizer.Step(grads)

	correct := model.CountCorrect(anchors.Data(), positives.Data(), negatives.Data(),
		m.cfg.Arch.EmbeddingDim, m.criterion.Margin())
	return lossValue, correct, nil
}

// Test evaluates triplet accuracy over the test partition with gradient
// recording paused and dropout disabled.
func (m *Manager[B]) Test(ctx context.Context) (*EvalReport, error) {
	m.log.Info("testing")

	tape := m.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()
	m.net.Eval()

	batches, err := m.indexer.Load(dataset.Test, m.cfg.Version, m.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &EvalReport{}
	margin := m.criterion.Margin()
	dim := m.cfg.Arch.EmbeddingDim
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		triplet, err := m.loader.LoadTriplet(ctx, batch)
		if err != nil {
			return nil, err
		}
		anchors := m.net.Forward(triplet.Anchors).Data()
		positives := m.net.Forward(triplet.Positives).Data()
		negatives := m.net.Forward(triplet.Negatives).Data()

		report.Correct += model.CountCorrect(anchors, positives, negatives, dim, margin)
		report.Total += batch.Len()
	}
	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
	}

	m.log.Info("test accuracy", "accuracy", report.Accuracy, "correct", report.Correct, "total", report.Total)
	return report, nil
}

// Save writes the network parameters to CheckpointPrefix followed by the
// current time as YYYYMMDDHHMMSS, and returns the path.
func (m *Manager[B]) Save() (string, error) {
	path := m.cfg.CheckpointPrefix + m.now().Format(checkpointTimeFormat)
	if err := m.SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveTo writes the network parameters to path in Born's .born format.
// The header metadata records the freeze mode and architecture.
func (m *Manager[B]) SaveTo(path string) error {
	arch := m.net.Arch()
	metadata := map[string]string{
		"freeze":        m.net.FreezeMode().String(),
		"image_size":    strconv.Itoa(arch.ImageSize),
		"hidden_dim":    strconv.Itoa(arch.HiddenDim),
		"embedding_dim": strconv.Itoa(arch.EmbeddingDim),
	}
	if err := nn.Save[B](m.net, path, ModelType, metadata); err != nil {
		return errdefs.NewIOError("save checkpoint", path, err)
	}
	m.log.Info("model parameters saved", "path", path)
	return nil
}

// Load restores network parameters from a checkpoint written by Save.
func (m *Manager[B]) Load(path string) error {
	header, err := nn.Load[B](path, m.backend, m.net)
	if err != nil {
		return errdefs.NewIOError("load checkpoint", path, err)
	}
	m.log.Info("model parameters loaded", "path", path, "freeze", header.Metadata["freeze"])
	return nil
}
