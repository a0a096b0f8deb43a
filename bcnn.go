// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package bcnn

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn/internal/config"
	"github.com/born-ml/bcnn/internal/errdefs"
	"github.com/born-ml/bcnn/internal/model"
	"github.com/born-ml/bcnn/internal/train"
)

// Version is the release version.
const Version = "v0.1.0"

// Error sentinels. Match with errors.Is.
var (
	// ErrInvalidConfiguration reports an unknown freeze mode, dataset part or
	// version, or another invalid setting.
	ErrInvalidConfiguration = errdefs.ErrInvalidConfiguration

	// ErrShapeViolation is carried by the panics the network raises when a
	// tensor has an unexpected shape.
	ErrShapeViolation = errdefs.ErrShapeViolation

	// ErrIO reports unreadable dataset, image, checkpoint or config files.
	ErrIO = errdefs.ErrIO
)

// Backend is the compute backend: an autodiff backend over CPU or WebGPU.
type Backend = model.Backend

// FreezeMode selects which parameters train.
type FreezeMode = model.FreezeMode

// Freeze modes.
const (
	FreezeNone = model.FreezeNone
	FreezePart = model.FreezePart
	FreezeAll  = model.FreezeAll
)

// Config is the full configuration.
type Config = config.Config

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// Report holds the results of Run. Train is nil when the network is fully
// frozen.
type Report struct {
	Train *train.TrainReport
	Test  *train.EvalReport
}

// Run builds a training manager on backend, trains unless cfg.Freeze is
// FreezeAll, then evaluates on the test partition.
func Run[B Backend](ctx context.Context, cfg Config, backend B, log logr.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := train.NewManager(cfg.Config, backend, train.WithLogger(log))
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if cfg.Freeze != FreezeAll {
		if report.Train, err = m.Train(ctx); err != nil {
			return nil, err
		}
	} else {
		log.Info("network fully frozen, skipping training")
	}
	if report.Test, err = m.Test(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
