//go:build !windows

package main

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn"
	"github.com/born-ml/bcnn/internal/config"
	"github.com/born-ml/bcnn/internal/errdefs"
)

func runWebGPU(_ context.Context, cfg config.Config, _ logr.Logger) (*bcnn.Report, error) {
	return nil, errdefs.Invalid("device %q is only available on windows builds", cfg.Device)
}
