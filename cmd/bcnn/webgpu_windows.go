//go:build windows

package main

import (
	"context"
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/go-logr/logr"

	"github.com/born-ml/bcnn"
	"github.com/born-ml/bcnn/internal/config"
	"github.com/born-ml/bcnn/internal/errdefs"
)

func runWebGPU(ctx context.Context, cfg config.Config, log logr.Logger) (*bcnn.Report, error) {
	if !webgpu.IsAvailable() {
		return nil, errdefs.Invalid("device %q: no compatible GPU", cfg.Device)
	}
	gpu, err := webgpu.New()
	if err != nil {
		return nil, fmt.Errorf("init webgpu: %w", err)
	}
	defer gpu.Release()

	log.Info("using backend", "device", config.DeviceWebGPU)
	return bcnn.Run(ctx, cfg, autodiff.New(gpu), log)
}
