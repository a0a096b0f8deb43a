package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bcnn/internal/dataset"
	"github.com/born-ml/bcnn/internal/errdefs"
	"github.com/born-ml/bcnn/internal/model"
	"github.com/born-ml/bcnn/internal/scheduler"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, model.FreezePart, cfg.Freeze)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Equal(t, 1, cfg.Epochs)
	assert.InDelta(t, 0.001, cfg.LR, 1e-9)
	assert.InDelta(t, 0.9, cfg.Momentum, 1e-7)
	assert.InDelta(t, 1.0, cfg.Margin, 0)
	assert.Equal(t, scheduler.Max, cfg.Scheduler.Mode)
	assert.Equal(t, 3, cfg.Scheduler.Patience)
	assert.Equal(t, 50, cfg.LogEvery)
	assert.Equal(t, "./bcnn-param-", cfg.CheckpointPrefix)
	assert.Equal(t, model.DefaultArch(), cfg.Arch)
	assert.Equal(t, DeviceCPU, cfg.Device)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
dataset_root: /srv/sun360
version: 2
freeze: none
epochs: 4
batch_size: 8
lr: 0.01
arch:
  image_size: 99
scheduler:
  mode: min
  patience: 1
device: webgpu
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "/srv/sun360", cfg.DatasetRoot)
	assert.Equal(t, dataset.V2, cfg.Version)
	assert.Equal(t, model.FreezeNone, cfg.Freeze)
	assert.Equal(t, 4, cfg.Epochs)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.InDelta(t, 0.01, cfg.LR, 1e-9)
	assert.Equal(t, 99, cfg.Arch.ImageSize)
	assert.Equal(t, 4096, cfg.Arch.HiddenDim, "unset nested keys keep defaults")
	assert.Equal(t, scheduler.Min, cfg.Scheduler.Mode)
	assert.Equal(t, 1, cfg.Scheduler.Patience)
	assert.InDelta(t, 0.1, cfg.Scheduler.Factor, 1e-7)
	assert.Equal(t, DeviceWebGPU, cfg.Device)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.9, cfg.Momentum, 1e-7)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colour: blue\n"},
		{"bad freeze", "freeze: some\n"},
		{"bad device", "device: tpu\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad batch", "batch_size: 0\n"},
		{"bad version", "version: 7\n"},
		{"not yaml", "epochs: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, errdefs.ErrInvalidConfiguration)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bcnn.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochs: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Epochs)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, errdefs.ErrIO)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Freeze = model.FreezeAll
	cfg.Scheduler.Mode = scheduler.Min

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "freeze: all")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
