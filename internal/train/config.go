package train

import (
	"github.com/born-ml/bcnn/internal/dataset"
	"github.com/born-ml/bcnn/internal/errdefs"
	"github.com/born-ml/bcnn/internal/model"
	"github.com/born-ml/bcnn/internal/scheduler"
)

// Config controls a Manager.
type Config struct {
	DatasetRoot string          `yaml:"dataset_root"`
	ImagesDir   string          `yaml:"images_dir"`
	Version     dataset.Version `yaml:"version"`

	Freeze       model.FreezeMode `yaml:"freeze"`
	Arch         model.Arch       `yaml:"arch"`
	ParamPath    string           `yaml:"param_path"`    // checkpoint to load at construction
	BackbonePath string           `yaml:"backbone_path"` // pretrained AlexNet weights (.safetensors or .gguf)

	BatchSize int     `yaml:"batch_size"`
	Epochs    int     `yaml:"epochs"`
	LR        float32 `yaml:"lr"`
	Momentum  float32 `yaml:"momentum"`
	Margin    float32 `yaml:"margin"`

	Scheduler scheduler.PlateauConfig `yaml:"scheduler"`

	LogEvery         int    `yaml:"log_every"`         // batches between loss reports
	CheckpointPrefix string `yaml:"checkpoint_prefix"` // a timestamp is appended
	Workers          int    `yaml:"workers"`           // concurrent image decodes
}

// DefaultConfig returns the reference setup: freeze "part", batch size 1,
// one epoch, SGD with lr 0.001 and momentum 0.9, margin 1.0.
func DefaultConfig() Config {
	return Config{
		DatasetRoot:      "data/SUN360/HalfHalf",
		ImagesDir:        dataset.DefaultImagesDir,
		Version:          dataset.V0,
		Freeze:           model.FreezePart,
		Arch:             model.DefaultArch(),
		BatchSize:        1,
		Epochs:           1,
		LR:               0.001,
		Momentum:         0.9,
		Margin:           model.DefaultMargin,
		Scheduler:        scheduler.DefaultPlateauConfig(),
		LogEvery:         50,
		CheckpointPrefix: "./bcnn-param-",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.DatasetRoot == "":
		return errdefs.Invalid("dataset root is required")
	case !c.Version.Valid():
		return errdefs.Invalid("unavailable dataset version %d", int(c.Version))
	case !c.Freeze.Valid():
		return errdefs.Invalid("unavailable freeze option %d", int(c.Freeze))
	case c.BatchSize < 1:
		return errdefs.Invalid("batch size must be positive, got %d", c.BatchSize)
	case c.Epochs < 0:
		return errdefs.Invalid("epochs must be non-negative, got %d", c.Epochs)
	case c.LR <= 0:
		return errdefs.Invalid("learning rate must be positive, got %g", c.LR)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errdefs.Invalid("momentum must be in [0, 1), got %g", c.Momentum)
	case c.Margin < 0:
		return errdefs.Invalid("margin must be non-negative, got %g", c.Margin)
	case c.LogEvery < 1:
		return errdefs.Invalid("log interval must be positive, got %d", c.LogEvery)
	case c.CheckpointPrefix == "":
		return errdefs.Invalid("checkpoint prefix is required")
	}
	if err := c.Arch.Validate(); err != nil {
		return err
	}
	return c.Scheduler.Validate()
}
