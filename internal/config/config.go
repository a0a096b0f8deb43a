// Package config loads the YAML configuration of the bcnn command.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default:
//
//	dataset_root: /mnt/SUN360/HalfHalf
//	freeze: part
//	epochs: 10
//	batch_size: 16
//	device: webgpu
//	log:
//	  level: debug
//	  format: json
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/bcnn/internal/errdefs"
	"github.com/born-ml/bcnn/internal/logging"
	"github.com/born-ml/bcnn/internal/train"
)

// Devices.
const (
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// Config is the complete command configuration.
type Config struct {
	train.Config `yaml:",inline"`

	Device string         `yaml:"device"` // cpu or webgpu
	Log    logging.Config `yaml:"log"`
}

// Default returns the reference configuration on the CPU backend.
func Default() Config {
	return Config{
		Config: train.DefaultConfig(),
		Device: DeviceCPU,
		Log:    logging.DefaultConfig(),
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Config path is supplied by the operator.
	if err != nil {
		return Config{}, errdefs.NewIOError("read config", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errdefs.Invalid("decode config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch strings.ToLower(c.Device) {
	case DeviceCPU, DeviceWebGPU:
	default:
		return errdefs.Invalid("unknown device %q", c.Device)
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Config.Validate()
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
