// Package scheduler adjusts optimizer learning rates during training.
package scheduler

import (
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// LRSetter is the part of an optimizer a scheduler drives.
// optim.SGD and optim.Adam satisfy it.
type LRSetter interface {
	GetLR() float32
	SetLR(lr float32)
}

// Mode says whether the monitored metric should go down or up.
type Mode int

// Modes.
const (
	Min Mode = iota // lower is better, e.g. loss
	Max             // higher is better, e.g. accuracy
)

// ParseMode parses "min" or "max".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return 0, errdefs.Invalid("unknown scheduler mode %q", s)
}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Min:
		return "min"
	case Max:
		return "max"
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// PlateauConfig holds the knobs of a Plateau scheduler.
type PlateauConfig struct {
	Mode      Mode    `yaml:"mode"`
	Factor    float32 `yaml:"factor"`    // multiplier applied on reduction, in (0, 1)
	Patience  int     `yaml:"patience"`  // non-improving steps tolerated before reducing
	Threshold float64 `yaml:"threshold"` // relative improvement that counts as better
	Cooldown  int     `yaml:"cooldown"`  // steps to wait after a reduction
	MinLR     float32 `yaml:"min_lr"`
	Eps       float32 `yaml:"eps"` // reductions smaller than this are skipped
}

// DefaultPlateauConfig returns mode max, factor 0.1, patience 3 and a
// relative threshold of 1e-4.
func DefaultPlateauConfig() PlateauConfig {
	return PlateauConfig{
		Mode:      Max,
		Factor:    0.1,
		Patience:  3,
		Threshold: 1e-4,
		Eps:       1e-8,
	}
}

// Validate checks the configuration.
func (c PlateauConfig) Validate() error {
	switch {
	case c.Mode != Min && c.Mode != Max:
		return errdefs.Invalid("unknown scheduler mode %d", int(c.Mode))
	case c.Factor <= 0 || c.Factor >= 1:
		return errdefs.Invalid("scheduler factor must be in (0, 1), got %g", c.Factor)
	case c.Patience < 0:
		return errdefs.Invalid("scheduler patience must be non-negative, got %d", c.Patience)
	case c.Threshold < 0:
		return errdefs.Invalid("scheduler threshold must be non-negative, got %g", c.Threshold)
	case c.Cooldown < 0:
		return errdefs.Invalid("scheduler cooldown must be non-negative, got %d", c.Cooldown)
	case c.MinLR < 0:
		return errdefs.Invalid("scheduler min lr must be non-negative, got %g", c.MinLR)
	}
	return nil
}

// Plateau reduces the learning rate by Factor once the monitored metric has
// not improved for more than Patience consecutive steps.
type Plateau struct {
	cfg      PlateauConfig
	opt      LRSetter
	best     float64
	bad      int
	cooldown int
}

// NewPlateau creates a scheduler driving opt.
func NewPlateau(opt LRSetter, cfg PlateauConfig) (*Plateau, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Plateau{cfg: cfg, opt: opt}
	p.Reset()
	return p, nil
}

// Reset forgets the best metric and all counters.
func (p *Plateau) Reset() {
	p.best = math.Inf(1)
	if p.cfg.Mode == Max {
		p.best = math.Inf(-1)
	}
	p.bad = 0
	p.cooldown = 0
}

// Step records one observation of the metric and reports whether the
// learning rate was reduced.
func (p *Plateau) Step(metric float64) bool {
	if p.improves(metric) {
		p.best = metric
		p.bad = 0
	} else {
		p.bad++
	}

	if p.cooldown > 0 {
		p.cooldown--
		p.bad = 0
	}

	if p.bad <= p.cfg.Patience {
		return false
	}

	p.cooldown = p.cfg.Cooldown
	p.bad = 0

	old := p.opt.GetLR()
	lr := max(old*p.cfg.Factor, p.cfg.MinLR)
	if old-lr <= p.cfg.Eps {
		return false
	}
	p.opt.SetLR(lr)
	return true
}

// Best returns the best metric seen so far.
func (p *Plateau) Best() float64 {
	return p.best
}

// BadSteps returns the number of consecutive non-improving steps.
func (p *Plateau) BadSteps() int {
	return p.bad
}

func (p *Plateau) improves(metric float64) bool {
	if p.cfg.Mode == Max {
		return metric > p.best*(1+p.cfg.Threshold)
	}
	return metric < p.best*(1-p.cfg.Threshold)
}
