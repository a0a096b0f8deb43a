package model

import (
	"strconv"
	"strings"

	"github.com/born-ml/bcnn/internal/errdefs"
)

// FreezeMode selects which parameter subsets are trainable.
type FreezeMode int

// Freeze modes.
const (
	FreezeNone FreezeMode = iota // All parameters trainable
	FreezePart                   // Features and bfc frozen except the last bfc layer
	FreezeAll                    // Everything frozen (inference only)
)

var freezeNames = [...]string{
	FreezeNone: "none",
	FreezePart: "part",
	FreezeAll:  "all",
}

// ParseFreezeMode parses "none", "part" or "all" (case-insensitive).
func ParseFreezeMode(s string) (FreezeMode, error) {
	for mode, name := range freezeNames {
		if strings.EqualFold(s, name) {
			return FreezeMode(mode), nil
		}
	}
	return 0, errdefs.Invalid("unavailable freeze option %q", s)
}

// String returns the mode name.
func (m FreezeMode) String() string {
	if !m.Valid() {
		return "FreezeMode(" + strconv.Itoa(int(m)) + ")"
	}
	return freezeNames[m]
}

// Valid reports whether m is one of the defined modes.
func (m FreezeMode) Valid() bool {
	return m >= FreezeNone && m <= FreezeAll
}

// MarshalText implements encoding.TextMarshaler.
func (m FreezeMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errdefs.Invalid("unavailable freeze option %d", int(m))
	}
	return []byte(freezeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FreezeMode) UnmarshalText(text []byte) error {
	mode, err := ParseFreezeMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// trainsFeatures reports whether the convolutional stack receives updates.
func (m FreezeMode) trainsFeatures() bool { return m == FreezeNone }

// trainsHeadBody reports whether bfc layers before the last one receive updates.
func (m FreezeMode) trainsHeadBody() bool { return m == FreezeNone }

// trainsProjection reports whether the last bfc layer and fc receive updates.
func (m FreezeMode) trainsProjection() bool { return m != FreezeAll }
