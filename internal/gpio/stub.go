//go:build !linux

package gpio

import (
	"errors"

	"github.com/rs/zerolog"
)

// RealConfig selects the GPIO chip and input biasing.
type RealConfig struct {
	Chip   string
	PullUp []int
}

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns an error on non-Linux platforms.
func NewReal(cfg RealConfig, log zerolog.Logger) (*Real, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Level is not implemented on non-Linux platforms.
func (r *Real) Level(line int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetLevel is not implemented on non-Linux platforms.
func (r *Real) SetLevel(line int, level bool) error {
	return errors.New("gpio: not supported")
}

// SetEdgeHandler is not implemented on non-Linux platforms.
func (r *Real) SetEdgeHandler(line int, edge Edge, handler func()) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *Real) Close() error {
	return nil
}
