// Package gpio provides digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Edge selects which transitions raise an edge notification.
type Edge uint8

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// Lines reads, writes and watches digital lines by offset.
type Lines interface {
	// Level returns the raw level of an input line (true = high).
	Level(line int) (bool, error)

	// SetLevel drives an output line (true = high).
	SetLevel(line int, level bool) error

	// SetEdgeHandler installs handler for edges on line. A nil handler
	// removes any installed handler. Handlers run in edge-notification
	// context and must not block.
	SetEdgeHandler(line int, edge Edge, handler func()) error

	// Close releases all requested lines.
	Close() error
}

// Default line offsets (BCM numbering).
const (
	DefaultButtonLine    = 17
	DefaultZeroCrossLine = 27
	DefaultTriacLine     = 22
	DefaultRelayLine     = 23
	DefaultLEDLine       = 24
	DefaultChip          = "gpiochip0"
)
