// Package hal defines the hardware abstraction a software timer driver needs
// from a target: a clock-source catalog, compare-match programming, output and
// waveform configuration, and an event (interrupt) table.
package hal

// TimerID identifies a physical timer peripheral (0-based).
type TimerID uint8

// ClockSource indexes the clock-source catalog. Index 0 is the fastest
// source; frequencies strictly decrease with the index.
type ClockSource uint8

// ClockOff disconnects a timer from every clock.
const ClockOff ClockSource = 0xFF

// EventID identifies a hardware event (interrupt line).
type EventID uint8

// EventInvalid is returned for timers with no compare-match event.
const EventInvalid EventID = 0xFF

// EventCallback runs in interrupt context. It must not block.
type EventCallback func(ev EventID)

// Output selects a compare output pin of a timer.
type Output uint8

const (
	OutputA Output = iota
	OutputB
	NumOutputs
)

func (o Output) String() string {
	switch o {
	case OutputA:
		return "a"
	case OutputB:
		return "b"
	default:
		return "?"
	}
}

// ParseOutput accepts "a" or "b" in either case.
func ParseOutput(s string) (Output, bool) {
	switch s {
	case "a", "A":
		return OutputA, true
	case "b", "B":
		return OutputB, true
	}
	return NumOutputs, false
}

// OutputMode is the action taken on a compare output at each match.
type OutputMode uint8

const (
	OutputNone   OutputMode = iota // disconnected
	OutputSet                      // drive high
	OutputClear                    // drive low
	OutputToggle                   // toggle
)

func (m OutputMode) String() string {
	switch m {
	case OutputSet:
		return "set"
	case OutputClear:
		return "clear"
	case OutputToggle:
		return "toggle"
	default:
		return "none"
	}
}

// ParseOutputMode accepts the names produced by OutputMode.String.
func ParseOutputMode(s string) (OutputMode, bool) {
	switch s {
	case "", "none":
		return OutputNone, true
	case "set":
		return OutputSet, true
	case "clear":
		return OutputClear, true
	case "toggle":
		return OutputToggle, true
	}
	return OutputNone, false
}

// WaveGenMode selects the counter behaviour.
type WaveGenMode uint8

const (
	WaveGenNormal       WaveGenMode = iota // free-running, wraps at the counter width
	WaveGenClearOnMatch                    // counter resets when it reaches the compare value
)

// Hardware is the contract a target (or a simulation) implements.
type Hardware interface {
	// NumTimers is the number of physical timers available.
	NumTimers() int
	// NumClockSources is the size of the clock-source catalog.
	NumClockSources() int
	// ClockSourceFrequency returns the frequency in Hz, or 0 for sources
	// that do not keep time (external pins, invalid indices).
	ClockSourceFrequency(src ClockSource) uint32
	// MaxCounterValue is the number of counter states per wrap
	// (256 for an 8-bit counter).
	MaxCounterValue(id TimerID) uint32

	SetClockSource(id TimerID, src ClockSource) error
	SetCompareMatchValue(id TimerID, v uint32) error
	SetCompareOutputMode(id TimerID, out Output, mode OutputMode) error
	SetWaveformGenerationMode(id TimerID, mode WaveGenMode) error

	RegisterEventCallback(cb EventCallback, ev EventID)
	EventCallback(ev EventID) EventCallback
	EnableEvent(ev EventID) error
	DisableEvent(ev EventID) error

	// TimerEvent maps a timer to its compare-match event.
	TimerEvent(id TimerID) EventID
}
