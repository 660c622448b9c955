// Package sim is a host-side model of a bank of prescaled hardware timers.
// It implements hal.Hardware so the timer driver can run without a board, and
// exposes inspection hooks for tests.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"timerdriver-go/hal"
	"timerdriver-go/x/timex"
)

var (
	ErrInvalidTimer       = errors.New("sim: invalid timer")
	ErrInvalidClockSource = errors.New("sim: invalid clock source")
	ErrInvalidEvent       = errors.New("sim: invalid event")
	ErrCompareRange       = errors.New("sim: compare value out of range")
	ErrOutputRejected     = errors.New("sim: output mode rejected")
)

// Config describes the simulated peripheral bank.
type Config struct {
	CoreClockHz uint32
	NumTimers   int
	CounterBits uint8
	// Prescalers are core-clock divisors, smallest first. Catalog index i
	// runs at CoreClockHz/Prescalers[i].
	Prescalers []uint32
}

// Mock matches the reference test target: 1 MHz core, three 8-bit timers.
func Mock() Config {
	return Config{
		CoreClockHz: 1_000_000,
		NumTimers:   3,
		CounterBits: 8,
		Prescalers:  []uint32{1, 8, 64, 256, 1024},
	}
}

// Trinket matches an ATtiny85 board at 8 MHz with one usable timer.
func Trinket() Config {
	return Config{
		CoreClockHz: 8_000_000,
		NumTimers:   1,
		CounterBits: 8,
		Prescalers:  []uint32{1, 8, 64, 256, 1024},
	}
}

type timer struct {
	src     hal.ClockSource
	compare uint32
	wave    hal.WaveGenMode
	outputs [hal.NumOutputs]hal.OutputMode
	levels  [hal.NumOutputs]bool

	sub     uint64 // core cycles carried toward the next prescaled tick
	count   uint32
	matches uint64
}

// Hardware is a simulated timer bank. All methods are safe for concurrent use.
type Hardware struct {
	mu          sync.Mutex
	cfg         Config
	states      uint32
	timers      []timer
	enabled     []bool
	callbacks   []hal.EventCallback
	rejectModes map[hal.OutputMode]bool
	stepped     uint64 // core cycles simulated so far
}

var _ hal.Hardware = (*Hardware)(nil)

// New builds a bank with every timer stopped and every event disabled.
func New(cfg Config) *Hardware {
	if cfg.NumTimers <= 0 {
		cfg.NumTimers = 1
	}
	if cfg.CounterBits == 0 || cfg.CounterBits > 32 {
		cfg.CounterBits = 8
	}
	states := uint64(1) << cfg.CounterBits
	if states > math.MaxUint32 {
		// 2^32 states do not fit; saturate at the largest representable count.
		states = math.MaxUint32
	}
	h := &Hardware{
		cfg:         cfg,
		states:      uint32(states),
		timers:      make([]timer, cfg.NumTimers),
		enabled:     make([]bool, cfg.NumTimers),
		callbacks:   make([]hal.EventCallback, cfg.NumTimers),
		rejectModes: map[hal.OutputMode]bool{},
	}
	for i := range h.timers {
		h.timers[i].src = hal.ClockOff
	}
	return h
}

// ---- hal.Hardware ----

func (h *Hardware) NumTimers() int { return h.cfg.NumTimers }

func (h *Hardware) NumClockSources() int { return len(h.cfg.Prescalers) }

func (h *Hardware) ClockSourceFrequency(src hal.ClockSource) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.freqLocked(src)
}

func (h *Hardware) freqLocked(src hal.ClockSource) uint32 {
	if int(src) >= len(h.cfg.Prescalers) || h.cfg.Prescalers[src] == 0 {
		return 0
	}
	return h.cfg.CoreClockHz / h.cfg.Prescalers[src]
}

func (h *Hardware) MaxCounterValue(id hal.TimerID) uint32 {
	if int(id) >= h.cfg.NumTimers {
		return 0
	}
	return h.states
}

func (h *Hardware) SetClockSource(id hal.TimerID, src hal.ClockSource) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := h.timerLocked(id)
	if err != nil {
		return err
	}
	if src != hal.ClockOff && int(src) >= len(h.cfg.Prescalers) {
		return ErrInvalidClockSource
	}
	if t.src != src {
		t.sub = 0
	}
	t.src = src
	return nil
}

func (h *Hardware) SetCompareMatchValue(id hal.TimerID, v uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := h.timerLocked(id)
	if err != nil {
		return err
	}
	if v >= h.states {
		return ErrCompareRange
	}
	t.compare = v
	return nil
}

func (h *Hardware) SetCompareOutputMode(id hal.TimerID, out hal.Output, mode hal.OutputMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := h.timerLocked(id)
	if err != nil {
		return err
	}
	if out >= hal.NumOutputs || h.rejectModes[mode] {
		return ErrOutputRejected
	}
	t.outputs[out] = mode
	return nil
}

func (h *Hardware) SetWaveformGenerationMode(id hal.TimerID, mode hal.WaveGenMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, err := h.timerLocked(id)
	if err != nil {
		return err
	}
	t.wave = mode
	return nil
}

func (h *Hardware) RegisterEventCallback(cb hal.EventCallback, ev hal.EventID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(ev) < len(h.callbacks) {
		h.callbacks[ev] = cb
	}
}

func (h *Hardware) EventCallback(ev hal.EventID) hal.EventCallback {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(ev) >= len(h.callbacks) {
		return nil
	}
	return h.callbacks[ev]
}

func (h *Hardware) EnableEvent(ev hal.EventID) error  { return h.setEvent(ev, true) }
func (h *Hardware) DisableEvent(ev hal.EventID) error { return h.setEvent(ev, false) }

func (h *Hardware) setEvent(ev hal.EventID, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(ev) >= len(h.enabled) {
		return ErrInvalidEvent
	}
	h.enabled[ev] = on
	return nil
}

func (h *Hardware) TimerEvent(id hal.TimerID) hal.EventID {
	if int(id) >= h.cfg.NumTimers {
		return hal.EventInvalid
	}
	return hal.EventID(id)
}

func (h *Hardware) timerLocked(id hal.TimerID) (*timer, error) {
	if int(id) >= len(h.timers) {
		return nil, ErrInvalidTimer
	}
	return &h.timers[id], nil
}

// ---- simulation ----

// Step advances every timer by n core-clock cycles and delivers the
// resulting compare-match events. Callbacks run on the caller's goroutine,
// outside the bank's lock, one event at a time; an event disabled by an
// earlier callback in the same step is not delivered.
func (h *Hardware) Step(n uint64) {
	h.mu.Lock()
	h.stepped += n
	pending := make([]uint64, len(h.timers))
	for i := range h.timers {
		t := &h.timers[i]
		if t.src == hal.ClockOff {
			continue
		}
		div := uint64(h.cfg.Prescalers[t.src])
		if div == 0 {
			continue
		}
		total := t.sub + n
		ticks := total / div
		t.sub = total % div
		m := t.advance(ticks, h.states)
		t.matches += m
		t.applyOutputs(m)
		pending[i] = m
	}
	h.mu.Unlock()

	for i, m := range pending {
		for ; m > 0; m-- {
			if !h.deliver(hal.EventID(i)) {
				break
			}
		}
	}
}

// Fire delivers one event as if the hardware raised it, independent of the
// counters. Masked events are not delivered. It reports whether a callback ran.
func (h *Hardware) Fire(ev hal.EventID) bool {
	return h.deliver(ev)
}

func (h *Hardware) deliver(ev hal.EventID) bool {
	h.mu.Lock()
	if int(ev) >= len(h.enabled) || !h.enabled[ev] {
		h.mu.Unlock()
		return false
	}
	cb := h.callbacks[ev]
	h.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(ev)
	return true
}

// Run steps the bank in real time until ctx is done.
func (h *Hardware) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Millisecond
	}
	tick := time.NewTicker(every)
	defer tick.Stop()

	start := time.Now()
	var done uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			due := timex.CyclesIn(now.Sub(start), h.CoreClockHz())
			if due > done {
				h.Step(due - done)
				done = due
			}
		}
	}
}

// advance counts ticks and returns the number of compare matches.
func (t *timer) advance(ticks uint64, states uint32) uint64 {
	var m uint64
	for ticks > 0 {
		if t.wave == hal.WaveGenClearOnMatch && t.compare > 0 && t.count < t.compare {
			need := uint64(t.compare - t.count)
			if ticks < need {
				t.count += uint32(ticks)
				break
			}
			ticks -= need
			t.count = 0
			m++
			laps := ticks / uint64(t.compare)
			m += laps
			ticks -= laps * uint64(t.compare)
			continue
		}

		// Free-running until the counter wraps.
		need := uint64(states - t.count)
		ahead := t.compare > t.count && t.compare < states
		if ticks < need {
			if ahead && uint64(t.compare-t.count) <= ticks {
				m++
			}
			t.count += uint32(ticks)
			break
		}
		if ahead {
			m++
		}
		ticks -= need
		t.count = 0
		if t.wave != hal.WaveGenClearOnMatch || t.compare == 0 {
			laps := ticks / uint64(states)
			if t.compare > 0 && t.compare < states {
				m += laps
			}
			ticks -= laps * uint64(states)
		}
	}
	return m
}

func (t *timer) applyOutputs(m uint64) {
	if m == 0 {
		return
	}
	for i, mode := range t.outputs {
		switch mode {
		case hal.OutputSet:
			t.levels[i] = true
		case hal.OutputClear:
			t.levels[i] = false
		case hal.OutputToggle:
			if m%2 == 1 {
				t.levels[i] = !t.levels[i]
			}
		}
	}
}

// ---- inspection / manipulation ----

func (h *Hardware) CoreClockHz() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.CoreClockHz
}

// Elapsed is the simulated time covered by Step so far at the current core
// clock.
func (h *Hardware) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return timex.DurationOf(h.stepped, h.cfg.CoreClockHz)
}

// RejectOutputMode makes SetCompareOutputMode fail for mode.
func (h *Hardware) RejectOutputMode(mode hal.OutputMode, reject bool) {
	h.mu.Lock()
	h.rejectModes[mode] = reject
	h.mu.Unlock()
}

// State is a copy of one simulated timer's registers.
type State struct {
	ClockSource hal.ClockSource
	Compare     uint32
	WaveGen     hal.WaveGenMode
	Outputs     [hal.NumOutputs]hal.OutputMode
	Levels      [hal.NumOutputs]bool
	Count       uint32
	Matches     uint64 // raw compare matches since construction
}

// Timer returns the register state of timer id.
func (h *Hardware) Timer(id hal.TimerID) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(id) >= len(h.timers) {
		return State{ClockSource: hal.ClockOff}
	}
	t := h.timers[id]
	return State{
		ClockSource: t.src,
		Compare:     t.compare,
		WaveGen:     t.wave,
		Outputs:     t.outputs,
		Levels:      t.levels,
		Count:       t.count,
		Matches:     t.matches,
	}
}

// EventEnabled reports whether ev is unmasked.
func (h *Hardware) EventEnabled(ev hal.EventID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(ev) < len(h.enabled) && h.enabled[ev]
}
