// Package swtimer turns a small set of prescaled hardware timers into
// software timers with millisecond periods.
//
// A period that a single compare match cannot span is split into several
// equal sub-cycles; the driver counts them in the compare-match interrupt and
// calls the cycle handler once per full period.
package swtimer

import (
	"timerdriver-go/errcode"
	"timerdriver-go/hal"
	"timerdriver-go/x/mathx"
)

// MaxTimers is the size of the statically allocated timer arena.
const MaxTimers = 4

// Status of a timer handle.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusStopped
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	default:
		return "invalid"
	}
}

// CycleHandler is called once per completed cycle, in interrupt context.
// It must not block.
type CycleHandler func()

// Handle refers to a timer slot. The zero Handle is never valid; a handle
// becomes stale once its timer is destroyed, even if the slot is reused.
type Handle struct {
	slot uint8
	gen  uint16
}

// IsZero reports whether h is the empty handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

type instance struct {
	id    hal.TimerID
	event hal.EventID
	gen   uint16

	status                 Status
	clockSource            hal.ClockSource
	compareMatch           uint32
	compareMatchesPerCycle uint32
	outputModes            [hal.NumOutputs]hal.OutputMode

	numCompareMatches uint32
	numCycles         uint32

	handler CycleHandler
}

// Driver owns a fixed arena of timer instances bound to one Hardware.
type Driver struct {
	hw  hal.Hardware
	irq irqLock

	capacity    int
	initialized bool
	count       int
	inUse       [MaxTimers]bool
	timers      [MaxTimers]instance

	dispatch hal.EventCallback
	dropped  uint32
}

// New binds a driver to hw. Capacity is the smaller of hw.NumTimers() and
// MaxTimers. Init must be called before Create.
func New(hw hal.Hardware) *Driver {
	d := &Driver{hw: hw}
	d.capacity = min(hw.NumTimers(), MaxTimers)
	d.dispatch = d.onCompareMatch
	return d
}

// Capacity is the number of timers that can exist at once.
func (d *Driver) Capacity() int { return d.capacity }

// Init prepares the pool. Calling it again is a no-op.
func (d *Driver) Init() {
	st := d.irq.disable()
	defer d.irq.restore(st)
	if d.initialized {
		return
	}
	for i := range d.inUse {
		d.inUse[i] = false
	}
	d.count = 0
	d.initialized = true
}

// Create allocates a stopped, unconfigured timer.
func (d *Driver) Create() (Handle, error) {
	st := d.irq.disable()
	defer d.irq.restore(st)

	if !d.initialized {
		return Handle{}, errcode.NotInitialized
	}
	if d.count >= d.capacity {
		return Handle{}, errcode.PoolExhausted
	}
	for i := 0; i < d.capacity; i++ {
		if d.inUse[i] {
			continue
		}
		gen := d.timers[i].gen + 1
		if gen == 0 {
			gen = 1
		}
		id := hal.TimerID(i)
		d.timers[i] = instance{
			id:                     id,
			event:                  d.hw.TimerEvent(id),
			gen:                    gen,
			status:                 StatusStopped,
			clockSource:            hal.ClockOff,
			compareMatchesPerCycle: 1,
		}
		d.inUse[i] = true
		d.count++
		return Handle{slot: uint8(i), gen: gen}, nil
	}
	return Handle{}, errcode.PoolExhausted
}

// Destroy stops the timer, releases its slot and clears *h.
// Nil, zero and stale handles are ignored.
func (d *Driver) Destroy(h *Handle) {
	if h == nil || h.IsZero() {
		return
	}
	if d.Status(*h) == StatusInvalid {
		return
	}
	_ = d.Stop(*h)

	st := d.irq.disable()
	if d.inUse[h.slot] && d.timers[h.slot].gen == h.gen {
		d.inUse[h.slot] = false
		d.count--
	}
	d.irq.restore(st)
	*h = Handle{}
}

// DestroyAll releases every slot at once. It does not stop the timers: the
// hardware keeps its clock sources and event enables, and later events are
// dropped by the dispatcher. Call StopAll first when the peripherals are not
// being reset along with the driver.
func (d *Driver) DestroyAll() {
	st := d.irq.disable()
	defer d.irq.restore(st)
	for i := range d.inUse {
		d.inUse[i] = false
	}
	d.count = 0
}

// StopAll stops every timer that is in use.
func (d *Driver) StopAll() error {
	var first error
	for _, h := range d.Handles() {
		if err := d.Stop(h); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Handles lists the handles currently in use, in slot order.
func (d *Driver) Handles() []Handle {
	st := d.irq.disable()
	defer d.irq.restore(st)
	out := make([]Handle, 0, d.count)
	for i := 0; i < d.capacity; i++ {
		if d.inUse[i] {
			out = append(out, Handle{slot: uint8(i), gen: d.timers[i].gen})
		}
	}
	return out
}

// lookupLocked returns the instance for h if h is live. Interrupts must be
// masked by the caller.
func (d *Driver) lookupLocked(h Handle) (*instance, bool) {
	if h.IsZero() || int(h.slot) >= d.capacity || !d.inUse[h.slot] {
		return nil, false
	}
	t := &d.timers[h.slot]
	if t.gen != h.gen {
		return nil, false
	}
	return t, true
}

// ---- read accessors ----

// Snapshot is a consistent copy of one timer's state.
type Snapshot struct {
	ID                     hal.TimerID
	Status                 Status
	ClockSource            hal.ClockSource
	CompareMatch           uint32
	CompareMatchesPerCycle uint32
	NumCompareMatches      uint32
	NumCycles              uint32
	OutputModes            [hal.NumOutputs]hal.OutputMode
	HasHandler             bool
}

// Snapshot copies the timer state. ok is false for stale handles.
func (d *Driver) Snapshot(h Handle) (s Snapshot, ok bool) {
	st := d.irq.disable()
	defer d.irq.restore(st)
	t, ok := d.lookupLocked(h)
	if !ok {
		return Snapshot{Status: StatusInvalid, ClockSource: hal.ClockOff}, false
	}
	return Snapshot{
		ID:                     t.id,
		Status:                 t.status,
		ClockSource:            t.clockSource,
		CompareMatch:           t.compareMatch,
		CompareMatchesPerCycle: t.compareMatchesPerCycle,
		NumCompareMatches:      t.numCompareMatches,
		NumCycles:              t.numCycles,
		OutputModes:            t.outputModes,
		HasHandler:             t.handler != nil,
	}, true
}

// Status returns StatusInvalid for zero or stale handles.
func (d *Driver) Status(h Handle) Status {
	s, _ := d.Snapshot(h)
	return s.Status
}

func (d *Driver) ClockSource(h Handle) hal.ClockSource {
	s, _ := d.Snapshot(h)
	return s.ClockSource
}

func (d *Driver) CompareMatch(h Handle) uint32 {
	s, _ := d.Snapshot(h)
	return s.CompareMatch
}

func (d *Driver) CompareMatchesPerCycle(h Handle) uint32 {
	s, _ := d.Snapshot(h)
	return s.CompareMatchesPerCycle
}

func (d *Driver) NumCompareMatches(h Handle) uint32 {
	s, _ := d.Snapshot(h)
	return s.NumCompareMatches
}

func (d *Driver) NumCycles(h Handle) uint32 {
	s, _ := d.Snapshot(h)
	return s.NumCycles
}

func (d *Driver) CompareOutputMode(h Handle, out hal.Output) hal.OutputMode {
	if out >= hal.NumOutputs {
		return hal.OutputNone
	}
	s, _ := d.Snapshot(h)
	return s.OutputModes[out]
}

// CycleHandler returns the registered handler, or nil.
func (d *Driver) CycleHandler(h Handle) CycleHandler {
	st := d.irq.disable()
	defer d.irq.restore(st)
	if t, ok := d.lookupLocked(h); ok {
		return t.handler
	}
	return nil
}

// TimerID returns the hardware timer behind h.
func (d *Driver) TimerID(h Handle) (hal.TimerID, bool) {
	s, ok := d.Snapshot(h)
	return s.ID, ok
}

// ClockHz is the frequency of the clock source selected for h, 0 if none.
func (d *Driver) ClockHz(h Handle) uint32 {
	src := d.ClockSource(h)
	if src == hal.ClockOff {
		return 0
	}
	return d.hw.ClockSourceFrequency(src)
}

// Period returns the configured cycle length in microseconds as the
// hardware will actually produce it, or 0 when no cycle time is set.
func (d *Driver) Period(h Handle) uint64 {
	s, ok := d.Snapshot(h)
	if !ok || s.CompareMatch == 0 || s.ClockSource == hal.ClockOff {
		return 0
	}
	f := d.hw.ClockSourceFrequency(s.ClockSource)
	if f == 0 {
		return 0
	}
	ticks := uint64(s.CompareMatch) * uint64(s.CompareMatchesPerCycle)
	return mathx.MulU64(ticks, 1_000_000) / uint64(f)
}

// DroppedEvents counts compare-match events that matched no running timer.
func (d *Driver) DroppedEvents() uint32 {
	st := d.irq.disable()
	defer d.irq.restore(st)
	return d.dropped
}
