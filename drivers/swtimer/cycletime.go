package swtimer

import (
	"timerdriver-go/errcode"
	"timerdriver-go/hal"
	"timerdriver-go/x/mathx"
)

// cycleTime is one resolved hardware configuration.
type cycleTime struct {
	src      hal.ClockSource
	compare  uint32
	perCycle uint32
}

// resolveCycleTime picks the clock source and compare value for a period of
// ms milliseconds on timer id, splitting the period into the fewest equal
// sub-cycles the counter can span. All divisions truncate, so the produced
// period never exceeds the request.
func resolveCycleTime(hw hal.Hardware, id hal.TimerID, ms uint32) (cycleTime, error) {
	if ms == 0 {
		return cycleTime{}, errcode.InvalidParams
	}
	states := hw.MaxCounterValue(id)
	if states == 0 {
		return cycleTime{}, errcode.Unschedulable
	}
	maxCounterMs := uint64(states) * 1000
	sources := hw.NumClockSources()

	for k := uint32(1); k <= ms; {
		msPerSub := ms / k
		ideal := maxCounterMs / uint64(msPerSub)

		for i := 0; i < sources; i++ {
			src := hal.ClockSource(i)
			f := hw.ClockSourceFrequency(src)
			if f == 0 || uint64(f) > ideal {
				continue
			}
			cm := mathx.MulDiv(msPerSub, f, 1000)
			if cm == 0 {
				// Slower sources only shrink it further.
				break
			}
			if cm >= uint64(states) {
				// Exactly one full counter lap; the register cannot hold it.
				continue
			}
			return cycleTime{src: src, compare: uint32(cm), perCycle: k}, nil
		}

		// Every k sharing this msPerSub gives the same answer.
		next := ms/msPerSub + 1
		if next <= k {
			next = k + 1
		}
		k = next
	}
	return cycleTime{}, errcode.Unschedulable
}

// SetCycleTimeMilliSec configures the period of h. On failure the previous
// configuration stays in effect. A running timer is reprogrammed with its
// event masked and restarts its current cycle.
func (d *Driver) SetCycleTimeMilliSec(h Handle, ms uint32) error {
	st := d.irq.disable()
	t, ok := d.lookupLocked(h)
	if !ok {
		d.irq.restore(st)
		return errcode.InvalidHandle
	}
	id, ev := t.id, t.event
	running := t.status == StatusRunning
	oldCompare := t.compareMatch
	d.irq.restore(st)

	ct, err := resolveCycleTime(d.hw, id, ms)
	if err != nil {
		return err
	}

	if running {
		if err := d.hw.DisableEvent(ev); err != nil {
			return errcode.MapDriverErr("disable_event", err)
		}
	}
	if err := d.hw.SetCompareMatchValue(id, ct.compare); err != nil {
		if running {
			_ = d.hw.EnableEvent(ev)
		}
		return errcode.MapDriverErr("set_compare_match", err)
	}
	if running {
		if err := d.hw.SetClockSource(id, ct.src); err != nil {
			_ = d.hw.SetCompareMatchValue(id, oldCompare)
			_ = d.hw.EnableEvent(ev)
			return errcode.MapDriverErr("set_clock_source", err)
		}
	}

	st = d.irq.disable()
	if t, ok := d.lookupLocked(h); ok {
		t.clockSource = ct.src
		t.compareMatch = ct.compare
		t.compareMatchesPerCycle = ct.perCycle
		t.numCompareMatches = 0
	}
	d.irq.restore(st)

	if running {
		if err := d.hw.EnableEvent(ev); err != nil {
			return errcode.MapDriverErr("enable_event", err)
		}
	}
	return nil
}

// SetCycleTimeSec is SetCycleTimeMilliSec(h, s*1000).
func (d *Driver) SetCycleTimeSec(h Handle, s uint32) error {
	if mathx.MulOverflows(s, 1000) {
		return errcode.InvalidParams
	}
	return d.SetCycleTimeMilliSec(h, s*1000)
}
