package swtimer

import (
	"timerdriver-go/errcode"
	"timerdriver-go/hal"
)

// Start runs the timer with its configured cycle time. Without a cycle time
// it fails with errcode.NotConfigured and leaves the hardware untouched.
func (d *Driver) Start(h Handle) error {
	st := d.irq.disable()
	t, ok := d.lookupLocked(h)
	if !ok {
		d.irq.restore(st)
		return errcode.InvalidHandle
	}
	if t.compareMatch == 0 || t.compareMatchesPerCycle == 0 {
		d.irq.restore(st)
		return errcode.NotConfigured
	}
	id, ev, src := t.id, t.event, t.clockSource
	d.irq.restore(st)

	d.hw.RegisterEventCallback(d.dispatch, ev)
	if err := d.hw.EnableEvent(ev); err != nil {
		return errcode.MapDriverErr("enable_event", err)
	}
	// Clear-on-match makes every sub-cycle exactly compareMatch ticks long.
	if err := d.hw.SetWaveformGenerationMode(id, hal.WaveGenClearOnMatch); err != nil {
		_ = d.hw.DisableEvent(ev)
		return errcode.MapDriverErr("set_waveform_mode", err)
	}

	st = d.irq.disable()
	if t, ok := d.lookupLocked(h); ok {
		t.numCompareMatches = 0
		t.status = StatusRunning
	}
	d.irq.restore(st)

	if err := d.hw.SetClockSource(id, src); err != nil {
		st = d.irq.disable()
		if t, ok := d.lookupLocked(h); ok {
			t.status = StatusStopped
		}
		d.irq.restore(st)
		_ = d.hw.DisableEvent(ev)
		return errcode.MapDriverErr("set_clock_source", err)
	}
	return nil
}

// Stop disconnects the clock and masks the timer's event. No cycle handler
// runs after Stop returns. Stopping a stopped timer is harmless.
func (d *Driver) Stop(h Handle) error {
	st := d.irq.disable()
	t, ok := d.lookupLocked(h)
	if !ok {
		d.irq.restore(st)
		return errcode.InvalidHandle
	}
	t.status = StatusStopped
	id, ev := t.id, t.event
	d.irq.restore(st)

	errClk := d.hw.SetClockSource(id, hal.ClockOff)
	errEv := d.hw.DisableEvent(ev)
	if errClk != nil {
		return errcode.MapDriverErr("set_clock_source", errClk)
	}
	return errcode.MapDriverErr("disable_event", errEv)
}

// SetCompareOutputMode sets what output out does on every compare match.
// If the hardware refuses, the cached mode is unchanged.
func (d *Driver) SetCompareOutputMode(h Handle, out hal.Output, mode hal.OutputMode) error {
	if out >= hal.NumOutputs {
		return errcode.InvalidParams
	}
	st := d.irq.disable()
	t, ok := d.lookupLocked(h)
	if !ok {
		d.irq.restore(st)
		return errcode.InvalidHandle
	}
	id := t.id
	d.irq.restore(st)

	if err := d.hw.SetCompareOutputMode(id, out, mode); err != nil {
		return errcode.MapDriverErr("set_compare_output_mode", err)
	}

	st = d.irq.disable()
	if t, ok := d.lookupLocked(h); ok {
		t.outputModes[out] = mode
	}
	d.irq.restore(st)
	return nil
}

// SetCycleHandler installs fn as the cycle handler; nil removes it without
// stopping the timer. fn runs in interrupt context.
func (d *Driver) SetCycleHandler(h Handle, fn CycleHandler) error {
	st := d.irq.disable()
	defer d.irq.restore(st)
	t, ok := d.lookupLocked(h)
	if !ok {
		return errcode.InvalidHandle
	}
	t.handler = fn
	return nil
}
