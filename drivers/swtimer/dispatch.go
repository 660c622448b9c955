package swtimer

import "timerdriver-go/hal"

// onCompareMatch is registered as the hardware callback for every started
// timer. It runs in interrupt context: one call per sub-cycle.
func (d *Driver) onCompareMatch(ev hal.EventID) {
	var handler CycleHandler

	d.irq.enterISR()
	t := d.byEventLocked(ev)
	if t == nil {
		d.dropped++
		d.irq.exitISR()
		return
	}
	if t.numCompareMatches+1 >= t.compareMatchesPerCycle {
		t.numCompareMatches = 0
		t.numCycles++
		handler = t.handler
	} else {
		t.numCompareMatches++
	}
	d.irq.exitISR()

	if handler != nil {
		handler()
	}
}

// byEventLocked finds the running timer that owns ev.
func (d *Driver) byEventLocked(ev hal.EventID) *instance {
	if ev == hal.EventInvalid {
		return nil
	}
	for i := 0; i < d.capacity; i++ {
		t := &d.timers[i]
		if d.inUse[i] && t.event == ev && t.status == StatusRunning {
			return t
		}
	}
	return nil
}
