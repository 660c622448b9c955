package swtimer

import (
	"errors"
	"testing"

	"timerdriver-go/errcode"
	"timerdriver-go/hal"
	"timerdriver-go/hal/sim"
)

func newDriver(t *testing.T) (*Driver, *sim.Hardware) {
	t.Helper()
	hw := sim.New(sim.Mock())
	d := New(hw)
	d.Init()
	return d, hw
}

func mustCreate(t *testing.T, d *Driver) Handle {
	t.Helper()
	h, err := d.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return h
}

func TestCreateBeforeInit(t *testing.T) {
	d := New(sim.New(sim.Mock()))
	if _, err := d.Create(); !errors.Is(err, errcode.NotInitialized) {
		t.Fatalf("Create before Init: err=%v, want %v", err, errcode.NotInitialized)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	d, _ := newDriver(t)
	h := mustCreate(t, d)
	d.Init()
	if got := d.Status(h); got != StatusStopped {
		t.Fatalf("second Init reset the pool: status=%v", got)
	}
	if len(d.Handles()) != 1 {
		t.Fatalf("handles after second Init = %d, want 1", len(d.Handles()))
	}
}

func TestCreateDefaults(t *testing.T) {
	d, _ := newDriver(t)
	h := mustCreate(t, d)

	s, ok := d.Snapshot(h)
	if !ok {
		t.Fatal("fresh handle not valid")
	}
	if s.Status != StatusStopped || s.ClockSource != hal.ClockOff {
		t.Fatalf("status/clock = %v/%d", s.Status, s.ClockSource)
	}
	if s.CompareMatch != 0 || s.CompareMatchesPerCycle != 1 {
		t.Fatalf("compare/perCycle = %d/%d, want 0/1", s.CompareMatch, s.CompareMatchesPerCycle)
	}
	if s.NumCompareMatches != 0 || s.NumCycles != 0 || s.HasHandler {
		t.Fatalf("unexpected counters or handler: %+v", s)
	}
	for out, m := range s.OutputModes {
		if m != hal.OutputNone {
			t.Fatalf("output %d mode = %v, want none", out, m)
		}
	}
	if d.CycleHandler(h) != nil {
		t.Fatal("fresh timer has a handler")
	}
}

func TestPoolCapacity(t *testing.T) {
	d, _ := newDriver(t)
	if d.Capacity() != 3 {
		t.Fatalf("capacity = %d, want 3", d.Capacity())
	}
	hs := make([]Handle, 0, 3)
	for i := 0; i < 3; i++ {
		hs = append(hs, mustCreate(t, d))
	}
	if _, err := d.Create(); !errors.Is(err, errcode.PoolExhausted) {
		t.Fatalf("Create on full pool: err=%v", err)
	}

	old := hs[1]
	d.Destroy(&hs[1])
	if !hs[1].IsZero() {
		t.Fatal("Destroy did not clear the handle")
	}
	h := mustCreate(t, d)
	if d.Status(h) != StatusStopped {
		t.Fatal("re-created timer not stopped")
	}
	if d.Status(old) != StatusInvalid {
		t.Fatal("stale handle still addressable after slot reuse")
	}
	if err := d.Start(old); !errors.Is(err, errcode.InvalidHandle) {
		t.Fatalf("Start(stale) err=%v", err)
	}
}

func TestCapacityLimitedByHardware(t *testing.T) {
	d := New(sim.New(sim.Trinket()))
	d.Init()
	mustCreate(t, d)
	if _, err := d.Create(); !errors.Is(err, errcode.PoolExhausted) {
		t.Fatalf("second timer on one-timer target: err=%v", err)
	}
}

func TestDestroyIgnoresInvalid(t *testing.T) {
	d, _ := newDriver(t)
	d.Destroy(nil)
	var zero Handle
	d.Destroy(&zero)

	h := mustCreate(t, d)
	stale := h
	d.Destroy(&h)
	d.Destroy(&stale)
	if stale.IsZero() {
		t.Fatal("Destroy rewrote an already stale handle")
	}
	if n := len(d.Handles()); n != 0 {
		t.Fatalf("handles = %d, want 0", n)
	}
}

func TestDestroyStopsTimer(t *testing.T) {
	d, hw := newDriver(t)
	h := mustCreate(t, d)
	if err := d.SetCycleTimeMilliSec(h, 100); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(h); err != nil {
		t.Fatal(err)
	}
	id, _ := d.TimerID(h)
	d.Destroy(&h)
	if hw.Timer(id).ClockSource != hal.ClockOff || hw.EventEnabled(hw.TimerEvent(id)) {
		t.Fatal("Destroy left the hardware running")
	}
}

func TestDestroyAll(t *testing.T) {
	d, hw := newDriver(t)
	a := mustCreate(t, d)
	b := mustCreate(t, d)
	if err := d.SetCycleTimeMilliSec(a, 100); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(a); err != nil {
		t.Fatal(err)
	}

	d.DestroyAll()
	if d.Status(a) != StatusInvalid || d.Status(b) != StatusInvalid {
		t.Fatal("handles survive DestroyAll")
	}
	// Hardware is not walked; late events are dropped.
	if !hw.Fire(hw.TimerEvent(0)) {
		t.Fatal("event 0 should still be enabled in hardware")
	}
	if d.DroppedEvents() != 1 {
		t.Fatalf("dropped = %d, want 1", d.DroppedEvents())
	}
	for i := 0; i < d.Capacity(); i++ {
		mustCreate(t, d)
	}
}

func TestStopAll(t *testing.T) {
	d, hw := newDriver(t)
	for i := 0; i < 2; i++ {
		h := mustCreate(t, d)
		if err := d.SetCycleTimeMilliSec(h, 10); err != nil {
			t.Fatal(err)
		}
		if err := d.Start(h); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.StopAll(); err != nil {
		t.Fatal(err)
	}
	for _, h := range d.Handles() {
		if d.Status(h) != StatusStopped {
			t.Fatal("timer still running after StopAll")
		}
		id, _ := d.TimerID(h)
		if hw.Timer(id).ClockSource != hal.ClockOff {
			t.Fatal("clock still connected after StopAll")
		}
	}
}

func TestZeroHandle(t *testing.T) {
	d, _ := newDriver(t)
	var h Handle
	if d.Status(h) != StatusInvalid || d.ClockSource(h) != hal.ClockOff {
		t.Fatal("zero handle addressable")
	}
	if _, ok := d.TimerID(h); ok {
		t.Fatal("zero handle has a timer id")
	}
	if err := d.SetCycleHandler(h, func() {}); !errors.Is(err, errcode.InvalidHandle) {
		t.Fatalf("SetCycleHandler(zero) err=%v", err)
	}
	if err := d.SetCycleTimeMilliSec(h, 100); !errors.Is(err, errcode.InvalidHandle) {
		t.Fatalf("SetCycleTimeMilliSec(zero) err=%v", err)
	}
}

func TestStatusString(t *testing.T) {
	if StatusRunning.String() != "running" || StatusStopped.String() != "stopped" || StatusInvalid.String() != "invalid" {
		t.Fatal("unexpected status names")
	}
}
