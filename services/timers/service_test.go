package timers

import (
	"context"
	"errors"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"timerdriver-go/bus"
	"timerdriver-go/drivers/swtimer"
	"timerdriver-go/hal/sim"
	"timerdriver-go/types"
)

type fixture struct {
	bus  *bus.Bus
	conn *bus.Connection
	hw   *sim.Hardware
	drv  *swtimer.Driver
	svc  *Service
	temp *sim.Thermometer
}

func newFixture(t *testing.T, queueLen int) *fixture {
	t.Helper()
	b := bus.NewBus(64)
	hw := sim.New(sim.Mock())
	drv := swtimer.New(hw)
	drv.Init()
	temp := sim.NewThermometer(21500, 250)

	svc := New(b.NewConnection("timers"), drv, queueLen)
	svc.AddSensor("temp0", Sampler{Sensor: temp, Which: drivers.Temperature, Read: temp.Temperature})

	return &fixture{bus: b, conn: b.NewConnection("test"), hw: hw, drv: drv, svc: svc, temp: temp}
}

func (f *fixture) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (f *fixture) configure(t *testing.T, cfg []types.TimerConfig) types.TimersState {
	t.Helper()
	// Drop the previous retained state so only this round's result counts.
	f.conn.Publish(f.conn.NewMessage(StateTopic(), nil, true))
	state := f.conn.Subscribe(StateTopic())
	defer f.conn.Unsubscribe(state)
	f.conn.Publish(f.conn.NewMessage(topicConfig, cfg, true))

	var last types.TimersState
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-state.Channel():
			p, ok := m.Payload.(types.TimersState)
			if !ok {
				continue
			}
			last = p
			if last.Level == "ready" || last.Level == "error" {
				return last
			}
		case <-deadline:
			t.Fatalf("service did not apply config; last state %+v", last)
		}
	}
}

func (f *fixture) request(t *testing.T, name, verb string, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := f.conn.RequestWait(ctx, f.conn.NewMessage(ControlTopic(name, verb), payload, false))
	if err != nil {
		t.Fatalf("%s/%s: %v", name, verb, err)
	}
	return reply.Payload
}

func retainedInfo(t *testing.T, conn *bus.Connection, name string) types.TimerInfo {
	t.Helper()
	sub := conn.Subscribe(InfoTopic(name))
	defer conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m.Payload.(types.TimerInfo)
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("no retained info for %s", name)
	}
	return types.TimerInfo{}
}

func no() *bool { b := false; return &b }

func TestServiceConfiguresTimers(t *testing.T) {
	f := newFixture(t, 64)
	f.run(t)

	st := f.configure(t, []types.TimerConfig{
		{Name: "blink", PeriodMS: 500, Output: "a", Mode: "toggle"},
		{Name: "beat", PeriodS: 1, Autostart: no()},
	})
	if st.Level != "ready" || st.Timers != 2 {
		t.Fatalf("state = %+v", st)
	}

	blink := retainedInfo(t, f.conn, "blink")
	if blink.Status != "running" || blink.ClockSource != 4 || blink.ClockHz != 976 {
		t.Fatalf("blink info = %+v", blink)
	}
	if blink.CompareMatch != 244 || blink.PerCycle != 2 || blink.PeriodUS != 500000 || blink.RequestedMS != 500 {
		t.Fatalf("blink timing = %+v", blink)
	}
	if blink.Output != "a" || blink.Mode != "toggle" {
		t.Fatalf("blink output = %q/%q", blink.Output, blink.Mode)
	}

	beat := retainedInfo(t, f.conn, "beat")
	if beat.Status != "stopped" || beat.PerCycle != 4 || beat.RequestedMS != 1000 {
		t.Fatalf("beat info = %+v", beat)
	}
}

func TestServicePublishesCycles(t *testing.T) {
	f := newFixture(t, 64)
	f.run(t)
	f.configure(t, []types.TimerConfig{{Name: "blink", PeriodMS: 500}})

	sub := f.conn.Subscribe(CycleTopic("blink"))
	f.hw.Step(4 * 244 * 1024) // two periods

	var last types.CycleEvent
	for i := 0; i < 2; i++ {
		select {
		case m := <-sub.Channel():
			last = m.Payload.(types.CycleEvent)
		case <-time.After(time.Second):
			t.Fatalf("cycle event %d missing", i+1)
		}
	}
	if last.Cycle != 2 {
		t.Fatalf("last cycle = %d, want 2", last.Cycle)
	}
}

func TestServiceSamplesSensor(t *testing.T) {
	f := newFixture(t, 64)
	f.run(t)
	f.configure(t, []types.TimerConfig{{Name: "sampler", PeriodMS: 100, Sample: "temp0"}})

	sub := f.conn.Subscribe(SampleTopic("sampler"))
	f.hw.Step(97 * 1024)

	select {
	case m := <-sub.Channel():
		ev := m.Payload.(types.SampleEvent)
		if ev.Sensor != "temp0" || ev.Value != 21500 || ev.Error != "" || ev.Cycle != 1 {
			t.Fatalf("sample = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample event")
	}

	f.temp.FailWith(errors.New("i2c nack"))
	f.hw.Step(97 * 1024)
	select {
	case m := <-sub.Channel():
		if ev := m.Payload.(types.SampleEvent); ev.Error != "i2c nack" {
			t.Fatalf("failed sample = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample event after failure")
	}
}

func TestServiceControls(t *testing.T) {
	f := newFixture(t, 64)
	f.run(t)
	f.configure(t, []types.TimerConfig{{Name: "blink", PeriodMS: 500}})

	if r, ok := f.request(t, "blink", "stop", nil).(types.OKReply); !ok || !r.OK {
		t.Fatalf("stop reply = %#v", r)
	}
	if info := f.request(t, "blink", "info", nil).(types.TimerInfo); info.Status != "stopped" || info.ClockSource != 4 {
		t.Fatalf("info after stop = %+v", info)
	}

	info, ok := f.request(t, "blink", "set_period", types.SetPeriod{PeriodMS: 100}).(types.TimerInfo)
	if !ok || info.CompareMatch != 97 || info.PerCycle != 1 || info.RequestedMS != 100 {
		t.Fatalf("set_period reply = %+v", info)
	}
	if got := retainedInfo(t, f.conn, "blink"); got.CompareMatch != 97 {
		t.Fatalf("retained info not refreshed: %+v", got)
	}

	if r, ok := f.request(t, "blink", "start", nil).(types.OKReply); !ok || !r.OK {
		t.Fatalf("start reply = %#v", r)
	}

	cases := []struct {
		name, verb string
		payload    any
		want       string
	}{
		{"blink", "set_period", types.SetPeriod{}, "invalid_params"},
		{"blink", "set_period", "not json", "invalid_payload"},
		{"blink", "reset", nil, "unsupported"},
		{"nope", "start", nil, "unknown_timer"},
	}
	for _, c := range cases {
		r, ok := f.request(t, c.name, c.verb, c.payload).(types.ErrorReply)
		if !ok || r.OK || r.Error != c.want {
			t.Errorf("%s/%s: reply %#v, want error %q", c.name, c.verb, r, c.want)
		}
	}
}

func TestServiceBadTimerDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, 64)
	f.run(t)
	st := f.configure(t, []types.TimerConfig{
		{Name: "sampler", PeriodMS: 100, Sample: "missing"},
		{Name: "blink", PeriodMS: 500},
		{Name: "bad", PeriodMS: 100, Mode: "pulse"},
	})
	if st.Level != "error" || st.Error != "unknown_sensor" || st.Timers != 1 {
		t.Fatalf("state = %+v", st)
	}
	if info := retainedInfo(t, f.conn, "blink"); info.Status != "running" {
		t.Fatalf("blink = %+v", info)
	}
	if len(f.drv.Handles()) != 1 {
		t.Fatalf("driver holds %d timers, want 1", len(f.drv.Handles()))
	}
}

func TestServiceReconfigureReplacesTimers(t *testing.T) {
	f := newFixture(t, 64)
	f.run(t)
	f.configure(t, []types.TimerConfig{{Name: "a", PeriodMS: 10}, {Name: "b", PeriodMS: 20}})
	st := f.configure(t, []types.TimerConfig{{Name: "c", PeriodMS: 30}})
	if st.Timers != 1 || len(f.drv.Handles()) != 1 {
		t.Fatalf("state %+v, handles %d", st, len(f.drv.Handles()))
	}

	sub := f.conn.Subscribe(InfoTopic("a"))
	defer f.conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		t.Fatalf("stale info retained for a: %#v", m.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCycleHandlerDropsWhenQueueFull(t *testing.T) {
	f := newFixture(t, 1)
	// Not running: nothing drains the queue.
	if err := f.svc.applyConfig([]types.TimerConfig{{Name: "fast", PeriodMS: 1}}); err != nil {
		t.Fatal(err)
	}
	f.hw.Step(5 * 125 * 8) // five 1 ms periods
	if got := f.svc.Dropped(); got != 4 {
		t.Fatalf("dropped = %d, want 4", got)
	}
}

func TestQueuedCyclesKeepTheirNumbers(t *testing.T) {
	f := newFixture(t, 8)
	sub := f.conn.Subscribe(CycleTopic("fast"))
	if err := f.svc.applyConfig([]types.TimerConfig{{Name: "fast", PeriodMS: 1}}); err != nil {
		t.Fatal(err)
	}
	// Three periods pile up before the loop drains anything.
	f.hw.Step(3 * 125 * 8)
	f.run(t)

	for want := uint32(1); want <= 3; want++ {
		select {
		case m := <-sub.Channel():
			if ev := m.Payload.(types.CycleEvent); ev.Cycle != want {
				t.Fatalf("cycle = %d, want %d", ev.Cycle, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("cycle event %d missing", want)
		}
	}
}

func TestRunStopsOnDisconnect(t *testing.T) {
	b := bus.NewBus(8)
	hw := sim.New(sim.Mock())
	drv := swtimer.New(hw)
	drv.Init()
	conn := b.NewConnection("timers")
	svc := New(conn, drv, 8)
	if err := svc.applyConfig([]types.TimerConfig{{Name: "blink", PeriodMS: 500}}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	conn.Disconnect()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run kept going after its subscriptions closed")
	}
	if n := len(drv.Handles()); n != 0 {
		t.Fatalf("driver still holds %d timers", n)
	}
}
