// Package timers exposes software timers on the bus. Timers are declared in
// the "timers" configuration key; each completed cycle is relayed from the
// interrupt path to the service loop and published as an event.
package timers

import (
	"context"
	"sync/atomic"

	"tinygo.org/x/drivers"

	"timerdriver-go/bus"
	"timerdriver-go/drivers/swtimer"
	"timerdriver-go/errcode"
	"timerdriver-go/hal"
	"timerdriver-go/services/internal/util"
	"timerdriver-go/types"
	"timerdriver-go/x/timex"
)

// Sampler binds a sensor to the measurement refreshed on every cycle of a
// timer that names it. Read returns the refreshed value in milli-units.
type Sampler struct {
	Sensor drivers.Sensor
	Which  drivers.Measurement
	Read   func() int32
}

type entry struct {
	cfg       types.TimerConfig
	h         swtimer.Handle
	requested uint32
	output    hal.Output
	mode      hal.OutputMode
}

// tick is one completed cycle as seen by the interrupt path.
type tick struct {
	name  string
	cycle uint32
}

type Service struct {
	conn *bus.Connection
	drv  *swtimer.Driver

	sensors map[string]Sampler
	timers  map[string]*entry
	order   []string

	// Written from cycle handlers; MUST NOT block them.
	cycles chan tick
	drops  atomic.Uint32

	lastDrops uint32
}

// New builds the service. drv must already be initialised.
func New(conn *bus.Connection, drv *swtimer.Driver, queueLen int) *Service {
	if queueLen <= 0 {
		queueLen = 32
	}
	return &Service{
		conn:    conn,
		drv:     drv,
		sensors: map[string]Sampler{},
		timers:  map[string]*entry{},
		cycles:  make(chan tick, queueLen),
	}
}

// AddSensor makes a sampler available to timers under name. Call before Run.
func (s *Service) AddSensor(name string, smp Sampler) {
	if smp.Which == 0 {
		smp.Which = drivers.AllMeasurements
	}
	s.sensors[name] = smp
}

// Dropped counts cycles the service loop could not keep up with.
func (s *Service) Dropped() uint32 { return s.drops.Load() }

// Start runs the service in a goroutine.
func (s *Service) Start(ctx context.Context) {
	go s.Run(ctx)
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	ctrlSub := s.conn.Subscribe(topicControl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.teardown()
				return
			}
			var cfg []types.TimerConfig
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				println("Error: timers: bad config:", err.Error())
				s.publishState("error", "config_wrong_type", errcode.InvalidPayload)
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg, ok := <-ctrlSub.Channel():
			if !ok {
				s.teardown()
				return
			}
			s.handleControl(msg)

		case tk := <-s.cycles:
			s.onCycle(tk)
		}
	}
}

// ---- configuration ----

// applyConfig replaces every timer. Timers that fail to configure are
// skipped; the first failure is returned.
func (s *Service) applyConfig(cfg []types.TimerConfig) error {
	s.teardown()

	var first error
	for _, tc := range cfg {
		if err := s.addTimer(tc); err != nil {
			println("Error: timers:", tc.Name, err.Error())
			if first == nil {
				first = err
			}
			continue
		}
		e := s.timers[tc.Name]
		println("Info: timer", tc.Name, "period", s.drv.Period(e.h), "us")
		s.publishInfo(e)
	}
	return first
}

func (s *Service) addTimer(tc types.TimerConfig) error {
	switch tc.Name {
	case "", bus.Plus, bus.Hash, tokState:
		return &errcode.E{C: errcode.InvalidParams, Op: "timer", Msg: "bad name " + tc.Name}
	}
	if _, dup := s.timers[tc.Name]; dup {
		return &errcode.E{C: errcode.InvalidParams, Op: "timer", Msg: "duplicate name " + tc.Name}
	}
	if tc.Sample != "" {
		if _, ok := s.sensors[tc.Sample]; !ok {
			return &errcode.E{C: errcode.UnknownSensor, Op: "timer", Msg: tc.Sample}
		}
	}
	e := &entry{cfg: tc, output: hal.OutputA, mode: hal.OutputNone}
	if tc.Mode != "" {
		m, ok := hal.ParseOutputMode(tc.Mode)
		if !ok {
			return &errcode.E{C: errcode.InvalidParams, Op: "timer", Msg: "bad mode " + tc.Mode}
		}
		e.mode = m
		if tc.Output != "" {
			if e.output, ok = hal.ParseOutput(tc.Output); !ok {
				return &errcode.E{C: errcode.InvalidParams, Op: "timer", Msg: "bad output " + tc.Output}
			}
		}
	}

	h, err := s.drv.Create()
	if err != nil {
		return err
	}
	e.h = h

	if tc.PeriodMS > 0 {
		e.requested = tc.PeriodMS
		err = s.drv.SetCycleTimeMilliSec(h, tc.PeriodMS)
	} else {
		e.requested = tc.PeriodS * 1000
		err = s.drv.SetCycleTimeSec(h, tc.PeriodS)
	}
	if err == nil && e.mode != hal.OutputNone {
		err = s.drv.SetCompareOutputMode(h, e.output, e.mode)
	}
	if err == nil {
		err = s.drv.SetCycleHandler(h, s.cycleHandler(tc.Name, h))
	}
	if err == nil && tc.Start() {
		err = s.drv.Start(h)
	}
	if err != nil {
		s.drv.Destroy(&h)
		return err
	}

	s.timers[tc.Name] = e
	s.order = append(s.order, tc.Name)
	return nil
}

// cycleHandler runs in interrupt context: non-blocking send only. The cycle
// count is captured here so queued ticks keep their own number.
func (s *Service) cycleHandler(name string, h swtimer.Handle) swtimer.CycleHandler {
	return func() {
		select {
		case s.cycles <- tick{name: name, cycle: s.drv.NumCycles(h)}:
		default:
			s.drops.Add(1)
		}
	}
}

func (s *Service) teardown() {
	for _, name := range s.order {
		e := s.timers[name]
		s.drv.Destroy(&e.h)
		s.conn.Publish(s.conn.NewMessage(InfoTopic(name), nil, true))
	}
	s.timers = map[string]*entry{}
	s.order = s.order[:0]
}

// ---- cycles ----

func (s *Service) onCycle(tk tick) {
	name, cycle := tk.name, tk.cycle
	e, ok := s.timers[name]
	if !ok {
		return // destroyed since the interrupt fired
	}
	now := timex.NowMs()
	s.conn.Publish(s.conn.NewMessage(CycleTopic(name), types.CycleEvent{Cycle: cycle, TS: now}, false))

	if e.cfg.Sample != "" {
		smp := s.sensors[e.cfg.Sample]
		ev := types.SampleEvent{Sensor: e.cfg.Sample, Cycle: cycle, TS: now}
		if err := smp.Sensor.Update(smp.Which); err != nil {
			ev.Error = err.Error()
		} else if smp.Read != nil {
			ev.Value = smp.Read()
		}
		s.conn.Publish(s.conn.NewMessage(SampleTopic(name), ev, false))
	}

	if d := s.drops.Load(); d != s.lastDrops {
		s.lastDrops = d
		s.publishState("ready", "cycles_dropped", nil)
	}
}

// ---- controls ----

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) != 4 {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	name := util.TopicString(msg.Topic[1])
	verb := util.TopicString(msg.Topic[3])
	e, ok := s.timers[name]
	if !ok {
		s.replyErr(msg, errcode.UnknownTimer)
		return
	}

	switch verb {
	case ctrlStart:
		if err := s.drv.Start(e.h); err != nil {
			s.replyErr(msg, err)
			return
		}
		s.publishInfo(e)
		s.conn.Reply(msg, types.OKReply{OK: true}, false)

	case ctrlStop:
		if err := s.drv.Stop(e.h); err != nil {
			s.replyErr(msg, err)
			return
		}
		s.publishInfo(e)
		s.conn.Reply(msg, types.OKReply{OK: true}, false)

	case ctrlSetPeriod:
		var p types.SetPeriod
		if err := util.DecodeJSON(msg.Payload, &p); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if err := s.drv.SetCycleTimeMilliSec(e.h, p.PeriodMS); err != nil {
			s.replyErr(msg, err)
			return
		}
		e.requested = p.PeriodMS
		info := s.publishInfo(e)
		s.conn.Reply(msg, info, false)

	case ctrlInfo:
		s.conn.Reply(msg, s.info(e), false)

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// ---- bus helpers ----

func (s *Service) info(e *entry) types.TimerInfo {
	snap, _ := s.drv.Snapshot(e.h)
	info := types.TimerInfo{
		Name:         e.cfg.Name,
		Status:       snap.Status.String(),
		RequestedMS:  e.requested,
		PeriodUS:     s.drv.Period(e.h),
		ClockSource:  -1,
		CompareMatch: snap.CompareMatch,
		PerCycle:     snap.CompareMatchesPerCycle,
		Cycles:       snap.NumCycles,
		Sample:       e.cfg.Sample,
	}
	if snap.ClockSource != hal.ClockOff {
		info.ClockSource = int(snap.ClockSource)
		info.ClockHz = s.drv.ClockHz(e.h)
	}
	if e.mode != hal.OutputNone {
		info.Output = e.output.String()
		info.Mode = snap.OutputModes[e.output].String()
	}
	return info
}

func (s *Service) publishInfo(e *entry) types.TimerInfo {
	info := s.info(e)
	s.conn.Publish(s.conn.NewMessage(InfoTopic(e.cfg.Name), info, true))
	return info
}

func (s *Service) publishState(level, status string, err error) {
	pl := types.TimersState{
		Level:   level,
		Status:  status,
		Timers:  len(s.timers),
		Dropped: s.drops.Load(),
		TS:      timex.NowMs(),
	}
	if err != nil {
		pl.Error = string(errcode.Of(err))
	}
	s.conn.Publish(s.conn.NewMessage(topicState, pl, true))
}

func (s *Service) replyErr(req *bus.Message, err error) {
	if !req.CanReply() {
		return
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: string(errcode.Of(err))}, false)
}
