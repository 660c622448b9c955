package heartbeat

import (
	"context"
	"time"

	"timerdriver-go/bus"
	"timerdriver-go/services/internal/util"
	"timerdriver-go/services/timers"
	"timerdriver-go/types"
)

var topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}

// Service prints a heartbeat line on every Nth cycle of one timer.
type Service struct {
	// Beat, if set, is called instead of printing. Tests use it.
	Beat func(cycle uint32)
}

func (s *Service) beat(ev types.CycleEvent) {
	if s.Beat != nil {
		s.Beat(ev.Cycle)
		return
	}
	println("Info:", time.UnixMilli(ev.TS).Format("15:04:05"), "Heartbeat", ev.Cycle)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	cfg := types.HeartbeatConfig{Timer: "heartbeat", Every: 1}
	cycSub := conn.Subscribe(timers.CycleTopic(cfg.Timer))
	defer func() { conn.Unsubscribe(cycSub) }()

	var seen uint32
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case msg, ok := <-cycSub.Channel():
			if !ok {
				return
			}
			ev, ok := msg.Payload.(types.CycleEvent)
			if !ok {
				continue
			}
			seen++
			if seen%cfg.Every == 0 {
				s.beat(ev)
			}
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			var next types.HeartbeatConfig
			if err := util.DecodeJSON(msg.Payload, &next); err != nil {
				println("Error: heartbeat: bad config:", err.Error())
				continue
			}
			if next.Timer == "" {
				next.Timer = cfg.Timer
			}
			if next.Every == 0 {
				next.Every = 1
			}
			if next.Timer != cfg.Timer {
				conn.Unsubscribe(cycSub)
				cycSub = conn.Subscribe(timers.CycleTopic(next.Timer))
			}
			cfg, seen = next, 0
			println("Info: heartbeat follows timer", cfg.Timer, "every", cfg.Every, "cycles")
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
