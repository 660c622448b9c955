// Package console mirrors timer events to a line-oriented writer such as a
// serial port.
package console

import (
	"context"
	"io"

	"timerdriver-go/bus"
	"timerdriver-go/services/internal/util"
	"timerdriver-go/types"
	"timerdriver-go/x/conv"
)

var topicEvents = bus.T("timer", bus.Plus, "event", bus.Plus)

type Service struct {
	w   io.Writer
	buf []byte
}

func New(w io.Writer) *Service {
	return &Service{w: w, buf: make([]byte, 0, 96)}
}

func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.Run(ctx, conn)
}

func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(topicEvents)
	defer conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if line := s.format(msg); len(line) > 0 {
				if _, err := s.w.Write(line); err != nil {
					println("Error: console write:", err.Error())
				}
			}
		}
	}
}

// format renders one event as "<timer> <kind> ...\r\n". The result aliases
// the service buffer.
func (s *Service) format(msg *bus.Message) []byte {
	if len(msg.Topic) != 4 {
		return nil
	}
	name := util.TopicString(msg.Topic[1])
	b := append(s.buf[:0], name...)

	switch ev := msg.Payload.(type) {
	case types.CycleEvent:
		b = append(b, " cycle "...)
		b = conv.AppendUint(b, uint64(ev.Cycle))
	case types.SampleEvent:
		b = append(b, " sample "...)
		b = append(b, ev.Sensor...)
		b = append(b, ' ')
		if ev.Error != "" {
			b = append(b, "error "...)
			b = append(b, ev.Error...)
		} else {
			b = conv.AppendMilli(b, ev.Value)
		}
		b = append(b, " @"...)
		b = conv.AppendUint(b, uint64(ev.Cycle))
	default:
		return nil
	}
	b = append(b, '\r', '\n')
	s.buf = b
	return b
}
