package timers

import "timerdriver-go/bus"

const (
	tokConfig  = "config"
	tokTimers  = "timers"
	tokTimer   = "timer"
	tokState   = "state"
	tokInfo    = "info"
	tokEvent   = "event"
	tokControl = "control"

	evCycle  = "cycle"
	evSample = "sample"

	ctrlStart     = "start"
	ctrlStop      = "stop"
	ctrlSetPeriod = "set_period"
	ctrlInfo      = "info"
)

var (
	topicConfig  = bus.T(tokConfig, tokTimers)
	topicState   = bus.T(tokTimer, tokState)
	topicControl = bus.T(tokTimer, bus.Plus, tokControl, bus.Plus)
)

// InfoTopic is the retained info topic of timer name.
func InfoTopic(name string) bus.Topic { return bus.T(tokTimer, name, tokInfo) }

// CycleTopic carries one types.CycleEvent per completed period of timer name.
func CycleTopic(name string) bus.Topic { return bus.T(tokTimer, name, tokEvent, evCycle) }

// SampleTopic carries types.SampleEvent for timers bound to a sensor.
func SampleTopic(name string) bus.Topic { return bus.T(tokTimer, name, tokEvent, evSample) }

// ControlTopic addresses verb on timer name.
func ControlTopic(name, verb string) bus.Topic { return bus.T(tokTimer, name, tokControl, verb) }

// StateTopic is the retained service state topic.
func StateTopic() bus.Topic { return topicState }
