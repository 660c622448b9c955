package types

// TimerConfig is one element of the array supplied on topic "config/timers".
type TimerConfig struct {
	Name string `json:"name"`

	// Exactly one period field is used; PeriodMS wins when both are set.
	PeriodMS uint32 `json:"period_ms,omitempty"`
	PeriodS  uint32 `json:"period_s,omitempty"`

	Output string `json:"output,omitempty"` // "a" | "b"
	Mode   string `json:"mode,omitempty"`   // "none" | "set" | "clear" | "toggle"

	Sample    string `json:"sample,omitempty"` // sensor name to update every cycle
	Autostart *bool  `json:"autostart,omitempty"`
}

// Start reports whether the timer should run as soon as it is configured.
func (c TimerConfig) Start() bool { return c.Autostart == nil || *c.Autostart }

// HeartbeatConfig is supplied on topic "config/heartbeat".
type HeartbeatConfig struct {
	Timer string `json:"timer"` // timer whose cycles drive the heartbeat
	Every uint32 `json:"every"` // print on every Nth cycle
}
