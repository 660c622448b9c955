package types

// ---- Service state (retained on "timer/state") ----

type TimersState struct {
	Level   string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status  string `json:"status"` // short code
	Timers  int    `json:"timers"`
	Dropped uint32 `json:"dropped,omitempty"` // cycles lost between interrupt and service
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts_ms"`
}

// ---- Per-timer info (retained on "timer/<name>/info") ----

type TimerInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "stopped" | "running"

	RequestedMS uint32 `json:"requested_ms"`
	PeriodUS    uint64 `json:"period_us"` // achieved period after truncation

	ClockSource  int    `json:"clock_source"` // -1 when off
	ClockHz      uint32 `json:"clock_hz"`
	CompareMatch uint32 `json:"compare_match"`
	PerCycle     uint32 `json:"compare_matches_per_cycle"`
	Cycles       uint32 `json:"cycles"`

	Output string `json:"output,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Sample string `json:"sample,omitempty"`
}

// ---- Events ----

// CycleEvent is published on "timer/<name>/event/cycle" once per period.
type CycleEvent struct {
	Cycle uint32 `json:"cycle"`
	TS    int64  `json:"ts_ms"`
}

// SampleEvent is published on "timer/<name>/event/sample" after a bound
// sensor was updated.
type SampleEvent struct {
	Sensor string `json:"sensor"`
	Cycle  uint32 `json:"cycle"`
	Value  int32  `json:"value"` // milli-units of the sensor's primary quantity
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// ---- Controls on "timer/<name>/control/<verb>" ----

type SetPeriod struct {
	PeriodMS uint32 `json:"period_ms"`
}

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
