package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// Host simulation: three timers on the mock target.
const cfgHost = `{
  "timers": [
    {"name": "blink", "period_ms": 500, "output": "a", "mode": "toggle"},
    {"name": "heartbeat", "period_s": 2},
    {"name": "sample", "period_ms": 1000, "sample": "temp0"}
  ],
  "heartbeat": {
    "timer": "heartbeat",
    "every": 1
  }
}`

// Trinket: a single usable timer.
const cfgTrinket = `{
  "timers": [
    {"name": "blink", "period_ms": 500, "output": "a", "mode": "toggle"}
  ],
  "heartbeat": {
    "timer": "blink",
    "every": 4
  }
}`

var embeddedConfigs = map[string][]byte{
	"host":    []byte(cfgHost),
	"trinket": []byte(cfgTrinket),
}
