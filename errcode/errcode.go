package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	Unsupported    Code = "unsupported"

	// Timer pool
	NotInitialized Code = "not_initialized"
	PoolExhausted  Code = "pool_exhausted"
	InvalidHandle  Code = "invalid_handle"

	// Timer configuration
	NotConfigured    Code = "not_configured"
	Unschedulable    Code = "unschedulable"
	HardwareRejected Code = "hardware_rejected"

	// Services
	UnknownTimer  Code = "unknown_timer"
	UnknownSensor Code = "unknown_sensor"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += " (" + e.Err.Error() + ")"
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, SomeCode) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr wraps a hardware-layer failure for operation op.
// A nil error stays nil; an error that already carries a Code is kept.
func MapDriverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if Of(err) != Error {
		return err
	}
	return &E{C: HardwareRejected, Op: op, Err: err}
}
