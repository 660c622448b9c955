//go:build tinygo

package swtimer

import "runtime/interrupt"

// irqLock masks interrupts globally. The dispatcher already runs with
// interrupts masked, so entering it is free.
type irqLock struct{}

type irqState = interrupt.State

func (*irqLock) disable() irqState  { return interrupt.Disable() }
func (*irqLock) restore(s irqState) { interrupt.Restore(s) }

func (*irqLock) enterISR() {}
func (*irqLock) exitISR()  {}
