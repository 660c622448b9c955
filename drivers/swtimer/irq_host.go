//go:build !tinygo

package swtimer

import "sync"

// On the host, compare-match callbacks arrive on other goroutines, so a
// mutex stands in for masking interrupts.
type irqLock struct{ mu sync.Mutex }

type irqState struct{}

func (l *irqLock) disable() irqState { l.mu.Lock(); return irqState{} }
func (l *irqLock) restore(irqState)  { l.mu.Unlock() }

func (l *irqLock) enterISR() { l.mu.Lock() }
func (l *irqLock) exitISR()  { l.mu.Unlock() }
