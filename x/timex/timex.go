package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// CyclesIn returns how many clock cycles at freqHz elapse in d.
// Negative durations count as zero.
func CyclesIn(d time.Duration, freqHz uint32) uint64 {
	if d <= 0 || freqHz == 0 {
		return 0
	}
	s := uint64(d / time.Second)
	ns := uint64(d % time.Second)
	return s*uint64(freqHz) + ns*uint64(freqHz)/1_000_000_000
}

// DurationOf returns the wall-clock length of n cycles at freqHz.
func DurationOf(n uint64, freqHz uint32) time.Duration {
	if freqHz == 0 {
		return 0
	}
	s := n / uint64(freqHz)
	rem := n % uint64(freqHz)
	return time.Duration(s)*time.Second + time.Duration(rem*1_000_000_000/uint64(freqHz))
}
