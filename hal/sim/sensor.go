package sim

import (
	"sync"

	"tinygo.org/x/drivers"
)

// Thermometer is a simulated die-temperature sensor. Each Update moves the
// reading one step along a fixed sawtooth so tests can predict values.
type Thermometer struct {
	mu      sync.Mutex
	baseMC  int32 // milli-degrees C
	stepMC  int32
	steps   int32
	updates uint32
	milliC  int32
	fail    error
}

var _ drivers.Sensor = (*Thermometer)(nil)

// NewThermometer starts at baseMC and rises by stepMC per update, wrapping
// after ten steps.
func NewThermometer(baseMC, stepMC int32) *Thermometer {
	return &Thermometer{baseMC: baseMC, stepMC: stepMC, steps: 10, milliC: baseMC}
}

// Update implements drivers.Sensor. Only drivers.Temperature is measured.
func (t *Thermometer) Update(which drivers.Measurement) error {
	if which&drivers.Temperature == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.milliC = t.baseMC + t.stepMC*int32(t.updates%uint32(t.steps))
	t.updates++
	return nil
}

// Temperature returns the last measured value in milli-degrees Celsius.
func (t *Thermometer) Temperature() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.milliC
}

// Updates counts successful temperature updates.
func (t *Thermometer) Updates() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates
}

// FailWith makes subsequent updates return err (nil clears it).
func (t *Thermometer) FailWith(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}
