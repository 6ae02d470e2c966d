package application

import "time"

// Metrics receives counters from the control path.
type Metrics interface {
	ObserveDevice(outcome string, d time.Duration)
	ObserveLogin(ok bool)
	ObserveControl(success bool, devices int)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveDevice(string, time.Duration) {}
func (NoopMetrics) ObserveLogin(bool)                   {}
func (NoopMetrics) ObserveControl(bool, int)            {}
