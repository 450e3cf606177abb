package outbox

import "time"

// Delivery paths reported to Metrics.
const (
	PathDirect   = "direct"
	PathRecovery = "recovery"
)

// Sweep names reported to Metrics.
const (
	SweepFailed = "failed"
	SweepStuck  = "stuck"
)

// Metrics captures delivery telemetry.
type Metrics interface {
	// ObserveSweep records the duration of one recovery sweep.
	ObserveSweep(sweep string, duration time.Duration)
	// AddSent increments the count of delivered records per path.
	AddSent(path string, count int)
	// AddSendErrors increments the count of failed delivery attempts per path.
	AddSendErrors(path string, count int)
	// AddMarkedFailed increments the count of records marked failed by consumers or operators.
	AddMarkedFailed(count int)
	// AddPurged increments the count of records removed by retention.
	AddPurged(count int64)
	// SetBacklog updates the number of records currently in status.
	SetBacklog(status Status, count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveSweep implements Metrics.
func (NopMetrics) ObserveSweep(string, time.Duration) {}

// AddSent implements Metrics.
func (NopMetrics) AddSent(string, int) {}

// AddSendErrors implements Metrics.
func (NopMetrics) AddSendErrors(string, int) {}

// AddMarkedFailed implements Metrics.
func (NopMetrics) AddMarkedFailed(int) {}

// AddPurged implements Metrics.
func (NopMetrics) AddPurged(int64) {}

// SetBacklog implements Metrics.
func (NopMetrics) SetBacklog(Status, int) {}
