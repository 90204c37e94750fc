// Package metrics records pricing request outcomes, cache hits and
// per-registrar latency.
package metrics

import "time"

// Registrar outcomes.
const (
	OutcomeAvailable   = "available"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
)

// Recorder implementations must not block and must be safe for concurrent
// use.
type Recorder interface {
	RecordRequest(success bool, d time.Duration)
	RecordCacheHit()
	RecordRegistrar(name, outcome string, d time.Duration)
}

type Nop struct{}

func (Nop) RecordRequest(bool, time.Duration)             {}
func (Nop) RecordCacheHit()                               {}
func (Nop) RecordRegistrar(string, string, time.Duration) {}

// Multi fans every call out to each recorder.
type Multi []Recorder

func (m Multi) RecordRequest(success bool, d time.Duration) {
	for _, r := range m {
		r.RecordRequest(success, d)
	}
}

func (m Multi) RecordCacheHit() {
	for _, r := range m {
		r.RecordCacheHit()
	}
}

func (m Multi) RecordRegistrar(name, outcome string, d time.Duration) {
	for _, r := range m {
		r.RecordRegistrar(name, outcome, d)
	}
}
