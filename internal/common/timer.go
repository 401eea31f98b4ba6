// Package common holds timing and memory helpers shared by the classifier,
// the batch runner and the bench command.
package common

import (
	"fmt"
	"time"
)

// Timer measures one span of work.
type Timer struct {
	label   string
	start   time.Time
	elapsed time.Duration
}

// NewTimer starts an unlabeled timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer starts a timer whose String includes label.
func NewNamedTimer(label string) *Timer {
	return &Timer{label: label, start: time.Now()}
}

// Stop records and returns the time since the timer started. Calling it
// again extends the measurement.
func (t *Timer) Stop() time.Duration {
	t.elapsed = time.Since(t.start)
	return t.elapsed
}

// Duration is the span recorded by the last Stop.
func (t *Timer) Duration() time.Duration { return t.elapsed }

// Milliseconds is Duration as fractional milliseconds.
func (t *Timer) Milliseconds() float64 {
	return float64(t.elapsed.Microseconds()) / 1000
}

// Name returns the label.
func (t *Timer) Name() string { return t.label }

func (t *Timer) String() string {
	if t.label == "" {
		return t.elapsed.String()
	}
	return fmt.Sprintf("%s=%v", t.label, t.elapsed)
}

// Stages times consecutive steps of one operation, e.g. preprocess,
// inference and postprocess of a single classification.
type Stages struct {
	mark  time.Time
	names []string
	spans []time.Duration
}

// StartStages begins timing the first stage.
func StartStages() *Stages {
	return &Stages{mark: time.Now()}
}

// Mark ends the current stage under name and starts the next one.
func (s *Stages) Mark(name string) {
	now := time.Now()
	s.names = append(s.names, name)
	s.spans = append(s.spans, now.Sub(s.mark))
	s.mark = now
}

// Get returns the duration recorded for name.
func (s *Stages) Get(name string) (time.Duration, bool) {
	for i, n := range s.names {
		if n == name {
			return s.spans[i], true
		}
	}
	return 0, false
}

// Total is the sum of all marked stages.
func (s *Stages) Total() time.Duration {
	var total time.Duration
	for _, d := range s.spans {
		total += d
	}
	return total
}

// LogAttrs returns the stages as alternating key/value pairs for slog.
func (s *Stages) LogAttrs() []any {
	attrs := make([]any, 0, 2*len(s.names))
	for i, n := range s.names {
		attrs = append(attrs, n, s.spans[i])
	}
	return attrs
}
