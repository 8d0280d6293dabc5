// Package alert delivers human-facing notifications. Delivery is
// fire-and-forget: it never blocks the engine and never surfaces an error.
package alert

import "go.uber.org/zap"

// Alerter sends a notification to the operator.
type Alerter interface {
	Send(subject, body string)
}

// LogAlerter writes alerts to the structured log. It is the default sink
// when no messaging transport is configured.
type LogAlerter struct {
	Log *zap.Logger
}

func (a LogAlerter) Send(subject, body string) {
	if a.Log == nil {
		return
	}
	a.Log.Warn("alert", zap.String("subject", subject), zap.String("body", body))
}

// Nop discards every alert. Used in replay runs.
type Nop struct{}

func (Nop) Send(string, string) {}
