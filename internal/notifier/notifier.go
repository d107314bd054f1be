// Package notifier implements the throttled alert sink (spec.md §4.8):
// invocation never blocks the executor/dispatcher and never raises back
// into them. Per-title throttling uses golang.org/x/time/rate (one token
// per 15-minute window per title) rather than a hand-rolled ticker map,
// matching SPEC_FULL.md §4.8's choice of a real ecosystem dependency.
package notifier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/clipforge/pipeline/internal/platform/logger"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Transport is the narrow outbound channel a concrete notification sink
// implements. The concrete transport is out of scope per spec.md §1.
type Transport interface {
	Send(title, body string, severity Severity) error
}

const throttleWindow = 15 * time.Minute

type Notifier struct {
	transport Transport
	log       *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(transport Transport, baseLog *logger.Logger) *Notifier {
	return &Notifier{
		transport: transport,
		log:       baseLog.With("component", "Notifier"),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Notify emits title/body at the given severity, throttled to at most once
// per 15 minutes per title (spec.md §4.8). Never blocks the caller and never
// returns an error to it; transport failures are logged only.
func (n *Notifier) Notify(title, body string, severity Severity) {
	if !n.allow(title) {
		return
	}
	if n.transport == nil {
		n.log.Warn("notifier: no transport configured, dropping alert", "title", title, "severity", severity)
		return
	}
	go func() {
		if err := n.transport.Send(title, body, severity); err != nil {
			n.log.Warn("notifier: transport send failed", "title", title, "error", err)
		}
	}()
}

func (n *Notifier) allow(title string) bool {
	n.mu.Lock()
	limiter, ok := n.limiters[title]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(throttleWindow), 1)
		n.limiters[title] = limiter
	}
	n.mu.Unlock()
	return limiter.Allow()
}
