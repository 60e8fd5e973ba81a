package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// sequence
	"sequence.started":   {},
	"sequence.stopped":   {},
	"sequence.reset":     {},
	"sequence.completed": {},
	"sequence.idle":      {},

	// step
	"step.cued":      {},
	"step.validated": {},
	"step.rejected":  {},
	"step.ignored":   {},

	// object
	"object.toggled":       {},
	"object.reset":         {},
	"object.misconfigured": {},
	"object.inactive":      {},

	// feedback
	"feedback.appearance": {},
	"feedback.overlay":    {},
	"feedback.sound":      {},

	// session
	"session.started":   {},
	"session.restarted": {},
	"session.completed": {},
	"session.closed":    {},
	"session.progress":  {},
	"session.rejected":  {},

	// metadata
	"metadata.loaded":   {},
	"metadata.retry":    {},
	"metadata.fallback": {},

	// notify
	"notify.attempt":  {},
	"notify.sent":     {},
	"notify.failed":   {},
	"notify.recorded": {},
	"notify.resent":   {},

	// scene client
	"client.registered":   {},
	"client.rejected":     {},
	"client.disconnected": {},
	"client.click":        {},
	"client.error":        {},

	// operator
	"operator.start":   {},
	"operator.restart": {},
	"operator.close":   {},
	"operator.click":   {},
	"operator.denied":  {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
