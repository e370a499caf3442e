package broadcast

import "errors"

var (
	// ErrNotConfigured marks a skipped cycle: disabled, no source, no targets
	// or an empty fixed message. It is wrapped with the reason.
	ErrNotConfigured = errors.New("broadcast: not configured")
	// ErrCycleInFlight is returned by Scheduler.RunCycle while another cycle runs.
	ErrCycleInFlight = errors.New("broadcast: cycle already in flight")
	// ErrNotCopyable is recorded when forwarding fails and the message has
	// neither text nor media to fall back to.
	ErrNotCopyable = errors.New("broadcast: message has no text or media to copy")
)
