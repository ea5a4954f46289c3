package session

import "time"

// Event names a session lifecycle transition.
type Event string

const (
	EventOpened Event = "opened"
	EventClosed Event = "closed"
)

// Observation captures one session lifecycle transition.
type Observation struct {
	Event     Event
	SessionID string
	Transport string
	Duration  time.Duration
	Err       error
}

// Observer receives session lifecycle events.
type Observer interface {
	ObserveSession(observation Observation)
}

type noopObserver struct{}

func (noopObserver) ObserveSession(Observation) {}

// MultiObserver fans observations out to several observers in order.
type MultiObserver []Observer

// ObserveSession forwards to every non-nil observer.
func (m MultiObserver) ObserveSession(observation Observation) {
	for _, o := range m {
		if o != nil {
			o.ObserveSession(observation)
		}
	}
}
