package tool

// InvokeObservation captures one perplexity-chat invocation outcome.
type InvokeObservation struct {
	ToolName   string
	SessionID  string
	Model      string
	Format     string
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveInvoke(observation InvokeObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(InvokeObservation) {}

// MultiObserver fans observations out to several observers in order.
type MultiObserver []Observer

// ObserveInvoke forwards to every non-nil observer.
func (m MultiObserver) ObserveInvoke(observation InvokeObservation) {
	for _, o := range m {
		if o != nil {
			o.ObserveInvoke(observation)
		}
	}
}

func observerOrNoop(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}
