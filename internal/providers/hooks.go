package providers

import "time"

// Hooks receives dispatch-core events for metrics collection.
// Implementations must be safe for concurrent use.
type Hooks interface {
	// OnConfigLoad is called after every configuration load; err is nil on success.
	OnConfigLoad(err error)

	// OnDispatch is called once per dispatch. provider is empty when the
	// identifier was invalid or named an unknown provider.
	OnDispatch(provider string, err error, elapsed time.Duration)
}

// NoopHooks discards all events.
type NoopHooks struct{}

func (NoopHooks) OnConfigLoad(error)                       {}
func (NoopHooks) OnDispatch(string, error, time.Duration) {}
