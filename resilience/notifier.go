package resilience

import (
	"context"
	"fmt"
	"sync"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
)

// Observer callback registered against a Notifier emission channel
type Observer[T any] func(ctx context.Context, value T) error

/*
Notifier async-safe notification channel

Each instance is an explicit, caller-owned object; there is no process-wide
singleton. Emitting a value invokes every registered observer. A failure in
one observer (error return or panic) is logged and never prevents the other
observers from running, nor from being invoked again on the next emission.
*/
type Notifier[T any] struct {
	goutils.Component

	lock      *sync.Mutex
	observers map[string]Observer[T]
}

/*
NewNotifier define a new notification channel

	@param name string - channel name used in log entries
	@returns new notifier instance
*/
func NewNotifier[T any](name string) *Notifier[T] {
	logTags := log.Fields{
		"module": "resilience", "component": "notifier", "channel": name,
	}

	return &Notifier[T]{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		lock:      &sync.Mutex{},
		observers: make(map[string]Observer[T]),
	}
}

/*
Subscribe register a new observer

	@param observer Observer[T] - callback to invoke on each emission
	@returns subscription ID for use with Unsubscribe
*/
func (n *Notifier[T]) Subscribe(observer Observer[T]) string {
	n.lock.Lock()
	defer n.lock.Unlock()

	subID := ulid.Make().String()
	n.observers[subID] = observer
	return subID
}

/*
Unsubscribe remove a previously registered observer

	@param subID string - subscription ID returned by Subscribe
*/
func (n *Notifier[T]) Unsubscribe(subID string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	delete(n.observers, subID)
}

/*
Emit deliver a value to every registered observer

	@param ctx context.Context - execution context
	@param value T - the value to deliver
*/
func (n *Notifier[T]) Emit(ctx context.Context, value T) {
	for subID, observer := range n.snapshot() {
		n.invoke(ctx, subID, observer, value)
	}
}

// snapshot copy the observer set under lock; iteration order is unspecified
func (n *Notifier[T]) snapshot() map[string]Observer[T] {
	n.lock.Lock()
	defer n.lock.Unlock()

	active := make(map[string]Observer[T], len(n.observers))
	for subID, observer := range n.observers {
		active[subID] = observer
	}
	return active
}

// invoke run one observer, containing both error returns and panics
func (n *Notifier[T]) invoke(ctx context.Context, subID string, observer Observer[T], value T) {
	logTags := n.GetLogTagsForContext(ctx)

	defer func() {
		if recovered := recover(); recovered != nil {
			log.WithFields(logTags).
				WithError(fmt.Errorf("observer panic: %v", recovered)).
				Errorf("Observer %s panicked during emission", subID)
		}
	}()

	if err := observer(ctx, value); err != nil {
		log.WithFields(logTags).WithError(err).Errorf("Observer %s failed during emission", subID)
	}
}
