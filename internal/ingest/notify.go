package ingest

import "github.com/isdelr/disaster-tracker-be/internal/models"

// Notifier receives newly created events. Implementations must not block
// the caller on slow consumers.
type Notifier interface {
	Notify(ev models.Event)
}

// Notifiers fans one event out to every configured sink in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ev models.Event) {
	for _, n := range ns {
		n.Notify(ev)
	}
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev models.Event)

func (f NotifierFunc) Notify(ev models.Event) { f(ev) }
