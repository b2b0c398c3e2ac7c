package chronos

import "errors"

// EventType identifies a scheduler lifecycle event.
type EventType int

const (
	// EventStart is published by RunTasks.
	EventStart EventType = iota + 1
	// EventStop is published whenever the scheduler stops.
	EventStop
	// EventInsertFrame is published right before a tick driver is armed.
	EventInsertFrame
	// EventFrameInserted is published when an armed tick driver begins.
	EventFrameInserted
	// EventKilled is published after a task's step returned Done.
	EventKilled
	// EventStartGenerators is published when a generator wave is being admitted.
	EventStartGenerators
	// EventStopGenerators is published when no generator is left to admit.
	EventStopGenerators
)

var eventNames = map[EventType]string{
	EventStart:           "start",
	EventStop:            "stop",
	EventInsertFrame:     "insertframe",
	EventFrameInserted:   "frameinserted",
	EventKilled:          "killed",
	EventStartGenerators: "startgenerators",
	EventStopGenerators:  "stopgenerators",
}

// AllEventTypes lists every event type in declaration order.
var AllEventTypes = []EventType{
	EventStart,
	EventStop,
	EventInsertFrame,
	EventFrameInserted,
	EventKilled,
	EventStartGenerators,
	EventStopGenerators,
}

// String returns the wire name of the event ("start", "killed", ...).
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseEventType converts a wire name back to an EventType.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Event is a published lifecycle event.
type Event struct {
	Type EventType

	// Seq is the logical sequence number stamped by the publishing scheduler.
	Seq int64

	// Frame is the number of frames inserted since the run started.
	Frame int

	// Task is set for EventKilled only.
	Task *TaskInfo
}

// Handler receives published events.
type Handler func(Event)

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

// ErrSubscriptionNotFound is returned when unsubscribing an unknown id.
var ErrSubscriptionNotFound = errors.New("chronos: subscription not found")

type subscription struct {
	id      SubscriptionID
	handler Handler
	active  bool
}

// EventBus dispatches events synchronously to per-type subscriber lists,
// in subscription order.
//
// Handlers may subscribe, unsubscribe or publish while a dispatch is in
// progress. A dispatch works on a snapshot of the list taken when it starts;
// handlers unsubscribed during the dispatch are skipped, handlers subscribed
// during it first see the next event.
//
// Thread-safety: none. The bus lives on the scheduler's goroutine.
type EventBus struct {
	subs   map[EventType][]*subscription
	byID   map[SubscriptionID]*subscription
	nextID SubscriptionID
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[EventType][]*subscription),
		byID: make(map[SubscriptionID]*subscription),
	}
}

// Subscribe registers h for events of type t.
func (b *EventBus) Subscribe(t EventType, h Handler) SubscriptionID {
	return b.subscribe([]EventType{t}, h)
}

// SubscribeAll registers h for every event type.
func (b *EventBus) SubscribeAll(h Handler) SubscriptionID {
	return b.subscribe(AllEventTypes, h)
}

func (b *EventBus) subscribe(types []EventType, h Handler) SubscriptionID {
	b.nextID++
	sub := &subscription{id: b.nextID, handler: h, active: true}
	b.byID[sub.id] = sub
	for _, t := range types {
		b.subs[t] = append(b.subs[t], sub)
	}
	return sub.id
}

// Unsubscribe removes a subscription from every list it belongs to.
func (b *EventBus) Unsubscribe(id SubscriptionID) error {
	sub, ok := b.byID[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.active = false
	delete(b.byID, id)

	for t, list := range b.subs {
		kept := make([]*subscription, 0, len(list))
		for _, s := range list {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, t)
			continue
		}
		b.subs[t] = kept
	}
	return nil
}

// Publish dispatches ev to the subscribers of ev.Type.
func (b *EventBus) Publish(ev Event) {
	list := b.subs[ev.Type]
	if len(list) == 0 {
		return
	}
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)

	for _, sub := range snapshot {
		if !sub.active || sub.handler == nil {
			continue
		}
		sub.handler(ev)
	}
}

// Len returns the number of subscribers for t.
func (b *EventBus) Len(t EventType) int {
	return len(b.subs[t])
}
