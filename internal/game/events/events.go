package events

import (
	"sync"
	"time"
)

// EventType indicates the category of a game event.
type EventType string

const (
	EventCardFlipped    EventType = "CARD_FLIPPED"
	EventPairMatched    EventType = "PAIR_MATCHED"
	EventPairMismatched EventType = "PAIR_MISMATCHED"
	EventPendingCleared EventType = "PENDING_CLEARED"
	EventGameReset      EventType = "GAME_RESET"
	EventMoveUndone     EventType = "MOVE_UNDONE"
	EventCheatRequested EventType = "CHEAT_REQUESTED"
)

// IsMutation reports whether events of this type follow a change to the deck.
func (et EventType) IsMutation() bool {
	return et != EventCheatRequested
}

// Event describes a transition that other subsystems may react to.
// Exactly one event is published per visible transition.
type Event struct {
	Type      EventType
	GameID    string
	Index     int   // card that triggered the transition, -1 when none
	Indices   []int // cards affected by the transition
	MoveCount int   // move count after the transition
	Won       bool  // every card is matched after the transition
	Timestamp time.Time
}

// NewEvent creates an event with common fields populated.
func NewEvent(eventType EventType, gameID string, index, moveCount int, indices ...int) Event {
	return Event{
		Type:      eventType,
		GameID:    gameID,
		Index:     index,
		Indices:   append([]int(nil), indices...),
		MoveCount: moveCount,
		Timestamp: time.Now(),
	}
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type subscription struct {
	handle    int
	eventType EventType // empty for all events
	callback  Listener
}

// Bus provides a synchronous publish/subscribe implementation with type
// filtering. Listeners run in registration order.
type Bus struct {
	mu         sync.RWMutex
	listeners  []subscription
	nextHandle int
}

// NewBus constructs a fresh event bus instance.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *Bus) Subscribe(listener Listener) int {
	return bus.add("", listener)
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *Bus) SubscribeTyped(eventType EventType, listener Listener) int {
	if eventType == "" {
		return -1
	}
	return bus.add(eventType, listener)
}

func (bus *Bus) add(eventType EventType, listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners = append(bus.listeners, subscription{
		handle:    handle,
		eventType: eventType,
		callback:  listener,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *Bus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.listeners {
		if sub.handle == handle {
			bus.listeners = append(bus.listeners[:i:i], bus.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (bus *Bus) Len() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.listeners)
}

// Publish delivers the event to all matching listeners synchronously.
// The listener list is copied first so callbacks may subscribe or
// unsubscribe without deadlocking.
func (bus *Bus) Publish(event Event) {
	bus.mu.RLock()
	listeners := make([]subscription, len(bus.listeners))
	copy(listeners, bus.listeners)
	bus.mu.RUnlock()

	for _, sub := range listeners {
		if sub.eventType == "" || sub.eventType == event.Type {
			sub.callback(event)
		}
	}
}

// PublishBatch publishes multiple events in order.
func (bus *Bus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}
