package domain

// MessageLog is an insertion-ordered FIFO of chat events bounded by a capacity.
// It is not safe for concurrent use; the registry guards it.
type MessageLog struct {
	capacity int
	events   []ChatEvent
}

func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultHistoryLimit
	}
	return &MessageLog{capacity: capacity, events: make([]ChatEvent, 0, capacity)}
}

// Append adds an event and evicts the oldest ones beyond capacity.
func (l *MessageLog) Append(evt ChatEvent) {
	l.events = append(l.events, evt)
	if overflow := len(l.events) - l.capacity; overflow > 0 {
		// Copy into a fresh slice so evicted events can be collected.
		kept := make([]ChatEvent, l.capacity)
		copy(kept, l.events[overflow:])
		l.events = kept
	}
}

// Last returns a copy of up to the n most recent events in chronological order.
func (l *MessageLog) Last(n int) []ChatEvent {
	if n <= 0 || len(l.events) == 0 {
		return []ChatEvent{}
	}
	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]ChatEvent, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

func (l *MessageLog) Len() int { return len(l.events) }

func (l *MessageLog) Capacity() int { return l.capacity }
