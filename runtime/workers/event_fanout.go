package workers

import (
	"context"
	"easy-chat/contract"
	"easy-chat/domain"
	"easy-chat/observability"
	"log/slog"
	"sync"
	"time"
)

const defaultSinkTimeout = 2 * time.Second

var (
	_ contract.EventPublisher = (*EventFanout)(nil)
	_ contract.Worker         = (*EventFanout)(nil)
)

// EventFanout forwards recorded chat events to every registered sink.
//
// Publish never blocks the caller: when the buffer is full the event is
// dropped and counted. Delivery to sinks is best effort, each one bounded
// by sinkTimeout, and a failing sink never stops the others.
type EventFanout struct {
	log         *slog.Logger
	events      chan domain.ChatEvent
	sinks       []contract.EventSink
	monitoring  *observability.MonitoringManager
	sinkTimeout time.Duration
}

func NewEventFanout(
	log *slog.Logger,
	bufferSize int,
	monitoring *observability.MonitoringManager,
	sinkTimeout time.Duration,
	sinks ...contract.EventSink,
) *EventFanout {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}
	return &EventFanout{
		log:         log,
		events:      make(chan domain.ChatEvent, bufferSize),
		sinks:       sinks,
		monitoring:  monitoring,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Publish(e domain.ChatEvent) {
	select {
	case w.events <- e:
	default:
		w.monitoring.IncrArchiveDropped()
		w.log.Warn("Archive buffer full, event dropped", "id", e.ID, "kind", e.Kind)
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping archive fanout")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt domain.ChatEvent) {
	var wg sync.WaitGroup
	for _, sink := range w.sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := s.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Sink failed to consume event", "id", evt.ID, "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

func (w *EventFanout) Len() int { return len(w.events) }

func (w *EventFanout) Cap() int { return cap(w.events) }
