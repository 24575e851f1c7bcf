package runtime

import (
	"context"
	"easy-chat/contract"
	"easy-chat/domain"
	"easy-chat/errors"
	"easy-chat/observability"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultSendTimeout = 5 * time.Second

var _ contract.IBroadcaster = (*Broadcaster)(nil)

// Broadcaster fans events out to every live connection of the registry.
// Each delivery is isolated: a failing connection never blocks the others,
// and is deregistered once the pass is over.
type Broadcaster struct {
	mu          sync.Mutex // one delivery pass at a time
	log         *slog.Logger
	registry    contract.IRegistry
	monitoring  *observability.MonitoringManager
	sendTimeout time.Duration
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry,
	monitoring *observability.MonitoringManager, sendTimeout time.Duration) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Broadcaster{
		log:         log,
		registry:    registry,
		monitoring:  monitoring,
		sendTimeout: sendTimeout,
	}
}

// Broadcast serializes evt once and delivers it to every participant except excludeID.
// Participants whose delivery failed are unregistered after the pass, followed by
// a single roster push. That roster push never triggers another cleanup pass.
func (b *Broadcaster) Broadcast(ctx context.Context, evt domain.ChatEvent, excludeID string) {
	payload, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("Failed to serialize event", "event_id", evt.ID, "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.deliver(ctx, b.registry.Targets(excludeID), payload)
	removed := 0
	for _, target := range failed {
		if _, ok := b.registry.Unregister(target.Participant.ID); ok {
			b.monitoring.IncrLeaves()
			removed++
		}
	}
	if removed > 0 {
		b.log.Info("Removed participants after delivery failure", "count", removed)
		b.broadcastRosterLocked(ctx)
	}
}

// BroadcastRoster pushes the current roster to everyone, best effort.
// Failing connections are left to their own close path.
func (b *Broadcaster) BroadcastRoster(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcastRosterLocked(ctx)
}

func (b *Broadcaster) broadcastRosterLocked(ctx context.Context) {
	payload, err := json.Marshal(domain.NewRosterFrame(b.registry.Roster()))
	if err != nil {
		b.log.Error("Failed to serialize roster", "error", err)
		return
	}
	_ = b.deliver(ctx, b.registry.Targets(""), payload)
}

// SendTo delivers a single frame to one participant (pong, error notice, backfill).
func (b *Broadcaster) SendTo(ctx context.Context, participantID string, frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("serialize frame: %w", err)
	}
	conn, ok := b.registry.Connection(participantID)
	if !ok {
		return fmt.Errorf("participant %s: %w", participantID, errors.ErrUnknownAuthor)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send(ctx, conn, payload)
}

// deliver sends payload to all targets concurrently and returns the ones that failed.
func (b *Broadcaster) deliver(ctx context.Context, targets []contract.Target, payload []byte) []contract.Target {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []contract.Target
	)
	for _, target := range targets {
		wg.Add(1)
		go func(t contract.Target) {
			defer wg.Done()
			if err := b.send(ctx, t.Conn, payload); err != nil {
				b.log.Warn("Failed to deliver to participant",
					"participant_id", t.Participant.ID,
					"username", t.Participant.Username,
					"error", err)
				b.monitoring.IncrDeliveryFailures()
				mu.Lock()
				failed = append(failed, t)
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()
	return failed
}

func (b *Broadcaster) send(ctx context.Context, conn contract.Connection, payload []byte) (err error) {
	if conn == nil {
		return fmt.Errorf("no connection: %w", errors.ErrDeliveryFailure)
	}
	// Detached from the caller cancellation: only sendTimeout bounds a delivery.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", errors.ErrDeliveryFailure, r)
		}
	}()
	if err := conn.Send(sendCtx, payload); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrDeliveryFailure, err)
	}
	return nil
}
