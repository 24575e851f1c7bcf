package runtime

import (
	"context"
	"easy-chat/domain"
	"easy-chat/errors"
	"easy-chat/mocks"
	"easy-chat/observability"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestBroadcaster(registry *Registry, timeout time.Duration) (*Broadcaster, *observability.MonitoringManager) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	return NewBroadcaster(log, registry, monitoring, timeout), monitoring
}

func decodeEvent(t *testing.T, payload []byte) domain.ChatEvent {
	var evt domain.ChatEvent
	require.NoError(t, json.Unmarshal(payload, &evt))
	return evt
}

func decodeRoster(t *testing.T, payload []byte) domain.RosterFrame {
	var frame domain.RosterFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	require.Equal(t, domain.KindUserList, frame.Kind)
	return frame
}

func TestBroadcaster_Broadcast_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)
	connA, connB := &fakeConn{}, &fakeConn{}
	a, err := registry.Register("A", connA)
	req.NoError(err)
	_, err = registry.Register("B", connB)
	req.NoError(err)

	// When A says Hi without exclusion
	evt, err := registry.RecordMessage(a.ID, "Hi")
	req.NoError(err)
	broadcaster.Broadcast(context.Background(), evt, "")

	// Then both participants, including the sender, received it
	for _, conn := range []*fakeConn{connA, connB} {
		received := conn.received()
		req.Len(received, 1)
		got := decodeEvent(t, received[0])
		req.Equal(domain.KindMessage, got.Kind)
		req.Equal("A", got.Username)
		req.Equal("Hi", got.Content)
		req.Equal(evt.ID, got.ID)
	}
}

func TestBroadcaster_Broadcast_Excludes(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)
	connA, connB := &fakeConn{}, &fakeConn{}
	a, _ := registry.Register("A", connA)
	_, _ = registry.Register("B", connB)

	broadcaster.Broadcast(context.Background(), domain.NewMessageEvent("A", "Hi", time.Now()), a.ID)

	req.Empty(connA.received())
	req.Len(connB.received(), 1)
}

func TestBroadcaster_Broadcast_Removes_Broken_Connection(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, monitoring := newTestBroadcaster(registry, time.Second)

	// Given N=4 participants, one of them with an already closed connection
	healthy := []*fakeConn{{}, {}, {}}
	for i, conn := range healthy {
		_, err := registry.Register(fmt.Sprintf("User%d", i), conn)
		req.NoError(err)
	}
	broken := &fakeConn{sendErr: fmt.Errorf("use of closed network connection")}
	_, err := registry.Register("Broken", broken)
	req.NoError(err)

	// When an event is broadcast
	evt := domain.NewMessageEvent("User0", "Hello", time.Now())
	broadcaster.Broadcast(context.Background(), evt, "")

	// Then the broken participant is gone
	req.Len(registry.Roster(), 3)
	req.True(registry.IsNameAvailable("Broken"))
	req.True(broken.isClosed())
	req.Equal(uint64(1), monitoring.GetLatest().DeliveryFailures)

	// And the N-1 others received the event followed by a roster of N-1
	for _, conn := range healthy {
		received := conn.received()
		req.Len(received, 2)
		req.Equal(evt.ID, decodeEvent(t, received[0]).ID)
		req.Len(decodeRoster(t, received[1]).Users, 3)
	}

	// And the log recorded the leave
	last := registry.RecentMessages(1)[0]
	req.Equal(domain.KindLeave, last.Kind)
	req.Equal("Broken left", last.Content)
}

func TestBroadcaster_Broadcast_Hung_Connection_Times_Out(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, 20*time.Millisecond)

	hung := mocks.NewMockConnection(ctrl)
	hung.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []byte) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return ctx.Err()
		}).Times(1)
	hung.EXPECT().Close(domain.CloseNormal, gomock.Any()).Return(nil).Times(1)

	healthy := &fakeConn{}
	_, err := registry.Register("Hung", hung)
	req.NoError(err)
	_, err = registry.Register("Healthy", healthy)
	req.NoError(err)

	// When broadcasting, the pass finishes despite the hung writer
	done := make(chan struct{})
	go func() {
		broadcaster.Broadcast(context.Background(), domain.NewMessageEvent("Healthy", "ping?", time.Now()), "")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Broadcast blocked on a hung connection")
	}

	// Then the hung participant was removed and the healthy one got event + roster
	req.True(registry.IsNameAvailable("Hung"))
	req.Len(healthy.received(), 2)
}

func TestBroadcaster_Caller_Cancellation_Does_Not_Fail_Deliveries(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)
	conn := &fakeConn{}
	_, _ = registry.Register("A", conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	broadcaster.Broadcast(ctx, domain.NewMessageEvent("A", "bye", time.Now()), "")

	req.Len(registry.Roster(), 1)
	req.Len(conn.received(), 1)
}

func TestBroadcaster_Roster_Failure_Does_Not_Cascade(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)

	// Given a connection that accepts the event but fails on the roster push
	flaky := mocks.NewMockConnection(ctrl)
	gomock.InOrder(
		flaky.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil),
		flaky.EXPECT().Send(gomock.Any(), gomock.Any()).Return(fmt.Errorf("broken pipe")),
	)
	broken := &fakeConn{sendErr: fmt.Errorf("closed")}
	_, _ = registry.Register("Flaky", flaky)
	_, _ = registry.Register("Broken", broken)

	// When the broadcast removes Broken and pushes the roster
	broadcaster.Broadcast(context.Background(), domain.NewMessageEvent("Flaky", "hi", time.Now()), "")

	// Then the roster failure of Flaky did not trigger another removal
	req.False(registry.IsNameAvailable("Flaky"))
	req.True(registry.IsNameAvailable("Broken"))
}

func TestBroadcaster_BroadcastRoster_Is_Best_Effort(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)
	ok := &fakeConn{}
	failing := &fakeConn{sendErr: fmt.Errorf("closed")}
	_, _ = registry.Register("Ok", ok)
	_, _ = registry.Register("Failing", failing)

	broadcaster.BroadcastRoster(context.Background())

	// Then nobody was removed
	req.Len(registry.Roster(), 2)
	req.False(failing.isClosed())
	received := ok.received()
	req.Len(received, 1)
	frame := decodeRoster(t, received[0])
	req.Len(frame.Users, 2)
	req.Equal("Ok", frame.Users[0].Username)
}

func TestBroadcaster_SendTo(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)
	connA, connB := &fakeConn{}, &fakeConn{}
	a, _ := registry.Register("A", connA)
	_, _ = registry.Register("B", connB)

	req.NoError(broadcaster.SendTo(context.Background(), a.ID, domain.NewPongFrame()))
	req.Equal([][]byte{[]byte(`{"kind":"pong"}`)}, connA.received())
	req.Empty(connB.received())

	err := broadcaster.SendTo(context.Background(), "stale", domain.NewPongFrame())
	req.ErrorIs(err, errors.ErrUnknownAuthor)
}

func TestBroadcaster_SendTo_Failure_Is_Reported(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry()
	broadcaster, _ := newTestBroadcaster(registry, time.Second)
	a, _ := registry.Register("A", &fakeConn{sendErr: fmt.Errorf("closed")})

	err := broadcaster.SendTo(context.Background(), a.ID, domain.NewPongFrame())

	req.ErrorIs(err, errors.ErrDeliveryFailure)
	// Direct replies leave cleanup to the connection close path
	req.False(registry.IsNameAvailable("A"))
}
