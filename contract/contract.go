//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"easy-chat/domain"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is the bidirectional channel owned by the registry for one participant.
// Send must return once ctx is done; a hung write is reported as an error.
type Connection interface {
	Send(ctx context.Context, payload []byte) error
	Close(code domain.CloseCode, reason string) error
}

// EventSink consumes chat events outside the live broadcast path (archive, projections).
type EventSink interface {
	Consume(ctx context.Context, e domain.ChatEvent) error
}

// EventPublisher receives every event appended to the message log, in log order.
// Publish must never block the caller.
type EventPublisher interface {
	Publish(e domain.ChatEvent)
}

// Censor rewrites forbidden words before a message is stored.
type Censor interface {
	Censor(original string) (string, []string)
}

// Target pairs a live participant with its connection for a single delivery pass.
type Target struct {
	Participant domain.Participant
	Conn        Connection
}

type IRegistry interface {
	Register(username string, conn Connection) (domain.Participant, error)
	Unregister(participantID string) (domain.ChatEvent, bool)
	RecordMessage(authorID, content string) (domain.ChatEvent, error)
	RecentMessages(n int) []domain.ChatEvent
	Roster() []domain.Participant
	IsNameAvailable(username string) bool
	FindByName(username string) (domain.Participant, bool)
	Targets(excludeID string) []Target
	Connection(participantID string) (Connection, bool)
	Stats() domain.Stats
}

type IBroadcaster interface {
	Broadcast(ctx context.Context, evt domain.ChatEvent, excludeID string)
	BroadcastRoster(ctx context.Context)
	SendTo(ctx context.Context, participantID string, frame any) error
}
