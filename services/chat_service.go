package services

import (
	"context"
	"easy-chat/contract"
	"easy-chat/domain"
	"easy-chat/errors"
	"easy-chat/observability"
	"easy-chat/repositories"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	invalidFormatText = "Invalid message format"
	emptyMessageText  = "Message cannot be empty"
	nameRequiredText  = "Username is required"
	nameTakenText     = "Username is already taken"
)

type IChatService interface {
	Join(ctx context.Context, username string, conn contract.Connection) (domain.Participant, error)
	Ready(ctx context.Context, participant domain.Participant) error
	HandleFrame(ctx context.Context, participant domain.Participant, raw []byte) error
	Leave(ctx context.Context, participantID string)
	Stats() domain.Stats
	History(cursor *string) ([]repositories.ArchivedMessage, *string, error)
	Search(ctx context.Context, terms string, limit int) ([]repositories.ArchivedMessage, error)
}

var _ IChatService = (*ChatService)(nil)

// ChatService turns transport sessions into registry and broadcast operations.
type ChatService struct {
	log              *slog.Logger
	registry         contract.IRegistry
	broadcaster      contract.IBroadcaster
	repository       repositories.IMessageRepository
	monitoring       *observability.MonitoringManager
	backfillSize     int
	maxContentLength int
}

// NewChatService A nil repository disables History and Search.
func NewChatService(
	log *slog.Logger,
	registry contract.IRegistry,
	broadcaster contract.IBroadcaster,
	repository repositories.IMessageRepository,
	monitoring *observability.MonitoringManager,
	backfillSize int,
	maxContentLength int,
) *ChatService {
	if backfillSize < 0 {
		backfillSize = domain.DefaultBackfillSize
	}
	if maxContentLength <= 0 {
		maxContentLength = domain.MaxContentLength
	}
	return &ChatService{
		log:              log,
		registry:         registry,
		broadcaster:      broadcaster,
		repository:       repository,
		monitoring:       monitoring,
		backfillSize:     backfillSize,
		maxContentLength: maxContentLength,
	}
}

// Join registers a new session. A refused session is closed with a policy violation
// and never reaches the registry.
func (s *ChatService) Join(_ context.Context, username string, conn contract.Connection) (domain.Participant, error) {
	participant, err := s.registry.Register(username, conn)
	if err == nil {
		s.monitoring.IncrJoins()
		return participant, nil
	}

	reason := nameRequiredText
	if errors.Is(err, errors.ErrNameTaken) {
		reason = nameTakenText
	}
	s.monitoring.IncrRejectedJoins()
	s.log.Info("Join refused", "username", username, "reason", reason)
	if closeErr := conn.Close(domain.ClosePolicyViolation, reason); closeErr != nil {
		s.log.Debug("Unable to close refused connection", "error", closeErr)
	}
	return domain.Participant{}, err
}

// Ready is signalled by the transport once the session can receive frames.
// The newcomer gets the recent backlog and the roster, then everyone gets the roster.
func (s *ChatService) Ready(ctx context.Context, participant domain.Participant) error {
	for _, evt := range s.registry.RecentMessages(s.backfillSize) {
		if err := s.broadcaster.SendTo(ctx, participant.ID, evt); err != nil {
			return fmt.Errorf("backfill %s: %w", participant.ID, err)
		}
	}
	roster := domain.NewRosterFrame(s.registry.Roster())
	if err := s.broadcaster.SendTo(ctx, participant.ID, roster); err != nil {
		return fmt.Errorf("roster %s: %w", participant.ID, err)
	}
	s.broadcaster.BroadcastRoster(ctx)
	return nil
}

// HandleFrame dispatches one inbound frame. Only errors on the reply path are returned.
func (s *ChatService) HandleFrame(ctx context.Context, participant domain.Participant, raw []byte) error {
	var intent domain.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		s.monitoring.IncrMalformedFrames()
		s.log.Debug("Malformed frame", "participant_id", participant.ID,
			"error", fmt.Errorf("%w: %w", errors.ErrMalformedFrame, err))
		return s.reply(ctx, participant.ID, domain.NewErrorFrame(invalidFormatText))
	}

	switch intent.Kind {
	case domain.KindMessage:
		return s.postMessage(ctx, participant, intent.Content)
	case domain.KindPing:
		return s.reply(ctx, participant.ID, domain.NewPongFrame())
	default:
		s.log.Warn("Unknown frame kind", "participant_id", participant.ID, "kind", intent.Kind)
		return nil
	}
}

func (s *ChatService) postMessage(ctx context.Context, participant domain.Participant, content *string) error {
	text := ""
	if content != nil {
		text = *content
	}
	evt, err := s.registry.RecordMessage(participant.ID, text)
	switch {
	case err == nil:
		s.monitoring.IncrMessages()
		s.broadcaster.Broadcast(ctx, evt, "")
		return nil
	case errors.Is(err, errors.ErrUnknownAuthor):
		s.log.Debug("Message from a departed participant dropped", "participant_id", participant.ID)
		return nil
	case errors.Is(err, errors.ErrEmptyMessage):
		s.monitoring.IncrRejectedMessages()
		return s.reply(ctx, participant.ID, domain.NewErrorFrame(emptyMessageText))
	case errors.Is(err, errors.ErrMessageTooLong):
		s.monitoring.IncrRejectedMessages()
		return s.reply(ctx, participant.ID,
			domain.NewErrorFrame(fmt.Sprintf("Message too long (max %d characters)", s.maxContentLength)))
	default:
		return err
	}
}

func (s *ChatService) reply(ctx context.Context, participantID string, frame any) error {
	err := s.broadcaster.SendTo(ctx, participantID, frame)
	if errors.Is(err, errors.ErrUnknownAuthor) {
		return nil
	}
	return err
}

// Leave is idempotent: only the first call for a session pushes a new roster.
func (s *ChatService) Leave(ctx context.Context, participantID string) {
	if _, ok := s.registry.Unregister(participantID); !ok {
		return
	}
	s.monitoring.IncrLeaves()
	s.broadcaster.BroadcastRoster(ctx)
}

func (s *ChatService) Stats() domain.Stats {
	return s.registry.Stats()
}

func (s *ChatService) History(cursor *string) ([]repositories.ArchivedMessage, *string, error) {
	if s.repository == nil {
		return nil, nil, errors.ErrArchiveDisabled
	}
	return s.repository.GetMessages(cursor)
}

func (s *ChatService) Search(ctx context.Context, terms string, limit int) ([]repositories.ArchivedMessage, error) {
	if s.repository == nil {
		return nil, errors.ErrArchiveDisabled
	}
	return s.repository.Search(ctx, terms, limit)
}
