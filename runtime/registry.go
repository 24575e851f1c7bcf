package runtime

import (
	"easy-chat/contract"
	"easy-chat/domain"
	"easy-chat/errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Ensure *Registry implements the contract.IRegistry interface at compile time.
var _ contract.IRegistry = (*Registry)(nil)

type session struct {
	participant domain.Participant
	conn        contract.Connection
}

// Registry owns the live participants of the room and its bounded message log.
// Every mutation runs under a single write lock so that name checks, log appends
// and membership notices are never observed half done.
type Registry struct {
	mu               sync.RWMutex
	log              *slog.Logger
	sessions         map[string]*session // participant ID -> session
	names            map[string]string   // username -> participant ID
	messages         *domain.MessageLog
	maxContentLength int
	censor           contract.Censor
	publisher        contract.EventPublisher
	now              func() time.Time
}

type Option func(*Registry)

// WithCensor rewrites message content before it is escaped and stored.
func WithCensor(censor contract.Censor) Option {
	return func(r *Registry) { r.censor = censor }
}

// WithPublisher forwards every appended event, in log order.
func WithPublisher(publisher contract.EventPublisher) Option {
	return func(r *Registry) { r.publisher = publisher }
}

func WithMaxContentLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxContentLength = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(log *slog.Logger, historyLimit int, opts ...Option) *Registry {
	r := &Registry{
		log:              log,
		sessions:         make(map[string]*session),
		names:            make(map[string]string),
		messages:         domain.NewMessageLog(historyLimit),
		maxContentLength: domain.MaxContentLength,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a participant under a unique display name.
// On collision nothing is mutated and the caller keeps ownership of conn.
func (r *Registry) Register(username string, conn contract.Connection) (domain.Participant, error) {
	name := domain.NormalizeUsername(username)
	if name == "" {
		return domain.Participant{}, errors.ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		return domain.Participant{}, fmt.Errorf("register %q: %w", name, errors.ErrNameTaken)
	}

	now := r.now()
	p := domain.Participant{ID: uuid.NewString(), Username: name, JoinedAt: now}
	r.sessions[p.ID] = &session{participant: p, conn: conn}
	r.names[name] = p.ID
	r.appendLocked(domain.NewJoinEvent(name, now))

	r.log.Info("User joined the chat", "username", name, "participant_id", p.ID)
	return p, nil
}

// Unregister removes a participant and closes its connection.
// Unknown IDs are ignored so close and delivery-failure paths can both call it.
// The caller is responsible for broadcasting the new roster.
func (r *Registry) Unregister(participantID string) (domain.ChatEvent, bool) {
	r.mu.Lock()
	s, ok := r.sessions[participantID]
	if !ok {
		r.mu.Unlock()
		return domain.ChatEvent{}, false
	}
	delete(r.sessions, participantID)
	delete(r.names, s.participant.Username)
	evt := domain.NewLeaveEvent(s.participant.Username, r.now())
	r.appendLocked(evt)
	r.mu.Unlock()

	// Closed outside the lock.
	if s.conn != nil {
		if err := s.conn.Close(domain.CloseNormal, "session closed"); err != nil {
			r.log.Debug("Connection already closed", "participant_id", participantID, "error", err)
		}
	}
	r.log.Info("User left the chat", "username", s.participant.Username, "participant_id", participantID)
	return evt, true
}

// RecordMessage validates, escapes and appends a chat message from a live participant.
func (r *Registry) RecordMessage(authorID, content string) (domain.ChatEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[authorID]
	if !ok {
		return domain.ChatEvent{}, errors.ErrUnknownAuthor
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return domain.ChatEvent{}, errors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > r.maxContentLength {
		return domain.ChatEvent{}, fmt.Errorf("%d characters: %w",
			utf8.RuneCountInString(trimmed), errors.ErrMessageTooLong)
	}

	if r.censor != nil {
		censored, words := r.censor.Censor(trimmed)
		if len(words) > 0 {
			r.log.Debug("Message censored", "participant_id", authorID, "words", len(words))
		}
		trimmed = censored
	}

	evt := domain.NewMessageEvent(s.participant.Username, domain.EscapeHTML(trimmed), r.now())
	r.appendLocked(evt)
	return evt, nil
}

func (r *Registry) appendLocked(evt domain.ChatEvent) {
	r.messages.Append(evt)
	if r.publisher != nil {
		r.publisher.Publish(evt)
	}
}

// RecentMessages returns up to the n latest events in chronological order.
func (r *Registry) RecentMessages(n int) []domain.ChatEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.messages.Last(n)
}

// Roster returns the live participants ordered by join time.
func (r *Registry) Roster() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

func (r *Registry) rosterLocked() []domain.Participant {
	roster := lo.MapToSlice(r.sessions, func(_ string, s *session) domain.Participant {
		return s.participant
	})
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].ID < roster[j].ID
		}
		return roster[i].JoinedAt.Before(roster[j].JoinedAt)
	})
	return roster
}

func (r *Registry) IsNameAvailable(username string) bool {
	_, found := r.FindByName(username)
	return !found
}

// FindByName normalizes username the way Register does, then matches it exactly.
func (r *Registry) FindByName(username string) (domain.Participant, bool) {
	name := domain.NormalizeUsername(username)
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[name]
	if !ok {
		return domain.Participant{}, false
	}
	return r.sessions[id].participant, true
}

// Targets snapshots every live connection except excludeID for one delivery pass.
func (r *Registry) Targets(excludeID string) []contract.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]contract.Target, 0, len(r.sessions))
	for id, s := range r.sessions {
		if excludeID != "" && id == excludeID {
			continue
		}
		targets = append(targets, contract.Target{Participant: s.participant, Conn: s.conn})
	}
	return targets
}

func (r *Registry) Connection(participantID string) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[participantID]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

func (r *Registry) Stats() domain.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roster := r.rosterLocked()
	return domain.Stats{
		UserCount:    len(roster),
		MessageCount: r.messages.Len(),
		Users: lo.Map(roster, func(p domain.Participant, _ int) domain.UserStats {
			return domain.UserStats{Username: p.Username, JoinedAt: p.JoinedAt}
		}),
	}
}
