//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"easy-chat/domain"
	"easy-chat/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	messagePrefix   = "msg:"
	defaultPageSize = 50
	contentField    = "content"
	usernameField   = "username"
)

type IMessageRepository interface {
	StoreMessage(message ArchivedMessage) error
	GetMessages(cursor *string) ([]ArchivedMessage, *string, error)
	Search(ctx context.Context, terms string, limit int) ([]ArchivedMessage, error)
}

// ArchivedMessage is the persisted form of a chat event.
type ArchivedMessage struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	Content  string      `json:"content"`
	Kind     domain.Kind `json:"kind"`
	Lang     string      `json:"lang,omitempty"`
	At       time.Time   `json:"timestamp"`
}

func FromChatEvent(e domain.ChatEvent, lang string) ArchivedMessage {
	return ArchivedMessage{
		ID:       e.ID,
		Username: e.Username,
		Content:  e.Content,
		Kind:     e.Kind,
		Lang:     lang,
		At:       e.Timestamp,
	}
}

type MessageRepository struct {
	db       *badger.DB
	writer   *bluge.Writer
	log      *slog.Logger
	pageSize int
}

// NewMessageRepository A nil writer disables full-text indexing and search.
func NewMessageRepository(db *badger.DB, writer *bluge.Writer, log *slog.Logger, pageSize int) *MessageRepository {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &MessageRepository{db: db, writer: writer, log: log, pageSize: pageSize}
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
//
// Chat messages are also indexed in bluge under the same key.
func (m *MessageRepository) StoreMessage(message ArchivedMessage) error {
	key := messageKey(message)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return fmt.Errorf("store message %s: %w", message.ID, err)
	}
	if m.writer == nil || message.Kind != domain.KindMessage {
		return nil
	}
	doc := bluge.NewDocument(key).
		AddField(bluge.NewTextField(contentField, message.Content).StoreValue()).
		AddField(bluge.NewKeywordField(usernameField, message.Username).StoreValue())
	if err = m.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

// GetMessages pages backwards through the archive, newest first.
// The returned cursor is nil once the oldest message has been reached.
func (m *MessageRepository) GetMessages(cursor *string) ([]ArchivedMessage, *string, error) {
	var byteMessages [][]byte
	var lastKey string
	prefix := []byte(messagePrefix)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest possible key, then walk back in time
			seekKey = append([]byte(messagePrefix), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(messagePrefix), []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(byteMessages) == m.pageSize {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", m.pageSize))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(messagePrefix):])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages, err := decodeAll(byteMessages)
	if err != nil {
		return nil, nil, err
	}
	if len(messages) < m.pageSize {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// Search runs a match query on message content and returns the best hits first.
func (m *MessageRepository) Search(ctx context.Context, terms string, limit int) ([]ArchivedMessage, error) {
	if m.writer == nil {
		return nil, fmt.Errorf("search: %w", errors.ErrArchiveDisabled)
	}
	terms = strings.TrimSpace(terms)
	if terms == "" {
		return []ArchivedMessage{}, nil
	}
	if limit <= 0 || limit > m.pageSize {
		limit = m.pageSize
	}

	reader, err := m.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open search reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewMatchQuery(terms).SetField(contentField)
	request := bluge.NewTopNSearch(limit, query)
	dmi, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", terms, err)
	}

	var keys []string
	match, err := dmi.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				keys = append(keys, string(value))
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return m.fetchByKeys(keys)
}

func (m *MessageRepository) fetchByKeys(keys []string) ([]ArchivedMessage, error) {
	var byteMessages [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				m.log.Debug("Indexed message missing from archive", "key", key)
				continue
			}
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			byteMessages = append(byteMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(byteMessages)
}

func messageKey(message ArchivedMessage) string {
	return fmt.Sprintf("%s%019d:%s", messagePrefix, message.At.UnixNano(), message.ID)
}

func decodeAll(raw [][]byte) ([]ArchivedMessage, error) {
	messages := make([]ArchivedMessage, 0, len(raw))
	for _, b := range raw {
		var message ArchivedMessage
		if err := json.Unmarshal(b, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return lo.Map(messages, func(m ArchivedMessage, _ int) ArchivedMessage {
		m.At = m.At.UTC()
		return m
	}), nil
}
