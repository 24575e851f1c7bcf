// Package domain contains core concepts of the chat system.
// This file defines ChatEvent records and related rules.
// Events are immutable and validated by the registry before creation.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MaxContentLength    = 500
	DefaultHistoryLimit = 100
	DefaultBackfillSize = 20
)

type Kind string

const (
	KindMessage Kind = "message"
	KindJoin    Kind = "join"
	KindLeave   Kind = "leave"
)

// ChatEvent represents an immutable message or membership change.
type ChatEvent struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
}

func NewMessageEvent(username, content string, at time.Time) ChatEvent {
	return newEvent(username, content, at, KindMessage)
}

func NewJoinEvent(username string, at time.Time) ChatEvent {
	return newEvent(username, fmt.Sprintf("%s joined", username), at, KindJoin)
}

func NewLeaveEvent(username string, at time.Time) ChatEvent {
	return newEvent(username, fmt.Sprintf("%s left", username), at, KindLeave)
}

func newEvent(username, content string, at time.Time, kind Kind) ChatEvent {
	return ChatEvent{
		ID:        uuid.New(),
		Username:  username,
		Content:   content,
		Timestamp: at,
		Kind:      kind,
	}
}
