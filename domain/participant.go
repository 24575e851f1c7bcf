// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"
	"time"
)

// Participant is the public view of a connected, named chat session.
// The connection handle never leaves the registry.
type Participant struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NormalizeUsername trims and escapes a proposed display name.
// An empty result means the name must be rejected.
func NormalizeUsername(name string) string {
	return EscapeHTML(strings.TrimSpace(name))
}
