package domain

import "time"

// Stats is a point-in-time summary of the room.
type Stats struct {
	UserCount    int         `json:"userCount"`
	MessageCount int         `json:"messageCount"`
	Users        []UserStats `json:"users"`
}

type UserStats struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}
