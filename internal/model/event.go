package model

import "github.com/google/uuid"

const (
	EventTurnAppended = "turn_appended"
	EventChatDeleted  = "chat_deleted"
)

// ChatEvent is published to the broker after a chat mutation commits. The
// history refresh worker consumes it to keep the Redis cache in step with
// the database.
type ChatEvent struct {
	Type   string    `json:"type"`
	ChatID uuid.UUID `json:"chat_id"`
}
