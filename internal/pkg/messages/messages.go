package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "JAMJOCK/"
	// Generate queue name for full song synthesis
	Generate = st + "Generate"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
	// Inform queue name
	Inform = st + "Inform"
)

// SongMessage is a queue message about a song
type SongMessage struct {
	amessages.QueueMessage
	Reason string `json:"reason,omitempty"`
}

// NewSongMessage creates message for song ID
func NewSongMessage(id, reason string) *SongMessage {
	return &SongMessage{QueueMessage: amessages.QueueMessage{ID: id}, Reason: reason}
}
