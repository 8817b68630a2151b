package api

import (
	"time"

	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/utils"
)

const (
	// PrmFile form param of the voice sample
	PrmFile = "file"
	// PrmSongID form param of the catalog song
	PrmSongID = "songId"
	// PrmUserID form param of the owner
	PrmUserID = "userId"
	// PrmEmail form param for notifications
	PrmEmail = "email"
)

// Song is a public song view
type Song struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Paid       bool      `json:"paid"`
	PreviewURL string    `json:"previewUrl,omitempty"`
	FullReady  bool      `json:"fullReady,omitempty"`
	ShareURL   string    `json:"shareUrl,omitempty"`
	Created    time.Time `json:"created"`
}

// ToSong maps record to the public view, storage keys are never exposed
func ToSong(s *persistence.Song) *Song {
	res := &Song{ID: s.ID, TemplateID: s.TemplateID, Title: s.Title, Status: s.Status, Paid: s.Paid,
		Created: s.Created}
	if s.Paid {
		res.FullReady = s.HasFullAudio()
		res.ShareURL = utils.FromSQLStr(s.ShareURL)
	}
	return res
}
