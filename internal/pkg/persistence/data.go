package persistence

import (
	"database/sql"
	"time"
)

type (
	// Song is one user generated song, table songs
	Song struct {
		ID              string
		UserID          sql.NullString
		TemplateID      string
		Title           string
		Email           sql.NullString
		VoiceSampleKey  string
		PreviewKey      sql.NullString
		FullAudioKey    sql.NullString
		ShareURL        sql.NullString
		Status          string
		Paid            bool
		StripeSessionID sql.NullString
		PaymentLinkID   sql.NullString
		Error           sql.NullString
		ClaimedAt       sql.NullTime
		Created         time.Time
		Updated         time.Time
		Version         int
	}

	// Transaction is a created payment intent, table transactions
	Transaction struct {
		ID              string
		SongID          string
		Amount          int64
		Currency        string
		PaymentIntentID string
		Created         time.Time
	}

	// Earning is a daily paid amount per currency, table earnings
	Earning struct {
		Day      time.Time
		Currency string
		Amount   int64
		Count    int64
	}
)

// HasFullAudio returns true if full song is generated
func (s *Song) HasFullAudio() bool {
	return s.FullAudioKey.Valid && s.FullAudioKey.String != ""
}

// ClaimActive returns true if a full synthesis run holds the song and its claim is not older than ttl
func (s *Song) ClaimActive(now time.Time, ttl time.Duration) bool {
	return s.ClaimedAt.Valid && s.ClaimedAt.Time.After(now.Add(-ttl))
}
