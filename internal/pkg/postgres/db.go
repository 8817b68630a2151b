package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/status"
	"github.com/jamjock/jamjock/internal/pkg/utils"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	res := &DB{pool: pool, now: time.Now}
	return res, nil
}

const songFields = `id, user_id, template_id, title, email, voice_sample_key, preview_key, full_audio_key,
	share_url, status, paid, stripe_session_id, stripe_payment_link_id, error, claimed_at, created, updated, version`

// InsertSong inserts a new song record
func (db *DB) InsertSong(ctx context.Context, s *persistence.Song) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO songs(`+songFields+`) 
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		s.ID, s.UserID, s.TemplateID, s.Title, s.Email, s.VoiceSampleKey, s.PreviewKey, s.FullAudioKey,
		s.ShareURL, s.Status, s.Paid, s.StripeSessionID, s.PaymentLinkID, s.Error, s.ClaimedAt, s.Created, s.Updated,
		s.Version)
	if err != nil {
		return fmt.Errorf("can't insert song: %w", err)
	}
	return nil
}

// LoadSong loads song, returns nil if there is no such record
func (db *DB) LoadSong(ctx context.Context, id string) (*persistence.Song, error) {
	return db.loadSong(ctx, `SELECT `+songFields+` FROM songs WHERE id = $1`, id)
}

// LoadSongByPaymentLink loads song by stripe payment link ID, returns nil if there is no such record
func (db *DB) LoadSongByPaymentLink(ctx context.Context, linkID string) (*persistence.Song, error) {
	return db.loadSong(ctx, `SELECT `+songFields+` FROM songs WHERE stripe_payment_link_id = $1
	ORDER BY created DESC LIMIT 1`, linkID)
}

func (db *DB) loadSong(ctx context.Context, query string, arg string) (*persistence.Song, error) {
	var res persistence.Song
	err := db.pool.QueryRow(ctx, query, arg).Scan(
		&res.ID, &res.UserID, &res.TemplateID, &res.Title, &res.Email, &res.VoiceSampleKey, &res.PreviewKey,
		&res.FullAudioKey, &res.ShareURL, &res.Status, &res.Paid, &res.StripeSessionID, &res.PaymentLinkID,
		&res.Error, &res.ClaimedAt, &res.Created, &res.Updated, &res.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load song: %w", err)
	}
	return &res, nil
}

// UpdateSong saves the workflow fields if the record version did not change.
// Paid flag and payment references are never written here.
// Returns utils.ErrConflict if the record was changed concurrently
func (db *DB) UpdateSong(ctx context.Context, s *persistence.Song) error {
	now := db.now()
	cmd, err := db.pool.Exec(ctx, `UPDATE songs SET 
	user_id = $3,
	preview_key = $4,
	full_audio_key = $5,
	share_url = $6,
	status = $7,
	error = $8,
	claimed_at = $9,
	updated = $10,
	version = $2 + 1 
	WHERE id = $1 AND version = $2`, s.ID, s.Version, s.UserID, s.PreviewKey, s.FullAudioKey, s.ShareURL,
		s.Status, s.Error, s.ClaimedAt, now)
	if err != nil {
		return fmt.Errorf("can't update song: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't update song %s(v%d): %w", s.ID, s.Version, utils.ErrConflict)
	}
	s.Version++
	s.Updated = now
	return nil
}

// ClaimSong takes the paid song for full synthesis: sets processing status and claim time.
// A claim older than staleBefore is taken over.
// Returns utils.ErrConflict if the record changed or another run holds a fresh claim
func (db *DB) ClaimSong(ctx context.Context, s *persistence.Song, staleBefore time.Time) error {
	now := db.now()
	cmd, err := db.pool.Exec(ctx, `UPDATE songs SET 
	status = $3,
	error = NULL,
	claimed_at = $4,
	updated = $4,
	version = $2 + 1
	WHERE id = $1 AND version = $2 AND paid AND full_audio_key IS NULL 
	AND (claimed_at IS NULL OR claimed_at < $5)`, s.ID, s.Version, status.Processing.String(), now, staleBefore)
	if err != nil {
		return fmt.Errorf("can't claim song: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't claim song %s(v%d): %w", s.ID, s.Version, utils.ErrConflict)
	}
	s.Status = status.Processing.String()
	s.Error = sql.NullString{}
	s.ClaimedAt = sql.NullTime{Time: now, Valid: true}
	s.Updated = now
	s.Version++
	return nil
}

// MarkPaid flips paid flag, returns true only for the call that changed the record
func (db *DB) MarkPaid(ctx context.Context, id, sessionID, userID string) (bool, error) {
	cmd, err := db.pool.Exec(ctx, `UPDATE songs SET 
	paid = TRUE,
	status = CASE WHEN full_audio_key IS NULL THEN $4 ELSE status END,
	stripe_session_id = COALESCE(NULLIF($2, ''), stripe_session_id),
	user_id = COALESCE(user_id, NULLIF($3, '')),
	error = NULL,
	updated = $5,
	version = version + 1
	WHERE id = $1 AND NOT paid`, id, sessionID, userID, status.Processing.String(), db.now())
	if err != nil {
		return false, fmt.Errorf("can't mark paid: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// MarkPaymentFailed sets failed status for an unpaid song
func (db *DB) MarkPaymentFailed(ctx context.Context, id, reason string) (bool, error) {
	cmd, err := db.pool.Exec(ctx, `UPDATE songs SET 
	status = $2,
	error = $3,
	updated = $4,
	version = version + 1
	WHERE id = $1 AND NOT paid`, id, status.Failed.String(), utils.ToSQLStr(reason), db.now())
	if err != nil {
		return false, fmt.Errorf("can't mark payment failed: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// SetPaymentLink stores payment link ID
func (db *DB) SetPaymentLink(ctx context.Context, id, linkID string) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE songs SET stripe_payment_link_id = $2, updated = $3, version = version + 1
	WHERE id = $1`, id, linkID, db.now())
	if err != nil {
		return fmt.Errorf("can't set payment link: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't set payment link for %s: %w", id, utils.ErrNotFound)
	}
	return nil
}

// InsertTransaction stores created payment intent
func (db *DB) InsertTransaction(ctx context.Context, t *persistence.Transaction) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO transactions(id, song_id, amount, currency, stripe_payment_intent_id, created) 
	VALUES($1, $2, $3, $4, $5, $6)`, t.ID, t.SongID, t.Amount, t.Currency, t.PaymentIntentID, t.Created)
	if err != nil {
		return fmt.Errorf("can't insert transaction: %w", err)
	}
	return nil
}

// Increment adds one to the daily metric counter
func (db *DB) Increment(ctx context.Context, metric string) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO analytics(metric, day, count) VALUES($1, $2, 1)
	ON CONFLICT (metric, day) DO UPDATE SET count = analytics.count + 1`, metric, db.now().UTC().Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("can't increment %s: %w", metric, err)
	}
	return nil
}

// AddEarnings adds a paid amount to the daily earnings of the currency
func (db *DB) AddEarnings(ctx context.Context, amount int64, currency string) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO earnings(day, currency, amount, count) VALUES($1, $2, $3, 1)
	ON CONFLICT (day, currency) DO UPDATE SET amount = earnings.amount + $3, count = earnings.count + 1`,
		db.now().UTC().Format("2006-01-02"), strings.ToLower(currency), amount)
	if err != nil {
		return fmt.Errorf("can't add earnings: %w", err)
	}
	return nil
}

// LoadEarnings returns daily earnings starting from the day, newest first
func (db *DB) LoadEarnings(ctx context.Context, from time.Time) ([]*persistence.Earning, error) {
	rows, err := db.pool.Query(ctx, `SELECT day, currency, amount, count FROM earnings 
	WHERE day >= $1 ORDER BY day DESC, currency`, from.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("can't load earnings: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Earning
	for rows.Next() {
		var e persistence.Earning
		if err := rows.Scan(&e.Day, &e.Currency, &e.Amount, &e.Count); err != nil {
			return nil, fmt.Errorf("can't scan earnings: %w", err)
		}
		res = append(res, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read earnings: %w", err)
	}
	return res, nil
}

// IsEventProcessed checks webhook event ledger
func (db *DB) IsEventProcessed(ctx context.Context, id string) (bool, error) {
	var res bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM webhook_events WHERE id = $1)`, id).Scan(&res); err != nil {
		return false, fmt.Errorf("can't check event: %w", err)
	}
	return res, nil
}

// MarkEventProcessed stores webhook event ID
func (db *DB) MarkEventProcessed(ctx context.Context, id, eventType string) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO webhook_events(id, type, created) VALUES($1, $2, $3) 
	ON CONFLICT (id) DO NOTHING`, id, eventType, db.now())
	if err != nil {
		return fmt.Errorf("can't mark event: %w", err)
	}
	return nil
}

// LockEmailTable marks the email as being sent, fails if it is sent or locked
func (db *DB) LockEmailTable(ctx context.Context, id, msgType string) error {
	cmd, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, type, key, created) VALUES($1, $2, 1, $3)
	ON CONFLICT (id, type) DO UPDATE SET key = 1 WHERE email_lock.key = 0`, id, msgType, db.now())
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("email %s(%s) already locked", id, msgType)
	}
	return nil
}

// UnLockEmailTable sets final lock value: 0 - allow resend, 2 - sent
func (db *DB) UnLockEmailTable(ctx context.Context, id, msgType string, value int) error {
	_, err := db.pool.Exec(ctx, `UPDATE email_lock SET key = $3 WHERE id = $1 AND type = $2`, id, msgType, value)
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
