package token

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/jamjock/jamjock/internal/pkg/workflow"
)

// DefaultTTL of a share token
const DefaultTTL = 24 * time.Hour

// DB loads songs
type DB interface {
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
}

// Issued is a new share token
type Issued struct {
	Token    string
	ShareURL string
	Expires  time.Time
}

// Issuer signs and verifies share tokens
type Issuer struct {
	secret  []byte
	siteURL string
	db      DB
	ttl     time.Duration
	now     func() time.Time
}

// Option configures issuer
type Option func(*Issuer)

// WithTTL sets token validity duration
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock sets time source
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

type claims struct {
	SongID string `json:"songId"`
	jwt.RegisteredClaims
}

// NewIssuer creates token issuer
func NewIssuer(secret, siteURL string, db DB, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("no token secret")
	}
	if siteURL == "" {
		return nil, fmt.Errorf("no site URL")
	}
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	res := &Issuer{secret: []byte(secret), siteURL: siteURL, db: db, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(res)
	}
	goapp.Log.Info().Dur("ttl", res.ttl).Msg("token issuer")
	return res, nil
}

// Issue creates token for a paid song
func (i *Issuer) Issue(ctx context.Context, songID string) (*Issued, error) {
	if _, err := i.loadPaid(ctx, songID); err != nil {
		return nil, err
	}
	now := i.now()
	exp := now.Add(i.ttl)
	c := &claims{SongID: songID, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}}
	tStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("can't sign token: %w", err)
	}
	sURL, err := workflow.SongURL(i.siteURL, songID)
	if err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("ID", songID).Time("expires", exp).Msg("token issued")
	return &Issued{Token: tStr, ShareURL: sURL + "?" + url.Values{"token": {tStr}}.Encode(), Expires: exp}, nil
}

// Verify checks token and re-reads the song, an unpaid song revokes the token
func (i *Issuer) Verify(ctx context.Context, tokenStr, songID string) (*persistence.Song, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token: %w", utils.ErrExpired)
		}
		return nil, fmt.Errorf("%v: %w", err, utils.ErrInvalidToken)
	}
	if c.ExpiresAt == nil {
		return nil, fmt.Errorf("no exp: %w", utils.ErrInvalidToken)
	}
	if c.SongID != songID {
		return nil, fmt.Errorf("token for other song: %w", utils.ErrMismatch)
	}
	return i.loadPaid(ctx, songID)
}

func (i *Issuer) loadPaid(ctx context.Context, songID string) (*persistence.Song, error) {
	if songID == "" {
		return nil, fmt.Errorf("no songId: %w", utils.ErrInvalidInput)
	}
	res, err := i.db.LoadSong(ctx, songID)
	if err != nil {
		return nil, fmt.Errorf("can't load song: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("song '%s': %w", goapp.Sanitize(songID), utils.ErrNotFound)
	}
	if !res.Paid {
		return nil, fmt.Errorf("song '%s': %w", songID, utils.ErrNotPaid)
	}
	return res, nil
}
