package workflow

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/jamjock/jamjock/internal/pkg/analytics"
	"github.com/jamjock/jamjock/internal/pkg/catalog"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/status"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxSampleSize of the uploaded voice sample
	DefaultMaxSampleSize = 10 * 1024 * 1024
	// DefaultClaimTTL after which an unfinished full synthesis claim may be taken over
	DefaultClaimTTL = 30 * time.Minute
	cleanupTimeout       = 30 * time.Second
)

// Filer keeps audio files
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, size int64) error
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// DB keeps song records
type DB interface {
	InsertSong(ctx context.Context, s *persistence.Song) error
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
	UpdateSong(ctx context.Context, s *persistence.Song) error
	ClaimSong(ctx context.Context, s *persistence.Song, staleBefore time.Time) error
}

// Voice clones a voice and sings with it
type Voice interface {
	Clone(ctx context.Context, name string, sample []byte, fileName string) (string, error)
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
	Delete(ctx context.Context, voiceID string) error
}

// Catalog provides song templates
type Catalog interface {
	Get(id string) (*catalog.Entry, bool)
}

// Data keeps workflow dependencies
type Data struct {
	Filer         Filer
	DB            DB
	Voice         Voice
	Catalog       Catalog
	Counter       analytics.Counter
	SiteURL       string
	MaxSampleSize int64
	ClaimTTL      time.Duration
	NewID         func() string
	Now           func() time.Time
}

// Service generates previews and full songs
type Service struct {
	data *Data
}

// PreviewInput is a user submitted voice sample
type PreviewInput struct {
	Sample     []byte
	FileName   string
	TemplateID string
	OwnerID    string
	Email      string
}

// NewService creates workflow service
func NewService(data *Data) (*Service, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if data.NewID == nil {
		data.NewID = func() string { return uuid.New().String() }
	}
	if data.Now == nil {
		data.Now = time.Now
	}
	if data.MaxSampleSize <= 0 {
		data.MaxSampleSize = DefaultMaxSampleSize
	}
	if data.ClaimTTL <= 0 {
		data.ClaimTTL = DefaultClaimTTL
	}
	return &Service{data: data}, nil
}

func validate(data *Data) error {
	if data == nil {
		return errors.New("no data")
	}
	if data.Filer == nil {
		return errors.New("no filer")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.Voice == nil {
		return errors.New("no voice client")
	}
	if data.Catalog == nil {
		return errors.New("no catalog")
	}
	if data.SiteURL == "" {
		return errors.New("no site URL")
	}
	return nil
}

// CreatePreview stores the sample and sings the preview lyrics with the cloned voice
func (s *Service) CreatePreview(ctx context.Context, in *PreviewInput) (*persistence.Song, error) {
	defer goapp.Estimate("create preview")()
	entry, err := s.checkInput(in)
	if err != nil {
		return nil, err
	}
	id := s.data.NewID()
	sampleKey := utils.SampleKey(id, in.FileName)
	if err := s.data.Filer.SaveFile(ctx, sampleKey, bytes.NewReader(in.Sample), int64(len(in.Sample))); err != nil {
		return nil, fmt.Errorf("can't save sample: %w", err)
	}
	now := s.data.Now()
	song := &persistence.Song{ID: id, UserID: utils.ToSQLStr(in.OwnerID), TemplateID: entry.ID, Title: entry.Title,
		Email: utils.ToSQLStr(in.Email), VoiceSampleKey: sampleKey, Status: status.Pending.String(),
		Created: now, Updated: now, Version: 1}
	if err := s.data.DB.InsertSong(ctx, song); err != nil {
		return nil, fmt.Errorf("can't insert song: %w", err)
	}
	song.Status = status.Processing.String()
	if err := s.data.DB.UpdateSong(ctx, song); err != nil {
		return nil, fmt.Errorf("can't update song: %w", err)
	}
	goapp.Log.Info().Str("ID", id).Str("template", entry.ID).Msg("synthesizing preview")

	audio, err := s.sing(ctx, id, in.Sample, in.FileName, entry.PreviewText())
	if err != nil {
		s.markFailed(ctx, song, err)
		return nil, err
	}
	previewKey := utils.PreviewKey(id)
	if err := s.data.Filer.SaveFile(ctx, previewKey, bytes.NewReader(audio), int64(len(audio))); err != nil {
		s.markFailed(ctx, song, err)
		return nil, fmt.Errorf("can't save preview: %w", err)
	}
	song.PreviewKey = utils.ToSQLStr(previewKey)
	song.Status = status.Completed.String()
	song.Error = utils.ToSQLStr("")
	if err := s.data.DB.UpdateSong(ctx, song); err != nil {
		s.markFailed(ctx, song, err)
		return nil, fmt.Errorf("can't update song: %w", err)
	}
	analytics.Track(ctx, s.data.Counter, analytics.PreviewGenerations)
	goapp.Log.Info().Str("ID", id).Msg("preview ready")
	return song, nil
}

func (s *Service) checkInput(in *PreviewInput) (*catalog.Entry, error) {
	if in == nil || len(in.Sample) == 0 {
		return nil, fmt.Errorf("no voice sample: %w", utils.ErrInvalidInput)
	}
	if int64(len(in.Sample)) > s.data.MaxSampleSize {
		return nil, fmt.Errorf("voice sample too large (%d bytes): %w", len(in.Sample), utils.ErrInvalidInput)
	}
	if ext := utils.AudioExt(in.FileName); !utils.SupportAudioExt(ext) {
		return nil, fmt.Errorf("wrong audio type '%s': %w", goapp.Sanitize(ext), utils.ErrInvalidInput)
	}
	if in.TemplateID == "" {
		return nil, fmt.Errorf("no song template: %w", utils.ErrInvalidInput)
	}
	entry, ok := s.data.Catalog.Get(in.TemplateID)
	if !ok {
		return nil, fmt.Errorf("unknown song template '%s': %w", goapp.Sanitize(in.TemplateID), utils.ErrInvalidInput)
	}
	return entry, nil
}

// CreateFullVersion sings the full lyrics for a paid song, a song with full audio is returned unchanged
func (s *Service) CreateFullVersion(ctx context.Context, id string) (*persistence.Song, error) {
	defer goapp.Estimate("create full version")()
	song, err := s.data.DB.LoadSong(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load song: %w", err)
	}
	if song == nil {
		return nil, fmt.Errorf("song '%s': %w", goapp.Sanitize(id), utils.ErrNotFound)
	}
	if !song.Paid {
		return nil, fmt.Errorf("song '%s': %w", id, utils.ErrNotPaid)
	}
	if song.HasFullAudio() {
		goapp.Log.Info().Str("ID", id).Msg("full audio exists")
		return song, nil
	}
	entry, ok := s.data.Catalog.Get(song.TemplateID)
	if !ok {
		return nil, fmt.Errorf("unknown song template '%s'", song.TemplateID)
	}

	shareURL, err := SongURL(s.data.SiteURL, id)
	if err != nil {
		return nil, err
	}
	now := s.data.Now()
	if song.ClaimActive(now, s.data.ClaimTTL) {
		goapp.Log.Info().Str("ID", id).Time("claimed", song.ClaimedAt.Time).Msg("full synthesis in progress")
		return nil, fmt.Errorf("song '%s': %w", id, utils.ErrInProgress)
	}
	if err := s.data.DB.ClaimSong(ctx, song, now.Add(-s.data.ClaimTTL)); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			goapp.Log.Warn().Str("ID", id).Msg("claimed by other process")
			return s.afterLostClaim(ctx, id)
		}
		return nil, fmt.Errorf("can't claim song: %w", err)
	}

	sample, err := s.loadSample(ctx, song.VoiceSampleKey)
	if err != nil {
		s.markFailed(ctx, song, err)
		return nil, err
	}
	goapp.Log.Info().Str("ID", id).Str("template", entry.ID).Msg("synthesizing full song")
	audio, err := s.sing(ctx, id, sample, song.VoiceSampleKey, entry.FullText())
	if err != nil {
		s.markFailed(ctx, song, err)
		return nil, err
	}
	fullKey := utils.FullKey(id)
	if err := s.data.Filer.SaveFile(ctx, fullKey, bytes.NewReader(audio), int64(len(audio))); err != nil {
		s.markFailed(ctx, song, err)
		return nil, fmt.Errorf("can't save full audio: %w", err)
	}
	song.FullAudioKey = utils.ToSQLStr(fullKey)
	song.ShareURL = utils.ToSQLStr(shareURL)
	song.Status = status.Completed.String()
	song.ClaimedAt = sql.NullTime{}
	if err := s.data.DB.UpdateSong(ctx, song); err != nil {
		song.FullAudioKey, song.ShareURL = sql.NullString{}, sql.NullString{}
		s.markFailed(ctx, song, err)
		return nil, fmt.Errorf("can't update song: %w", err)
	}
	analytics.Track(ctx, s.data.Counter, analytics.FullSongGenerations)
	goapp.Log.Info().Str("ID", id).Msg("full song ready")
	return song, nil
}

// afterLostClaim returns the song if the other run has finished it, ErrInProgress otherwise
func (s *Service) afterLostClaim(ctx context.Context, id string) (*persistence.Song, error) {
	res, err := s.data.DB.LoadSong(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load song: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("song '%s': %w", id, utils.ErrNotFound)
	}
	if res.HasFullAudio() {
		return res, nil
	}
	return nil, fmt.Errorf("song '%s': %w", id, utils.ErrInProgress)
}

func (s *Service) loadSample(ctx context.Context, key string) ([]byte, error) {
	f, err := s.data.Filer.LoadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("can't load sample: %w", err)
	}
	defer f.Close()
	res, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("can't read sample: %w", err)
	}
	return res, nil
}

// sing clones the voice, synthesizes text and always removes the voice
func (s *Service) sing(ctx context.Context, id string, sample []byte, fileName, text string) ([]byte, error) {
	voiceID, err := s.data.Voice.Clone(ctx, "jamjock-"+id, sample, fileName)
	if err != nil {
		return nil, err
	}
	defer func() {
		cCtx, cf := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cf()
		if err := s.data.Voice.Delete(cCtx, voiceID); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", id).Str("voice", voiceID).Msg("can't delete voice")
		}
	}()
	return s.data.Voice.Synthesize(ctx, voiceID, text)
}

func (s *Service) markFailed(ctx context.Context, song *persistence.Song, err error) {
	goapp.Log.Error().Err(err).Str("ID", song.ID).Msg("generation failed")
	song.Status = status.Failed.String()
	song.Error = utils.ToSQLStr(err.Error())
	song.ClaimedAt = sql.NullTime{}
	if err := s.data.DB.UpdateSong(ctx, song); err != nil {
		goapp.Log.Error().Err(err).Str("ID", song.ID).Msg("can't save failure")
	}
}

// SongURL returns public page URL of the song
func SongURL(siteURL, id string) (string, error) {
	res, err := url.JoinPath(siteURL, "song", id)
	if err != nil {
		return "", fmt.Errorf("can't make song URL: %w", err)
	}
	return res, nil
}
