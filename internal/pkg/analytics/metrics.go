package analytics

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
)

const (
	// VoiceRecordings counts submitted voice samples
	VoiceRecordings = "voice_recordings"
	// PreviewGenerations counts synthesized previews
	PreviewGenerations = "preview_generations"
	// PaymentAttempts counts created payment links and intents
	PaymentAttempts = "payment_attempts"
	// PaymentSuccess counts songs marked as paid
	PaymentSuccess = "payment_success"
	// FullSongGenerations counts synthesized full songs
	FullSongGenerations = "full_song_generations"
)

var known = map[string]bool{VoiceRecordings: true, PreviewGenerations: true, PaymentAttempts: true,
	PaymentSuccess: true, FullSongGenerations: true}

// Counter increments daily metric counter
type Counter interface {
	Increment(ctx context.Context, metric string) error
}

// Known returns true for supported metric names
func Known(metric string) bool {
	return known[metric]
}

// Track increments metric, failure is only logged
func Track(ctx context.Context, c Counter, metric string) {
	if c == nil {
		return
	}
	if err := c.Increment(ctx, metric); err != nil {
		goapp.Log.Warn().Err(err).Str("metric", metric).Msg("can't increment")
	}
}
