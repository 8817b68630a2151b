package inform

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/async-api/pkg/inform"
	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jamjock/jamjock/internal/pkg/messages"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/jordan-wright/email"
	"github.com/vgarvardt/gue/v5"
)

const (
	unlockFailed = 0
	unlockSent   = 2
)

// Sender send emails
type Sender interface {
	Send(email *email.Email) error
}

// EmailMaker prepares the email
type EmailMaker interface {
	Make(data *inform.Data) (*email.Email, error)
}

// DB tracks email sending process, the lock table guarantees a single email per song and type
type DB interface {
	LockEmailTable(ctx context.Context, id, msgType string) error
	UnLockEmailTable(ctx context.Context, id, msgType string, value int) error
	LoadSong(ctx context.Context, id string) (*persistence.Song, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	EmailSender Sender
	EmailMaker  EmailMaker
	DB          DB
	Location    *time.Location
}

// StartWorkerService starts the event queue listener service to listen for inform events
// returns channel for tracking when all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for messages")

	wm := gue.WorkMap{
		messages.Inform: utils.CreateHandler(data, handleInform, 3),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Inform),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter("inform")),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("jamjock-inform"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleInform(ctx context.Context, m *amessages.InformMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("type", m.Type).Msg("handling")

	song, err := data.DB.LoadSong(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load song: %w", err)
	}
	if song == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no song, skip")
		return nil
	}
	to := utils.FromSQLStr(song.Email)
	if to == "" {
		goapp.Log.Info().Str("ID", m.ID).Msg("no email, skip")
		return nil
	}
	if m.Type == amessages.InformTypeFinished && !song.HasFullAudio() {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no full audio, skip")
		return nil
	}

	mailData := &inform.Data{ID: m.ID, MsgTime: toLocalTime(data, m.At), MsgType: m.Type, Email: to}
	mail, err := data.EmailMaker.Make(mailData)
	if err != nil {
		return fmt.Errorf("can't prepare email: %w", err)
	}

	if err := data.DB.LockEmailTable(ctx, mailData.ID, mailData.MsgType); err != nil {
		return fmt.Errorf("can't lock mail table: %w", err)
	}
	unlockValue := unlockFailed
	defer func() {
		if err := data.DB.UnLockEmailTable(ctx, mailData.ID, mailData.MsgType, unlockValue); err != nil {
			goapp.Log.Error().Err(err).Str("ID", mailData.ID).Msg("can't unlock mail table")
		}
	}()

	if err := data.EmailSender.Send(mail); err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	unlockValue = unlockSent
	goapp.Log.Info().Str("ID", m.ID).Str("type", m.Type).Msg("email sent")
	return nil
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.EmailMaker == nil {
		return fmt.Errorf("no EmailMaker")
	}
	if data.EmailSender == nil {
		return fmt.Errorf("no EmailSender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	return nil
}

func toLocalTime(data *ServiceData, t time.Time) time.Time {
	if data.Location != nil {
		return t.In(data.Location)
	}
	return t
}
