package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jamjock/jamjock/internal/pkg/messages"
	"github.com/jamjock/jamjock/internal/pkg/persistence"
	"github.com/jamjock/jamjock/internal/pkg/utils"
	"github.com/jamjock/jamjock/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Workflow generates full songs
type Workflow interface {
	CreateFullVersion(ctx context.Context, id string) (*persistence.Song, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	Workflow    Workflow
	MaxRetries  int32
	Testing     bool
}

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.Generate: handler.Create(data, handleGenerate, generateOpts(data)),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Generate),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter("generate")),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("generate-worker"),
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

func generateOpts(data *ServiceData) *handler.Opts[messages.SongMessage] {
	return handler.DefaultOpts[messages.SongMessage]().WithTimeout(time.Minute * 10).
		WithBackoff(handler.DefaultBackoffOrTest(data.Testing)).
		WithFailure(generateFailure(data))
}

func handleGenerate(ctx context.Context, m *messages.SongMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("reason", m.Reason).Msg("handling generate")
	song, err := data.Workflow.CreateFullVersion(ctx, m.ID)
	if err != nil {
		return err
	}
	goapp.Log.Info().Str("ID", m.ID).Str("status", song.Status).Msg("full version done")
	if err := sendStatus(ctx, data, m.ID); err != nil {
		return err
	}
	return sendInform(ctx, data, m.ID, amessages.InformTypeFinished)
}

// generateFailure retries only infrastructure errors, a final failure is reported to the user
func generateFailure(data *ServiceData) handler.FailureFunc[messages.SongMessage] {
	return func(ctx context.Context, m *messages.SongMessage, err error, j *gue.Job) (bool, time.Duration) {
		if errors.Is(err, utils.ErrNotFound) || errors.Is(err, utils.ErrNotPaid) || errors.Is(err, utils.ErrInProgress) {
			goapp.Log.Warn().Err(err).Str("ID", m.ID).Msg("drop")
			return false, 0
		}
		if !utils.IsUpstream(err) && j.ErrorCount < data.MaxRetries {
			return true, 0
		}
		if err := sendStatus(ctx, data, m.ID); err != nil {
			goapp.Log.Error().Err(err).Str("ID", m.ID).Send()
		}
		if err := sendInform(ctx, data, m.ID, amessages.InformTypeFailed); err != nil {
			goapp.Log.Error().Err(err).Str("ID", m.ID).Send()
		}
		return false, 0
	}
}

func sendStatus(ctx context.Context, data *ServiceData, id string) error {
	if err := data.MsgSender.SendMessage(ctx, messages.NewSongMessage(id, ""), messages.StatusChange); err != nil {
		return fmt.Errorf("can't send status msg: %w", err)
	}
	return nil
}

func sendInform(ctx context.Context, data *ServiceData, id, informType string) error {
	err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: id}, Type: informType, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send inform msg: %w", err)
	}
	return nil
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Workflow == nil {
		return fmt.Errorf("no workflow")
	}
	if data.MaxRetries < 1 {
		data.MaxRetries = 3
	}
	return nil
}
