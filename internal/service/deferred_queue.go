package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DeferredJob is handed to background processing for artifacts the API does not analyze inline.
type DeferredJob struct {
	DetectionID uint      `json:"detection_id"`
	UserID      uint      `json:"user_id"`
	Kind        string    `json:"kind"`
	FilePath    string    `json:"file_path"`
	MimeType    string    `json:"mime_type"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// DeferredQueue receives deferred jobs. No consumer ships with the API.
type DeferredQueue interface {
	Enqueue(ctx context.Context, job DeferredJob) error
}

// NewDeferredQueue publishes jobs on "<base>.video.deferred" when NATS is
// connected and otherwise only logs them.
func NewDeferredQueue(conn *nats.Conn, channelBase string, logger zerolog.Logger) DeferredQueue {
	logger = logger.With().Str("component", "deferred_queue").Logger()
	if conn == nil || channelBase == "" {
		return &logDeferredQueue{logger: logger}
	}

	return &natsDeferredQueue{
		conn:    conn,
		subject: natsSubjectBase(channelBase) + ".video.deferred",
		logger:  logger,
	}
}

type natsDeferredQueue struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

func (q *natsDeferredQueue) Enqueue(_ context.Context, job DeferredJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := q.conn.Publish(q.subject, payload); err != nil {
		return fmt.Errorf("publish deferred job: %w", err)
	}

	q.logger.Debug().Uint("detection_id", job.DetectionID).Str("subject", q.subject).Msg("deferred job published")
	return nil
}

type logDeferredQueue struct {
	logger zerolog.Logger
}

func (q *logDeferredQueue) Enqueue(_ context.Context, job DeferredJob) error {
	q.logger.Info().
		Uint("detection_id", job.DetectionID).
		Str("kind", job.Kind).
		Msg("deferred job recorded without a queue")
	return nil
}
