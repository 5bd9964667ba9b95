package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueMessages is the Redis list key for outbound WhatsApp messages.
	QueueMessages = "worker:messages"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeWhatsAppSend JobType = "whatsapp_send"
)

// WhatsAppSendPayload is the payload for one invitation message.
type WhatsAppSendPayload struct {
	MessageID  uuid.UUID `json:"message_id"`
	OrgID      uuid.UUID `json:"org_id"`
	EventID    uuid.UUID `json:"event_id"`
	GuestID    uuid.UUID `json:"guest_id"`
	InstanceID string    `json:"instance_id"`
	To         string    `json:"to"`
	Message    string    `json:"message"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueWhatsAppSend enqueues one outbound message and returns the job ID.
func (q *Queue) EnqueueWhatsAppSend(ctx context.Context, payload WhatsAppSendPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeWhatsAppSend,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueMessages, raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued whatsapp job", zap.String("job_id", job.ID), zap.String("message_id", payload.MessageID.String()))
	return job.ID, nil
}

// Dequeue blocks up to timeout (0 = forever) for a job. Returns nil job when the wait expires
// or the entry is not a valid job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueMessages).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. At MaxRetries the job goes to the DLQ instead.
// The returned bool reports whether the job was dead-lettered.
func (q *Queue) Retry(ctx context.Context, job *Job) (bool, error) {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return false, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.client.RPush(ctx, QueueMessages, raw).Err(); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}

// DecodeWhatsAppSend unmarshals a job's payload.
func DecodeWhatsAppSend(job *Job) (WhatsAppSendPayload, error) {
	var p WhatsAppSendPayload
	if job.Type != JobTypeWhatsAppSend {
		return p, fmt.Errorf("unexpected job type: %s", job.Type)
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}
