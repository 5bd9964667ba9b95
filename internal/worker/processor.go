// Package worker drains the outbound message queue and delivers invitations over WhatsApp.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartinvite/backend/internal/messaging"
	"github.com/smartinvite/backend/internal/models"
	"github.com/smartinvite/backend/pkg/database"
	"github.com/smartinvite/backend/pkg/queue"
)

var errInvalidJob = errors.New("invalid job")

// JobQueue is the source of send jobs. *queue.Queue implements it.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// MessageLog tracks delivery status. *messaging.Repository implements it.
type MessageLog interface {
	GetMessageStatus(ctx context.Context, id uuid.UUID) (string, error)
	UpdateMessageStatus(ctx context.Context, id uuid.UUID, status string, patch map[string]interface{}) error
}

// Sender delivers one message. *messaging.EvolutionClient implements it.
type Sender interface {
	SendMessage(ctx context.Context, in messaging.SendInput) (*messaging.SendResult, error)
}

// Notifier pushes delivery updates to organizer dashboards.
type Notifier interface {
	BroadcastToEventAndPublish(eventID uuid.UUID, event string, payload interface{})
}

// MessageProcessor processes WhatsApp send jobs.
type MessageProcessor struct {
	queue    JobQueue
	log      MessageLog
	sender   Sender
	notifier Notifier
	logger   *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewMessageProcessor creates a send processor. notifier may be nil.
func NewMessageProcessor(q JobQueue, log MessageLog, sender Sender, notifier Notifier, logger *zap.Logger) *MessageProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageProcessor{
		queue:       q,
		log:         log,
		sender:      sender,
		notifier:    notifier,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process executes one send job. A message already marked sent is skipped.
func (p *MessageProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeWhatsAppSend(job)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidJob, err)
	}

	status, err := p.log.GetMessageStatus(ctx, payload.MessageID)
	if err != nil {
		if database.IsNotFound(err) {
			return fmt.Errorf("%w: message %s not found", errInvalidJob, payload.MessageID)
		}
		return fmt.Errorf("load message: %w", err)
	}
	if status == models.MessageStatusSent {
		p.logger.Info("message already sent", zap.String("message_id", payload.MessageID.String()))
		return nil
	}

	res, err := p.sender.SendMessage(ctx, messaging.SendInput{
		InstanceID: payload.InstanceID,
		To:         payload.To,
		Message:    payload.Message,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	patch := map[string]interface{}{
		"evolutionMessageId": res.MessageID,
		"sentAt":             time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.log.UpdateMessageStatus(ctx, payload.MessageID, models.MessageStatusSent, patch); err != nil {
		// The message went out; retrying would send it twice.
		p.logger.Error("mark message sent failed", zap.String("message_id", payload.MessageID.String()), zap.Error(err))
	}
	p.notify(payload, "message.sent")
	p.logger.Info("message sent", zap.String("message_id", payload.MessageID.String()), zap.String("provider_id", res.MessageID))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *MessageProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("message worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.fail(ctx, job, err)
		}
	}
}

func (p *MessageProcessor) fail(ctx context.Context, job *queue.Job, err error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if errors.Is(err, errInvalidJob) {
		return
	}
	dead, reErr := p.queue.Retry(ctx, job)
	patch := map[string]interface{}{"error": err.Error(), "attempts": job.Attempt}
	switch {
	case reErr != nil:
		// The job is gone from the queue; no later attempt will settle the message.
		p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
		patch["retryError"] = reErr.Error()
	case !dead:
		p.sleep(ctx)
		return
	}
	payload, _ := queue.DecodeWhatsAppSend(job)
	if uerr := p.log.UpdateMessageStatus(ctx, payload.MessageID, models.MessageStatusFailed, patch); uerr != nil {
		p.logger.Error("mark message failed", zap.String("message_id", payload.MessageID.String()), zap.Error(uerr))
	}
	p.notify(payload, "message.failed")
}

func (p *MessageProcessor) notify(payload queue.WhatsAppSendPayload, event string) {
	if p.notifier == nil {
		return
	}
	p.notifier.BroadcastToEventAndPublish(payload.EventID, event, map[string]interface{}{
		"messageId": payload.MessageID,
		"guestId":   payload.GuestID,
	})
}

func (p *MessageProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
