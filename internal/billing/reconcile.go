package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the event write the reconciler needs. MarkPaid returns false when the
// event was already paid or does not exist.
type PaymentStore interface {
	MarkPaid(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// Notifier receives realtime events for organizer dashboards.
type Notifier interface {
	BroadcastToEventAndPublish(eventID uuid.UUID, event string, payload interface{})
}

// Reconciler applies verified webhook events to stored event state.
type Reconciler struct {
	store    PaymentStore
	notifier Notifier
	logger   *zap.Logger
}

// NewReconciler creates a reconciler. notifier may be nil.
func NewReconciler(store PaymentStore, notifier Notifier, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, notifier: notifier, logger: logger}
}

// Apply handles one verified event. Unknown types and sessions without an event reference
// are acknowledged without side effects; replays of a completed session are no-ops.
func (r *Reconciler) Apply(ctx context.Context, ev *WebhookEvent) error {
	if ev.Type != EventCheckoutCompleted {
		r.logger.Debug("webhook event ignored", zap.String("type", ev.Type), zap.String("stripe_event_id", ev.ID))
		return nil
	}
	raw := ev.Metadata[MetadataEventID]
	if raw == "" {
		r.logger.Warn("checkout completed without event_id metadata", zap.String("session_id", ev.SessionID))
		return nil
	}
	eventID, err := uuid.Parse(raw)
	if err != nil {
		r.logger.Warn("checkout completed with malformed event_id", zap.String("session_id", ev.SessionID), zap.String("event_id", raw))
		return nil
	}

	changed, err := r.store.MarkPaid(ctx, eventID)
	if err != nil {
		return fmt.Errorf("mark event %s paid: %w", eventID, err)
	}
	if !changed {
		r.logger.Info("checkout completed replay", zap.String("event_id", eventID.String()), zap.String("session_id", ev.SessionID))
		return nil
	}
	r.logger.Info("event activated after payment", zap.String("event_id", eventID.String()), zap.String("session_id", ev.SessionID))
	if r.notifier != nil {
		r.notifier.BroadcastToEventAndPublish(eventID, "event.paid", map[string]string{
			"event_id":   eventID.String(),
			"session_id": ev.SessionID,
		})
	}
	return nil
}
