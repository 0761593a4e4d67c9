package capture

import (
	"context"

	"github.com/dimaspandu/pokecat-hunt/logging"
)

const (
	EventLockGranted  logging.EventType = "capture.lock_granted"
	EventLockRejected logging.EventType = "capture.lock_rejected"
	EventLockReleased logging.EventType = "capture.lock_released"
	EventCaught       logging.EventType = "capture.caught"
	EventEscaped      logging.EventType = "capture.escaped"
	// EventConfirmRejected is emitted when a confirm arrives from a session
	// that does not hold the lock.
	EventConfirmRejected logging.EventType = "capture.confirm_rejected"
	EventRateLimited     logging.EventType = "capture.rate_limited"
)

// AttemptPayload carries the creature and the outcome detail of a request.
type AttemptPayload struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, actor logging.EntityRef, payload AttemptPayload) {
	if pub == nil {
		return
	}
	var targets []logging.EntityRef
	if payload.EntityID != "" {
		targets = []logging.EntityRef{logging.CreatureRef(payload.EntityID)}
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Actor:    actor,
		Targets:  targets,
		Severity: severity,
		Category: logging.CategoryCapture,
		Payload:  payload,
	})
}

func LockGranted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventLockGranted, logging.SeverityInfo, actor, payload)
}

// LockRejected is debug level; losing a race is routine.
func LockRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventLockRejected, logging.SeverityDebug, actor, payload)
}

func LockReleased(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventLockReleased, logging.SeverityInfo, actor, payload)
}

func Caught(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventCaught, logging.SeverityInfo, actor, payload)
}

func Escaped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventEscaped, logging.SeverityInfo, actor, payload)
}

func ConfirmRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventConfirmRejected, logging.SeverityWarn, actor, payload)
}

func RateLimited(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AttemptPayload) {
	publish(ctx, pub, EventRateLimited, logging.SeverityWarn, actor, payload)
}
