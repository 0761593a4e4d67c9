package lifecycle

import (
	"context"

	"github.com/dimaspandu/pokecat-hunt/logging"
)

const (
	// EventSessionConnected is emitted when a client opens a session.
	EventSessionConnected logging.EventType = "lifecycle.session_connected"
	// EventSessionDisconnected is emitted when a session closes.
	EventSessionDisconnected logging.EventType = "lifecycle.session_disconnected"
	// EventCatalogReloaded is emitted after a catalog source is loaded.
	EventCatalogReloaded logging.EventType = "lifecycle.catalog_reloaded"
)

// SessionConnectedPayload describes a new session.
type SessionConnectedPayload struct {
	Name  string `json:"name"`
	Codec string `json:"codec,omitempty"`
}

// SessionDisconnectedPayload captures how a session ended.
type SessionDisconnectedPayload struct {
	Name          string `json:"name"`
	Reason        string `json:"reason,omitempty"`
	LocksReleased int    `json:"locksReleased"`
}

// CatalogReloadedPayload reports the outcome of a catalog load.
type CatalogReloadedPayload struct {
	Source    string `json:"source"`
	Templates int    `json:"templates"`
	Shared    bool   `json:"shared,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionConnected publishes a session connect event.
func SessionConnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionConnectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionConnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// SessionDisconnected publishes a session disconnect event.
func SessionDisconnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionDisconnectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionDisconnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// CatalogReloaded publishes a catalog load result. Failed loads are warnings.
func CatalogReloaded(ctx context.Context, pub logging.Publisher, payload CatalogReloadedPayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if payload.Error != "" {
		severity = logging.SeverityWarn
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCatalogReloaded,
		Actor:    logging.WorldRef(),
		Severity: severity,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}
