package proto

import (
	"fmt"
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1
)

// Server message type identifiers.
const (
	TypeWelcome         = "welcome"
	TypeWildSnapshot    = "wild-snapshot"
	TypeLockResponse    = "lock-response"
	TypeLockNotice      = "lock-notice"
	TypeConfirmResponse = "confirm-response"
	TypeCaughtNotice    = "caught-notice"
	TypeEntityDetail    = "entity-detail"
	TypeError           = "error"
)

// Client message type identifiers.
const (
	TypeReportLocation = "report-location"
	TypeLockRequest    = "lock-request"
	TypeConfirmRequest = "confirm-request"
	TypeGetEntity      = "get-entity"
)

// Reasons carried by error frames.
const (
	ReasonMalformed      = "Malformed"
	ReasonUnsupported    = "UnsupportedVersion"
	ReasonUnknownType    = "UnknownType"
	ReasonMissingEntity  = "MissingEntityId"
	ReasonInvalidOutcome = "InvalidOutcome"
	ReasonInvalidCoords  = "InvalidCoordinates"
)

// ClientMessage is the union of every inbound frame.
type ClientMessage struct {
	Ver      int     `json:"ver,omitempty"`
	Type     string  `json:"type"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	EntityID string  `json:"entityId,omitempty"`
	Outcome  string  `json:"outcome,omitempty"`
}

// EntityView is the client-facing projection of a creature.
type EntityView struct {
	ID         string  `json:"id"`
	TemplateID string  `json:"templateId"`
	Name       string  `json:"name"`
	IconURL    string  `json:"iconUrl"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Rarity     string  `json:"rarity"`
	ExpiresAt  int64   `json:"expiresAt"`
	Status     string  `json:"status"`
	HolderName string  `json:"holderName,omitempty"`
	CaughtBy   string  `json:"caughtBy,omitempty"`
}

func NewEntityView(entity creature.Entity) EntityView {
	view := EntityView{
		ID:         entity.ID,
		TemplateID: entity.TemplateID,
		Name:       entity.Name,
		IconURL:    entity.IconURL,
		Lat:        entity.Position.Lat,
		Lng:        entity.Position.Lng,
		Rarity:     string(entity.Rarity),
		ExpiresAt:  entity.ExpiresAt.UnixMilli(),
		Status:     string(entity.Status),
	}
	if entity.LockHolder != nil {
		view.HolderName = entity.LockHolder.Name
	}
	if entity.CaughtBy != nil {
		view.CaughtBy = entity.CaughtBy.Name
	}
	return view
}

func newEntityViewPtr(entity *creature.Entity) *EntityView {
	if entity == nil {
		return nil
	}
	view := NewEntityView(*entity)
	return &view
}

type Welcome struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	Name       string `json:"name"`
	ServerTime int64  `json:"serverTime"`
}

func NewWelcome(sessionID, name string, now time.Time) Welcome {
	return Welcome{Ver: Version, Type: TypeWelcome, SessionID: sessionID, Name: name, ServerTime: now.UnixMilli()}
}

type WildSnapshot struct {
	Ver        int          `json:"ver"`
	Type       string       `json:"type"`
	Entities   []EntityView `json:"entities"`
	ServerTime int64        `json:"serverTime"`
}

func NewWildSnapshot(entities []creature.Entity, now time.Time) WildSnapshot {
	views := make([]EntityView, 0, len(entities))
	for _, entity := range entities {
		views = append(views, NewEntityView(entity))
	}
	return WildSnapshot{Ver: Version, Type: TypeWildSnapshot, Entities: views, ServerTime: now.UnixMilli()}
}

// AttemptResponse answers lock and confirm requests.
type AttemptResponse struct {
	Ver      int         `json:"ver"`
	Type     string      `json:"type"`
	EntityID string      `json:"entityId"`
	Success  bool        `json:"success"`
	Entity   *EntityView `json:"entity,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

func NewLockResponse(entityID string, success bool, entity *creature.Entity, reason string) AttemptResponse {
	return AttemptResponse{Ver: Version, Type: TypeLockResponse, EntityID: entityID, Success: success, Entity: newEntityViewPtr(entity), Reason: reason}
}

func NewConfirmResponse(entityID string, success bool, entity *creature.Entity, reason string) AttemptResponse {
	return AttemptResponse{Ver: Version, Type: TypeConfirmResponse, EntityID: entityID, Success: success, Entity: newEntityViewPtr(entity), Reason: reason}
}

type LockNotice struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	EntityID   string `json:"entityId"`
	HolderName string `json:"holderName"`
}

func NewLockNotice(entityID, holderName string) LockNotice {
	return LockNotice{Ver: Version, Type: TypeLockNotice, EntityID: entityID, HolderName: holderName}
}

type CaughtNotice struct {
	Ver         int    `json:"ver"`
	Type        string `json:"type"`
	EntityID    string `json:"entityId"`
	CatcherName string `json:"catcherName"`
}

func NewCaughtNotice(entityID, catcherName string) CaughtNotice {
	return CaughtNotice{Ver: Version, Type: TypeCaughtNotice, EntityID: entityID, CatcherName: catcherName}
}

type EntityDetail struct {
	Ver    int         `json:"ver"`
	Type   string      `json:"type"`
	Entity *EntityView `json:"entity,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

func NewEntityDetail(entity *creature.Entity, reason string) EntityDetail {
	return EntityDetail{Ver: Version, Type: TypeEntityDetail, Entity: newEntityViewPtr(entity), Reason: reason}
}

type ErrorMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewError(reason string) ErrorMessage {
	return ErrorMessage{Ver: Version, Type: TypeError, Reason: reason}
}

// DecodeClientMessage converts a raw frame into a ClientMessage. A missing
// version is treated as the current one.
func DecodeClientMessage(codec Codec, payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := codec.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d: %w", msg.Ver, ErrUnsupportedVersion)
	}
	return msg, nil
}
