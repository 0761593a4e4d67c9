package intake

import (
	"math"

	"github.com/dimaspandu/pokecat-hunt/internal/capture"
	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
)

type Kind int

const (
	KindReportLocation Kind = iota + 1
	KindLock
	KindConfirm
	KindGetEntity
)

// Request is a validated client frame ready for the hub.
type Request struct {
	Kind     Kind
	Lat      float64
	Lng      float64
	EntityID string
	Outcome  capture.Outcome
}

// StageClientMessage checks a decoded frame and converts it into a Request.
// Rejected frames report the reason to send back in an error frame.
func StageClientMessage(msg proto.ClientMessage) (Request, bool, string) {
	var zero Request

	switch msg.Type {
	case proto.TypeReportLocation:
		if !finite(msg.Lat) || !finite(msg.Lng) || math.Abs(msg.Lat) > 90 || math.Abs(msg.Lng) > 180 {
			return zero, false, proto.ReasonInvalidCoords
		}
		return Request{Kind: KindReportLocation, Lat: msg.Lat, Lng: msg.Lng}, true, ""
	case proto.TypeLockRequest:
		if msg.EntityID == "" {
			return zero, false, proto.ReasonMissingEntity
		}
		return Request{Kind: KindLock, EntityID: msg.EntityID}, true, ""
	case proto.TypeConfirmRequest:
		if msg.EntityID == "" {
			return zero, false, proto.ReasonMissingEntity
		}
		outcome, ok := capture.ParseOutcome(msg.Outcome)
		if !ok {
			return zero, false, proto.ReasonInvalidOutcome
		}
		return Request{Kind: KindConfirm, EntityID: msg.EntityID, Outcome: outcome}, true, ""
	case proto.TypeGetEntity:
		if msg.EntityID == "" {
			return zero, false, proto.ReasonMissingEntity
		}
		return Request{Kind: KindGetEntity, EntityID: msg.EntityID}, true, ""
	default:
		return zero, false, proto.ReasonUnknownType
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
