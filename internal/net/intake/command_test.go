package intake

import (
	"math"
	"testing"

	"github.com/dimaspandu/pokecat-hunt/internal/capture"
	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
)

func TestStageClientMessageAcceptsKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		msg  proto.ClientMessage
		want Request
	}{
		{
			name: "report location",
			msg:  proto.ClientMessage{Type: proto.TypeReportLocation, Lat: -6.2, Lng: 106.8},
			want: Request{Kind: KindReportLocation, Lat: -6.2, Lng: 106.8},
		},
		{
			name: "lock",
			msg:  proto.ClientMessage{Type: proto.TypeLockRequest, EntityID: "e1"},
			want: Request{Kind: KindLock, EntityID: "e1"},
		},
		{
			name: "confirm",
			msg:  proto.ClientMessage{Type: proto.TypeConfirmRequest, EntityID: "e1", Outcome: "failure"},
			want: Request{Kind: KindConfirm, EntityID: "e1", Outcome: capture.OutcomeFailure},
		},
		{
			name: "get entity",
			msg:  proto.ClientMessage{Type: proto.TypeGetEntity, EntityID: "e1"},
			want: Request{Kind: KindGetEntity, EntityID: "e1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, reason := StageClientMessage(tc.msg)
			if !ok || reason != "" {
				t.Fatalf("expected %s to be accepted, got reason %q", tc.name, reason)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestStageClientMessageRejects(t *testing.T) {
	cases := []struct {
		name   string
		msg    proto.ClientMessage
		reason string
	}{
		{"unknown type", proto.ClientMessage{Type: "catch"}, proto.ReasonUnknownType},
		{"empty type", proto.ClientMessage{}, proto.ReasonUnknownType},
		{"lock without id", proto.ClientMessage{Type: proto.TypeLockRequest}, proto.ReasonMissingEntity},
		{"confirm without id", proto.ClientMessage{Type: proto.TypeConfirmRequest, Outcome: "success"}, proto.ReasonMissingEntity},
		{"confirm bad outcome", proto.ClientMessage{Type: proto.TypeConfirmRequest, EntityID: "e1", Outcome: "maybe"}, proto.ReasonInvalidOutcome},
		{"detail without id", proto.ClientMessage{Type: proto.TypeGetEntity}, proto.ReasonMissingEntity},
		{"latitude out of range", proto.ClientMessage{Type: proto.TypeReportLocation, Lat: 90.5}, proto.ReasonInvalidCoords},
		{"longitude out of range", proto.ClientMessage{Type: proto.TypeReportLocation, Lng: -181}, proto.ReasonInvalidCoords},
		{"not a number", proto.ClientMessage{Type: proto.TypeReportLocation, Lat: math.NaN()}, proto.ReasonInvalidCoords},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok, reason := StageClientMessage(tc.msg)
			if ok {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
			if reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, reason)
			}
		})
	}
}
