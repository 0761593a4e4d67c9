package ws

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	server "github.com/dimaspandu/pokecat-hunt"
	"github.com/dimaspandu/pokecat-hunt/internal/broadcast"
	"github.com/dimaspandu/pokecat-hunt/internal/net/intake"
	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
	"github.com/dimaspandu/pokecat-hunt/logging"
)

// Session is one websocket connection bound to a hub session id.
type Session struct {
	ID    string
	Name  string
	Codec proto.Codec

	hub    *server.Hub
	logger telemetry.Logger
}

// Serve registers the session with the hub and reads frames until the
// connection fails. Leaving the loop disconnects the session, which
// releases any lock it still holds. Events published on behalf of the
// session carry its id, name and codec.
func (s *Session) Serve(ctx context.Context, conn *websocket.Conn) {
	if s == nil || s.hub == nil || conn == nil {
		return
	}
	ctx = logging.ContextWithFields(context.WithoutCancel(ctx), map[string]any{
		"session": s.ID,
		"name":    s.Name,
		"codec":   s.Codec.Name(),
	})
	conn.SetReadLimit(maxMessageSize)

	s.hub.Connect(ctx, s.ID, s.Name, broadcast.NewWebsocketConn(conn, s.Codec.Binary()), s.Codec)
	reason := "closed"
	defer func() {
		s.hub.Disconnect(ctx, s.ID, reason)
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "read error"
			}
			return
		}

		msg, err := proto.DecodeClientMessage(s.Codec, payload)
		if err != nil {
			if errors.Is(err, proto.ErrUnsupportedVersion) {
				s.hub.SendError(s.ID, proto.ReasonUnsupported)
			} else {
				s.logger.Printf("discarding malformed message from %s: %v", s.ID, err)
				s.hub.SendError(s.ID, proto.ReasonMalformed)
			}
			continue
		}

		req, ok, rejection := intake.StageClientMessage(msg)
		if !ok {
			s.hub.SendError(s.ID, rejection)
			continue
		}

		switch req.Kind {
		case intake.KindReportLocation:
			if err := s.hub.ReportLocation(s.ID, req.Lat, req.Lng); err != nil {
				s.logger.Printf("location report from %s rejected: %v", s.ID, err)
				s.hub.SendError(s.ID, proto.ReasonInvalidCoords)
			}
		case intake.KindLock:
			s.hub.Lock(ctx, s.ID, req.EntityID)
		case intake.KindConfirm:
			s.hub.Confirm(ctx, s.ID, req.EntityID, req.Outcome)
		case intake.KindGetEntity:
			s.hub.EntityDetail(s.ID, req.EntityID)
		}
	}
}
