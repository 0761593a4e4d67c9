package ws

import (
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	server "github.com/dimaspandu/pokecat-hunt"
	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
	"github.com/dimaspandu/pokecat-hunt/internal/session"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
)

const maxMessageSize = 4096

type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler upgrades /ws requests and runs one session per connection.
type Handler struct {
	hub      *server.Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

// Handle accepts ?name= for the display name and ?codec=json|msgpack for
// the wire encoding.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	query := r.URL.Query()
	codec, ok := proto.CodecByName(query.Get("codec"))
	if !ok {
		nethttp.Error(w, "unsupported codec", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	s := &Session{
		ID:     session.NewID(),
		Name:   query.Get("name"),
		Codec:  codec,
		hub:    h.hub,
		logger: h.logger,
	}
	s.Serve(r.Context(), conn)
}
