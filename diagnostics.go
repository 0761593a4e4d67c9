package server

import (
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
	"github.com/dimaspandu/pokecat-hunt/internal/session"
	"github.com/dimaspandu/pokecat-hunt/logging"
)

type catalogDiagnostics struct {
	Source    string    `json:"source"`
	Templates int       `json:"templates"`
	LoadedAt  time.Time `json:"loadedAt,omitempty"`
}

// Diagnostics is the payload served on /diagnostics.
type Diagnostics struct {
	Status      string                  `json:"status"`
	ServerTime  int64                   `json:"serverTime"`
	Version     int                     `json:"protocolVersion"`
	Sessions    []session.Session       `json:"sessions"`
	Subscribers int                     `json:"subscribers"`
	Entities    map[creature.Status]int `json:"entities"`
	SpawnCycle  uint64                  `json:"spawnCycle"`
	Catalog     catalogDiagnostics      `json:"catalog"`
	Metrics     map[string]uint64       `json:"metrics"`
	Telemetry   telemetrySnapshot       `json:"telemetry"`
	Logging     *logging.RouterStats    `json:"logging,omitempty"`
}

// Diagnostics reports a point-in-time view of the engine.
func (h *Hub) Diagnostics() Diagnostics {
	cat := h.catalog.Current()
	sessions := h.sessions.List()
	if sessions == nil {
		sessions = []session.Session{}
	}
	diag := Diagnostics{
		Status:      "ok",
		ServerTime:  h.now().UnixMilli(),
		Version:     ProtocolVersion,
		Sessions:    sessions,
		Subscribers: h.channel.Len(),
		Entities:    h.creatures.Counts(),
		SpawnCycle:  h.spawner.Cycle(),
		Catalog: catalogDiagnostics{
			Source:    h.catalog.SourceName(),
			Templates: cat.Len(),
			LoadedAt:  cat.LoadedAt(),
		},
		Metrics:   h.counters.Snapshot(),
		Telemetry: h.telemetry.Snapshot(),
	}
	if h.routerStats != nil {
		stats := h.routerStats()
		diag.Logging = &stats
	}
	return diag
}
