package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	server "github.com/dimaspandu/pokecat-hunt"
	"github.com/dimaspandu/pokecat-hunt/internal/catalog"
	"github.com/dimaspandu/pokecat-hunt/internal/creature"
	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
	"github.com/dimaspandu/pokecat-hunt/internal/net/ws"
	"github.com/dimaspandu/pokecat-hunt/internal/observability"
	"github.com/dimaspandu/pokecat-hunt/internal/telemetry"
)

const maxRaceContenders = 64

type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Observability observability.Config
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	router := mux.NewRouter()

	router.HandleFunc("/ping", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pokecat-backend OK"))
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, logger, nethttp.StatusOK, hub.Diagnostics())
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/entities", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, logger, nethttp.StatusOK, entityList{Entities: views(hub.Entities())})
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/entities/wild", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, logger, nethttp.StatusOK, entityList{Entities: views(hub.WildEntities())})
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/entities/{id}", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		entity, err := hub.Entity(mux.Vars(r)["id"])
		if err != nil {
			httpError(w, creature.Reason(err), statusFor(err))
			return
		}
		payload := struct {
			Entity proto.EntityView `json:"entity"`
		}{Entity: proto.NewEntityView(entity)}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/entities/{id}/history", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := mux.Vars(r)["id"]
		history, err := hub.History(id)
		if err != nil {
			httpError(w, creature.Reason(err), statusFor(err))
			return
		}
		payload := struct {
			EntityID string `json:"entityId"`
			History  any    `json:"history"`
		}{EntityID: id, History: history}
		writeJSON(w, logger, nethttp.StatusOK, payload)
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/catalog", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, logger, nethttp.StatusOK, newCatalogPayload(hub.Catalog()))
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/catalog/reload", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		cat, err := hub.ReloadCatalog(r.Context())
		if err != nil {
			logger.Printf("catalog reload failed: %v", err)
			httpError(w, "catalog reload failed", nethttp.StatusBadGateway)
			return
		}
		writeJSON(w, logger, nethttp.StatusOK, newCatalogPayload(cat))
	}).Methods(nethttp.MethodPost)

	router.HandleFunc("/catalog/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		schema, err := catalog.BuildSchema()
		if err != nil {
			httpError(w, "failed to build schema", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, nethttp.StatusOK, schema)
	}).Methods(nethttp.MethodGet)

	router.HandleFunc("/debug/simulate-race", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		query := r.URL.Query()
		contenders := 0
		if raw := query.Get("contenders"); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil || value <= 0 || value > maxRaceContenders {
				httpError(w, "invalid contenders", nethttp.StatusBadRequest)
				return
			}
			contenders = value
		}
		report, err := hub.SimulateRace(r.Context(), query.Get("entityId"), contenders)
		if err != nil {
			httpError(w, creature.Reason(err), statusFor(err))
			return
		}
		writeJSON(w, logger, nethttp.StatusOK, report)
	}).Methods(nethttp.MethodPost)

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: logger})
	router.HandleFunc("/ws", wsHandler.Handle)

	if cfg.Observability.Register(router) {
		logger.Printf("pprof handlers mounted under /debug/pprof/")
	}

	if cfg.ClientDir != "" {
		router.PathPrefix("/").Handler(nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return router
}

type entityList struct {
	Entities []proto.EntityView `json:"entities"`
}

func views(entities []creature.Entity) []proto.EntityView {
	out := make([]proto.EntityView, 0, len(entities))
	for _, entity := range entities {
		out = append(out, proto.NewEntityView(entity))
	}
	return out
}

type catalogPayload struct {
	Source    string             `json:"source"`
	LoadedAt  time.Time          `json:"loadedAt"`
	Templates []catalog.Template `json:"templates"`
}

func newCatalogPayload(cat *catalog.Catalog) catalogPayload {
	templates := cat.Templates()
	if templates == nil {
		templates = []catalog.Template{}
	}
	return catalogPayload{Source: cat.Source(), LoadedAt: cat.LoadedAt(), Templates: templates}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, creature.ErrNotFound):
		return nethttp.StatusNotFound
	case errors.Is(err, creature.ErrNotAvailable):
		return nethttp.StatusConflict
	default:
		return nethttp.StatusInternalServerError
	}
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
