package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/partykit/rounds-backend/internal/hub"
	"github.com/partykit/rounds-backend/internal/session"
	"github.com/partykit/rounds-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, newOpts func(mode session.Mode) session.Options, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(h, newOpts, log))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))
	return r
}
