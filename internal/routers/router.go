package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/teamchat/internal/middleware"
	"github.com/xenn00/teamchat/internal/realtime"
)

type Deps struct {
	WS       http.Handler
	Engine   *realtime.Engine
	Resolver realtime.IdentityResolver
	Presence PresenceReader
	DLQ      DLQStats
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestId)

	r.Handle("/ws", deps.WS)
	HubRouter(r, deps)
	return r
}
