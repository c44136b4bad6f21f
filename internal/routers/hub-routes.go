package routers

import (
	"github.com/go-chi/chi/v5"
	"github.com/xenn00/teamchat/internal/handlers"
	hub_handler "github.com/xenn00/teamchat/internal/handlers/hub-handler"
	"github.com/xenn00/teamchat/internal/middleware"
)

type (
	PresenceReader = hub_handler.PresenceReader
	DLQStats       = hub_handler.DLQStats
)

func HubRouter(r chi.Router, deps Deps) {
	hubHandler := hub_handler.NewHubHandler(deps.Engine, deps.Presence, deps.DLQ)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", hubHandler.HandleHealth)

		r.Group(func(protected chi.Router) {
			protected.Use(middleware.RequireIdentity(deps.Resolver))
			protected.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetStats))
			protected.Get("/jobs/dlq/stats", handlers.WrapHandler(hubHandler.HandleGetDLQStats))

			// Room routes
			protected.Route("/rooms/{roomId}", func(r chi.Router) {
				r.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetRoomStats))
				r.Get("/members", handlers.WrapHandler(hubHandler.HandleGetRoomMembers))
			})

			// Identity routes
			protected.Route("/identities/{identityId}", func(r chi.Router) {
				r.Get("/presence", handlers.WrapHandler(hubHandler.HandleGetPresence))
				r.Get("/connections", handlers.WrapHandler(hubHandler.HandleGetConnections))
				r.Post("/disconnect", handlers.WrapHandler(hubHandler.HandleDisconnect))
			})
		})
	})
}
