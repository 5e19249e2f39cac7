package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	billingHandler "github.com/mireilabs/velora/backend/internal/handler/billing"
	chatHandler "github.com/mireilabs/velora/backend/internal/handler/chat"
	personaHandler "github.com/mireilabs/velora/backend/internal/handler/persona"
	middlewarePkg "github.com/mireilabs/velora/backend/internal/middleware"
	personaModel "github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/service/audio"
	"github.com/mireilabs/velora/backend/internal/service/billing"
	chatService "github.com/mireilabs/velora/backend/internal/service/chat"
	relService "github.com/mireilabs/velora/backend/internal/service/relationship"
	"github.com/mireilabs/velora/backend/pkg/utils"
)

// Deps carries everything the router mounts.
type Deps struct {
	Personas      personaModel.Store
	Sessions      *chatService.Sessions
	History       chatService.HistorySink
	Relationships *relService.Service
	Clips         *audio.ClipStore
	Accounts      billing.Accounts
	Buffer        *chatService.Buffer
	Orchestrator  *chatService.Orchestrator
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personas := personaHandler.New(deps.Personas)
	conversations := chatHandler.New(deps.Sessions, deps.Personas, deps.History, deps.Relationships, deps.Clips)
	credits := billingHandler.New(deps.Accounts)
	ws := chatHandler.NewWebSocket(deps.Sessions, deps.Buffer, deps.Orchestrator)

	r.Route("/api", func(api chi.Router) {
		personas.RegisterRoutes(api)
		conversations.RegisterRoutes(api)
		credits.RegisterRoutes(api)
		ws.RegisterRoutes(api)

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
