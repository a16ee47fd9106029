package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/teologia/internal/library"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// idx may be nil when no full-text index is configured.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *library.Service, idx Searcher, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, idx)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/overview", h.Overview)

	// Studies.
	r.Get("/studies", h.ListStudies)
	r.Post("/studies", h.CreateStudy)
	r.Get("/studies/{id}", h.GetStudy)

	// Topics.
	r.Get("/topics", h.ListTopics)
	r.Post("/topics", h.CreateTopic)
	r.Get("/topics/{topic}", h.GetTopic)

	r.Get("/search/fulltext", h.FulltextSearch)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
