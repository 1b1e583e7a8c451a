package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the chi router exposing every client- and peer-facing
// endpoint this node serves.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/tables", func(r chi.Router) {
		r.Post("/", s.createTable)
		r.Get("/", s.listTables)
		r.Route("/{name}", func(r chi.Router) {
			r.Delete("/", s.dropTable)
			r.Get("/stats", s.tableStats)
			r.Post("/load", s.loadParquet)
			r.Post("/load-range", s.loadRange)
		})
	})

	r.Post("/query", s.runQuery)
	r.Get("/health", s.health)

	r.Route("/peers", func(r chi.Router) {
		r.Post("/heartbeat", s.receiveHeartbeat)
		r.Post("/replicate", s.receiveReplicate)
		r.Post("/files/{key}", s.receiveFile)
		r.Head("/files/{key}", s.probeFile)
	})

	return r
}
