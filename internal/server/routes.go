package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	s.router.Route("/obssync", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Post("/reconcile", s.startReconcile)
		r.Post("/preview", s.preview)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.listReports)
			r.Get("/{reportID}", s.getReport)
		})

		r.Get("/permissions", s.listPermissions)
		r.Get("/config", s.getConfig)

		r.Get("/event", s.events)
	})
}
