package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(app.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/videos", func(r chi.Router) {
		r.Get("/", app.ListVideosHandler)
		r.Post("/", app.UploadHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetVideoHandler)
			r.Delete("/", app.DeleteVideoHandler)
			r.Get("/stream", app.StreamVideoHandler)
			r.Post("/extract", app.StartExtractionHandler)
			r.Get("/export.pdf", app.ExportHandler)

			r.Get("/frames", app.ListFramesHandler)
			r.Route("/frames/{index}", func(r chi.Router) {
				r.Get("/image", app.FrameImageHandler)
				r.Post("/toggle", app.ToggleFrameHandler)
				r.Post("/move", app.MoveFrameHandler)
				r.Delete("/", app.DeleteFrameHandler)
			})
		})
	})

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", app.SessionHandler)
		r.Get("/events", app.SessionStreamHandler)
		r.Delete("/", app.StopExtractionHandler)
	})

	return r
}
