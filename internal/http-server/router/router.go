package router

import (
	"net/http"

	"thumbnail-service/internal/http-server/handler/job"
	"thumbnail-service/internal/http-server/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/wb-go/wbf/zlog"
)

type Handler struct {
	JobHandler *job.JobHandler
	// UploadsDir is served at /uploads when set.
	UploadsDir string
	Logger     *zlog.Zerolog
}

func SetupRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RecoveryMiddleware(h.Logger))
	r.Use(middleware.LoggingMiddleware(h.Logger))

	if h.UploadsDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.UploadsDir)))
		r.Handle("/uploads/*", fs)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", h.JobHandler.CreateJob)
		r.Get("/jobs/{jobId}", h.JobHandler.GetJob)
		r.Get("/users/{userId}/jobs", h.JobHandler.ListUserJobs)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
	})

	return r
}
