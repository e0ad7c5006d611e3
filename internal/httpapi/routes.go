package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/seralys/gacha-overlay/internal/scene"
)

// SetupRoutes builds the view-facing HTTP surface: health check, the
// scene snapshot the view layer polls, and static asset files.
func SetupRoutes(st *scene.Stage, assetRoot string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", StateSnapshot(st))
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(assetRoot))))

	// The view usually runs on another origin (browser source, local
	// file), so snapshots must be fetchable cross-origin.
	return cors.AllowAll().Handler(r)
}
