package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/seralys/gacha-overlay/internal/scene"
)

// StateSnapshot serves the current scene tree. The view polls this and
// re-renders whenever the version changes.
func StateSnapshot(st *scene.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st.Snapshot())
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
