package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler triggers a sweep pass over HTTP, for deployments where an
// external cron replaces the in-process ticker. Guarded by a shared
// secret; answers 404 while unconfigured.
type Handler struct {
	sweeper    *Sweeper
	cronSecret string
}

func NewHandler(sweeper *Sweeper, cronSecret string) *Handler {
	return &Handler{sweeper: sweeper, cronSecret: strings.TrimSpace(cronSecret)}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	h.sweeper.RunOnce(r.Context())

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
