package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter mounts every route at the root and again under /api.
func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestID, Logger(logger), Recovery(logger))

	registerRoutes(r, h)
	registerRoutes(r.PathPrefix("/api").Subrouter(), h)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	return r
}

func registerRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.Status).Methods(http.MethodGet)

	r.HandleFunc("/certificates/issue", h.IssueCertificate).Methods(http.MethodPost)
	r.HandleFunc("/certificates/verify", h.VerifyCertificate).Methods(http.MethodPost)
	r.HandleFunc("/certificates/fingerprint", h.Fingerprint).Methods(http.MethodPost)
	// Action paths must not fall through to the {id} route on other methods.
	r.HandleFunc("/certificates/{action:issue|verify|fingerprint}", postOnly)
	r.HandleFunc("/certificates/{id}", h.GetCertificate).Methods(http.MethodGet)
	r.HandleFunc("/certificates/{id}/revoke", h.RevokeCertificate).Methods(http.MethodPost)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	RespondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func postOnly(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	methodNotAllowed(w, r)
}
