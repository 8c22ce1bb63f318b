package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/recallguard/recallguard-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(recall *handlers.RecallHandler, admin *handlers.AdminHandler, events *handlers.EventsHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Partner feed
	router.HandleFunc("/v1/recalls", recall.List).Methods(http.MethodGet)
	router.HandleFunc("/v1/events/alerts", events.Alerts).Methods(http.MethodGet)
	router.HandleFunc("/v1/events/remedy-updates", events.RemedyUpdates).Methods(http.MethodGet)

	// Ops endpoints
	router.HandleFunc("/api/admin/refresh", admin.Refresh).Methods(http.MethodPost)
	router.HandleFunc("/api/recalls/{source}/{id}/remedy-updates", recall.RemedyUpdates).Methods(http.MethodGet)

	return router
}
