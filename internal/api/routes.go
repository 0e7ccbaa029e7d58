package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/holdings", handler.GetHoldings).Methods("GET")
	api.HandleFunc("/values", handler.GetValues).Methods("GET")
	api.HandleFunc("/transactions", handler.CreateTransaction).Methods("POST")
	api.HandleFunc("/assets", handler.GetAssets).Methods("GET")
	api.HandleFunc("/datasets", handler.GetDatasetCounts).Methods("GET")
	api.HandleFunc("/datasets", handler.LoadDataset).Methods("POST")

	return r
}
