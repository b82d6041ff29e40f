package routers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ocw-node/handlers"
	"ocw-node/metrics"
)

// RegisterRoutes sets up all the HTTP routes of the diagnostics API
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Last price accepted by the ledger
	r.HandleFunc("/price", h.GetPrice).Methods("GET")

	// Node-local reconciliation records
	r.HandleFunc("/index", h.ListIndexRecords).Methods("GET")
	r.HandleFunc("/index/{height}", h.GetIndexRecord).Methods("GET")

	// Ledger events and inbound calls
	r.HandleFunc("/events", h.GetEvents).Methods("GET")
	r.HandleFunc("/extrinsics", h.SubmitExtrinsic).Methods("POST")

	// Signing identities held by this node
	r.HandleFunc("/identities", h.GetIdentities).Methods("GET")

	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.Use(func(next http.Handler) http.Handler {
		return metrics.Instrument(next, routeTemplate)
	})
}

// routeTemplate labels requests by route so heights do not become label values.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
