package api

import (
	"encoding/json"
	"net/http"
)

// HealthResponse reports the worker's dependencies. Required checks decide
// the status; optional ones only show up in Checks.
type HealthResponse struct {
	Status string            `json:"status"` // ok or degraded
	Checks map[string]string `json:"checks"`
	Uptime string            `json:"uptime"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
