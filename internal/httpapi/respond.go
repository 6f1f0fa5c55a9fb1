package httpapi

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Limit *int   `json:"limit,omitempty"`
	Used  *int   `json:"used,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeQuotaError(w http.ResponseWriter, used, limit int) {
	writeJSON(w, http.StatusPaymentRequired, errorBody{Error: "Weekly limit reached", Limit: &limit, Used: &used})
}
