package response

import (
	"encoding/json"
	"net/http"
)

// Pagination describes the page window of a list response.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type APIResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	resp := APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
	JSON(w, statusCode, resp)
}

// List writes a successful paginated listing.
func List(w http.ResponseWriter, data interface{}, p Pagination) {
	resp := APIResponse{
		Success:    true,
		Data:       data,
		Pagination: &p,
	}
	JSON(w, http.StatusOK, resp)
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	resp := APIResponse{
		Success: false,
		Message: message,
	}
	JSON(w, statusCode, resp)
}
