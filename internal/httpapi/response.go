package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"smartfit-coach/internal/body"
	"smartfit-coach/internal/food"
	"smartfit-coach/internal/generation"
	"smartfit-coach/internal/gym"
	"smartfit-coach/internal/matcher"
	"smartfit-coach/internal/profile"

	"github.com/go-chi/chi/v5"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Message: message})
}

// writeServiceError maps domain and generation failures onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *food.ValidationError
		noMatch    *matcher.NoMatchFoundError
		malformed  *generation.MalformedOutputError
	)
	switch {
	case errors.Is(err, profile.ErrNotFound), errors.Is(err, food.ErrNotFound), errors.Is(err, gym.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, body.ErrNoData):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation),
		errors.Is(err, gym.ErrInvalidPlanDates),
		errors.Is(err, gym.ErrUnknownTechnique),
		errors.Is(err, gym.ErrNoSets):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noMatch):
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &malformed), errors.Is(err, food.ErrEmptyGeneration):
		slog.Warn("generation failed", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusBadGateway, "generation failed")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathID reads a numeric route parameter, writing 400 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
