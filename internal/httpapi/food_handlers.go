package httpapi

import (
	"io"
	"net/http"
	"strings"

	"smartfit-coach/internal/food"
	"smartfit-coach/internal/llm"
)

const maxImageBytes = 10 << 20

type parseMealRequest struct {
	Description string `json:"description"`
}

type foodsResponse struct {
	Foods []food.ResolvedFood `json:"foods"`
}

func (s *Server) ParseMeal(w http.ResponseWriter, r *http.Request) {
	var req parseMealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		WriteError(w, http.StatusBadRequest, "description is required")
		return
	}
	foods, err := s.App.Food.ParseMeal(r.Context(), CurrentUserID(r), req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, foodsResponse{Foods: foods})
}

// ParseMealImage reads a multipart "image" file and an optional "hint" field.
func (s *Server) ParseMealImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "image is empty")
		return
	}

	image := llm.NewImage(data, header.Header.Get("Content-Type"))
	foods, err := s.App.Food.ParseMealImage(r.Context(), CurrentUserID(r), image, r.FormValue("hint"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, foodsResponse{Foods: foods})
}

func (s *Server) OptimizePlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	report, err := s.App.Food.Optimize(r.Context(), CurrentUserID(r), planID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (s *Server) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	generated, err := s.App.Food.GeneratePlan(r.Context(), CurrentUserID(r), planID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, generated)
}

func (s *Server) GenerateMacros(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	apply := r.URL.Query().Get("apply") == "true"
	targets, err := s.App.Food.GenerateMacroTargets(r.Context(), CurrentUserID(r), planID, apply)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, targets)
}

func (s *Server) SectionAlternatives(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	sectionID, ok := pathID(w, r, "sectionID")
	if !ok {
		return
	}
	foods, err := s.App.Food.Alternatives(r.Context(), CurrentUserID(r), planID, sectionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, foodsResponse{Foods: foods})
}
