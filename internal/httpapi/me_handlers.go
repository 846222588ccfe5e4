package httpapi

import (
	"errors"
	"net/http"

	"smartfit-coach/internal/profile"
)

type goalRequest struct {
	GoalDescription string `json:"goal_description"`
}

type goalResponse struct {
	*profile.Profile
	Warning string `json:"warning,omitempty"`
}

type analysisResponse struct {
	Analysis string `json:"analysis"`
}

func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.App.Users.GetProfile(r.Context(), CurrentUserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// SaveGoal stores the goal. A classification failure still answers 200 with the
// saved profile and a warning.
func (s *Server) SaveGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.App.Profiles.SaveGoal(r.Context(), CurrentUserID(r), req.GoalDescription)
	if errors.Is(err, profile.ErrGoalNotClassified) {
		WriteJSON(w, http.StatusOK, goalResponse{Profile: p, Warning: profile.ErrGoalNotClassified.Error()})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, goalResponse{Profile: p})
}

func (s *Server) WeightAnalysis(w http.ResponseWriter, r *http.Request) {
	text, err := s.App.Analyst.AnalyzeWeights(r.Context(), CurrentUserID(r), parseInt(r.URL.Query().Get("days"), 0))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, analysisResponse{Analysis: text})
}

func (s *Server) BodyAnalysis(w http.ResponseWriter, r *http.Request) {
	text, err := s.App.Analyst.AnalyzeMeasurements(r.Context(), CurrentUserID(r), parseInt(r.URL.Query().Get("days"), 0))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, analysisResponse{Analysis: text})
}
