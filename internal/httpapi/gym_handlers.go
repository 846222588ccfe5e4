package httpapi

import (
	"fmt"
	"net/http"

	"smartfit-coach/internal/database"
	"smartfit-coach/internal/gym"
)

type gymPlanRequest struct {
	StartDate database.Date `json:"start_date"`
	EndDate   database.Date `json:"end_date"`
	Note      string        `json:"note"`
}

type noteResponse struct {
	Note string `json:"note"`
}

type alternativeRequest struct {
	Technique string `json:"technique"`
}

func (s *Server) CreateGymPlan(w http.ResponseWriter, r *http.Request) {
	var req gymPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan := &gym.Plan{AuthorID: CurrentUserID(r), StartDate: req.StartDate, EndDate: req.EndDate, Note: req.Note}
	if err := s.App.Gym.CreatePlan(r.Context(), plan); err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, plan)
}

func (s *Server) GymPlanNote(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	note, err := s.App.Coach.GeneratePlanNote(r.Context(), CurrentUserID(r), planID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, noteResponse{Note: note})
}

func (s *Server) GymPlanCalendar(w http.ResponseWriter, r *http.Request) {
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	feed, err := s.App.Coach.ExportCalendar(r.Context(), CurrentUserID(r), planID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="gym-plan-%d.ics"`, planID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

func (s *Server) GymSectionNote(w http.ResponseWriter, r *http.Request) {
	sectionID, ok := pathID(w, r, "sectionID")
	if !ok {
		return
	}
	note, err := s.App.Coach.GenerateSectionNote(r.Context(), CurrentUserID(r), sectionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, noteResponse{Note: note})
}

func (s *Server) ClassifyGymSection(w http.ResponseWriter, r *http.Request) {
	sectionID, ok := pathID(w, r, "sectionID")
	if !ok {
		return
	}
	label, err := s.App.Coach.ClassifySection(r.Context(), CurrentUserID(r), sectionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"type": label})
}

func (s *Server) GymItemNote(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	note, err := s.App.Coach.GenerateItemNote(r.Context(), CurrentUserID(r), itemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, noteResponse{Note: note})
}

func (s *Server) GymItemAlternative(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req alternativeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	alt, err := s.App.Coach.ProposeAlternative(r.Context(), CurrentUserID(r), itemID, req.Technique)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, alt)
}

func (s *Server) GymItemWarmup(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	sets, err := s.App.Coach.GenerateWarmup(r.Context(), CurrentUserID(r), itemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string][]gym.SetDetail{"sets": sets})
}

func (s *Server) DeleteGymSet(w http.ResponseWriter, r *http.Request) {
	setID, ok := pathID(w, r, "setID")
	if !ok {
		return
	}
	itemDeleted, err := s.App.Gym.DeleteSet(r.Context(), CurrentUserID(r), setID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"item_deleted": itemDeleted})
}

func (s *Server) SuggestedWeight(w http.ResponseWriter, r *http.Request) {
	exerciseID, ok := pathID(w, r, "exerciseID")
	if !ok {
		return
	}
	weight, err := s.App.Coach.SuggestWeight(r.Context(), CurrentUserID(r), exerciseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]float64{"weight": weight})
}
