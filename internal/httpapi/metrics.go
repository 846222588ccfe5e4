package httpapi

import (
	"net/http"

	"smartfit-coach/internal/metrics"

	"github.com/gorilla/websocket"
)

type UsageResponse struct {
	Days   int                  `json:"days"`
	Usage  []metrics.DailyUsage `json:"usage"`
	Health metrics.SysHealth    `json:"health"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.App.Health())
}

func (s *Server) MetricsUsage(w http.ResponseWriter, r *http.Request) {
	days := parseInt(r.URL.Query().Get("days"), 7)
	if days > 365 {
		days = 365
	}
	usage, err := s.App.Metrics.GetDailyUsage(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if usage == nil {
		usage = []metrics.DailyUsage{}
	}
	WriteJSON(w, http.StatusOK, UsageResponse{Days: days, Usage: usage, Health: s.App.Health()})
}

// MetricsStream pushes every recorded execution metric to an admin websocket.
func (s *Server) MetricsStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.App.Hub.Add(conn)
	defer func() {
		s.App.Hub.Remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
