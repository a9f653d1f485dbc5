package api

import "net/http"

const defaultTrendDays = 30

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	parts := splitPath(r.URL.Path, "/analytics/")
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	switch parts[0] {
	case "dashboard":
		d, err := s.deps.Analytics.Dashboard(r.Context())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, d)
	case "trends":
		days, err := queryInt(r, "days", defaultTrendDays)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		points, err := s.deps.Analytics.Trends(r.Context(), days)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"days": days, "trends": points})
	case "stats":
		stats, err := s.deps.Analytics.Stats(r.Context(), r.URL.Query().Get("type"))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, stats)
	default:
		http.NotFound(w, r)
	}
}
