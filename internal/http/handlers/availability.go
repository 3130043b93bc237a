package handlers

import (
	"net/http"
	"strings"

	"github.com/diagnosis/stayhold/internal/http/response"
	"github.com/diagnosis/stayhold/internal/interval"
)

// GetAvailability handles GET /availability.
//
// Query: start, end (YYYY-MM-DD, optional), coalesced=true for merged
// ranges, view=days for a per-day classification of [start, end).
func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, ok := optionalDay(w, q.Get("start"), "start")
	if !ok {
		return
	}
	end, ok := optionalDay(w, q.Get("end"), "end")
	if !ok {
		return
	}

	switch {
	case q.Get("view") == "days":
		if start == nil || end == nil {
			response.BadRequest(w, "start and end are required for the days view")
			return
		}
		days, err := h.availability.Days(r.Context(), interval.Range{Start: *start, End: *end})
		if err != nil {
			response.FromError(w, r, err, response.Guest)
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]any{"days": days})

	case strings.EqualFold(q.Get("coalesced"), "true"):
		ranges, err := h.availability.Ranges(r.Context(), start, end)
		if err != nil {
			response.FromError(w, r, err, response.Guest)
			return
		}
		if ranges == nil {
			ranges = []interval.Range{}
		}
		response.WriteJSON(w, http.StatusOK, map[string]any{"ranges": ranges})

	default:
		blocks, err := h.availability.Blocks(r.Context(), start, end)
		if err != nil {
			response.FromError(w, r, err, response.Guest)
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
	}
}

func optionalDay(w http.ResponseWriter, raw, field string) (*interval.Day, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	d, err := interval.ParseDay(raw)
	if err != nil {
		response.BadRequest(w, "Invalid "+field+" date (YYYY-MM-DD)")
		return nil, false
	}
	return &d, true
}
