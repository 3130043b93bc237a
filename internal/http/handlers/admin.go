package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/diagnosis/stayhold/internal/http/middleware"
	"github.com/diagnosis/stayhold/internal/http/response"
	"github.com/diagnosis/stayhold/internal/service"
	"github.com/go-chi/chi/v5"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

type expireRequest struct {
	Force bool `json:"force"`
}

func invoiceParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	invoice := strings.TrimSpace(chi.URLParam(r, "invoice"))
	if invoice == "" {
		response.BadRequest(w, "Missing or invalid field: invoice_number")
		return "", false
	}
	return invoice, true
}

// VerifyBooking handles POST /admin/bookings/{invoice}/verify.
func (h *Handlers) VerifyBooking(w http.ResponseWriter, r *http.Request) {
	invoice, ok := invoiceParam(w, r)
	if !ok {
		return
	}
	out, err := h.lifecycle.Verify(r.Context(), invoice, middleware.Actor(r))
	writeOutcome(w, r, out, err)
}

// CancelBooking handles POST /admin/bookings/{invoice}/cancel with an
// optional {"reason": "..."} body.
func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	invoice, ok := invoiceParam(w, r)
	if !ok {
		return
	}
	var in cancelRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	out, err := h.lifecycle.Cancel(r.Context(), invoice, middleware.Actor(r), strings.TrimSpace(in.Reason))
	writeOutcome(w, r, out, err)
}

// ExpireBooking handles POST /admin/bookings/{invoice}/expire. Force may be
// given in the body or as ?force=true.
func (h *Handlers) ExpireBooking(w http.ResponseWriter, r *http.Request) {
	invoice, ok := invoiceParam(w, r)
	if !ok {
		return
	}
	var in expireRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, "Missing or invalid field: force")
			return
		}
		in.Force = in.Force || force
	}
	out, err := h.lifecycle.Expire(r.Context(), invoice, middleware.Actor(r), in.Force)
	writeOutcome(w, r, out, err)
}

// writeOutcome reports a committed transition even when post-commit block
// cleanup failed, so the caller can retry the repair.
func writeOutcome(w http.ResponseWriter, r *http.Request, out *service.Outcome, err error) {
	if err != nil {
		if out == nil {
			response.FromError(w, r, err, response.Admin)
			return
		}
		response.WriteJSON(w, http.StatusMultiStatus, map[string]any{
			"booking": out.Booking,
			"no_op":   out.NoOp,
			"error":   err.Error(),
		})
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}
