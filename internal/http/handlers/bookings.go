package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/http/response"
	"github.com/diagnosis/stayhold/internal/service"
	"github.com/diagnosis/stayhold/pkg/logger"
)

// multipartOverhead leaves room for the text fields next to the proof file.
const multipartOverhead = 1 << 20

// CreateHold handles POST /bookings/hold.
func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	var in domain.HoldRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	conf, err := h.holds.CreateHold(r.Context(), in)
	if err != nil {
		response.FromError(w, r, err, response.Guest)
		return
	}
	logger.InfoContext(r.Context(), "Hold created",
		"booking_id", conf.BookingID,
		"invoice_number", conf.InvoiceNumber,
		"stay", conf.Stay.String())
	response.WriteJSON(w, http.StatusCreated, conf)
}

// SubmitProof handles POST /bookings/proof as multipart/form-data.
func (h *Handlers) SubmitProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxProofBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "Proof file must be 10MB or smaller")
			return
		}
		response.BadRequest(w, "Expected multipart form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	sub := domain.ProofSubmission{
		InvoiceNumber: strings.TrimSpace(r.FormValue("invoice_number")),
		PayerName:     strings.TrimSpace(r.FormValue("payer_name")),
		Reference:     strings.TrimSpace(r.FormValue("reference")),
		Note:          strings.TrimSpace(r.FormValue("note")),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		response.BadRequest(w, "Missing or invalid field: file")
		return
	default:
		defer file.Close()
		body, err := io.ReadAll(file)
		if err != nil {
			response.BadRequest(w, "Missing or invalid field: file")
			return
		}
		sub.FileName = header.Filename
		sub.ContentType = header.Header.Get("Content-Type")
		sub.Body = body
	}

	receipt, err := h.holds.SubmitProof(r.Context(), sub)
	if err != nil {
		response.FromError(w, r, err, response.Guest)
		return
	}
	logger.InfoContext(r.Context(), "Payment proof received",
		"invoice_number", receipt.InvoiceNumber,
		"payment_id", receipt.PaymentID)
	response.WriteJSON(w, http.StatusOK, receipt)
}
