package api

import (
	"net/http"
	"strconv"

	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/repository"
	"github.com/dharsanguruparan/BookWise/internal/signing"
)

type borrowRequest struct {
	UserID string `json:"userId"`
	BookID string `json:"bookId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type recordResponse struct {
	Record        *model.BorrowRecord `json:"record"`
	DisplayStatus model.DisplayStatus `json:"displayStatus,omitempty"`
}

// handleBorrowCollection serves /borrow.
func (s *Server) handleBorrowCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req borrowRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
		rec, err := s.deps.Circulation.Borrow(r.Context(), req.UserID, req.BookID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, recordResponse{Record: rec})
	case http.MethodGet:
		page, err := queryPage(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		q := r.URL.Query()
		out, err := s.deps.Circulation.List(r.Context(), repository.RecordFilter{
			UserID: q.Get("userId"),
			BookID: q.Get("bookId"),
			Status: model.BorrowStatus(q.Get("status")),
			Page:   page,
		})
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, out)
	default:
		s.methodNotAllowed(w)
	}
}

// handleBorrowRoute serves /borrow/{id} and its sub-resources.
func (s *Server) handleBorrowRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/borrow/")
	if len(parts) == 0 || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		rec, err := s.deps.Circulation.Get(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, recordResponse{Record: rec, DisplayStatus: s.deps.Circulation.DisplayStatus(rec)})
		return
	}

	switch parts[1] {
	case "return":
		if r.Method != http.MethodPatch {
			s.methodNotAllowed(w)
			return
		}
		s.handleReturn(w, r, id)
	case "status":
		if r.Method != http.MethodPatch {
			s.methodNotAllowed(w)
			return
		}
		s.admin(func(w http.ResponseWriter, r *http.Request) { s.handleSetStatus(w, r, id) })(w, r)
	case "receipt":
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		s.handleRecordReceipt(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, id string) {
	res, err := s.deps.Circulation.Return(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.deps.Circulation.SetStatus(r.Context(), id, model.BorrowStatus(req.Status))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, recordResponse{Record: rec})
}

// handleRecordReceipt renders the receipt of a record on demand.
func (s *Server) handleRecordReceipt(w http.ResponseWriter, r *http.Request, id string) {
	receiptID, pdf, err := s.deps.Receipts.Document(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writePDF(w, receiptID, pdf)
}

// handleReceipt serves /receipts/{receiptId}. A link carrying signature
// parameters must verify; unsigned access is refused when signed links are
// required.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	parts := splitPath(r.URL.Path, "/receipts/")
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	q := r.URL.Query()
	expires, sig := q.Get(signing.ParamExpires), q.Get(signing.ParamSignature)
	signed := expires != "" || sig != ""
	if (signed || s.cfg.ReceiptsRequireSignature) && !s.deps.Receipts.VerifyLink(id, expires, sig) {
		// An invalid link is indistinguishable from a missing receipt.
		s.respondJSON(w, http.StatusNotFound, errorBody{Error: "Receipt not found"})
		return
	}
	pdf, err := s.deps.Receipts.Open(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writePDF(w, id, pdf)
}

func writePDF(w http.ResponseWriter, receiptID string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("Content-Disposition", `inline; filename="receipt-`+receiptID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
