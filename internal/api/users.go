package api

import (
	"net/http"

	"github.com/dharsanguruparan/BookWise/internal/accounts"
	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

type roleRequest struct {
	Role string `json:"role"`
}

// handleUsers serves /users. POST is public sign-up; an administrator
// creating the account gets it approved immediately.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in accounts.Registration
		if err := decodeJSON(w, r, &in); err != nil {
			s.respondError(w, r, err)
			return
		}
		create := s.deps.Accounts.Register
		if s.cfg.AdminToken != "" && s.isAdmin(r) {
			create = s.deps.Accounts.CreateByAdmin
		}
		user, err := create(r.Context(), in)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		s.admin(s.listUsers)(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	var desc bool
	switch q.Get("sortOrder") {
	case "", "asc":
	case "desc":
		desc = true
	default:
		s.respondError(w, r, apperr.Validation("sortOrder must be asc or desc"))
		return
	}
	out, err := s.deps.Accounts.List(r.Context(), repository.UserFilter{
		Status: model.AccountStatus(q.Get("status")),
		Search: q.Get("search"),
		SortBy: q.Get("sortBy"),
		Desc:   desc,
		Page:   page,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/users/")
	if len(parts) == 0 || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if !s.isAdmin(r) {
		s.respondJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			user, err := s.deps.Accounts.Get(r.Context(), id)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			s.respondJSON(w, http.StatusOK, user)
		case http.MethodDelete:
			if err := s.deps.Accounts.Delete(r.Context(), id); err != nil {
				s.respondError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			s.methodNotAllowed(w)
		}
		return
	}

	if r.Method != http.MethodPatch {
		s.methodNotAllowed(w)
		return
	}
	var (
		user *model.User
		err  error
	)
	switch parts[1] {
	case "status":
		var req statusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
		user, err = s.deps.Accounts.Review(r.Context(), id, model.AccountStatus(req.Status))
	case "role":
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
		user, err = s.deps.Accounts.ChangeRole(r.Context(), id, model.Role(req.Role))
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}
