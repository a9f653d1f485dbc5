package api

import (
	"net/http"
	"strconv"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/catalog"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f, err := bookFilter(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		page, err := s.deps.Catalog.List(r.Context(), f)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, page)
	case http.MethodPost:
		s.admin(s.createBook)(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewBook
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	book, err := s.deps.Catalog.Create(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, book)
}

func (s *Server) handleBookRoute(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/books/")
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if id == "featured" {
		s.handleFeatured(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.deps.Catalog.Get(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, book)
	case http.MethodPatch:
		s.admin(func(w http.ResponseWriter, r *http.Request) {
			var patch catalog.BookPatch
			if err := decodeJSON(w, r, &patch); err != nil {
				s.respondError(w, r, err)
				return
			}
			book, err := s.deps.Catalog.Update(r.Context(), id, patch)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			s.respondJSON(w, http.StatusOK, book)
		})(w, r)
	case http.MethodDelete:
		s.admin(func(w http.ResponseWriter, r *http.Request) {
			if err := s.deps.Catalog.Delete(r.Context(), id); err != nil {
				s.respondError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})(w, r)
	default:
		s.methodNotAllowed(w)
	}
}

// handleFeatured serves /books/featured.
func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	books, err := s.deps.Catalog.Featured(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func bookFilter(r *http.Request) (repository.BookFilter, error) {
	q := r.URL.Query()
	page, err := queryPage(r)
	if err != nil {
		return repository.BookFilter{}, err
	}
	minRating, err := queryInt(r, "minRating", 0)
	if err != nil {
		return repository.BookFilter{}, err
	}
	f := repository.BookFilter{
		Search:    q.Get("search"),
		Genre:     q.Get("genre"),
		Author:    q.Get("author"),
		MinRating: minRating,
		Page:      page,
	}
	if v := q.Get("available"); v != "" {
		f.AvailableOnly, err = strconv.ParseBool(v)
		if err != nil {
			return repository.BookFilter{}, apperr.Validation("available must be true or false")
		}
	}
	return f, nil
}
