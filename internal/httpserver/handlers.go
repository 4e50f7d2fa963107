package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pastekeep/internal/service"
	"pastekeep/internal/storage"
)

type createRequest struct {
	Content       string   `json:"content"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Language      string   `json:"language"`
	Visibility    string   `json:"visibility"`
	Password      string   `json:"password"`
	BurnAfterRead bool     `json:"burn_after_read"`
	BurnViews     int      `json:"burn_views"`
	CustomSlug    string   `json:"custom_slug"`
	ExpiresIn     string   `json:"expires_in"`
	Tags          []string `json:"tags"`
}

type createResponse struct {
	Slug string `json:"slug"`
}

type pasteResponse struct {
	Slug          string        `json:"slug"`
	Content       string        `json:"content"`
	Title         string        `json:"title,omitempty"`
	Description   string        `json:"description,omitempty"`
	Language      string        `json:"language,omitempty"`
	Visibility    string        `json:"visibility"`
	Tags          []storage.Tag `json:"tags,omitempty"`
	Views         int64         `json:"views"`
	Burned        bool          `json:"burned"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	BurnAfterRead bool          `json:"burn_after_read"`
}

type listResponse struct {
	Items   []service.Summary `json:"items"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	slug, err := s.svc.CreatePaste(r.Context(), service.CreateInput{
		Content:       req.Content,
		Title:         req.Title,
		Description:   req.Description,
		Language:      req.Language,
		Visibility:    storage.Visibility(req.Visibility),
		Password:      req.Password,
		BurnAfterRead: req.BurnAfterRead,
		BurnViews:     req.BurnViews,
		CustomSlug:    req.CustomSlug,
		ExpiresIn:     req.ExpiresIn,
		Tags:          req.Tags,
		OwnerID:       s.currentUser(r),
		ClientIP:      ClientIP(r, s.trustProxy),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createResponse{Slug: slug})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetPaste(r.Context(), chi.URLParam(r, "slug"), suppliedPassword(r), s.currentUser(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := view.Paste
	s.writeJSON(w, http.StatusOK, pasteResponse{
		Slug:          p.Slug,
		Content:       p.Content,
		Title:         p.Title,
		Description:   p.Description,
		Language:      p.Language,
		Visibility:    string(p.Visibility),
		Tags:          view.Tags,
		Views:         view.Views,
		Burned:        view.Burned,
		CreatedAt:     p.CreatedAt,
		ExpiresAt:     p.ExpiresAt,
		BurnAfterRead: p.BurnAfterRead,
	})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetPaste(r.Context(), chi.URLParam(r, "slug"), suppliedPassword(r), s.currentUser(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Every raw read is a counted view, so intermediaries must not
	// replay it from a cache.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, view.Paste.Content)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pasteID(w, r, s)
	if !ok {
		return
	}
	if err := s.svc.DeletePaste(r.Context(), id, s.currentUser(r), ClientIP(r, s.trustProxy)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateRequest struct {
	Visibility     *string `json:"visibility"`
	Password       *string `json:"password"`
	RemovePassword bool    `json:"remove_password"`
	ExpiresIn      *string `json:"expires_in"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pasteID(w, r, s)
	if !ok {
		return
	}
	var req updateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	in := service.SettingsInput{
		Password:       req.Password,
		RemovePassword: req.RemovePassword,
		ExpiresIn:      req.ExpiresIn,
	}
	if req.Visibility != nil {
		v := storage.Visibility(*req.Visibility)
		in.Visibility = &v
	}
	if err := s.svc.UpdatePasteSettings(r.Context(), id, s.currentUser(r), ClientIP(r, s.trustProxy), in); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	items, err := s.svc.ListPublic(r.Context(), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []service.Summary{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{Items: items, Page: page, PerPage: perPage})
}

func (s *Server) handleSlugCheck(w http.ResponseWriter, r *http.Request) {
	available, err := s.svc.CheckSlugAvailability(r.Context(), chi.URLParam(r, "candidate"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (s *Server) handleOwnerStats(w http.ResponseWriter, r *http.Request) {
	owner := s.currentUser(r)
	if owner == "" {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Code: "unauthenticated"})
		return
	}
	stats, err := s.svc.OwnerStats(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func suppliedPassword(r *http.Request) string {
	if pw := r.Header.Get("X-Paste-Password"); pw != "" {
		return pw
	}
	return r.URL.Query().Get("password")
}

func pasteID(w http.ResponseWriter, r *http.Request, s *Server) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed paste id", Code: "invalid"})
		return 0, false
	}
	return id, true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes)+4096)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Code: "invalid"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError maps the service error taxonomy onto HTTP statuses. Unknown
// errors are infrastructure failures: logged with detail, returned opaque.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	var rerr *service.RateLimitError
	switch {
	case errors.As(err, &rerr):
		retry := int(rerr.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: rerr.Error(), Code: "rate_limited"})
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Code: "invalid"})
	case errors.Is(err, service.ErrDuplicateSlug):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "duplicate_slug"})
	case errors.Is(err, service.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, service.ErrExpired):
		s.writeJSON(w, http.StatusGone, errorResponse{Error: err.Error(), Code: "expired"})
	case errors.Is(err, service.ErrPasswordRequired):
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: "password_required"})
	case errors.Is(err, service.ErrPasswordInvalid):
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "password_invalid"})
	case errors.Is(err, service.ErrUnauthorized):
		s.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "forbidden"})
	default:
		s.logger.Error("internal error", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}
