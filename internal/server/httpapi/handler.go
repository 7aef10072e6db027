// Package httpapi exposes the beacon record store over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/safety-beacon/internal/api"
	"github.com/and161185/safety-beacon/internal/convert"
	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/recordstore"
	"github.com/and161185/safety-beacon/internal/service"
)

const maxBodyBytes = 1 << 20

// Server wires services into HTTP handlers.
type Server struct {
	auth      service.AuthService
	accounts  service.AccountService
	bookmarks service.BookmarkService
	query     service.QueryService
	db        Pinger
	log       *zap.Logger
}

// Pinger reports database reachability for the health route.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option customizes a Server.
type Option func(*Server)

// WithPinger makes the health route ping the database.
func WithPinger(p Pinger) Option { return func(s *Server) { s.db = p } }

// New constructs an HTTP API server with injected services.
func New(auth service.AuthService, accounts service.AccountService, bookmarks service.BookmarkService, query service.QueryService, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{auth: auth, accounts: accounts, bookmarks: bookmarks, query: query, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))

	r.Get(api.PathHealth, s.healthz)
	r.Post(api.PathLogin, s.login)
	r.Post(api.PathAccounts, s.register)

	r.Group(func(r chi.Router) {
		r.Use(Auth(s.auth))
		r.Post(api.PathLogout, s.logout)
		r.Post(api.PathLink, s.link)
		r.Get(api.PathAccounts+"/{id}", s.getAccount)
		r.Post(api.PathQuery+"/{collection}", s.runQuery)
		r.Post(api.PathBookmarks, s.createBookmark)
		r.Put(api.PathBookmarks+"/{id}", s.updateBookmark)
		r.Delete(api.PathBookmarks+"/{id}", s.deleteBookmark)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("health: database ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, api.Error{Error: "database unavailable", Code: api.CodeInternal})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth ---

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	h, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIHandle(h))
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	h, err := s.auth.Register(r.Context(), model.Registration{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToAPIHandle(h))
}

// logout only acknowledges: access tokens are stateless and expire on their own.
func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// --- Accounts ---

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	a, err := s.accounts.Get(r.Context(), caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIAccount(a))
}

func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	var req api.LinkRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.accounts.Link(r.Context(), caller(r), req.PatientEmail)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIAccount(a))
}

// --- Query ---

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	recs, err := s.query.Query(r.Context(), caller(r), chi.URLParam(r, "collection"), req.Filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []recordstore.Record{}
	}
	writeJSON(w, http.StatusOK, api.QueryResponse{Records: recs})
}

// --- Bookmarks ---

func (s *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	var req api.Bookmark
	if !s.decode(w, r, &req) {
		return
	}
	b, err := convert.FromAPIBookmark(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b.ID = uuid.Nil
	out, err := s.bookmarks.Create(r.Context(), caller(r), b)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToAPIBookmark(out))
}

func (s *Server) updateBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req api.BookmarkChange
	if !s.decode(w, r, &req) {
		return
	}
	ch, err := convert.FromAPIBookmarkChange(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.bookmarks.Update(r.Context(), caller(r), id, ch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIBookmark(out))
}

func (s *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.bookmarks.Delete(r.Context(), caller(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func caller(r *http.Request) uuid.UUID {
	id, _ := AccountIDFromCtx(r.Context())
	return id
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.ErrValidation)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.log.Debug("bad request body", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, errs.ErrValidation)
		return false
	}
	return true
}

// fail logs unexpected errors and writes the mapped error body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, api.CodeNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, api.CodeUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, api.CodeForbidden
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, api.CodeRateLimited
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, api.CodeAlreadyExists
	case errors.Is(err, errs.ErrAlreadyLinked):
		return http.StatusConflict, api.CodeAlreadyLinked
	case errors.Is(err, errs.ErrCorruptRelationship):
		return http.StatusConflict, api.CodeCorrupt
	case errors.Is(err, errs.ErrQueryTypeMismatch):
		return http.StatusUnprocessableEntity, api.CodeQueryTypeMismatch
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, api.CodeValidation
	default:
		return http.StatusInternalServerError, api.CodeInternal
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal"
	}
	writeJSON(w, status, api.Error{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
