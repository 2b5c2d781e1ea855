package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Sibusisongondo/Tdone/internal/ratelimit"
	"github.com/Sibusisongondo/Tdone/internal/util"
	"github.com/Sibusisongondo/Tdone/pkg/domain"
	"github.com/Sibusisongondo/Tdone/pkg/store"
	"github.com/Sibusisongondo/Tdone/services/magazine/internal/app"
)

const multipartMemory = 32 << 20

// TokenVerifier turns a bearer token into a verified identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// Limiter is a per-key request quota. A nil Limiter in Config disables the limit.
type Limiter interface {
	Take(ctx context.Context, key string) ratelimit.Decision
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  TokenVerifier
	Revoker        store.TokenRevoker
	UploadLimiter  Limiter
	ReadLimiter    Limiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
	// Files serves objects of the filesystem storage backend under /files/.
	Files http.Handler
}

// Server exposes HTTP endpoints for the magazine service.
type Server struct {
	app            *app.App
	tokenVerifier  TokenVerifier
	revoker        store.TokenRevoker
	uploadLimiter  Limiter
	readLimiter    Limiter
	trustedProxies *util.TrustedProxies
	router         chi.Router
	knownProfiles  *profileSet
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server requires token verifier")
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		revoker:        cfg.Revoker,
		uploadLimiter:  cfg.UploadLimiter,
		readLimiter:    cfg.ReadLimiter,
		trustedProxies: cfg.TrustedProxies,
		knownProfiles:  newProfileSet(defaultProfileCacheSize),
	}
	s.routes(cfg)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("magazine", s.router))
}

func (s *Server) routes(cfg Config) {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	if cfg.Files != nil {
		r.With(util.WithEmbeddableHeaders(cfg.AllowedOrigins)).
			Handle("/files/*", http.StripPrefix("/files/", cfg.Files))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(util.WithSecurityHeaders)

		r.Get("/categories", s.handleCategories)
		r.Get("/stats", s.handleStats)
		r.Get("/session", s.requireUser(s.handleSession))
		r.Post("/session/signout", s.requireUser(s.handleSignOut))
		r.Get("/me/magazines", s.requireUser(s.handleOwnMagazines))
		r.Get("/me/stats", s.requireUser(s.handleDashboardStats))

		r.Route("/magazines", func(r chi.Router) {
			r.Get("/", s.handleListMagazines)
			r.Post("/", s.requireUser(s.handleUploadMagazine))
			r.Route("/{magazineID}", func(r chi.Router) {
				r.Get("/", s.handleGetMagazine)
				r.Delete("/", s.requireUser(s.handleDeleteMagazine))
				r.Get("/read", s.optionalUser(s.handleRead))
				r.Post("/viewer", s.requireUser(s.handleViewerAction))
				r.Get("/download", s.handleDownload)
				r.Get("/share", s.handleShare)
			})
		})

		r.Get("/artists/{artistID}", s.handleArtist)
		r.Get("/artists/{artistID}/magazines/{magazineID}", s.handleArtist)
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.Identity)

type optionalUserHandler func(http.ResponseWriter, *http.Request, *domain.Identity)

func (s *Server) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		ident, ok := s.authenticate(w, r, token)
		if !ok {
			return
		}
		next(w, r, ident)
	}
}

// optionalUser passes nil for anonymous callers. A token that is present but
// invalid is still rejected.
func (s *Server) optionalUser(next optionalUserHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			next(w, r, nil)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		ident, ok := s.authenticate(w, r, token)
		if !ok {
			return
		}
		next(w, r, &ident)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, token string) (domain.Identity, bool) {
	logger := util.LoggerFromContext(r.Context())
	ident, err := s.tokenVerifier.Verify(token)
	if err != nil {
		logger.Debug("token rejected", "err", err)
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
		return domain.Identity{}, false
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(r.Context(), ident.TokenID)
		if err != nil {
			logger.Error("check token revocation", "err", err)
			writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "session check unavailable")
			return domain.Identity{}, false
		}
		if revoked {
			writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_REVOKED", "session has ended")
			return domain.Identity{}, false
		}
	}
	if !s.knownProfiles.has(ident.UserID) {
		if _, err := s.app.EnsureProfile(r.Context(), ident); err != nil {
			logger.Error("ensure profile", "user_id", ident.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "internal error")
			return domain.Identity{}, false
		}
		s.knownProfiles.add(ident.UserID)
	}
	return ident, true
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter Limiter, key string) bool {
	if limiter == nil {
		return true
	}
	d := limiter.Take(r.Context(), key)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if d.Allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
	return false
}

// allowRead applies the per-client quota shared by the public file routes.
func (s *Server) allowRead(w http.ResponseWriter, r *http.Request) bool {
	return s.allow(w, r, s.readLimiter, "read:"+util.ClientIP(r, s.trustedProxies))
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.app.Categories()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Stats(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	profile, err := s.app.EnsureProfile(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"profile": profile,
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if s.revoker != nil {
		ttl := time.Until(user.ExpiresAt)
		if err := s.revoker.Revoke(r.Context(), user.TokenID, ttl); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	util.LoggerFromContext(r.Context()).Info("signed out", "user_id", user.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (s *Server) handleListMagazines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	mags, err := s.app.ListMagazines(r.Context(), store.MagazineFilter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, mags)
}

func (s *Server) handleOwnMagazines(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	mags, err := s.app.ListOwnMagazines(r.Context(), user, limit, offset)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, mags)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	stats, err := s.app.DashboardStats(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetMagazine(w http.ResponseWriter, r *http.Request) {
	mag, err := s.app.GetMagazine(r.Context(), chi.URLParam(r, "magazineID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mag)
}

func (s *Server) handleUploadMagazine(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if !s.allow(w, r, s.uploadLimiter, "upload:"+user.UserID) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+s.app.MaxCoverBytes()+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "MAGAZINE_FILE_TOO_LARGE", app.ErrFileTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_UPLOAD_FORM", "invalid form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := app.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
	}
	var err error
	if in.IsDownloadable, err = formBool(r, "is_downloadable", true); err != nil {
		writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_REQUEST", "is_downloadable must be a boolean")
		return
	}
	if in.IsReadableOnline, err = formBool(r, "is_readable_online", true); err != nil {
		writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_REQUEST", "is_readable_online must be a boolean")
		return
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		in.File = &app.FileInput{Name: header.Filename, Size: header.Size, Content: file}
	case !errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_UPLOAD_FORM", "invalid form data")
		return
	}
	cover, coverHeader, err := r.FormFile("cover")
	switch {
	case err == nil:
		defer cover.Close()
		in.Cover = &app.FileInput{Name: coverHeader.Filename, Size: coverHeader.Size, Content: cover}
	case !errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_UPLOAD_FORM", "invalid form data")
		return
	}

	mag, err := s.app.UploadMagazine(r.Context(), user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mag)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request, user *domain.Identity) {
	if !s.allowRead(w, r) {
		return
	}
	var req app.ReadRequest
	q := r.URL.Query()
	if page, err := strconv.Atoi(strings.TrimSpace(q.Get("page"))); err == nil {
		req.Page = &page
	}
	if scale, err := strconv.ParseFloat(strings.TrimSpace(q.Get("scale")), 64); err == nil {
		req.Scale = &scale
	}
	reading, err := s.app.OpenReader(r.Context(), user, chi.URLParam(r, "magazineID"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

type viewerActionRequest struct {
	Action string `json:"action"`
	Page   int    `json:"page"`
}

func (s *Server) handleViewerAction(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	var req viewerActionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VIEWER_INVALID_REQUEST", "invalid JSON body")
		return
	}
	reading, err := s.app.ApplyViewerAction(r.Context(), user, chi.URLParam(r, "magazineID"), req.Action, req.Page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !s.allowRead(w, r) {
		return
	}
	link, filename, err := s.app.DownloadURL(r.Context(), chi.URLParam(r, "magazineID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if redirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); redirect {
		http.Redirect(w, r, link, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      link,
		"filename": filename,
	})
}

func (s *Server) handleDeleteMagazine(w http.ResponseWriter, r *http.Request, user domain.Identity) {
	if err := s.app.DeleteMagazine(r.Context(), user, chi.URLParam(r, "magazineID")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if !s.allowRead(w, r) {
		return
	}
	link, err := s.app.ShareLink(r.Context(), chi.URLParam(r, "magazineID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) handleArtist(w http.ResponseWriter, r *http.Request) {
	page, err := s.app.GetArtist(r.Context(), chi.URLParam(r, "artistID"), chi.URLParam(r, "magazineID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	limit, offset := 0, 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_REQUEST", "limit must be a non-negative integer")
			return 0, 0, false
		}
		limit = n
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "MAGAZINE_INVALID_REQUEST", "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func formBool(r *http.Request, field string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func writeList(w http.ResponseWriter, mags []domain.Magazine) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": mags,
		"count": len(mags),
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
