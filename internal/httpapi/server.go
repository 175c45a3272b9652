package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/LetterDesk/internal/auth"
	"github.com/digkill/LetterDesk/internal/catalog"
	"github.com/digkill/LetterDesk/internal/service"
	"github.com/digkill/LetterDesk/internal/session"
)

const (
	clientIDHeader = "X-Client-ID"
	maxBodyBytes   = 64 << 10
)

type Services struct {
	Templates  service.Templates
	Sessions   *session.Manager
	Identity   *service.IdentityService
	Generation *service.GenerationService
	Export     *service.ExportService
	Plans      *service.PlanService
	Profiles   *service.ProfileService
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	svc      Services
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, svc Services) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		svc:      svc,
		router:   r,
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/session", s.handleInitSession)
		api.Get("/templates", s.handleListTemplates)
		api.Group(func(ws chi.Router) {
			ws.Use(requireClientID)
			ws.Get("/session", s.handleGetSession)
			ws.Post("/templates/{id}/select", s.handleSelectTemplate)
			ws.Post("/documents/generate", s.handleGenerate)
			ws.Get("/documents", s.handleHistory)
			ws.Delete("/documents/active", s.handleClearResult)
			ws.Post("/documents/active/export", s.handleExport)
			ws.Post("/auth/signup", s.handleSignUp)
			ws.Post("/auth/signin", s.handleSignIn)
			ws.Post("/auth/signout", s.handleSignOut)
			ws.Post("/auth/refresh", s.handleRefresh)
		})
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Post("/", s.handleCreatePlan)
			r.Put("/{id}", s.handleUpdatePlan)
			r.Delete("/{id}", s.handleDeletePlan)
		})
		admin.Post("/profiles/{id}/credits", s.handleAdjustCredits)
		admin.Post("/profiles/{id}/plan", s.handleAssignPlan)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

type sessionResponse struct {
	ClientID string        `json:"client_id"`
	State    session.State `json:"state"`
}

type authResponse struct {
	Session *auth.Session `json:"session,omitempty"`
	State   session.State `json:"state"`
}

type errorResponse struct {
	Error string         `json:"error"`
	State *session.State `json:"state,omitempty"`
}

type initRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		rejectBody(w, err)
		return
	}
	token := req.Token
	if token == "" {
		token = bearerToken(r)
	}
	clientID, st, err := s.svc.Identity.Init(r.Context(), clientIDFrom(r), token)
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set(clientIDHeader, clientID)
	s.writeJSON(w, http.StatusOK, sessionResponse{ClientID: clientID, State: st})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFrom(r)
	st, err := s.svc.Sessions.Get(r.Context(), clientID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{ClientID: clientID, State: st})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Templates.List())
}

func (s *Server) handleSelectTemplate(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Generation.SelectTemplate(r.Context(), clientIDFrom(r), chi.URLParam(r, "id"))
	s.writeState(w, st, err)
}

type generateRequest struct {
	Template string            `json:"template"`
	Fields   map[string]string `json:"fields"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := s.svc.Generation.Generate(r.Context(), clientIDFrom(r), req.Template, req.Fields)
	s.writeState(w, st, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Sessions.Get(r.Context(), clientIDFrom(r))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !st.Authenticated() {
		s.writeError(w, service.ErrLoginRequired, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, st.History)
}

func (s *Server) handleClearResult(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Generation.ClearResult(r.Context(), clientIDFrom(r))
	s.writeState(w, st, err)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Export.Export(r.Context(), clientIDFrom(r))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := s.svc.Identity.SignUp(r.Context(), clientIDFrom(r), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.writeJSON(w, http.StatusCreated, authResponse{State: st})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, st, err := s.svc.Identity.SignIn(r.Context(), clientIDFrom(r), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Session: sess, State: st})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Identity.SignOut(r.Context(), clientIDFrom(r))
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{State: st})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, st, err := s.svc.Identity.Refresh(r.Context(), clientIDFrom(r), req.RefreshToken)
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Session: sess, State: st})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.Plans.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := service.CreatePlanInput{
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		Credits:     req.Credits,
		IsActive:    req.IsActive,
	}
	plan, err := s.svc.Plans.Create(r.Context(), input)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req planUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := service.UpdatePlanInput{
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		Credits:     req.Credits,
		IsActive:    req.IsActive,
	}
	plan, err := s.svc.Plans.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.svc.Plans.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type creditsRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req creditsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	balance, err := s.svc.Profiles.AdjustCredits(r.Context(), id, req.Delta)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":                id,
		"credits_remaining": balance,
	})
}

type assignPlanRequest struct {
	PlanID int64 `json:"plan_id"`
}

func (s *Server) handleAssignPlan(w http.ResponseWriter, r *http.Request) {
	var req assignPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := s.svc.Profiles.AssignPlan(r.Context(), chi.URLParam(r, "id"), req.PlanID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func requireClientID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if clientIDFrom(r) == "" {
			http.Error(w, "missing "+clientIDHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || s.username == "" || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="letterdesk"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeState answers a workspace transition with the resulting state, or
// with the user-facing message and the state when it was rejected.
func (s *Server) writeState(w http.ResponseWriter, st session.State, err error) {
	if err != nil {
		s.writeError(w, err, &st)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeError(w http.ResponseWriter, err error, st *session.State) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("api handler error", "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: service.Message(err), State: st})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrQuotaExhausted):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrDuplicateSubmission), errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrAuthFailed), errors.Is(err, service.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnknownTemplate), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, catalog.ErrMissingField),
		errors.Is(err, catalog.ErrFieldTooLong), errors.Is(err, service.ErrNothingToExport):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeJSON reads a size-limited JSON body into v and answers the request
// itself when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := readJSON(w, r, v); err != nil {
		rejectBody(w, err)
		return false
	}
	return true
}

func rejectBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "invalid json", http.StatusBadRequest)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func clientIDFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(clientIDHeader))
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

type planRequest struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Credits     int    `json:"credits"`
	IsActive    *bool  `json:"is_active"`
}

type planUpdateRequest struct {
	Code        *string `json:"code"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Credits     *int    `json:"credits"`
	IsActive    *bool   `json:"is_active"`
}
