package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"quiz-match-service/internal/auth"
	"quiz-match-service/internal/domain"
)

// AdminVerifier resolves a bearer token that must carry the admin role.
type AdminVerifier interface {
	VerifyAdmin(token string) (string, error)
}

// AdminHandler exposes match lifecycle operations as a small JSON API.
// Every route requires an admin bearer token.
type AdminHandler struct {
	service  MatchService
	verifier AdminVerifier
}

func NewAdminHandler(service MatchService, verifier AdminVerifier) *AdminHandler {
	return &AdminHandler{service: service, verifier: verifier}
}

type createMatchRequest struct {
	Players       []string          `json:"players"`
	QuestionSetID string            `json:"questionSetId,omitempty"`
	Questions     []domain.Question `json:"questions,omitempty"`
}

type createMatchResponse struct {
	MatchID string `json:"matchId"`
}

type terminateMatchRequest struct {
	Reason domain.EndReason `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter mounts the admin API, the WebSocket endpoint and the health
// check. Cross-origin requests are only allowed from allowedOrigins; an
// empty list allows none.
func NewRouter(admin *AdminHandler, ws *WSHandler, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws", ws.ServeWS)
	mux.Handle("POST /matches", admin.requireAdmin(admin.createMatch))
	mux.Handle("GET /matches/{id}", admin.requireAdmin(admin.getMatch))
	mux.Handle("POST /matches/{id}/start", admin.requireAdmin(admin.startMatch))
	mux.Handle("POST /matches/{id}/terminate", admin.requireAdmin(admin.terminateMatch))

	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}
	if len(allowedOrigins) == 0 {
		// rs/cors treats an empty list as "*"
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts).Handler(mux)
}

// requireAdmin rejects requests without a valid admin bearer token.
func (h *AdminHandler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authorization header required"})
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token format"})
			return
		}
		userID, err := h.verifier.VerifyAdmin(token)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrNotAdmin) {
				status = http.StatusForbidden
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		log.Debug().Str("user_id", userID).Str("method", r.Method).Str("path", r.URL.Path).Msg("admin request")
		next(w, r)
	})
}

func (h *AdminHandler) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var (
		id  string
		err error
	)
	if req.QuestionSetID != "" {
		id, err = h.service.CreateMatchFromSet(r.Context(), req.Players, req.QuestionSetID)
	} else {
		id, err = h.service.CreateMatch(r.Context(), req.Players, req.Questions)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createMatchResponse{MatchID: id})
}

func (h *AdminHandler) getMatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *AdminHandler) startMatch(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartMatch(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) terminateMatch(w http.ResponseWriter, r *http.Request) {
	req := terminateMatchRequest{Reason: domain.EndAdmin}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}
	switch req.Reason {
	case "":
		req.Reason = domain.EndAdmin
	case domain.EndAdmin, domain.EndAbandoned, domain.EndShutdown:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported reason"})
		return
	}

	if err := h.service.TerminateMatch(r.Context(), r.PathValue("id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrMatchNotFound), errors.Is(err, domain.ErrQuestionSetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyStarted), errors.Is(err, domain.ErrNotStarted), errors.Is(err, domain.ErrMatchExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("admin request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
