package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/auth"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// TokenHandler serves API token management. The plaintext token appears in
// the issue response and nowhere else.
type TokenHandler struct {
	logger   *slog.Logger
	service  *auth.Service
	validate *validator.Validate
}

func NewTokenHandler(logger *slog.Logger, service *auth.Service) *TokenHandler {
	return &TokenHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *TokenHandler) MountRoutes(r chi.Router) {
	r.Post("/", h.issue)
	r.Delete("/{id}", h.revoke)
}

type issueTokenRequest struct {
	Name        string   `json:"name" validate:"required"`
	Permissions []string `json:"permissions"`
}

type issueTokenResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *TokenHandler) issue(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req issueTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	plaintext, token, err := h.service.Issue(r.Context(), actor.OwnerID, actor.UserID, req.Name, req.Permissions)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondInternal(w)
		return
	}
	httpx.JSON(w, http.StatusCreated, issueTokenResponse{
		ID:        token.ID,
		Name:      token.Name,
		Token:     plaintext,
		CreatedAt: token.CreatedAt,
	})
}

func (h *TokenHandler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid token id")
		return
	}
	if err := h.service.Revoke(r.Context(), actor, id); err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
