package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/ledger/accounts"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// AccountHandler serves the chart of accounts and balance reports.
type AccountHandler struct {
	logger   *slog.Logger
	service  *accounts.Service
	validate *validator.Validate
}

func NewAccountHandler(logger *slog.Logger, service *accounts.Service) *AccountHandler {
	return &AccountHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *AccountHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Get("/{id}/balance", h.balance)
}

type createAccountRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID *int64 `json:"parent_id"`
}

type updateAccountRequest struct {
	Name     string `json:"name" validate:"required"`
	IsActive *bool  `json:"is_active"`
	Type     string `json:"type"`
}

type accountResponse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type balanceResponse struct {
	AccountID int64  `json:"account_id"`
	Debits    string `json:"debits"`
	Credits   string `json:"credits"`
	Net       string `json:"net"`
	AsOf      string `json:"as_of"`
}

func toAccountResponse(a accounts.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Code:      a.Code,
		Name:      a.Name,
		Type:      string(a.Type),
		ParentID:  a.ParentID,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toBalanceResponse(b accounts.Balance) balanceResponse {
	return balanceResponse{
		AccountID: b.AccountID,
		Debits:    b.Debits.String(),
		Credits:   b.Credits.String(),
		Net:       b.Net.String(),
		AsOf:      formatDate(b.AsOf),
	}
}

func (h *AccountHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), actor, accounts.CreateInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     accounts.AccountType(req.Type),
		ParentID: req.ParentID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *AccountHandler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	account, err := h.service.Update(r.Context(), actor, accounts.UpdateInput{
		AccountID: id,
		Name:      req.Name,
		IsActive:  req.IsActive,
		Type:      accounts.AccountType(req.Type),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	all, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(all))
	for _, a := range all {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// asOf defaults to now when the query parameter is absent; the service
// applies the same default, so the zero value just passes through.
func asOfParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Time{}, nil
	}
	return parseDate(raw)
}

func (h *AccountHandler) balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid as_of date")
		return
	}
	balance, err := h.service.Balance(r.Context(), actor, id, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (h *AccountHandler) trialBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid as_of date")
		return
	}
	balances, err := h.service.TrialBalance(r.Context(), actor, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalanceResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}
