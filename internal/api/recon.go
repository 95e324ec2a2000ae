package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/ledger/recon"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// ReconHandler serves bank reconciliation sessions.
type ReconHandler struct {
	logger   *slog.Logger
	service  *recon.Service
	validate *validator.Validate
}

func NewReconHandler(logger *slog.Logger, service *recon.Service) *ReconHandler {
	return &ReconHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *ReconHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.start)
	r.Get("/{id}", h.get)
	r.Post("/{id}/transactions", h.setCleared)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/reset", h.reset)
	r.Post("/{id}/undo", h.undo)
}

type startReconRequest struct {
	BankAccountID    int64  `json:"bank_account_id" validate:"required"`
	StatementDate    string `json:"statement_date" validate:"required"`
	StatementBalance string `json:"statement_balance" validate:"required"`
}

type setClearedRequest struct {
	Kind    string `json:"kind" validate:"required,oneof=bill deposit journal_line"`
	ID      int64  `json:"id" validate:"required"`
	Cleared bool   `json:"cleared"`
}

type reconResponse struct {
	ID               uuid.UUID  `json:"id"`
	BankAccountID    int64      `json:"bank_account_id"`
	StatementDate    string     `json:"statement_date"`
	StatementBalance string     `json:"statement_balance"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type resetResponse struct {
	Bills        int64 `json:"bills"`
	Deposits     int64 `json:"deposits"`
	JournalLines int64 `json:"journal_lines"`
}

func toReconResponse(rec recon.BankReconciliation) reconResponse {
	return reconResponse{
		ID:               rec.ID,
		BankAccountID:    rec.BankAccountID,
		StatementDate:    formatDate(rec.StatementDate),
		StatementBalance: rec.StatementBalance.String(),
		Status:           string(rec.Status),
		CreatedAt:        rec.CreatedAt,
		CompletedAt:      rec.CompletedAt,
	}
}

func reconIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *ReconHandler) start(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req startReconRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	statementDate, err := parseDate(req.StatementDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid statement date")
		return
	}
	balance, err := money.Parse(req.StatementBalance)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Start(r.Context(), actor, recon.StartInput{
		BankAccountID:    req.BankAccountID,
		StatementDate:    statementDate,
		StatementBalance: balance,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReconResponse(rec))
}

func (h *ReconHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := reconIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reconciliation id")
		return
	}
	rec, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(rec))
}

func (h *ReconHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	all, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]reconResponse, 0, len(all))
	for _, rec := range all {
		out = append(out, toReconResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *ReconHandler) setCleared(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := reconIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reconciliation id")
		return
	}
	var req setClearedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	ref := recon.TxRef{Kind: recon.TxKind(req.Kind), ID: req.ID}
	if req.Cleared {
		err = h.service.Mark(r.Context(), actor, id, ref)
	} else {
		err = h.service.Unmark(r.Context(), actor, id, ref)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReconHandler) complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := reconIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reconciliation id")
		return
	}
	rec, err := h.service.Complete(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(rec))
}

func (h *ReconHandler) reset(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := reconIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reconciliation id")
		return
	}
	result, err := h.service.Reset(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resetResponse{
		Bills:        result.Bills,
		Deposits:     result.Deposits,
		JournalLines: result.JournalLines,
	})
}

func (h *ReconHandler) undo(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := reconIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reconciliation id")
		return
	}
	rec, err := h.service.Undo(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(rec))
}
