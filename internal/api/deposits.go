package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/ledger/deposits"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/platform/httpx"
	"github.com/buildledger/buildledger/internal/shared"
)

// DepositHandler serves customer deposits. Creation honours the
// Idempotency-Key header; a deposit posts its journal entry on create so
// a double submit would otherwise double the bank debit.
type DepositHandler struct {
	logger   *slog.Logger
	service  *deposits.Service
	idem     *shared.IdempotencyStore
	validate *validator.Validate
}

func NewDepositHandler(logger *slog.Logger, service *deposits.Service, idem *shared.IdempotencyStore) *DepositHandler {
	return &DepositHandler{logger: logger, service: service, idem: idem, validate: validator.New()}
}

func (h *DepositHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
}

type createDepositRequest struct {
	ProjectID     int64                      `json:"project_id" validate:"required"`
	BankAccountID int64                      `json:"bank_account_id" validate:"required"`
	DepositDate   string                     `json:"deposit_date" validate:"required"`
	Memo          string                     `json:"memo"`
	TotalAmount   string                     `json:"total_amount" validate:"required"`
	Lines         []createDepositLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createDepositLineRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=revenue customer_payment"`
	AccountID  *int64 `json:"account_id"`
	CostCodeID *int64 `json:"cost_code_id"`
	Amount     string `json:"amount" validate:"required"`
}

type updateDepositRequest struct {
	DepositDate *string          `json:"deposit_date"`
	Memo        *string          `json:"memo"`
	LineAmounts map[int64]string `json:"line_amounts"`
}

type depositLineResponse struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	AccountID  *int64 `json:"account_id,omitempty"`
	CostCodeID *int64 `json:"cost_code_id,omitempty"`
	Amount     string `json:"amount"`
}

type depositResponse struct {
	ID             int64                 `json:"id"`
	ProjectID      int64                 `json:"project_id"`
	BankAccountID  int64                 `json:"bank_account_id"`
	DepositDate    string                `json:"deposit_date"`
	TotalAmount    string                `json:"total_amount"`
	Memo           string                `json:"memo,omitempty"`
	JournalEntryID *int64                `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	Lines          []depositLineResponse `json:"lines,omitempty"`
}

func toDepositResponse(d deposits.Deposit) depositResponse {
	out := depositResponse{
		ID:             d.ID,
		ProjectID:      d.ProjectID,
		BankAccountID:  d.BankAccountID,
		DepositDate:    formatDate(d.DepositDate),
		TotalAmount:    d.TotalAmount.String(),
		Memo:           d.Memo,
		JournalEntryID: d.JournalEntryID,
		CreatedAt:      d.CreatedAt,
	}
	for _, line := range d.Lines {
		out.Lines = append(out.Lines, depositLineResponse{
			ID:         line.ID,
			Kind:       string(line.Kind),
			AccountID:  line.AccountID,
			CostCodeID: line.CostCodeID,
			Amount:     line.Amount.String(),
		})
	}
	return out
}

func (h *DepositHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req createDepositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	depositDate, err := parseDate(req.DepositDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid deposit date")
		return
	}
	total, err := money.Parse(req.TotalAmount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := deposits.CreateInput{
		ProjectID:     req.ProjectID,
		BankAccountID: req.BankAccountID,
		DepositDate:   depositDate,
		Memo:          req.Memo,
		TotalAmount:   total,
	}
	for _, line := range req.Lines {
		amount, err := money.Parse(line.Amount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, deposits.CreateLineInput{
			Kind:       deposits.LineKind(line.Kind),
			AccountID:  line.AccountID,
			CostCodeID: line.CostCodeID,
			Amount:     amount,
		})
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if err := h.idem.CheckAndInsert(r.Context(), key, "deposits.create"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	deposit, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		if key != "" {
			if delErr := h.idem.Delete(r.Context(), key); delErr != nil {
				h.logger.Error("release idempotency key", slog.Any("error", delErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepositResponse(deposit))
}

func (h *DepositHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid deposit id")
		return
	}
	deposit, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDepositResponse(deposit))
}

func (h *DepositHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	all, err := h.service.List(r.Context(), actor, queryInt64(r, "project_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]depositResponse, 0, len(all))
	for _, d := range all {
		out = append(out, toDepositResponse(d))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *DepositHandler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid deposit id")
		return
	}
	var req updateDepositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input := deposits.UpdateInput{DepositID: id, Memo: req.Memo}
	if req.DepositDate != nil {
		depositDate, err := parseDate(*req.DepositDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid deposit date")
			return
		}
		input.DepositDate = &depositDate
	}
	if len(req.LineAmounts) > 0 {
		input.LineAmounts = make(map[int64]money.Cents, len(req.LineAmounts))
		for lineID, raw := range req.LineAmounts {
			amount, err := money.Parse(raw)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			input.LineAmounts[lineID] = amount
		}
	}
	deposit, err := h.service.Update(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDepositResponse(deposit))
}
