package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/ledger/bills"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/platform/httpx"
	"github.com/buildledger/buildledger/internal/shared"
)

// BillHandler serves vendor bills: draft entry, posting, payment and
// reversal. Payments honour the Idempotency-Key header so a retried
// request cannot pay the same bills twice.
type BillHandler struct {
	logger   *slog.Logger
	service  *bills.Service
	idem     *shared.IdempotencyStore
	validate *validator.Validate
}

func NewBillHandler(logger *slog.Logger, service *bills.Service, idem *shared.IdempotencyStore) *BillHandler {
	return &BillHandler{logger: logger, service: service, idem: idem, validate: validator.New()}
}

func (h *BillHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/payments", h.pay)
	r.Get("/{id}", h.get)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/reverse", h.reverse)
}

type createBillRequest struct {
	VendorID    int64                   `json:"vendor_id" validate:"required"`
	ProjectID   int64                   `json:"project_id" validate:"required"`
	BillDate    string                  `json:"bill_date" validate:"required"`
	DueDate     string                  `json:"due_date" validate:"required"`
	TotalAmount string                  `json:"total_amount" validate:"required"`
	Lines       []createBillLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createBillLineRequest struct {
	AccountID  int64  `json:"account_id" validate:"required"`
	CostCodeID *int64 `json:"cost_code_id"`
	LotID      *int64 `json:"lot_id"`
	POLink     string `json:"po_link" validate:"omitempty,oneof=auto none explicit"`
	POID       *int64 `json:"po_id"`
	Amount     string `json:"amount" validate:"required"`
}

type payBillsRequest struct {
	BillIDs          []int64 `json:"bill_ids" validate:"required,min=1"`
	PaymentAccountID int64   `json:"payment_account_id" validate:"required"`
	PaymentDate      string  `json:"payment_date" validate:"required"`
	Memo             string  `json:"memo"`
	Amount           *string `json:"amount"`
}

type billLineResponse struct {
	ID         int64  `json:"id"`
	AccountID  int64  `json:"account_id"`
	CostCodeID *int64 `json:"cost_code_id,omitempty"`
	LotID      *int64 `json:"lot_id,omitempty"`
	POLink     string `json:"po_link"`
	POID       *int64 `json:"po_id,omitempty"`
	Amount     string `json:"amount"`
}

type billResponse struct {
	ID             int64              `json:"id"`
	VendorID       int64              `json:"vendor_id"`
	ProjectID      int64              `json:"project_id"`
	BillDate       string             `json:"bill_date"`
	DueDate        string             `json:"due_date"`
	TotalAmount    string             `json:"total_amount"`
	AmountPaid     string             `json:"amount_paid"`
	Remaining      string             `json:"remaining"`
	Status         string             `json:"status"`
	IsReversal     bool               `json:"is_reversal"`
	ReversedAt     *time.Time         `json:"reversed_at,omitempty"`
	JournalEntryID *int64             `json:"journal_entry_id,omitempty"`
	Lines          []billLineResponse `json:"lines,omitempty"`
}

func toBillResponse(b bills.Bill) billResponse {
	out := billResponse{
		ID:             b.ID,
		VendorID:       b.VendorID,
		ProjectID:      b.ProjectID,
		BillDate:       formatDate(b.BillDate),
		DueDate:        formatDate(b.DueDate),
		TotalAmount:    b.TotalAmount.String(),
		AmountPaid:     b.AmountPaid.String(),
		Remaining:      b.Remaining().String(),
		Status:         string(b.Status),
		IsReversal:     b.IsReversal,
		ReversedAt:     b.ReversedAt,
		JournalEntryID: b.JournalEntryID,
	}
	for _, line := range b.Lines {
		resp := billLineResponse{
			ID:         line.ID,
			AccountID:  line.AccountID,
			CostCodeID: line.CostCodeID,
			LotID:      line.LotID,
			POLink:     string(line.POLink.Kind),
			Amount:     line.Amount.String(),
		}
		if line.POLink.Kind == bills.POLinkExplicit {
			poID := line.POLink.POID
			resp.POID = &poID
		}
		out.Lines = append(out.Lines, resp)
	}
	return out
}

func toPOLink(kind string, poID *int64) (bills.POLink, error) {
	switch kind {
	case "", string(bills.POLinkAuto):
		return bills.AutoMatch(), nil
	case string(bills.POLinkNone):
		return bills.NoPO(), nil
	case string(bills.POLinkExplicit):
		if poID == nil || *poID == 0 {
			return bills.POLink{}, errors.New("explicit po link requires po_id")
		}
		return bills.ExplicitPO(*poID), nil
	default:
		return bills.POLink{}, errors.New("unknown po link kind")
	}
}

func (h *BillHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	billDate, err := parseDate(req.BillDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill date")
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid due date")
		return
	}
	total, err := money.Parse(req.TotalAmount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := bills.CreateInput{
		VendorID:    req.VendorID,
		ProjectID:   req.ProjectID,
		BillDate:    billDate,
		DueDate:     dueDate,
		TotalAmount: total,
	}
	for _, line := range req.Lines {
		amount, err := money.Parse(line.Amount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		link, err := toPOLink(line.POLink, line.POID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		input.Lines = append(input.Lines, bills.CreateLineInput{
			AccountID:  line.AccountID,
			CostCodeID: line.CostCodeID,
			LotID:      line.LotID,
			POLink:     link,
			Amount:     amount,
		})
	}
	bill, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillResponse(bill))
}

func (h *BillHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	bill, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *BillHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	filter := bills.ListFilter{
		Status:    bills.BillStatus(r.URL.Query().Get("status")),
		VendorID:  queryInt64(r, "vendor_id"),
		ProjectID: queryInt64(r, "project_id"),
	}
	all, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]billResponse, 0, len(all))
	for _, b := range all {
		out = append(out, toBillResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *BillHandler) post(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	bill, err := h.service.Post(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *BillHandler) pay(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req payBillsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	paymentDate, err := parseDate(req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment date")
		return
	}
	input := bills.PayInput{
		BillIDs:          req.BillIDs,
		PaymentAccountID: req.PaymentAccountID,
		PaymentDate:      paymentDate,
		Memo:             req.Memo,
	}
	if req.Amount != nil {
		amount, err := money.Parse(*req.Amount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.PaymentAmount = &amount
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if err := h.idem.CheckAndInsert(r.Context(), key, "bills.pay"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	entry, err := h.service.Pay(r.Context(), actor, input)
	if err != nil {
		if key != "" {
			// Release the key so the caller can retry after fixing the request.
			if delErr := h.idem.Delete(r.Context(), key); delErr != nil {
				h.logger.Error("release idempotency key", slog.Any("error", delErr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalEntryResponse(entry))
}

func (h *BillHandler) reverse(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	bill, err := h.service.Reverse(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}
