package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/ledger/purchaseorders"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// PurchaseOrderHandler serves purchase orders and the bill matching
// projection.
type PurchaseOrderHandler struct {
	logger   *slog.Logger
	service  *purchaseorders.Service
	validate *validator.Validate
}

func NewPurchaseOrderHandler(logger *slog.Logger, service *purchaseorders.Service) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *PurchaseOrderHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/matches", h.match)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type createPORequest struct {
	ProjectID   int64  `json:"project_id" validate:"required"`
	VendorID    int64  `json:"vendor_id" validate:"required"`
	CostCodeID  *int64 `json:"cost_code_id"`
	PONumber    string `json:"po_number" validate:"required"`
	Description string `json:"description"`
	TotalAmount string `json:"total_amount" validate:"required"`
}

type updatePORequest struct {
	Description *string `json:"description"`
	TotalAmount *string `json:"total_amount"`
}

type matchRequest struct {
	BillIDs []int64 `json:"bill_ids" validate:"required,min=1"`
}

type poResponse struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	VendorID    int64     `json:"vendor_id"`
	CostCodeID  *int64    `json:"cost_code_id,omitempty"`
	PONumber    string    `json:"po_number"`
	Description string    `json:"description,omitempty"`
	TotalAmount string    `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toPOResponse(po purchaseorders.PurchaseOrder) poResponse {
	return poResponse{
		ID:          po.ID,
		ProjectID:   po.ProjectID,
		VendorID:    po.VendorID,
		CostCodeID:  po.CostCodeID,
		PONumber:    po.PONumber,
		Description: po.Description,
		TotalAmount: po.TotalAmount.String(),
		CreatedAt:   po.CreatedAt,
		UpdatedAt:   po.UpdatedAt,
	}
}

func (h *PurchaseOrderHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	total, err := money.Parse(req.TotalAmount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.Create(r.Context(), actor, purchaseorders.CreateInput{
		ProjectID:   req.ProjectID,
		VendorID:    req.VendorID,
		CostCodeID:  req.CostCodeID,
		PONumber:    req.PONumber,
		Description: req.Description,
		TotalAmount: total,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPOResponse(po))
}

func (h *PurchaseOrderHandler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase order id")
		return
	}
	var req updatePORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input := purchaseorders.UpdateInput{POID: id, Description: req.Description}
	if req.TotalAmount != nil {
		total, err := money.Parse(*req.TotalAmount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.TotalAmount = &total
	}
	po, err := h.service.Update(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPOResponse(po))
}

func (h *PurchaseOrderHandler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase order id")
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PurchaseOrderHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid purchase order id")
		return
	}
	po, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPOResponse(po))
}

func (h *PurchaseOrderHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	all, err := h.service.List(r.Context(), actor, queryInt64(r, "project_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]poResponse, 0, len(all))
	for _, po := range all {
		out = append(out, toPOResponse(po))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// match returns the PO matching projection for the requested bills, keyed
// by bill id. Match results carry their own JSON shape because the same
// payload is cached in redis.
func (h *PurchaseOrderHandler) match(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req matchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	matches, err := h.service.Match(r.Context(), actor, req.BillIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matches)
}
