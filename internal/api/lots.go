package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/ledger/lots"
	"github.com/buildledger/buildledger/internal/ledger/money"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// LotHandler serves project lots and allocation previews.
type LotHandler struct {
	logger   *slog.Logger
	service  *lots.Service
	validate *validator.Validate
}

func NewLotHandler(logger *slog.Logger, service *lots.Service) *LotHandler {
	return &LotHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *LotHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/allocations/preview", h.previewAllocation)
	r.Get("/{id}", h.get)
}

type createLotRequest struct {
	ProjectID int64  `json:"project_id" validate:"required"`
	LotName   string `json:"lot_name" validate:"required"`
}

type lotResponse struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	LotNumber int       `json:"lot_number"`
	LotName   string    `json:"lot_name"`
	CreatedAt time.Time `json:"created_at"`
}

// previewAllocationRequest asks for a split of total across lot_ids. When
// amounts are present they are validated as a manual allocation instead.
type previewAllocationRequest struct {
	Total   string           `json:"total" validate:"required"`
	LotIDs  []int64          `json:"lot_ids"`
	Amounts map[int64]string `json:"amounts"`
}

type previewAllocationResponse struct {
	Manual      bool             `json:"manual"`
	Allocations map[int64]string `json:"allocations"`
}

func toLotResponse(lot lots.ProjectLot) lotResponse {
	return lotResponse{
		ID:        lot.ID,
		ProjectID: lot.ProjectID,
		LotNumber: lot.LotNumber,
		LotName:   lot.LotName,
		CreatedAt: lot.CreatedAt,
	}
}

func (h *LotHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req createLotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	lot, err := h.service.Create(r.Context(), actor, lots.CreateInput{ProjectID: req.ProjectID, LotName: req.LotName})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLotResponse(lot))
}

func (h *LotHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid lot id")
		return
	}
	lot, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLotResponse(lot))
}

func (h *LotHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	all, err := h.service.List(r.Context(), actor, queryInt64(r, "project_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]lotResponse, 0, len(all))
	for _, lot := range all {
		out = append(out, toLotResponse(lot))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *LotHandler) previewAllocation(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.ActorOrReject(w, r); !ok {
		return
	}
	var req previewAllocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	total, err := money.Parse(req.Total)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var allocations map[int64]money.Cents
	manual := len(req.Amounts) > 0
	if manual {
		allocations = make(map[int64]money.Cents, len(req.Amounts))
		for lotID, raw := range req.Amounts {
			amount, err := money.Parse(raw)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			allocations[lotID] = amount
		}
		if err := lots.ValidateManual(total, allocations); err != nil {
			httpx.RespondError(w, err)
			return
		}
	} else {
		allocations, err = lots.EvenSplit(total, req.LotIDs)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	out := previewAllocationResponse{Manual: manual, Allocations: make(map[int64]string, len(allocations))}
	for lotID, amount := range allocations {
		out.Allocations[lotID] = amount.String()
	}
	httpx.JSON(w, http.StatusOK, out)
}
