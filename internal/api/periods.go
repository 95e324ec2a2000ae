package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildledger/buildledger/internal/ledger/periods"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// PeriodHandler serves accounting period close and reopen.
type PeriodHandler struct {
	logger   *slog.Logger
	service  *periods.Service
	validate *validator.Validate
}

func NewPeriodHandler(logger *slog.Logger, service *periods.Service) *PeriodHandler {
	return &PeriodHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *PeriodHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/close", h.close)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reopen", h.reopen)
}

type closePeriodRequest struct {
	ProjectID     int64  `json:"project_id" validate:"required"`
	PeriodEndDate string `json:"period_end_date" validate:"required"`
	Notes         string `json:"notes"`
}

type reopenPeriodRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type periodResponse struct {
	ID            int64      `json:"id"`
	ProjectID     int64      `json:"project_id"`
	PeriodEndDate string     `json:"period_end_date"`
	Status        string     `json:"status"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ClosedBy      *int64     `json:"closed_by,omitempty"`
	ClosureNotes  string     `json:"closure_notes,omitempty"`
	ReopenedAt    *time.Time `json:"reopened_at,omitempty"`
	ReopenedBy    *int64     `json:"reopened_by,omitempty"`
	ReopenReason  string     `json:"reopen_reason,omitempty"`
}

func toPeriodResponse(p periods.Period) periodResponse {
	return periodResponse{
		ID:            p.ID,
		ProjectID:     p.ProjectID,
		PeriodEndDate: formatDate(p.PeriodEndDate),
		Status:        string(p.Status),
		ClosedAt:      p.ClosedAt,
		ClosedBy:      p.ClosedBy,
		ClosureNotes:  p.ClosureNotes,
		ReopenedAt:    p.ReopenedAt,
		ReopenedBy:    p.ReopenedBy,
		ReopenReason:  p.ReopenReason,
	}
}

func (h *PeriodHandler) close(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req closePeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	endDate, err := parseDate(req.PeriodEndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period end date")
		return
	}
	period, err := h.service.Close(r.Context(), actor, periods.CloseInput{
		ProjectID:     req.ProjectID,
		PeriodEndDate: endDate,
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodResponse(period))
}

func (h *PeriodHandler) reopen(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	var req reopenPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	period, err := h.service.Reopen(r.Context(), actor, periods.ReopenInput{PeriodID: id, Reason: req.Reason})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *PeriodHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	period, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *PeriodHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	all, err := h.service.ListByProject(r.Context(), actor, queryInt64(r, "project_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(all))
	for _, p := range all {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}
