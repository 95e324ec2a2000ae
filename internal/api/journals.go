package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/buildledger/buildledger/internal/ledger/journals"
	"github.com/buildledger/buildledger/internal/platform/httpx"
)

// JournalHandler serves manual journal entries and entry-level actions.
type JournalHandler struct {
	logger   *slog.Logger
	service  *journals.Service
	validate *validator.Validate
}

func NewJournalHandler(logger *slog.Logger, service *journals.Service) *JournalHandler {
	return &JournalHandler{logger: logger, service: service, validate: validator.New()}
}

func (h *JournalHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
	r.Delete("/{id}", h.delete)
}

type postEntryRequest struct {
	EntryDate   string             `json:"entry_date" validate:"required"`
	Description string             `json:"description"`
	ProjectID   *int64             `json:"project_id"`
	Lines       []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type postLineRequest struct {
	AccountID  int64  `json:"account_id" validate:"required"`
	Debit      string `json:"debit"`
	Credit     string `json:"credit"`
	ProjectID  *int64 `json:"project_id"`
	LotID      *int64 `json:"lot_id"`
	CostCodeID *int64 `json:"cost_code_id"`
}

type reverseEntryRequest struct {
	Description string `json:"description"`
	EntryDate   string `json:"entry_date"`
}

type deleteEntryRequest struct {
	Reason string `json:"reason"`
}

type journalLineResponse struct {
	ID         int64  `json:"id"`
	AccountID  int64  `json:"account_id"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	LotID      *int64 `json:"lot_id,omitempty"`
	CostCodeID *int64 `json:"cost_code_id,omitempty"`
	Debit      string `json:"debit"`
	Credit     string `json:"credit"`
	Reconciled bool   `json:"reconciled"`
}

type journalEntryResponse struct {
	ID          int64                 `json:"id"`
	EntryDate   string                `json:"entry_date"`
	Description string                `json:"description"`
	SourceType  string                `json:"source_type"`
	SourceID    uuid.UUID             `json:"source_id"`
	ProjectID   *int64                `json:"project_id,omitempty"`
	PostedAt    *time.Time            `json:"posted_at,omitempty"`
	ReversedAt  *time.Time            `json:"reversed_at,omitempty"`
	IsReversal  bool                  `json:"is_reversal"`
	Lines       []journalLineResponse `json:"lines,omitempty"`
}

func toJournalEntryResponse(e journals.JournalEntry) journalEntryResponse {
	out := journalEntryResponse{
		ID:          e.ID,
		EntryDate:   formatDate(e.EntryDate),
		Description: e.Description,
		SourceType:  string(e.SourceType),
		SourceID:    e.SourceID,
		ProjectID:   e.ProjectID,
		PostedAt:    e.PostedAt,
		ReversedAt:  e.ReversedAt,
		IsReversal:  e.IsReversal,
	}
	for _, line := range e.Lines {
		out.Lines = append(out.Lines, journalLineResponse{
			ID:         line.ID,
			AccountID:  line.AccountID,
			ProjectID:  line.ProjectID,
			LotID:      line.LotID,
			CostCodeID: line.CostCodeID,
			Debit:      line.Debit.String(),
			Credit:     line.Credit.String(),
			Reconciled: line.Reconciled,
		})
	}
	return out
}

func (h *JournalHandler) post(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	entryDate, err := parseDate(req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry date")
		return
	}
	input := journals.PostingInput{
		EntryDate:   entryDate,
		Description: req.Description,
		SourceType:  journals.SourceManual,
		SourceID:    uuid.New(),
		ProjectID:   req.ProjectID,
	}
	for _, line := range req.Lines {
		debit, err := parseAmount(line.Debit)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		credit, err := parseAmount(line.Credit)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, journals.PostingLineInput{
			AccountID:  line.AccountID,
			Debit:      debit,
			Credit:     credit,
			ProjectID:  line.ProjectID,
			LotID:      line.LotID,
			CostCodeID: line.CostCodeID,
		})
	}
	entry, err := h.service.Post(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalEntryResponse(entry))
}

func (h *JournalHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalEntryResponse(entry))
}

type journalListResponse struct {
	Entries    []journalEntryResponse `json:"entries"`
	Page       int                    `json:"page"`
	PerPage    int                    `json:"per_page"`
	Total      int                    `json:"total"`
	TotalPages int                    `json:"total_pages"`
}

func (h *JournalHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	page := queryIntDefault(r, "page", 1)
	perPage := queryIntDefault(r, "per_page", 20)
	entries, meta, err := h.service.List(r.Context(), actor, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := journalListResponse{
		Entries:    make([]journalEntryResponse, 0, len(entries)),
		Page:       meta.Page,
		PerPage:    meta.PerPage,
		Total:      meta.Total,
		TotalPages: meta.TotalPages,
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, toJournalEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *JournalHandler) reverse(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var req reverseEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input := journals.ReverseInput{EntryID: id, Description: req.Description}
	if req.EntryDate != "" {
		entryDate, err := parseDate(req.EntryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry date")
			return
		}
		input.EntryDate = entryDate
	}
	entry, err := h.service.Reverse(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalEntryResponse(entry))
}

func (h *JournalHandler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.ActorOrReject(w, r)
	if !ok {
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid entry id")
		return
	}
	var req deleteEntryRequest
	// The body is optional; an empty reason is still audited as such.
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.DeleteWithOwnerCheck(r.Context(), actor, journals.DeleteInput{EntryID: id, Reason: req.Reason}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
