package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"oblik/core/importer"
	"oblik/core/records"
	"oblik/core/store"
	"oblik/core/utils"

	"go.uber.org/zap"
)

const (
	maxJSONBody   = 1 << 20
	maxImportBody = 20 << 20
)

type RecordsService interface {
	Get(ctx context.Context, id string) (*store.Record, error)
	Create(ctx context.Context, actor records.Actor, in records.RecordInput) (*store.Record, error)
	Update(ctx context.Context, actor records.Actor, id string, in records.RecordInput) (*store.Record, error)
	Delete(ctx context.Context, actor records.Actor, id string) error
	SubmitResolution(ctx context.Context, actor records.Actor, id string, in records.ResolutionInput) (*store.Record, error)
	Approve(ctx context.Context, actor records.Actor, id string) (*store.Record, error)
	RequestExtension(ctx context.Context, actor records.Actor, id, reason string) (*store.Record, error)
	ReviewExtension(ctx context.Context, actor records.Actor, id string, approved bool) (*store.Record, error)
	InvestigationAction(ctx context.Context, actor records.Actor, id string, req records.InvestigationRequest) (*store.Record, error)
	ReturnForRevision(ctx context.Context, actor records.Actor, id, comment string) (*store.Record, error)
}

type RecordImporter interface {
	ImportXLSX(ctx context.Context, actor records.Actor, r io.Reader) (*importer.Result, error)
}

type RecordsHandler struct {
	svc      RecordsService
	importer RecordImporter
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewRecordsHandler(svc RecordsService, imp RecordImporter, audits store.AuditStore, logger *utils.Logger) *RecordsHandler {
	return &RecordsHandler{svc: svc, importer: imp, audits: audits, logger: logger}
}

type recordPayload struct {
	EONumber       string   `json:"eoNumber"`
	RecordType     string   `json:"recordType"`
	EODate         string   `json:"eoDate"`
	Deadline       string   `json:"deadline"`
	Description    string   `json:"description"`
	Applicant      string   `json:"applicant"`
	Address        string   `json:"address"`
	ConcernsBPP    bool     `json:"concernsBpp"`
	OfficerIDs     []string `json:"officerIds"`
	AssignedUserID *string  `json:"assignedUserId"`
}

func (p recordPayload) input() (records.RecordInput, error) {
	in := records.RecordInput{
		EONumber:       p.EONumber,
		RecordType:     p.RecordType,
		Description:    p.Description,
		Applicant:      p.Applicant,
		Address:        p.Address,
		ConcernsBPP:    p.ConcernsBPP,
		OfficerIDs:     p.OfficerIDs,
		AssignedUserID: p.AssignedUserID,
	}
	if strings.TrimSpace(p.EODate) != "" {
		d, err := utils.ParseDate(p.EODate)
		if err != nil {
			return in, &records.ValidationError{Field: "eoDate", Rule: "format"}
		}
		in.EODate = d
	}
	if strings.TrimSpace(p.Deadline) != "" {
		d, err := utils.ParseDate(p.Deadline)
		if err != nil {
			return in, &records.ValidationError{Field: "deadline", Rule: "format"}
		}
		in.Deadline = &d
	}
	return in, nil
}

type resolutionPayload struct {
	Resolution  string   `json:"resolution"`
	OfficerIDs  []string `json:"officerIds"`
	ConcernsBPP bool     `json:"concernsBpp"`
}

type investigationPayload struct {
	Action                 string                  `json:"action"`
	ReviewResult           string                  `json:"reviewResult"`
	OrderNumber            string                  `json:"orderNumber"`
	OrderDate              string                  `json:"orderDate"`
	PenaltyItems           []store.PenaltyDecision `json:"penaltyItems"`
	PenaltyOfficerID       string                  `json:"penaltyOfficerId"`
	PenaltyType            string                  `json:"penaltyType"`
	PenaltyByArticle13     bool                    `json:"penaltyByArticle13"`
	OfficerIDs             []string                `json:"officerIds"`
	ConclusionApprovedDate string                  `json:"conclusionApprovedDate"`
	PenaltyOrderNumber     string                  `json:"penaltyOrderNumber"`
	PenaltyOrderDate       string                  `json:"penaltyOrderDate"`
}

func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload recordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	in, err := payload.input()
	if err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := h.svc.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload recordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	in, err := payload.input()
	if err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := h.svc.Update(r.Context(), actorFrom(r), recordID(r), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), recordID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), actorFrom(r), recordID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id := recordID(r)
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	items, err := h.audits.ListForEntity(r.Context(), "record", id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RecordsHandler) SubmitResolution(w http.ResponseWriter, r *http.Request) {
	var payload resolutionPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	rec, err := h.svc.SubmitResolution(r.Context(), actorFrom(r), recordID(r), records.ResolutionInput{
		Resolution:  payload.Resolution,
		OfficerIDs:  payload.OfficerIDs,
		ConcernsBPP: payload.ConcernsBPP,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": rec.Status, "record": rec})
}

func (h *RecordsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Approve(r.Context(), actorFrom(r), recordID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) RequestExtension(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	rec, err := h.svc.RequestExtension(r.Context(), actorFrom(r), recordID(r), payload.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) ReviewExtension(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Approved *bool `json:"approved"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Approved == nil {
		h.writeError(w, &records.ValidationError{Field: "approved", Rule: "required"})
		return
	}
	rec, err := h.svc.ReviewExtension(r.Context(), actorFrom(r), recordID(r), *payload.Approved)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) Investigation(w http.ResponseWriter, r *http.Request) {
	var payload investigationPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	req := records.InvestigationRequest{
		Action:                 payload.Action,
		ReviewResult:           payload.ReviewResult,
		OrderNumber:            payload.OrderNumber,
		OrderDate:              payload.OrderDate,
		Penalties:              payload.PenaltyItems,
		OfficerIDs:             payload.OfficerIDs,
		ConclusionApprovedDate: payload.ConclusionApprovedDate,
		PenaltyOrderNumber:     payload.PenaltyOrderNumber,
		PenaltyOrderDate:       payload.PenaltyOrderDate,
	}
	if strings.TrimSpace(payload.PenaltyOfficerID) != "" {
		req.LegacyPenalty = &records.LegacyPenalty{
			OfficerID:   payload.PenaltyOfficerID,
			PenaltyType: payload.PenaltyType,
			ByArticle13: payload.PenaltyByArticle13,
		}
	}
	rec, err := h.svc.InvestigationAction(r.Context(), actorFrom(r), recordID(r), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) ReturnForRevision(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Comment string `json:"comment"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	rec, err := h.svc.ReturnForRevision(r.Context(), actorFrom(r), recordID(r), payload.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "records.importDisabled"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	if err := r.ParseMultipartForm(maxImportBody); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "records.importFileRequired"})
		return
	}
	defer file.Close()
	res, err := h.importer.ImportXLSX(r.Context(), actorFrom(r), file)
	if err != nil {
		if errors.Is(err, importer.ErrTooManyRows) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "records.importTooManyRows"})
			return
		}
		h.logger.Error("import failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "records.importInvalidFile"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeError maps service errors onto status codes with a stable JSON body.
func (h *RecordsHandler) writeError(w http.ResponseWriter, err error) {
	var (
		validation *records.ValidationError
		state      *records.InvalidStateError
		conflict   *records.ConflictError
		missing    *records.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "records.validation", "field": validation.Field, "rule": validation.Rule})
	case errors.As(err, &state):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "records.invalidState", "action": state.Action, "state": state.State})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "records.conflict", "field": conflict.Field, "value": conflict.Value})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "records.notFound", "entity": missing.Entity, "ids": missing.IDs})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

