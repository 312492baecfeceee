package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/reconcile"
)

type singleRequest struct {
	ID     string   `json:"id"`
	Fields []string `json:"fields,omitempty"`
}

type batchRequest struct {
	IDs    []string `json:"ids"`
	Fields []string `json:"fields,omitempty"`
}

type allRequest struct {
	Filter readmodel.Filter `json:"filter,omitempty"`
	Fields []string         `json:"fields,omitempty"`
}

type rangeRequest struct {
	Since  time.Time `json:"since"`
	Until  time.Time `json:"until"`
	Fields []string  `json:"fields,omitempty"`
}

type checkBatchResponse struct {
	Summary reconcile.CheckSummary   `json:"summary"`
	Results []reconcile.CheckOutcome `json:"results"`
}

type fixBatchResponse struct {
	Summary reconcile.FixSummary   `json:"summary"`
	Results []reconcile.FixOutcome `json:"results"`
}

type fixResponse struct {
	ID     string `json:"id"`
	Record any    `json:"record"`
}

// decode reads a JSON body strictly. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("invalid json body: %v", err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, code, msg)
}

func (h *Handler) listModules(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.registry.Modules())
}

func (h *Handler) getFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.registry.Fields(chi.URLParam(r, "module"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, fields)
}

func (h *Handler) decodeSingle(w http.ResponseWriter, r *http.Request) (singleRequest, bool) {
	var req singleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return req, false
	}
	if req.ID == "" {
		h.fail(w, r, apperrors.InvalidInput("id is required"))
		return req, false
	}
	return req, true
}

func (h *Handler) checkOne(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSingle(w, r)
	if !ok {
		return
	}
	res, err := h.registry.CheckOne(r.Context(), chi.URLParam(r, "module"), req.ID, req.Fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) fixOne(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSingle(w, r)
	if !ok {
		return
	}
	rec, err := h.registry.FixOne(r.Context(), chi.URLParam(r, "module"), req.ID, req.Fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, fixResponse{ID: req.ID, Record: rec})
}

func (h *Handler) decodeBatch(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return req, false
	}
	if len(req.IDs) == 0 {
		h.fail(w, r, apperrors.InvalidInput("ids must not be empty"))
		return req, false
	}
	return req, true
}

func (h *Handler) checkMany(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	out, err := h.registry.CheckMany(r.Context(), chi.URLParam(r, "module"), req.IDs, req.Fields)
	h.writeChecks(w, r, out, err)
}

func (h *Handler) fixMany(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBatch(w, r)
	if !ok {
		return
	}
	out, err := h.registry.FixMany(r.Context(), chi.URLParam(r, "module"), req.IDs, req.Fields)
	h.writeFixes(w, r, out, err)
}

func (h *Handler) checkAll(w http.ResponseWriter, r *http.Request) {
	var req allRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.registry.CheckAll(r.Context(), chi.URLParam(r, "module"), req.Filter, req.Fields)
	h.writeChecks(w, r, out, err)
}

func (h *Handler) fixAll(w http.ResponseWriter, r *http.Request) {
	var req allRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.registry.FixAll(r.Context(), chi.URLParam(r, "module"), req.Filter, req.Fields)
	h.writeFixes(w, r, out, err)
}

func (h *Handler) decodeRange(w http.ResponseWriter, r *http.Request) (rangeRequest, bool) {
	var req rangeRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return req, false
	}
	if req.Since.IsZero() || req.Until.IsZero() {
		h.fail(w, r, apperrors.InvalidInput("since and until are required"))
		return req, false
	}
	return req, true
}

func (h *Handler) checkRange(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRange(w, r)
	if !ok {
		return
	}
	out, err := h.registry.CheckRange(r.Context(), chi.URLParam(r, "module"), req.Since, req.Until, req.Fields)
	h.writeChecks(w, r, out, err)
}

func (h *Handler) fixRange(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRange(w, r)
	if !ok {
		return
	}
	out, err := h.registry.FixRange(r.Context(), chi.URLParam(r, "module"), req.Since, req.Until, req.Fields)
	h.writeFixes(w, r, out, err)
}

func (h *Handler) writeChecks(w http.ResponseWriter, r *http.Request, out []reconcile.CheckOutcome, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, checkBatchResponse{Summary: reconcile.SummarizeChecks(out), Results: out})
}

func (h *Handler) writeFixes(w http.ResponseWriter, r *http.Request, out []reconcile.FixOutcome, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, fixBatchResponse{Summary: reconcile.SummarizeFixes(out), Results: out})
}
