package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/history"
	"github.com/starford/shatag/internal/models"
	"github.com/starford/shatag/internal/service"
	"github.com/starford/shatag/internal/tagstore"
	"github.com/starford/shatag/internal/verifier"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Verify handles POST /api/verify.
//
//	@Summary		Verify a file and rewrite its tags when it changed legitimately
//	@Tags			verify
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VerifyRequest	true	"File to verify"
//	@Success		200		{object}	VerifyResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/verify [post]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	res, err := h.svc.VerifyRel(r.Context(), req.Path)
	if err != nil {
		h.writeError(w, "verify failed", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, NewVerifyResponse(res, h.relPath(res.Path)))
}

// Files handles GET /api/files.
//
//	@Summary		List regular files under the served root
//	@Tags			files
//	@Produce		json
//	@Param			dir	query		string	false	"Directory relative to the root"
//	@Success		200	{object}	FilesResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	tree := h.svc.Tree()
	if tree == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no root configured"))
		return
	}
	dir := r.URL.Query().Get("dir")
	files, err := tree.List(dir)
	if err != nil {
		h.writeError(w, "list files failed", dir, err)
		return
	}
	if files == nil {
		files = []models.FileMeta{}
	}
	writeJSON(w, http.StatusOK, FilesResponse{Files: files})
}

// History handles GET /api/history.
//
//	@Summary		List recorded verifications, newest first
//	@Tags			history
//	@Produce		json
//	@Param			path	query		string	false	"Filter by path relative to the root"
//	@Param			outcome	query		string	false	"Filter by outcome"	Enums(ok, outdated, corrupt, write_failure, error)
//	@Param			limit	query		int		false	"Max entries"
//	@Param			latest	query		bool	false	"Only the newest entry for path"
//	@Success		200		{object}	HistoryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	f := history.Filter{Outcome: q.Get("outcome"), Limit: limit}

	if f.Outcome != "" && f.Outcome != service.OutcomeError {
		if _, err := verifier.ParseOutcome(f.Outcome); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	if p := q.Get("path"); p != "" {
		abs, err := h.resolve(p)
		if err != nil {
			h.writeError(w, "history failed", p, err)
			return
		}
		f.Path = abs
	}

	if latest, _ := strconv.ParseBool(q.Get("latest")); latest {
		h.latest(w, r, f.Path)
		return
	}

	entries, err := h.svc.History(r.Context(), f)
	if err != nil {
		h.writeError(w, "history failed", f.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: h.relEntries(entries)})
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("latest requires path"))
		return
	}
	e, err := h.svc.Last(r.Context(), path)
	if err != nil {
		h.writeError(w, "history failed", path, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: h.relEntries([]history.Entry{e})})
}

// Corrupt handles GET /api/corrupt.
//
//	@Summary		List files whose latest verification found corruption
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"
//	@Success		200		{object}	HistoryResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/corrupt [get]
func (h *Handler) Corrupt(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.Corrupt(r.Context(), limit)
	if err != nil {
		h.writeError(w, "corrupt list failed", "", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: h.relEntries(entries)})
}

// resolve maps a root-relative path to the absolute path history records.
// The file itself need not exist any more.
func (h *Handler) resolve(rel string) (string, error) {
	tree := h.svc.Tree()
	if tree == nil {
		return rel, nil
	}
	abs, err := tree.Resolve(rel)
	if errors.Is(err, apperr.ErrNotFound) {
		// Deleted files keep their history.
		return filepath.Join(tree.Root(), filepath.FromSlash(rel)), nil
	}
	return abs, err
}

func (h *Handler) relPath(abs string) string {
	if tree := h.svc.Tree(); tree != nil {
		if rel, err := tree.Rel(abs); err == nil {
			return rel
		}
	}
	return abs
}

func (h *Handler) relEntries(entries []history.Entry) []history.Entry {
	for i := range entries {
		entries[i].Path = h.relPath(entries[i].Path)
	}
	return entries
}

// NewVerifyResponse renders res with path shown as given.
func NewVerifyResponse(res verifier.Result, path string) VerifyResponse {
	out := VerifyResponse{
		Path:            path,
		Outcome:         res.Outcome.String(),
		ExitStatus:      res.Outcome.ExitStatus(),
		ActualChecksum:  res.Actual.Checksum,
		ActualTimestamp: tagstore.FormatTimestamp(res.Actual.Timestamp),
	}
	if v, ok := res.Stored.Checksum.Get(); ok {
		out.StoredChecksum = &v
	}
	if v, ok := res.Stored.Timestamp.Get(); ok {
		ts := tagstore.FormatTimestamp(v)
		out.StoredTimestamp = &ts
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, msg, path string, err error) {
	var pe *apperr.ParseError
	switch {
	case errors.Is(err, apperr.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid path"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrDisabled):
		writeJSON(w, http.StatusNotFound, errorBody("feature disabled"))
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(pe.Error()))
	default:
		slog.Error(msg, slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
