// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "quill/internal/errors"
	"quill/internal/template"
)

// TemplateHandler exposes the version control engine over HTTP. Role
// checks happen upstream; requests arrive with an author identity
// already resolved.
type TemplateHandler struct {
	svc *template.Service
}

func NewTemplateHandler(svc *template.Service) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

// Routes registers the handler's endpoints on the mux.
func (h *TemplateHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/templates", h.Create)
	mux.HandleFunc("GET /api/templates", h.List)
	mux.HandleFunc("GET /api/templates/{id}", h.Get)
	mux.HandleFunc("POST /api/templates/{id}/commits", h.Commit)
	mux.HandleFunc("GET /api/templates/{id}/commits/{commit}", h.Show)
	mux.HandleFunc("GET /api/templates/{id}/diff", h.Diff)
	mux.HandleFunc("POST /api/templates/{id}/branches", h.CreateBranch)
	mux.HandleFunc("GET /api/templates/{id}/branches", h.ListBranches)
	mux.HandleFunc("DELETE /api/templates/{id}/branches/{branch}", h.DeleteBranch)
	mux.HandleFunc("GET /api/templates/{id}/branches/{branch}/history", h.History)
	mux.HandleFunc("POST /api/templates/{id}/merge", h.Merge)
	mux.HandleFunc("POST /api/templates/{id}/merge/preview", h.PreviewMerge)
	mux.HandleFunc("POST /api/templates/{id}/rollback", h.Rollback)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code, appErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, apperrors.Internal(err))
}

type createTemplateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Author      string `json:"author"`
	HTML        string `json:"html"`
	CSS         string `json:"css"`
	JS          string `json:"js"`
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body", nil))
		return
	}
	if req.Name == "" {
		writeError(w, apperrors.ValidationError("name is required", nil))
		return
	}
	if req.Author == "" {
		writeError(w, apperrors.ValidationError("author is required", nil))
		return
	}

	t, root, err := h.svc.Create(req.Name, req.Description, req.Author, req.HTML, req.CSS, req.JS)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"template": t,
		"commit":   root,
	})
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type commitRequest struct {
	Branch  string `json:"branch"`
	Author  string `json:"author"`
	Message string `json:"message"`
	HTML    string `json:"html"`
	CSS     string `json:"css"`
	JS      string `json:"js"`
}

func (h *TemplateHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body", nil))
		return
	}
	if req.Branch == "" {
		req.Branch = template.DefaultBranchName
	}
	if req.Author == "" {
		writeError(w, apperrors.ValidationError("author is required", nil))
		return
	}

	c, err := h.svc.Commit(r.PathValue("id"), req.Branch, req.Author, req.Message, req.HTML, req.CSS, req.JS)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *TemplateHandler) Show(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Show(r.PathValue("id"), r.PathValue("commit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *TemplateHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperrors.ValidationError("invalid limit", raw))
			return
		}
		limit = n
	}

	entries, err := h.svc.History(r.PathValue("id"), r.PathValue("branch"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *TemplateHandler) Diff(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, apperrors.ValidationError("from and to commit ids are required", nil))
		return
	}

	diffs, err := h.svc.DiffCommits(r.PathValue("id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

type createBranchRequest struct {
	Name        string `json:"name"`
	FromBranch  string `json:"from_branch"`
	FromCommit  string `json:"from_commit"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

func (h *TemplateHandler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req createBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body", nil))
		return
	}

	b, err := h.svc.CreateBranch(r.PathValue("id"), req.Name, req.FromBranch, req.FromCommit, req.Author, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *TemplateHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.svc.ListBranches(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *TemplateHandler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBranch(r.PathValue("id"), r.PathValue("branch")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mergeRequest struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Author  string `json:"author"`
	Message string `json:"message"`
}

func (h *TemplateHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body", nil))
		return
	}
	if req.Source == "" || req.Target == "" {
		writeError(w, apperrors.ValidationError("source and target branches are required", nil))
		return
	}
	if req.Author == "" {
		writeError(w, apperrors.ValidationError("author is required", nil))
		return
	}

	result, err := h.svc.Merge(r.PathValue("id"), req.Source, req.Target, req.Author, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	// Conflicted is a normal outcome: 200 with the regions enumerated.
	writeJSON(w, http.StatusOK, result)
}

func (h *TemplateHandler) PreviewMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body", nil))
		return
	}
	if req.Source == "" || req.Target == "" {
		writeError(w, apperrors.ValidationError("source and target branches are required", nil))
		return
	}

	result, err := h.svc.PreviewMerge(r.PathValue("id"), req.Source, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type rollbackRequest struct {
	Branch   string `json:"branch"`
	CommitID string `json:"commit_id"`
	Author   string `json:"author"`
}

func (h *TemplateHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("invalid request body", nil))
		return
	}
	if req.CommitID == "" {
		writeError(w, apperrors.ValidationError("commit_id is required", nil))
		return
	}
	if req.Branch == "" {
		req.Branch = template.DefaultBranchName
	}

	c, err := h.svc.Rollback(r.PathValue("id"), req.Branch, req.CommitID, req.Author)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
