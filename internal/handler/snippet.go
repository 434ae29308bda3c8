package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/auth"
	"github.com/sakif/compiler-playground/internal/model"
	"github.com/sakif/compiler-playground/internal/service"
)

// SnippetHandler serves the user's saved snippets. All routes sit behind
// RequireAuth; the owner always comes from the token, never the body.
type SnippetHandler struct {
	svc    *service.SnippetService
	logger *slog.Logger
}

func NewSnippetHandler(svc *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

type snippetRequest struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

// HandleCreate: POST /snippets -> 201 {"id": "..."}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.svc.Create(r.Context(), owner(r), req.Title, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": snippet.ID})
}

// HandleList: GET /snippets?limit=20&offset=0, newest first.
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	snippets, err := h.svc.List(r.Context(), owner(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleGet: GET /snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.svc.Get(r.Context(), owner(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleReplace: PUT /snippets/{id} {"title", "code"}
func (h *SnippetHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.svc.Replace(r.Context(), owner(r), chi.URLParam(r, "id"), req.Title, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandlePatch: PATCH /snippets/{id}, absent fields are left alone.
func (h *SnippetHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	var patch model.SnippetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.svc.Patch(r.Context(), owner(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete: DELETE /snippets/{id} -> 204
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), owner(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func owner(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
