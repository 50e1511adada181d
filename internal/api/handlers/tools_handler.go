package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aitoolflow/engine/internal/api/types"
	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/internal/services"
	appErr "github.com/aitoolflow/engine/pkg/errors"
)

type ToolsHandler struct {
	catalog services.CatalogService
}

func NewToolsHandler(catalog services.CatalogService) *ToolsHandler {
	return &ToolsHandler{catalog: catalog}
}

func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 1
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, r, appErr.New(appErr.CodeInvalid, "page must be a positive integer"))
			return
		}
		page = n
	}
	filters := repository.ToolFilters{
		Pricing:   q.Get("pricing"),
		Tags:      q.Get("tags"),
		Name:      q.Get("name"),
		EaseOfUse: q.Get("ease_of_use"),
	}
	tools, err := h.catalog.Search(r.Context(), filters, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ToolsResponse{Tools: types.NewToolResponses(tools)})
}

func (h *ToolsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tool, err := h.catalog.GetTool(r.Context(), chi.URLParam(r, "tool_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewToolResponse(*tool))
}
