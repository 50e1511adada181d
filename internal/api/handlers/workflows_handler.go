package handlers

import (
	"net/http"

	"github.com/aitoolflow/engine/internal/api/types"
	"github.com/aitoolflow/engine/internal/services"
)

type WorkflowsHandler struct {
	workflows   services.WorkflowService
	suggestions services.SuggestionService
	validate    Validator
}

func NewWorkflowsHandler(workflows services.WorkflowService, suggestions services.SuggestionService, v Validator) *WorkflowsHandler {
	return &WorkflowsHandler{workflows: workflows, suggestions: suggestions, validate: v}
}

func (h *WorkflowsHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.workflows.ListByOwner(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewWorkflowResponses(items))
}

func (h *WorkflowsHandler) Templates(w http.ResponseWriter, r *http.Request) {
	items, err := h.workflows.ListTemplates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewWorkflowResponses(items))
}

func (h *WorkflowsHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.WorkflowCreateRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Create(r.Context(), uid, req.Input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NewWorkflowResponse(wf))
}

func (h *WorkflowsHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "workflow_id", "workflow")
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Get(r.Context(), id, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewWorkflowResponse(wf))
}

func (h *WorkflowsHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "workflow_id", "workflow")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.WorkflowUpdateRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Update(r.Context(), id, uid, req.Input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewWorkflowMetaResponse(wf))
}

func (h *WorkflowsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "workflow_id", "workflow")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.workflows.Delete(r.Context(), id, uid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkflowsHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := uuidParam(r, "workflow_id", "workflow")
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := h.workflows.Duplicate(r.Context(), id, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NewWorkflowResponse(wf))
}

func (h *WorkflowsHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	uid, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	workflowID, err := uuidParam(r, "workflow_id", "workflow")
	if err != nil {
		writeError(w, r, err)
		return
	}
	nodeID, err := uuidParam(r, "node_id", "node")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tools, err := h.suggestions.ForWorkflowNode(r.Context(), workflowID, nodeID, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SuggestionsResponse{Suggestions: types.NewToolResponses(tools)})
}
