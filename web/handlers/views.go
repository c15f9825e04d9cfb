package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xcono/gridbase/perm"
	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/web/response"
)

// ViewHandler serves the view management endpoints of one entity surface.
type ViewHandler struct {
	svc *Services
}

// NewViewHandler creates a view handler.
func NewViewHandler(svc *Services) *ViewHandler {
	return &ViewHandler{svc: svc}
}

// List handles GET /{entity}/views.
func (h *ViewHandler) List(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelRead)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelRead); err != nil {
		response.WriteError(w, err)
		return
	}

	views, err := h.svc.Views.List(ctx, db.ID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "views retrieved", views)
}

// Create handles POST /{entity}/views.
func (h *ViewHandler) Create(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var spec schema.View
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		response.WriteBadRequest(w, "invalid JSON in request body")
		return
	}

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	created, err := h.svc.Views.Create(ctx, db.ID, spec)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteCreated(w, "view created", created)
}

// Get handles GET /{entity}/views/{viewId}. The id "default" resolves the
// database's default view.
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request, entity, viewID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelRead)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelRead); err != nil {
		response.WriteError(w, err)
		return
	}

	var v *schema.View
	if viewID == "default" {
		v, err = h.svc.Views.GetDefault(ctx, db.ID)
	} else {
		v, err = h.svc.Views.Get(ctx, db.ID, viewID)
	}
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "view retrieved", v)
}

// viewPatch distinguishes the targeted mutations (filters, sorts, visible
// properties) from a whole-view update.
type viewPatch struct {
	Filters           *[]schema.FilterClause `json:"filters,omitempty"`
	Sorts             *[]schema.SortKey      `json:"sorts,omitempty"`
	VisibleProperties *[]string              `json:"visibleProperties,omitempty"`
}

// Update handles PUT /{entity}/views/{viewId}. A body containing only
// filters, sorts or visibleProperties patches that aspect; anything else is
// treated as a full view update.
func (h *ViewHandler) Update(w http.ResponseWriter, r *http.Request, entity, viewID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		response.WriteBadRequest(w, "invalid JSON in request body")
		return
	}

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	var patch viewPatch
	if err := json.Unmarshal(raw, &patch); err == nil && onlyPatchFields(raw) {
		var v *schema.View
		switch {
		case patch.Filters != nil:
			v, err = h.svc.Views.UpdateFilters(ctx, db.ID, viewID, *patch.Filters)
		case patch.Sorts != nil:
			v, err = h.svc.Views.UpdateSorts(ctx, db.ID, viewID, *patch.Sorts)
		case patch.VisibleProperties != nil:
			v, err = h.svc.Views.UpdateVisibleProperties(ctx, db.ID, viewID, *patch.VisibleProperties)
		default:
			response.WriteBadRequest(w, "no view fields supplied")
			return
		}
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteSuccess(w, "view updated", v)
		return
	}

	var spec schema.View
	if err := json.Unmarshal(raw, &spec); err != nil {
		response.WriteBadRequest(w, "invalid view in request body")
		return
	}
	v, err := h.svc.Views.Update(ctx, db.ID, viewID, spec)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "view updated", v)
}

// Delete handles DELETE /{entity}/views/{viewId}.
func (h *ViewHandler) Delete(w http.ResponseWriter, r *http.Request, entity, viewID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelFullAccess)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelFullAccess); err != nil {
		response.WriteError(w, err)
		return
	}

	if err := h.svc.Views.Delete(ctx, db.ID, viewID); err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "view deleted", nil)
}

// Duplicate handles POST /{entity}/views/{viewId}/duplicate.
func (h *ViewHandler) Duplicate(w http.ResponseWriter, r *http.Request, entity, viewID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	v, err := h.svc.Views.Duplicate(ctx, db.ID, viewID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteCreated(w, "view duplicated", v)
}

// onlyPatchFields reports whether the body contains nothing beyond the
// targeted patch keys.
func onlyPatchFields(raw json.RawMessage) bool {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	if len(body) == 0 {
		return false
	}
	for key := range body {
		switch key {
		case "filters", "sorts", "visibleProperties":
		default:
			return false
		}
	}
	return true
}
