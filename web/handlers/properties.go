package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xcono/gridbase/perm"
	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/web/response"
)

// PropertyHandler serves the schema management endpoints of one entity
// surface. Property mutations require edit access; deleting a property is a
// destructive schema change and requires full access.
type PropertyHandler struct {
	svc *Services
}

// NewPropertyHandler creates a property handler.
func NewPropertyHandler(svc *Services) *PropertyHandler {
	return &PropertyHandler{svc: svc}
}

// List handles GET /{entity}/properties.
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request, entity string) {
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
	response.WriteSuccess(w, "properties retrieved", db.Properties)
}

type addPropertyRequest struct {
	schema.PropertyDefinition
	Position *int `json:"position,omitempty"`
}

// Add handles POST /{entity}/properties. An optional position inserts the
// property at that display index; the default appends.
func (h *PropertyHandler) Add(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var req addPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
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

	position := len(db.Properties)
	if req.Position != nil {
		position = *req.Position
	}
	updated, err := h.svc.Databases.AddProperty(ctx, db.ID, req.PropertyDefinition, position)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteCreated(w, "property added", updated.Properties)
}

// Update handles PUT /{entity}/properties/{propertyId}.
func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request, entity, propertyID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var def schema.PropertyDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		response.WriteBadRequest(w, "invalid JSON in request body")
		return
	}
	def.ID = propertyID

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	updated, err := h.svc.Databases.UpdateProperty(ctx, db.ID, def)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "property updated", updated.Properties)
}

// Delete handles DELETE /{entity}/properties/{propertyId}.
func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request, entity, propertyID string) {
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

	updated, err := h.svc.Databases.DeleteProperty(ctx, db.ID, propertyID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "property deleted", updated.Properties)
}

type reorderRequest struct {
	PropertyIDs []string `json:"propertyIds"`
}

// Reorder handles PUT /{entity}/properties/reorder. The body lists every
// property id in its new display order.
func (h *PropertyHandler) Reorder(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
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

	updated, err := h.svc.Databases.ReorderProperties(ctx, db.ID, req.PropertyIDs)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "properties reordered", updated.Properties)
}
