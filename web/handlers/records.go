package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xcono/gridbase/builder"
	"github.com/xcono/gridbase/perm"
	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/web/response"
)

// RecordHandler serves the record CRUD, listing and bulk endpoints of one
// entity surface.
type RecordHandler struct {
	svc *Services
}

// NewRecordHandler creates a record handler.
func NewRecordHandler(svc *Services) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// List handles GET /{entity}.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	opts, err := builder.ParseListParams(r.URL.Query())
	if err != nil {
		response.WriteError(w, err)
		return
	}

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelRead)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, "", perm.LevelRead); err != nil {
		response.WriteError(w, err)
		return
	}

	var records []schema.Record
	var total int64
	if opts.ViewID != "" {
		records, total, err = h.svc.Views.ListRecords(ctx, db, opts.ViewID, opts)
	} else {
		records, total, err = h.svc.Records.List(ctx, db, opts)
	}
	if err != nil {
		response.WriteError(w, err)
		return
	}

	response.WritePage(w, "records retrieved", records, response.NewPagination(opts.Page, opts.Limit, total))
}

// Create handles POST /{entity}. The body is the property map.
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var properties map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&properties); err != nil {
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

	rec, err := h.svc.Records.Create(ctx, db.ID, properties, c.ActorID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteCreated(w, "record created", rec)
}

// Get handles GET /{entity}/{id}.
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request, entity, recordID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelRead)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, recordID, perm.LevelRead); err != nil {
		response.WriteError(w, err)
		return
	}

	rec, err := h.svc.Records.Get(ctx, db.ID, recordID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "record retrieved", rec)
}

// Update handles PUT /{entity}/{id}. The body holds only the property ids to
// merge.
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request, entity, recordID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var partial map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		response.WriteBadRequest(w, "invalid JSON in request body")
		return
	}

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, recordID, perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	rec, err := h.svc.Records.Update(ctx, db.ID, recordID, partial, c.ActorID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "record updated", rec)
}

// Delete handles DELETE /{entity}/{id}?permanent=bool.
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request, entity, recordID string) {
	ctx := r.Context()
	c := h.svc.caller(r)
	permanent := r.URL.Query().Get("permanent") == "true"

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, recordID, perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	if err := h.svc.Records.Delete(ctx, db.ID, recordID, permanent, c.ActorID); err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "record deleted", nil)
}

// Duplicate handles POST /{entity}/{id}/duplicate.
func (h *RecordHandler) Duplicate(w http.ResponseWriter, r *http.Request, entity, recordID string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	db, err := h.svc.resolve(ctx, c, entity, perm.LevelEdit)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	if err := h.svc.check(ctx, c, db, recordID, perm.LevelEdit); err != nil {
		response.WriteError(w, err)
		return
	}

	rec, err := h.svc.Records.Duplicate(ctx, db.ID, recordID, c.ActorID)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteCreated(w, "record duplicated", rec)
}

type bulkRequest struct {
	RecordIDs []string               `json:"recordIds"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Permanent bool                   `json:"permanent,omitempty"`
}

// Bulk handles PUT and DELETE /{entity}/bulk.
func (h *RecordHandler) Bulk(w http.ResponseWriter, r *http.Request, entity string) {
	ctx := r.Context()
	c := h.svc.caller(r)

	var req bulkRequest
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

	switch r.Method {
	case http.MethodPut:
		results, modified, err := h.svc.Records.BulkUpdate(ctx, db.ID, req.RecordIDs, req.Data, c.ActorID)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteSuccess(w, "bulk update finished", map[string]interface{}{
			"modifiedCount": modified,
			"results":       results,
		})
	case http.MethodDelete:
		results, affected, err := h.svc.Records.BulkDelete(ctx, db.ID, req.RecordIDs, req.Permanent, c.ActorID)
		if err != nil {
			response.WriteError(w, err)
			return
		}
		response.WriteSuccess(w, "bulk delete finished", map[string]interface{}{
			"affectedCount": affected,
			"results":       results,
		})
	default:
		response.WriteMethodNotAllowed(w, r.Method)
	}
}
