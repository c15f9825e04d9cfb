package handlers

import (
	"net/http"
	"strings"

	"github.com/xcono/gridbase/web/response"
)

// Router dispatches entity-surface requests to the record, view, property and
// config handlers.
type Router struct {
	records    *RecordHandler
	views      *ViewHandler
	properties *PropertyHandler
	config     *ConfigHandler
}

// NewRouter creates a request router over the service bundle.
func NewRouter(svc *Services) *Router {
	return &Router{
		records:    NewRecordHandler(svc),
		views:      NewViewHandler(svc),
		properties: NewPropertyHandler(svc),
		config:     NewConfigHandler(svc),
	}
}

// Handle routes a request under /{entity}. Supported paths:
//
//	/{entity}                          GET list, POST create
//	/{entity}/bulk                     PUT bulk update, DELETE bulk delete
//	/{entity}/config                   GET template
//	/{entity}/frozen-config            GET protected property sets
//	/{entity}/views                    GET list, POST create
//	/{entity}/views/{viewId}           GET, PUT, DELETE
//	/{entity}/views/{viewId}/duplicate POST
//	/{entity}/properties               GET list, POST add
//	/{entity}/properties/reorder       PUT
//	/{entity}/properties/{propertyId}  PUT, DELETE
//	/{entity}/{id}                     GET, PUT, DELETE
//	/{entity}/{id}/duplicate           POST
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		response.WriteBadRequest(w, "entity type required")
		return
	}

	entity := parts[0]
	if entity == "entity-types" && len(parts) == 1 {
		r.handleMethod(w, req, http.MethodGet, func() {
			r.config.EntityTypes(w, req)
		})
		return
	}

	switch len(parts) {
	case 1:
		switch req.Method {
		case http.MethodGet:
			r.records.List(w, req, entity)
		case http.MethodPost:
			r.records.Create(w, req, entity)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	case 2:
		r.handleTwoSegments(w, req, entity, parts[1])
	case 3:
		r.handleThreeSegments(w, req, entity, parts[1], parts[2])
	case 4:
		if parts[1] == "views" && parts[3] == "duplicate" {
			r.handleMethod(w, req, http.MethodPost, func() {
				r.views.Duplicate(w, req, entity, parts[2])
			})
			return
		}
		response.WriteBadRequest(w, "unknown path")
	default:
		response.WriteBadRequest(w, "unknown path")
	}
}

func (r *Router) handleTwoSegments(w http.ResponseWriter, req *http.Request, entity, tail string) {
	switch tail {
	case "bulk":
		switch req.Method {
		case http.MethodPut, http.MethodDelete:
			r.records.Bulk(w, req, entity)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	case "config":
		r.handleMethod(w, req, http.MethodGet, func() {
			r.config.Template(w, req, entity)
		})
	case "frozen-config":
		r.handleMethod(w, req, http.MethodGet, func() {
			r.config.FrozenConfig(w, req, entity)
		})
	case "views":
		switch req.Method {
		case http.MethodGet:
			r.views.List(w, req, entity)
		case http.MethodPost:
			r.views.Create(w, req, entity)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	case "properties":
		switch req.Method {
		case http.MethodGet:
			r.properties.List(w, req, entity)
		case http.MethodPost:
			r.properties.Add(w, req, entity)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	default:
		// a record id
		switch req.Method {
		case http.MethodGet:
			r.records.Get(w, req, entity, tail)
		case http.MethodPut:
			r.records.Update(w, req, entity, tail)
		case http.MethodDelete:
			r.records.Delete(w, req, entity, tail)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	}
}

func (r *Router) handleThreeSegments(w http.ResponseWriter, req *http.Request, entity, mid, tail string) {
	switch mid {
	case "views":
		switch req.Method {
		case http.MethodGet:
			r.views.Get(w, req, entity, tail)
		case http.MethodPut:
			r.views.Update(w, req, entity, tail)
		case http.MethodDelete:
			r.views.Delete(w, req, entity, tail)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	case "properties":
		if tail == "reorder" {
			r.handleMethod(w, req, http.MethodPut, func() {
				r.properties.Reorder(w, req, entity)
			})
			return
		}
		switch req.Method {
		case http.MethodPut:
			r.properties.Update(w, req, entity, tail)
		case http.MethodDelete:
			r.properties.Delete(w, req, entity, tail)
		default:
			response.WriteMethodNotAllowed(w, req.Method)
		}
	default:
		if tail == "duplicate" {
			r.handleMethod(w, req, http.MethodPost, func() {
				r.records.Duplicate(w, req, entity, mid)
			})
			return
		}
		response.WriteBadRequest(w, "unknown path")
	}
}

func (r *Router) handleMethod(w http.ResponseWriter, req *http.Request, method string, fn func()) {
	if req.Method != method {
		response.WriteMethodNotAllowed(w, req.Method)
		return
	}
	fn()
}
