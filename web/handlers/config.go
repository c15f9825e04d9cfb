package handlers

import (
	"net/http"

	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/web/response"
)

// ConfigHandler exposes the read-only template metadata of an entity type.
// These endpoints need no database and no permission check; templates are
// public, workspace-independent defaults.
type ConfigHandler struct {
	svc *Services
}

// NewConfigHandler creates a config handler.
func NewConfigHandler(svc *Services) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

// Template handles GET /{entity}/config: the canonical starter template.
func (h *ConfigHandler) Template(w http.ResponseWriter, r *http.Request, entity string) {
	tpl, err := schema.DefaultTemplate(entity)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "entity config retrieved", tpl)
}

// FrozenConfig handles GET /{entity}/frozen-config: the protected property
// sets clients must not let users edit.
func (h *ConfigHandler) FrozenConfig(w http.ResponseWriter, r *http.Request, entity string) {
	required, frozen, err := schema.FrozenConfig(entity)
	if err != nil {
		response.WriteError(w, err)
		return
	}
	response.WriteSuccess(w, "frozen config retrieved", map[string]interface{}{
		"requiredProperties": required,
		"frozenProperties":   frozen,
	})
}

// EntityTypes handles GET /entity-types: every entity type with a template.
func (h *ConfigHandler) EntityTypes(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, "entity types retrieved", schema.EntityTypes())
}
