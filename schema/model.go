package schema

import (
	"time"

	"github.com/xcono/gridbase/apperr"
)

// ViewType enumerates the supported view renderings.
type ViewType string

const (
	ViewTable    ViewType = "TABLE"
	ViewBoard    ViewType = "BOARD"
	ViewCalendar ViewType = "CALENDAR"
	ViewTimeline ViewType = "TIMELINE"
	ViewGallery  ViewType = "GALLERY"
	ViewList     ViewType = "LIST"
)

var viewTypes = map[ViewType]bool{
	ViewTable: true, ViewBoard: true, ViewCalendar: true,
	ViewTimeline: true, ViewGallery: true, ViewList: true,
}

// ViewConfig carries per-view-type settings.
type ViewConfig struct {
	// BOARD
	GroupProperty string `json:"groupProperty,omitempty"`
	// CALENDAR
	DateProperty  string `json:"dateProperty,omitempty"`
	ColorProperty string `json:"colorProperty,omitempty"`
	// TIMELINE
	StartProperty string `json:"startProperty,omitempty"`
	EndProperty   string `json:"endProperty,omitempty"`
}

// ViewPermission grants a subject a level on one view.
type ViewPermission struct {
	Subject string `json:"subject"`
	Level   string `json:"level"`
}

// View is a saved lens over a database's records.
type View struct {
	ID                string           `json:"id"`
	DatabaseID        string           `json:"databaseId"`
	Name              string           `json:"name"`
	Type              ViewType         `json:"type"`
	Default           bool             `json:"default"`
	System            bool             `json:"system"`
	Filters           []FilterClause   `json:"filters,omitempty"`
	Sorts             []SortKey        `json:"sorts,omitempty"`
	GroupBy           string           `json:"groupBy,omitempty"`
	VisibleProperties []string         `json:"visibleProperties,omitempty"`
	Config            *ViewConfig      `json:"config,omitempty"`
	Permissions       []ViewPermission `json:"permissions,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// Database is a user-defined, typed container of records.
type Database struct {
	ID                 string               `json:"id"`
	WorkspaceID        string               `json:"workspaceId"`
	EntityType         string               `json:"entityType"`
	Name               string               `json:"name"`
	Properties         []PropertyDefinition `json:"properties"`
	Views              []View               `json:"views,omitempty"`
	RecordCount        int64                `json:"recordCount"`
	Frozen             bool                 `json:"frozen,omitempty"`
	RequiredProperties []string             `json:"requiredProperties,omitempty"`
	FrozenProperties   []string             `json:"frozenProperties,omitempty"`
	CreatedBy          string               `json:"createdBy,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
	DeletedAt          *time.Time           `json:"deletedAt,omitempty"`
}

// Property looks up a property definition by id.
func (d *Database) Property(id string) (PropertyDefinition, bool) {
	for _, p := range d.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return PropertyDefinition{}, false
}

// Protected reports whether the property id is in the required or frozen set
// and therefore cannot be deleted or un-frozen through the public API.
func (d *Database) Protected(propertyID string) bool {
	for _, id := range d.RequiredProperties {
		if id == propertyID {
			return true
		}
	}
	for _, id := range d.FrozenProperties {
		if id == propertyID {
			return true
		}
	}
	return false
}

// Record is one row of a database. Properties maps property id to a value
// whose shape is constrained by the property's declared type.
type Record struct {
	ID          string                 `json:"id"`
	DatabaseID  string                 `json:"databaseId"`
	Properties  map[string]interface{} `json:"properties"`
	OrderNum    int64                  `json:"orderNum"`
	Version     int64                  `json:"version"`
	Deleted     bool                   `json:"deleted,omitempty"`
	DeletedAt   *time.Time             `json:"deletedAt,omitempty"`
	DeletedBy   string                 `json:"deletedBy,omitempty"`
	CreatedBy   string                 `json:"createdBy,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedBy   string                 `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	CustomField map[string]interface{} `json:"customField,omitempty"`
}

// ValidateView checks a view's structural rules and that every property id it
// references exists in the owning database's schema.
func ValidateView(db *Database, v *View) error {
	if v.Name == "" {
		return apperr.Validation("view name is required")
	}
	if !viewTypes[v.Type] {
		return apperr.Validation("unknown view type '%s'", v.Type)
	}
	if err := ValidateClauses(db, v.Filters); err != nil {
		return err
	}
	if err := ValidateSorts(db, v.Sorts); err != nil {
		return err
	}
	if v.GroupBy != "" {
		if _, ok := db.Property(v.GroupBy); !ok {
			return apperr.Validation("groupBy references unknown property '%s'", v.GroupBy)
		}
	}
	for _, id := range v.VisibleProperties {
		if _, ok := db.Property(id); !ok {
			return apperr.Validation("visibleProperties references unknown property '%s'", id)
		}
	}
	if v.Config != nil {
		for _, ref := range []string{
			v.Config.GroupProperty, v.Config.DateProperty, v.Config.ColorProperty,
			v.Config.StartProperty, v.Config.EndProperty,
		} {
			if ref == "" {
				continue
			}
			if _, ok := db.Property(ref); !ok {
				return apperr.Validation("view config references unknown property '%s'", ref)
			}
		}
	}
	return nil
}
