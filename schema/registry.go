package schema

import "github.com/xcono/gridbase/apperr"

// Registry-level mutations of a database's property list. These operate on
// the in-memory Database; the store persists the result.

// AddProperty inserts def at position (clamped; negative appends). The id
// must be unique within the database.
func AddProperty(db *Database, def PropertyDefinition, position int) error {
	if err := ValidatePropertyConfig(def); err != nil {
		return err
	}
	if _, exists := db.Property(def.ID); exists {
		return apperr.Validation("property '%s' already exists", def.ID)
	}
	if position < 0 || position > len(db.Properties) {
		position = len(db.Properties)
	}
	props := make([]PropertyDefinition, 0, len(db.Properties)+1)
	props = append(props, db.Properties[:position]...)
	props = append(props, def)
	props = append(props, db.Properties[position:]...)
	db.Properties = props
	renumber(db)
	return nil
}

// UpdateProperty replaces the definition with the same id. Protected
// properties keep their required and frozen flags: un-freezing or un-requiring
// them through the public API is forbidden.
func UpdateProperty(db *Database, def PropertyDefinition) error {
	if err := ValidatePropertyConfig(def); err != nil {
		return err
	}
	for i, p := range db.Properties {
		if p.ID != def.ID {
			continue
		}
		if db.Protected(p.ID) {
			if !def.Frozen && p.Frozen {
				return apperr.Forbidden("property '%s' is protected and cannot be un-frozen", p.ID)
			}
			if !def.Required && p.Required {
				return apperr.Forbidden("property '%s' is protected and cannot be made optional", p.ID)
			}
		}
		def.Order = p.Order
		db.Properties[i] = def
		return nil
	}
	return apperr.NotFound("property", def.ID)
}

// DeleteProperty removes the property from the database schema. Protected
// (required/frozen) properties cannot be deleted. Views still referencing the
// property are handled per policy: DeletePolicyReject refuses the deletion,
// DeletePolicyStrip removes the dangling references from the views in place.
// Returns the ids of views that were modified.
func DeleteProperty(db *Database, propertyID, policy string) ([]string, error) {
	if _, ok := db.Property(propertyID); !ok {
		return nil, apperr.NotFound("property", propertyID)
	}
	if db.Protected(propertyID) {
		return nil, apperr.Forbidden("property '%s' is required or frozen and cannot be deleted", propertyID)
	}

	var touched []string
	for i := range db.Views {
		if !viewReferences(&db.Views[i], propertyID) {
			continue
		}
		if policy == DeletePolicyReject {
			return nil, apperr.Validation("property '%s' is still referenced by view '%s'", propertyID, db.Views[i].ID)
		}
		stripReferences(&db.Views[i], propertyID)
		touched = append(touched, db.Views[i].ID)
	}

	props := make([]PropertyDefinition, 0, len(db.Properties)-1)
	for _, p := range db.Properties {
		if p.ID != propertyID {
			props = append(props, p)
		}
	}
	db.Properties = props
	renumber(db)
	return touched, nil
}

// ReorderProperties applies a new display order. orderedIDs must be a
// permutation of the current property ids.
func ReorderProperties(db *Database, orderedIDs []string) error {
	if len(orderedIDs) != len(db.Properties) {
		return apperr.Validation("reorder must list all %d properties", len(db.Properties))
	}
	byID := make(map[string]PropertyDefinition, len(db.Properties))
	for _, p := range db.Properties {
		byID[p.ID] = p
	}
	props := make([]PropertyDefinition, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		p, ok := byID[id]
		if !ok {
			return apperr.Validation("reorder references unknown property '%s'", id)
		}
		delete(byID, id)
		props = append(props, p)
	}
	db.Properties = props
	renumber(db)
	return nil
}

func renumber(db *Database) {
	for i := range db.Properties {
		db.Properties[i].Order = i
	}
}

func viewReferences(v *View, propertyID string) bool {
	for _, c := range v.Filters {
		if c.PropertyID == propertyID {
			return true
		}
	}
	for _, s := range v.Sorts {
		if s.PropertyID == propertyID {
			return true
		}
	}
	if v.GroupBy == propertyID {
		return true
	}
	for _, id := range v.VisibleProperties {
		if id == propertyID {
			return true
		}
	}
	if c := v.Config; c != nil {
		for _, ref := range []string{c.GroupProperty, c.DateProperty, c.ColorProperty, c.StartProperty, c.EndProperty} {
			if ref == propertyID {
				return true
			}
		}
	}
	return false
}

func stripReferences(v *View, propertyID string) {
	filters := v.Filters[:0]
	for _, c := range v.Filters {
		if c.PropertyID != propertyID {
			filters = append(filters, c)
		}
	}
	v.Filters = filters

	sorts := v.Sorts[:0]
	for _, s := range v.Sorts {
		if s.PropertyID != propertyID {
			sorts = append(sorts, s)
		}
	}
	v.Sorts = sorts

	if v.GroupBy == propertyID {
		v.GroupBy = ""
	}

	visible := v.VisibleProperties[:0]
	for _, id := range v.VisibleProperties {
		if id != propertyID {
			visible = append(visible, id)
		}
	}
	v.VisibleProperties = visible

	if c := v.Config; c != nil {
		if c.GroupProperty == propertyID {
			c.GroupProperty = ""
		}
		if c.DateProperty == propertyID {
			c.DateProperty = ""
		}
		if c.ColorProperty == propertyID {
			c.ColorProperty = ""
		}
		if c.StartProperty == propertyID {
			c.StartProperty = ""
		}
		if c.EndProperty == propertyID {
			c.EndProperty = ""
		}
	}
}
