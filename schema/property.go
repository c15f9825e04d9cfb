package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/xcono/gridbase/apperr"
)

// PropertyType enumerates the typed columns a database schema may declare.
type PropertyType string

const (
	TypeText           PropertyType = "TEXT"
	TypeTextarea       PropertyType = "TEXTAREA"
	TypeSelect         PropertyType = "SELECT"
	TypeMultiSelect    PropertyType = "MULTI_SELECT"
	TypeDate           PropertyType = "DATE"
	TypeNumber         PropertyType = "NUMBER"
	TypePerson         PropertyType = "PERSON"
	TypeCheckbox       PropertyType = "CHECKBOX"
	TypeURL            PropertyType = "URL"
	TypeEmail          PropertyType = "EMAIL"
	TypePhone          PropertyType = "PHONE"
	TypeRelation       PropertyType = "RELATION"
	TypeFormula        PropertyType = "FORMULA"
	TypeRollup         PropertyType = "ROLLUP"
	TypeCreatedTime    PropertyType = "CREATED_TIME"
	TypeCreatedBy      PropertyType = "CREATED_BY"
	TypeLastEditedTime PropertyType = "LAST_EDITED_TIME"
	TypeLastEditedBy   PropertyType = "LAST_EDITED_BY"
)

var propertyTypes = map[PropertyType]bool{
	TypeText: true, TypeTextarea: true, TypeSelect: true, TypeMultiSelect: true,
	TypeDate: true, TypeNumber: true, TypePerson: true, TypeCheckbox: true,
	TypeURL: true, TypeEmail: true, TypePhone: true, TypeRelation: true,
	TypeFormula: true, TypeRollup: true, TypeCreatedTime: true, TypeCreatedBy: true,
	TypeLastEditedTime: true, TypeLastEditedBy: true,
}

// ValidType reports whether t is a known property type.
func ValidType(t PropertyType) bool { return propertyTypes[t] }

// Computed reports whether values of this type are derived by the system and
// therefore rejected on direct writes.
func (t PropertyType) Computed() bool {
	switch t {
	case TypeFormula, TypeRollup, TypeCreatedTime, TypeCreatedBy, TypeLastEditedTime, TypeLastEditedBy:
		return true
	}
	return false
}

// TextLike reports whether the type stores a plain string payload.
func (t PropertyType) TextLike() bool {
	switch t {
	case TypeText, TypeTextarea, TypeURL, TypeEmail, TypePhone:
		return true
	}
	return false
}

// SelectOption is one choice of a SELECT or MULTI_SELECT property.
type SelectOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// RelationConfig points a RELATION property at its target database.
type RelationConfig struct {
	DatabaseID string `json:"databaseId"`
	// Multiple allows more than one related record per value.
	Multiple bool `json:"multiple,omitempty"`
}

// FormulaConfig declares a FORMULA expression and its return type. The return
// type constrains which filter operators are legal against the property.
type FormulaConfig struct {
	Expression string       `json:"expression"`
	ReturnType PropertyType `json:"returnType"`
}

// Return types a formula may declare.
var formulaReturnTypes = map[PropertyType]bool{
	TypeText: true, TypeNumber: true, TypeDate: true, TypeCheckbox: true,
}

// PropertyDefinition is one typed column of a database schema.
type PropertyDefinition struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     PropertyType    `json:"type"`
	Required bool            `json:"required,omitempty"`
	Visible  bool            `json:"visible"`
	Order    int             `json:"order"`
	Frozen   bool            `json:"frozen,omitempty"`
	Width    int             `json:"width,omitempty"`
	Options  []SelectOption  `json:"options,omitempty"`
	Relation *RelationConfig `json:"relation,omitempty"`
	Formula  *FormulaConfig  `json:"formula,omitempty"`
}

// HasOption reports whether v names one of the property's select options,
// matching by option id first, then by display name.
func (p PropertyDefinition) HasOption(v string) bool {
	for _, o := range p.Options {
		if o.ID == v || o.Name == v {
			return true
		}
	}
	return false
}

// Property ids end up inside JSON path expressions, so the charset is strict.
var propertyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidatePropertyConfig runs the type-specific structural checks on a
// property definition.
func ValidatePropertyConfig(def PropertyDefinition) error {
	if def.ID == "" {
		return apperr.Validation("property id is required")
	}
	if !propertyIDPattern.MatchString(def.ID) {
		return apperr.Validation("property id '%s' contains invalid characters", def.ID)
	}
	if def.Name == "" {
		return apperr.Validation("property '%s' has no name", def.ID)
	}
	if !ValidType(def.Type) {
		return apperr.Validation("unknown property type '%s'", def.Type).WithField(apperr.FieldError{
			Field: def.ID, Code: "invalid_type", Message: fmt.Sprintf("unknown property type '%s'", def.Type),
		})
	}
	switch def.Type {
	case TypeSelect, TypeMultiSelect:
		if len(def.Options) == 0 {
			return apperr.Validation("property '%s': %s requires at least one option", def.ID, def.Type)
		}
		seen := map[string]bool{}
		for _, o := range def.Options {
			if o.ID == "" || o.Name == "" {
				return apperr.Validation("property '%s': option id and name are required", def.ID)
			}
			if seen[o.ID] {
				return apperr.Validation("property '%s': duplicate option id '%s'", def.ID, o.ID)
			}
			seen[o.ID] = true
		}
	case TypeRelation:
		if def.Relation == nil || def.Relation.DatabaseID == "" {
			return apperr.Validation("property '%s': relation requires a target database id", def.ID)
		}
	case TypeFormula:
		if def.Formula == nil || def.Formula.Expression == "" {
			return apperr.Validation("property '%s': formula requires an expression", def.ID)
		}
		if !formulaReturnTypes[def.Formula.ReturnType] {
			return apperr.Validation("property '%s': formula return type '%s' is not allowed", def.ID, def.Formula.ReturnType)
		}
	}
	return nil
}

// ValidateValue checks a write-time value against the property's declared
// type. nil clears the value and is always accepted.
func ValidateValue(def PropertyDefinition, value interface{}) error {
	if value == nil {
		return nil
	}
	if def.Type.Computed() {
		return typeError(def, value, "computed properties cannot be written directly")
	}
	switch def.Type {
	case TypeText, TypeTextarea, TypeURL, TypeEmail, TypePhone:
		if _, ok := value.(string); !ok {
			return typeError(def, value, "expected string")
		}
	case TypeNumber:
		switch value.(type) {
		case float64, int, int64:
		default:
			return typeError(def, value, "expected number")
		}
	case TypeCheckbox:
		if _, ok := value.(bool); !ok {
			return typeError(def, value, "expected boolean")
		}
	case TypeDate:
		s, ok := value.(string)
		if !ok {
			return typeError(def, value, "expected date string")
		}
		if !validDate(s) {
			return typeError(def, value, "expected RFC 3339 timestamp or YYYY-MM-DD date")
		}
	case TypeSelect:
		s, ok := value.(string)
		if !ok {
			return typeError(def, value, "expected option string")
		}
		if !def.HasOption(s) {
			return typeError(def, value, fmt.Sprintf("'%s' is not a configured option", s))
		}
	case TypeMultiSelect:
		values, ok := stringSlice(value)
		if !ok {
			return typeError(def, value, "expected array of option strings")
		}
		for _, s := range values {
			if !def.HasOption(s) {
				return typeError(def, value, fmt.Sprintf("'%s' is not a configured option", s))
			}
		}
	case TypePerson:
		if _, ok := value.(string); ok {
			return nil
		}
		if _, ok := stringSlice(value); !ok {
			return typeError(def, value, "expected user id or array of user ids")
		}
	case TypeRelation:
		if s, ok := value.(string); ok {
			_ = s
			return nil
		}
		values, ok := stringSlice(value)
		if !ok {
			return typeError(def, value, "expected record id or array of record ids")
		}
		if def.Relation != nil && !def.Relation.Multiple && len(values) > 1 {
			return typeError(def, value, "relation allows a single related record")
		}
	}
	return nil
}

func typeError(def PropertyDefinition, value interface{}, msg string) error {
	return apperr.Validation("property '%s': %s", def.ID, msg).WithField(apperr.FieldError{
		Field:    def.ID,
		Code:     "invalid_value",
		Message:  msg,
		Expected: string(def.Type),
		Received: fmt.Sprintf("%T", value),
	})
}

func stringSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func validDate(s string) bool {
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	return false
}
