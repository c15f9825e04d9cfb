package schema

import (
	"sort"

	"github.com/xcono/gridbase/apperr"
)

// Template is the canonical starter schema for one entity type: default
// properties, default views and the protected property sets. Templates are
// immutable; callers receive copies.
type Template struct {
	EntityType         string               `json:"entityType"`
	DisplayName        string               `json:"displayName"`
	Properties         []PropertyDefinition `json:"properties"`
	Views              []View               `json:"views"`
	RequiredProperties []string             `json:"requiredProperties"`
	FrozenProperties   []string             `json:"frozenProperties"`
}

func prop(id, name string, t PropertyType, order int) PropertyDefinition {
	return PropertyDefinition{ID: id, Name: name, Type: t, Visible: true, Order: order}
}

func (p PropertyDefinition) asRequired() PropertyDefinition {
	p.Required = true
	p.Frozen = true
	return p
}

func (p PropertyDefinition) asFrozen() PropertyDefinition {
	p.Frozen = true
	return p
}

func (p PropertyDefinition) withOptions(pairs ...[2]string) PropertyDefinition {
	opts := make([]SelectOption, 0, len(pairs))
	for _, pair := range pairs {
		opts = append(opts, SelectOption{ID: pair[0], Name: pair[0], Color: pair[1]})
	}
	p.Options = opts
	return p
}

func tableView(name string) View {
	return View{ID: "all", Name: name, Type: ViewTable, Default: true, System: true}
}

func boardView(groupBy string) View {
	return View{
		ID: "by-status", Name: "By Status", Type: ViewBoard, System: true,
		GroupBy: groupBy, Config: &ViewConfig{GroupProperty: groupBy},
	}
}

var templates = map[string]Template{
	"tasks": {
		EntityType:  "tasks",
		DisplayName: "Tasks",
		Properties: []PropertyDefinition{
			prop("title", "Title", TypeText, 0).asRequired(),
			prop("status", "Status", TypeSelect, 1).asFrozen().
				withOptions([2]string{"todo", "gray"}, [2]string{"in_progress", "blue"}, [2]string{"done", "green"}),
			prop("priority", "Priority", TypeSelect, 2).
				withOptions([2]string{"low", "gray"}, [2]string{"medium", "yellow"}, [2]string{"high", "red"}),
			prop("dueDate", "Due date", TypeDate, 3),
			prop("tags", "Tags", TypeMultiSelect, 4).
				withOptions([2]string{"home", "green"}, [2]string{"work", "blue"}, [2]string{"errand", "orange"}),
			prop("notes", "Notes", TypeTextarea, 5),
			prop("completedAt", "Completed at", TypeDate, 6),
			prop("createdAt", "Created", TypeCreatedTime, 7),
		},
		Views:              []View{tableView("All Tasks"), boardView("status")},
		RequiredProperties: []string{"title"},
		FrozenProperties:   []string{"title", "status"},
	},
	"goals": {
		EntityType:  "goals",
		DisplayName: "Goals",
		Properties: []PropertyDefinition{
			prop("title", "Title", TypeText, 0).asRequired(),
			prop("status", "Status", TypeSelect, 1).asFrozen().
				withOptions([2]string{"not_started", "gray"}, [2]string{"active", "blue"}, [2]string{"achieved", "green"}, [2]string{"abandoned", "red"}),
			prop("targetDate", "Target date", TypeDate, 2),
			prop("progress", "Progress", TypeNumber, 3),
			prop("why", "Why", TypeTextarea, 4),
			prop("createdAt", "Created", TypeCreatedTime, 5),
		},
		Views:              []View{tableView("All Goals"), boardView("status")},
		RequiredProperties: []string{"title"},
		FrozenProperties:   []string{"title", "status"},
	},
	"habits": {
		EntityType:  "habits",
		DisplayName: "Habits",
		Properties: []PropertyDefinition{
			prop("name", "Name", TypeText, 0).asRequired(),
			prop("frequency", "Frequency", TypeSelect, 1).
				withOptions([2]string{"daily", "blue"}, [2]string{"weekly", "green"}, [2]string{"monthly", "orange"}),
			prop("streak", "Streak", TypeNumber, 2),
			prop("active", "Active", TypeCheckbox, 3),
			prop("lastDone", "Last done", TypeDate, 4),
		},
		Views:              []View{tableView("All Habits")},
		RequiredProperties: []string{"name"},
		FrozenProperties:   []string{"name"},
	},
	"books": {
		EntityType:  "books",
		DisplayName: "Books",
		Properties: []PropertyDefinition{
			prop("title", "Title", TypeText, 0).asRequired(),
			prop("author", "Author", TypeText, 1),
			prop("isbn", "ISBN", TypeText, 2),
			prop("status", "Status", TypeSelect, 3).asFrozen().
				withOptions([2]string{"to_read", "gray"}, [2]string{"reading", "blue"}, [2]string{"finished", "green"}, [2]string{"abandoned", "red"}),
			prop("genre", "Genre", TypeMultiSelect, 4).
				withOptions([2]string{"fiction", "purple"}, [2]string{"non_fiction", "blue"}, [2]string{"technical", "orange"}, [2]string{"biography", "green"}),
			prop("rating", "Rating", TypeNumber, 5),
			prop("pages", "Pages", TypeNumber, 6),
			prop("currentPage", "Current page", TypeNumber, 7),
			prop("startedAt", "Started", TypeDate, 8),
			prop("finishedAt", "Finished", TypeDate, 9),
		},
		Views:              []View{tableView("All Books"), boardView("status")},
		RequiredProperties: []string{"title"},
		FrozenProperties:   []string{"title", "status"},
	},
	"people": {
		EntityType:  "people",
		DisplayName: "People",
		Properties: []PropertyDefinition{
			prop("name", "Name", TypeText, 0).asRequired(),
			prop("email", "Email", TypeEmail, 1),
			prop("phone", "Phone", TypePhone, 2),
			prop("company", "Company", TypeText, 3),
			prop("birthday", "Birthday", TypeDate, 4),
			prop("circle", "Circle", TypeSelect, 5).
				withOptions([2]string{"family", "red"}, [2]string{"friends", "green"}, [2]string{"work", "blue"}, [2]string{"other", "gray"}),
			prop("notes", "Notes", TypeTextarea, 6),
		},
		Views:              []View{tableView("All People")},
		RequiredProperties: []string{"name"},
		FrozenProperties:   []string{"name"},
	},
	"moods": {
		EntityType:  "moods",
		DisplayName: "Moods",
		Properties: []PropertyDefinition{
			prop("entryTime", "Entry time", TypeDate, 0).asRequired(),
			prop("mood", "Mood", TypeSelect, 1).asRequired().
				withOptions([2]string{"great", "green"}, [2]string{"good", "blue"}, [2]string{"ok", "yellow"}, [2]string{"bad", "orange"}, [2]string{"awful", "red"}),
			prop("energy", "Energy", TypeNumber, 2),
			prop("note", "Note", TypeTextarea, 3),
		},
		Views: []View{
			tableView("All Entries"),
			{
				ID: "calendar", Name: "Calendar", Type: ViewCalendar, System: true,
				Config: &ViewConfig{DateProperty: "entryTime", ColorProperty: "mood"},
			},
		},
		RequiredProperties: []string{"entryTime", "mood"},
		FrozenProperties:   []string{"entryTime", "mood"},
	},
	"journal": {
		EntityType:  "journal",
		DisplayName: "Journal",
		Properties: []PropertyDefinition{
			prop("title", "Title", TypeText, 0).asRequired(),
			prop("date", "Date", TypeDate, 1).asFrozen(),
			prop("content", "Content", TypeTextarea, 2),
			prop("tags", "Tags", TypeMultiSelect, 3).
				withOptions([2]string{"gratitude", "green"}, [2]string{"reflection", "blue"}, [2]string{"idea", "yellow"}),
		},
		Views:              []View{tableView("All Entries")},
		RequiredProperties: []string{"title"},
		FrozenProperties:   []string{"title", "date"},
	},
}

// EntityTypes lists the entity type tags with a registered template.
func EntityTypes() []string {
	types := make([]string, 0, len(templates))
	for t := range templates {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultTemplate returns the canonical starter template for an entity type.
// The returned template is a deep copy and safe to mutate.
func DefaultTemplate(entityType string) (Template, error) {
	t, ok := templates[entityType]
	if !ok {
		return Template{}, apperr.NotFound("entity type template", entityType)
	}
	return copyTemplate(t), nil
}

// DefaultProperties returns the canonical starter schema for an entity type.
func DefaultProperties(entityType string) ([]PropertyDefinition, error) {
	t, err := DefaultTemplate(entityType)
	if err != nil {
		return nil, err
	}
	return t.Properties, nil
}

// DefaultViews returns the canonical starter views for an entity type.
func DefaultViews(entityType string) ([]View, error) {
	t, err := DefaultTemplate(entityType)
	if err != nil {
		return nil, err
	}
	return t.Views, nil
}

// FrozenConfig exposes the protected property sets for an entity type.
func FrozenConfig(entityType string) (required, frozen []string, err error) {
	t, err := DefaultTemplate(entityType)
	if err != nil {
		return nil, nil, err
	}
	return t.RequiredProperties, t.FrozenProperties, nil
}

func copyTemplate(t Template) Template {
	out := t
	out.Properties = make([]PropertyDefinition, len(t.Properties))
	copy(out.Properties, t.Properties)
	for i, p := range out.Properties {
		if len(p.Options) > 0 {
			opts := make([]SelectOption, len(p.Options))
			copy(opts, p.Options)
			out.Properties[i].Options = opts
		}
		if p.Relation != nil {
			r := *p.Relation
			out.Properties[i].Relation = &r
		}
		if p.Formula != nil {
			f := *p.Formula
			out.Properties[i].Formula = &f
		}
	}
	out.Views = make([]View, len(t.Views))
	copy(out.Views, t.Views)
	for i, v := range out.Views {
		if v.Config != nil {
			c := *v.Config
			out.Views[i].Config = &c
		}
	}
	out.RequiredProperties = append([]string(nil), t.RequiredProperties...)
	out.FrozenProperties = append([]string(nil), t.FrozenProperties...)
	return out
}
