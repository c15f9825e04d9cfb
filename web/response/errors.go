package response

import (
	"errors"
	"net/http"

	"github.com/xcono/gridbase/apperr"
)

// FieldError mirrors apperr.FieldError on the wire.
type FieldError struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`
}

// WriteError maps the error taxonomy to HTTP statuses: validation 400, not
// found 404, forbidden 403, everything else 500. Internal causes are not
// echoed to the caller.
func WriteError(w http.ResponseWriter, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body := Envelope{Success: false, Message: ve.Message}
		if len(ve.Fields) > 0 {
			body.Errors = make(map[string]FieldError, len(ve.Fields))
			for field, fe := range ve.Fields {
				body.Errors[field] = FieldError(fe)
			}
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}

	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, Envelope{Success: false, Message: nf.Error()})
		return
	}

	var fb *apperr.ForbiddenError
	if errors.As(err, &fb) {
		writeJSON(w, http.StatusForbidden, Envelope{Success: false, Message: fb.Error()})
		return
	}

	writeJSON(w, http.StatusInternalServerError, Envelope{Success: false, Message: "internal server error"})
}

// WriteBadRequest writes a 400 with a plain message.
func WriteBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: message})
}

// WriteMethodNotAllowed writes a 405.
func WriteMethodNotAllowed(w http.ResponseWriter, method string) {
	writeJSON(w, http.StatusMethodNotAllowed, Envelope{Success: false, Message: "method " + method + " not allowed"})
}
