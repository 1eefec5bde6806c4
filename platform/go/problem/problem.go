package problem

import (
	"encoding/json"
	"net/http"
)

// Code is the fixed error-code taxonomy surfaced to API clients.
type Code string

const (
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeDatabase     Code = "DATABASE_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Problem type URIs, one per taxonomy code.
const (
	TypeUnauthorized = "https://crewdeck.dev/problems/unauthorized"
	TypeForbidden    = "https://crewdeck.dev/problems/forbidden"
	TypeNotFound     = "https://crewdeck.dev/problems/not-found"
	TypeValidation   = "https://crewdeck.dev/problems/validation-error"
	TypeConflict     = "https://crewdeck.dev/problems/conflict"
	TypeDatabase     = "https://crewdeck.dev/problems/database-error"
	TypeInternal     = "https://crewdeck.dev/problems/internal-error"
)

// Details is an RFC 7807 problem document extended with the service error code
// and optional per-field validation messages.
type Details struct {
	Type   string               `json:"type,omitempty"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail string               `json:"detail,omitempty"`
	Code   Code                 `json:"code"`
	Errors *map[string][]string `json:"errors,omitempty"`
}

// New builds a problem document for the given status/code pair.
func New(status int, code Code, title, detail string) Details {
	return Details{
		Type:   typeFor(code, status),
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	}
}

// WithFields attaches per-field validation messages; the map is copied.
func (d Details) WithFields(fields map[string][]string) Details {
	if len(fields) == 0 {
		return d
	}
	copied := make(map[string][]string, len(fields))
	for field, messages := range fields {
		copied[field] = append([]string(nil), messages...)
	}
	d.Errors = &copied
	return d
}

// Write serializes the problem document with the RFC 7807 media type.
func Write(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

func typeFor(code Code, status int) string {
	switch code {
	case CodeUnauthorized:
		return TypeUnauthorized
	case CodeForbidden:
		return TypeForbidden
	case CodeNotFound:
		return TypeNotFound
	case CodeValidation:
		if status == http.StatusConflict {
			return TypeConflict
		}
		return TypeValidation
	case CodeDatabase:
		return TypeDatabase
	default:
		return TypeInternal
	}
}
