package ops

import (
	"encoding/json"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wrenholt/libris/internal/apperr"
)

// createRequired lists the mandatory fields per entity for create calls.
// Page and image carry extra rules beyond simple presence (see Validate).
var createRequired = map[Entity][]string{
	EntityBook:      {"name"},
	EntityBookshelf: {"name"},
	EntityChapter:   {"book_id", "name"},
	EntityPage:      {"name"},
	EntityImage:     {"name", "image", "uploaded_to"},
}

// Validate checks a request against the (operation, entity) rule table.
// A request is well-formed iff Validate returns nil; validation failures must
// never be preceded by a network call.
func Validate(req Request) error {
	if !req.Entity.Valid() {
		return apperr.Validation("unknown entity_type: %q", string(req.Entity))
	}
	if !req.Operation.Valid() {
		return apperr.Validation("unknown operation: %q", string(req.Operation))
	}

	switch req.Operation {
	case OpCreate:
		return validateCreate(req)
	case OpRead, OpDelete:
		if req.ID <= 0 {
			return apperr.Validation("%s %s requires a positive id", req.Operation, req.Entity)
		}
		return nil
	case OpUpdate:
		return validateUpdate(req)
	case OpList:
		return validateList(req)
	}
	return nil
}

func validateCreate(req Request) error {
	for _, f := range createRequired[req.Entity] {
		if !hasField(req.Fields, f) {
			return apperr.Validation("create %s requires field %q", req.Entity, f)
		}
	}
	if req.Entity == EntityPage {
		return validatePageFields(req.Fields, true)
	}
	return nil
}

func validateUpdate(req Request) error {
	if req.ID <= 0 {
		return apperr.Validation("update %s requires a positive id", req.Entity)
	}
	if countPresent(req.Fields) == 0 {
		return apperr.Validation("update %s requires at least one field to change", req.Entity)
	}
	if req.Entity == EntityPage {
		return validatePageFields(req.Fields, false)
	}
	return nil
}

// validatePageFields enforces the page exclusivity rules: a page belongs to
// exactly one of a book or a chapter, and its body is markdown or HTML but
// never both. Create demands a body; update may omit it.
func validatePageFields(fields map[string]any, isCreate bool) error {
	hasBook := hasField(fields, "book_id")
	hasChapter := hasField(fields, "chapter_id")
	if hasBook && hasChapter {
		return apperr.Validation("page accepts book_id or chapter_id, not both")
	}
	if isCreate && !hasBook && !hasChapter {
		return apperr.Validation("create page requires exactly one of book_id or chapter_id")
	}

	hasMarkdown := hasField(fields, "markdown")
	hasHTML := hasField(fields, "html")
	if hasMarkdown && hasHTML {
		return apperr.Validation("page accepts markdown or html, not both")
	}
	if isCreate && !hasMarkdown && !hasHTML {
		return apperr.Validation("create page requires exactly one of markdown or html")
	}
	return nil
}

func validateList(req Request) error {
	if err := validation.Validate(req.Offset, validation.Min(0)); err != nil {
		return apperr.Validation("offset: %v", err)
	}
	if req.Count != 0 {
		if err := validation.Validate(req.Count, validation.Min(1), validation.Max(100)); err != nil {
			return apperr.Validation("count: %v", err)
		}
	}
	return nil
}

// hasField reports whether fields carries a usable value for key: present,
// and neither an empty string nor a zero id.
func hasField(fields map[string]any, key string) bool {
	v, ok := fields[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		return t.String() != "0" && t.String() != ""
	}
	return true
}

func countPresent(fields map[string]any) int {
	n := 0
	for k := range fields {
		if hasField(fields, k) {
			n++
		}
	}
	return n
}

// intField extracts an integer field regardless of the JSON decoding type.
func intField(fields map[string]any, key string) (int, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// stringField extracts a string field, tolerating numeric values.
func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}
