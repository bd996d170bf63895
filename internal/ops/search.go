package ops

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wrenholt/libris/internal/apperr"
)

// Search is the passthrough to GET /api/search, reshaped into the envelope.
// Results are not cached.
func (r *Router) Search(ctx context.Context, query string, page, count int) Envelope {
	const op = "search"

	if strings.TrimSpace(query) == "" {
		return Fail(op, apperr.Validation("search requires a non-empty query"))
	}
	if err := validation.Validate(page, validation.Min(0)); err != nil {
		return Fail(op, apperr.Validation("page: %v", err))
	}
	if count != 0 {
		if err := validation.Validate(count, validation.Min(1), validation.Max(100)); err != nil {
			return Fail(op, apperr.Validation("count: %v", err))
		}
	}

	q := url.Values{}
	q.Set("query", query)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}

	col, err := r.api.GetCollection(ctx, "search", q)
	if err != nil {
		return Fail(op, err)
	}
	return Ok(op, col.Data, map[string]any{"total": col.Total})
}

// ImageSearch carries the structured filters of the search_images tool.
// Query is forwarded upstream as a name filter; the remaining criteria are
// applied client-side to the returned page.
type ImageSearch struct {
	Query         string
	Extension     string
	SizeMin       int
	SizeMax       int
	CreatedAfter  string
	CreatedBefore string
	UsedIn        int
	Offset        int
	Count         int
	Sort          string
}

// SearchImages lists gallery images matching the given criteria.
func (r *Router) SearchImages(ctx context.Context, s ImageSearch) Envelope {
	const op = "search_images"

	after, err := parseBound(s.CreatedAfter)
	if err != nil {
		return Fail(op, apperr.Validation("created_after: %v", err))
	}
	before, err := parseBound(s.CreatedBefore)
	if err != nil {
		return Fail(op, apperr.Validation("created_before: %v", err))
	}

	req := Request{
		Operation: OpList,
		Entity:    EntityImage,
		Offset:    s.Offset,
		Count:     s.Count,
		Sort:      s.Sort,
	}
	if s.Query != "" {
		req.Filters = map[string]string{"name": s.Query}
	}
	env := r.Execute(ctx, req)
	if !env.Success {
		env.Operation = op
		return env
	}

	items, err := decodeItems(env.Data)
	if err != nil {
		return Fail(op, err)
	}

	matched := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if imageMatches(it, s, after, before) {
			matched = append(matched, it)
		}
	}

	meta := map[string]any{"matched": len(matched)}
	if env.Metadata != nil {
		meta["total"] = env.Metadata["total"]
	}
	return Ok(op, matched, meta)
}

func decodeItems(data any) ([]map[string]any, error) {
	raw, ok := data.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, apperr.Transport("reshape image list", err)
		}
		raw = b
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.Transport("decode image list", err)
	}
	return items, nil
}

// imageMatches applies the client-side criteria. Size bounds apply only to
// entries that expose a size field; older BookStack versions omit it.
func imageMatches(it map[string]any, s ImageSearch, after, before time.Time) bool {
	if s.Extension != "" {
		ext := "." + strings.TrimPrefix(strings.ToLower(s.Extension), ".")
		name, _ := it["name"].(string)
		u, _ := it["url"].(string)
		file := strings.ToLower(path.Base(u))
		if !strings.HasSuffix(strings.ToLower(name), ext) && !strings.HasSuffix(file, ext) {
			return false
		}
	}
	if s.UsedIn > 0 {
		if up, ok := numField(it, "uploaded_to"); !ok || up != s.UsedIn {
			return false
		}
	}
	if size, ok := numField(it, "size"); ok {
		if s.SizeMin > 0 && size < s.SizeMin {
			return false
		}
		if s.SizeMax > 0 && size > s.SizeMax {
			return false
		}
	}
	if !after.IsZero() || !before.IsZero() {
		created, ok := timeField(it, "created_at")
		if !ok {
			return false
		}
		if !after.IsZero() && created.Before(after) {
			return false
		}
		if !before.IsZero() && created.After(before) {
			return false
		}
	}
	return true
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func numField(it map[string]any, key string) (int, bool) {
	switch v := it[key].(type) {
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func timeField(it map[string]any, key string) (time.Time, bool) {
	s, ok := it[key].(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
