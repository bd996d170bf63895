package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/wrenholt/libris/internal/bookstack"
	"github.com/wrenholt/libris/internal/cache"
	"github.com/wrenholt/libris/internal/imaging"
)

// Router is the single entry point translating a validated operation request
// into exactly one upstream HTTP call (cache-checked for list), and reshaping
// the result into the tool envelope.
type Router struct {
	api    *bookstack.Client
	cache  *cache.Cache
	images *imaging.Normalizer
	log    *slog.Logger
}

// NewRouter wires the router to its collaborators. The cache is passed in
// rather than owned so tests can construct a fresh one per case and assert
// invalidation precisely.
func NewRouter(api *bookstack.Client, c *cache.Cache, images *imaging.Normalizer, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{api: api, cache: c, images: images, log: log}
}

// cachedList is what one list response stores in the cache.
type cachedList struct {
	data json.RawMessage
	meta map[string]any
}

// Execute runs one operation end to end. It never returns a Go error: every
// failure is folded into the envelope.
func (r *Router) Execute(ctx context.Context, req Request) Envelope {
	opName := string(req.Operation)

	if err := Validate(req); err != nil {
		return Fail(opName, err)
	}

	var (
		data any
		meta map[string]any
		err  error
	)
	switch req.Operation {
	case OpCreate:
		data, err = r.create(ctx, req)
	case OpRead:
		data, err = r.read(ctx, req)
	case OpUpdate:
		data, err = r.update(ctx, req)
	case OpDelete:
		data, err = r.delete(ctx, req)
	case OpList:
		data, meta, err = r.list(ctx, req)
	default:
		return Fail(opName, fmt.Errorf("unhandled operation %q", opName))
	}
	if err != nil {
		return Fail(opName, err)
	}

	if req.Operation.Mutates() {
		// Baseline semantics: drop the whole cache rather than one family,
		// trading precision for never serving stale post-mutation data.
		r.cache.InvalidateAll()
		r.log.Debug("cache invalidated",
			slog.String("operation", opName),
			slog.String("entity", string(req.Entity)))
	}
	return Ok(opName, data, meta)
}

func (r *Router) create(ctx context.Context, req Request) (any, error) {
	if req.Entity == EntityImage {
		return r.createImage(ctx, req)
	}
	raw, err := r.api.Post(ctx, req.Entity.Resource(), req.Fields)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// read issues a by-id GET. Reads are deliberately not cached: the by-id path
// is the most identity-sensitive one.
func (r *Router) read(ctx context.Context, req Request) (any, error) {
	raw, err := r.api.Get(ctx, r.entityPath(req), nil)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// update issues a partial PUT containing only the supplied fields; omitted
// fields are left untouched server-side.
func (r *Router) update(ctx context.Context, req Request) (any, error) {
	if req.Entity == EntityImage {
		return r.updateImage(ctx, req)
	}
	raw, err := r.api.Put(ctx, r.entityPath(req), req.Fields)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *Router) delete(ctx context.Context, req Request) (any, error) {
	if err := r.api.Delete(ctx, r.entityPath(req)); err != nil {
		return nil, err
	}
	return map[string]any{"id": req.ID, "deleted": true}, nil
}

func (r *Router) list(ctx context.Context, req Request) (any, map[string]any, error) {
	count := req.Count
	if count == 0 {
		count = req.Entity.DefaultCount()
	}

	key := cache.Key(req.Entity.Resource(), req.Offset, count, req.Sort, req.Filters)
	if v, meta, ok := r.cache.Get(key); ok {
		r.log.Debug("cache hit", slog.String("key", key))
		return v, meta, nil
	}

	q := url.Values{}
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("count", strconv.Itoa(count))
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	for k, v := range req.Filters {
		q.Set(fmt.Sprintf("filter[%s]", k), v)
	}

	col, err := r.api.GetCollection(ctx, req.Entity.Resource(), q)
	if err != nil {
		return nil, nil, err
	}

	meta := map[string]any{
		"total":  col.Total,
		"offset": req.Offset,
		"count":  count,
	}
	// A cancelled call never commits cache state.
	if ctx.Err() == nil {
		r.cache.Set(key, req.Entity.Resource(), col.Data, meta)
	}
	return col.Data, meta, nil
}

// createImage normalizes the payload and uploads it as multipart form data.
// BookStack requires uploaded_to (the target page) on new gallery uploads.
func (r *Router) createImage(ctx context.Context, req Request) (any, error) {
	payload, err := r.images.Decode(ctx, stringField(req.Fields, "image"), stringField(req.Fields, "file_name"))
	if err != nil {
		return nil, err
	}

	uploadedTo, _ := intField(req.Fields, "uploaded_to")
	fields := map[string]string{
		"name":        stringField(req.Fields, "name"),
		"uploaded_to": strconv.Itoa(uploadedTo),
		"type":        "gallery",
	}
	if t := stringField(req.Fields, "type"); t != "" {
		fields["type"] = t
	}

	return r.api.PostMultipart(ctx, EntityImage.Resource(), fields, &bookstack.FilePart{
		Field:    "image",
		FileName: payload.FileName,
		MIMEType: payload.MIMEType,
		Data:     payload.Bytes,
	})
}

// updateImage renames and/or replaces the binary of a gallery image.
func (r *Router) updateImage(ctx context.Context, req Request) (any, error) {
	fields := map[string]string{}
	if name := stringField(req.Fields, "name"); name != "" {
		fields["name"] = name
	}

	if img := stringField(req.Fields, "image"); img != "" {
		payload, err := r.images.Decode(ctx, img, stringField(req.Fields, "file_name"))
		if err != nil {
			return nil, err
		}
		return r.api.PutMultipart(ctx, r.entityPath(req), fields, &bookstack.FilePart{
			Field:    "image",
			FileName: payload.FileName,
			MIMEType: payload.MIMEType,
			Data:     payload.Bytes,
		})
	}

	return r.api.Put(ctx, r.entityPath(req), req.Fields)
}

func (r *Router) entityPath(req Request) string {
	return fmt.Sprintf("%s/%d", req.Entity.Resource(), req.ID)
}
