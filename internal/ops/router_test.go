package ops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/wrenholt/libris/internal/cache"
	"github.com/wrenholt/libris/internal/imaging"
	"github.com/wrenholt/libris/internal/testutil"
)

func newTestRouter(t *testing.T, u *testutil.Upstream) (*Router, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.DefaultTTL)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(u.Client(), c, imaging.NewNormalizer(0, 0), log), c
}

func TestListServedFromCacheWithinTTL(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Guide"}],"total":1}`))
	})
	router, _ := newTestRouter(t, u)

	req := Request{Operation: OpList, Entity: EntityBook}
	first := router.Execute(context.Background(), req)
	second := router.Execute(context.Background(), req)

	if !first.Success || !second.Success {
		t.Fatalf("list failed: %+v / %+v", first, second)
	}
	if u.CallCount() != 1 {
		t.Errorf("upstream calls = %d, want 1 (second list should hit cache)", u.CallCount())
	}
	if first.Metadata["total"] != second.Metadata["total"] {
		t.Error("cached response differs from original")
	}
}

func TestMutationForcesNextListToUpstream(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":9,"name":"New"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[],"total":0}`))
	})
	router, _ := newTestRouter(t, u)

	listReq := Request{Operation: OpList, Entity: EntityBook}
	router.Execute(context.Background(), listReq)

	createEnv := router.Execute(context.Background(), Request{
		Operation: OpCreate,
		Entity:    EntityBook,
		Fields:    map[string]any{"name": "New"},
	})
	if !createEnv.Success {
		t.Fatalf("create failed: %+v", createEnv)
	}

	router.Execute(context.Background(), listReq)

	// list, create, list again: three upstream calls, no stale cache hit.
	if u.CallCount() != 3 {
		t.Errorf("upstream calls = %d, want 3", u.CallCount())
	}
}

func TestUpdateWithZeroFieldsMakesNoCall(t *testing.T) {
	u := testutil.NewUpstream(t)
	router, _ := newTestRouter(t, u)

	env := router.Execute(context.Background(), Request{
		Operation: OpUpdate,
		Entity:    EntityBook,
		ID:        1,
		Fields:    map[string]any{},
	})

	if env.Success {
		t.Fatal("expected validation failure")
	}
	if env.Error.Details["kind"] != "validation" {
		t.Errorf("kind = %v", env.Error.Details["kind"])
	}
	if u.CallCount() != 0 {
		t.Errorf("upstream calls = %d, validation failures must not reach the network", u.CallCount())
	}
}

func TestDeleteSurfacesUpstream404Unchanged(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Page not found"}}`))
	})
	router, _ := newTestRouter(t, u)

	env := router.Execute(context.Background(), Request{Operation: OpDelete, Entity: EntityPage, ID: 42})
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Error.Details["status"] != 404 {
		t.Errorf("status = %v, want 404 passed through", env.Error.Details["status"])
	}
	if env.Error.Details["upstream_body"] != `{"error":{"code":404,"message":"Page not found"}}` {
		t.Errorf("upstream body not preserved: %v", env.Error.Details["upstream_body"])
	}
}

func TestReadIsNotCached(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"name":"Guide"}`))
	})
	router, _ := newTestRouter(t, u)

	req := Request{Operation: OpRead, Entity: EntityBook, ID: 1}
	router.Execute(context.Background(), req)
	router.Execute(context.Background(), req)

	if u.CallCount() != 2 {
		t.Errorf("upstream calls = %d, want 2 (reads bypass the cache)", u.CallCount())
	}
}

func TestListForwardsQueryAndDefaults(t *testing.T) {
	u := testutil.NewUpstream(t)
	var gotQuery map[string]string
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{"data":[],"total":0}`))
	})
	router, _ := newTestRouter(t, u)

	router.Execute(context.Background(), Request{
		Operation: OpList,
		Entity:    EntityPage,
		Offset:    40,
		Count:     20,
		Sort:      "+name",
		Filters:   map[string]string{"book_id": "3"},
	})
	if gotQuery["offset"] != "40" || gotQuery["count"] != "20" {
		t.Errorf("pagination query = %v", gotQuery)
	}
	if gotQuery["sort"] != "+name" {
		t.Errorf("sort = %q", gotQuery["sort"])
	}
	if gotQuery["filter[book_id]"] != "3" {
		t.Errorf("filter = %v", gotQuery)
	}

	// Images default to a smaller page size.
	router.Execute(context.Background(), Request{Operation: OpList, Entity: EntityImage})
	if gotQuery["count"] != "20" {
		t.Errorf("image default count = %q, want 20", gotQuery["count"])
	}

	router.Execute(context.Background(), Request{Operation: OpList, Entity: EntityBook})
	if gotQuery["count"] != "100" {
		t.Errorf("book default count = %q, want 100", gotQuery["count"])
	}
}

func TestCreateImageUploadsMultipart(t *testing.T) {
	u := testutil.NewUpstream(t)
	var gotName, gotUploadedTo, gotType, gotFile, gotMIME string
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotName = r.FormValue("name")
		gotUploadedTo = r.FormValue("uploaded_to")
		gotType = r.FormValue("type")
		_, hdr, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		gotFile = hdr.Filename
		gotMIME = hdr.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"id":5,"name":"logo"}`))
	})
	router, _ := newTestRouter(t, u)

	env := router.Execute(context.Background(), Request{
		Operation: OpCreate,
		Entity:    EntityImage,
		Fields: map[string]any{
			"name":        "logo",
			"image":       "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg==",
			"uploaded_to": float64(12),
			"file_name":   "logo.png",
		},
	})
	if !env.Success {
		t.Fatalf("create image failed: %+v", env.Error)
	}
	if gotName != "logo" || gotUploadedTo != "12" || gotType != "gallery" {
		t.Errorf("form fields = %q %q %q", gotName, gotUploadedTo, gotType)
	}
	if gotFile != "logo.png" || gotMIME != "image/png" {
		t.Errorf("file part = %q %q", gotFile, gotMIME)
	}
}

func TestCreateImageBadPayloadMakesNoCall(t *testing.T) {
	u := testutil.NewUpstream(t)
	router, _ := newTestRouter(t, u)

	env := router.Execute(context.Background(), Request{
		Operation: OpCreate,
		Entity:    EntityImage,
		Fields: map[string]any{
			"name":        "broken",
			"image":       "data:image/png;base64,",
			"uploaded_to": float64(1),
		},
	})
	if env.Success {
		t.Fatal("expected payload failure")
	}
	if env.Error.Details["kind"] != "payload" {
		t.Errorf("kind = %v", env.Error.Details["kind"])
	}
	if u.CallCount() != 0 {
		t.Errorf("upstream calls = %d, want 0", u.CallCount())
	}
}

func TestSearchPassthrough(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("query") != "linux {type:page}" {
			t.Errorf("query = %q", r.URL.Query().Get("query"))
		}
		_, _ = w.Write([]byte(`{"data":[{"id":8,"name":"Linux"}],"total":1}`))
	})
	router, _ := newTestRouter(t, u)

	env := router.Search(context.Background(), "linux {type:page}", 1, 20)
	if !env.Success {
		t.Fatalf("search failed: %+v", env.Error)
	}
	if env.Metadata["total"] != 1 {
		t.Errorf("total = %v", env.Metadata["total"])
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	u := testutil.NewUpstream(t)
	router, _ := newTestRouter(t, u)

	env := router.Search(context.Background(), "  ", 0, 0)
	if env.Success {
		t.Fatal("expected validation failure")
	}
	if u.CallCount() != 0 {
		t.Errorf("upstream calls = %d, want 0", u.CallCount())
	}
}

func TestSearchImagesClientSideRefinement(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":1,"name":"logo.png","url":"https://docs.example/uploads/logo.png","uploaded_to":12,"created_at":"2024-03-01T10:00:00Z"},
			{"id":2,"name":"photo.jpg","url":"https://docs.example/uploads/photo.jpg","uploaded_to":12,"created_at":"2024-03-05T10:00:00Z"},
			{"id":3,"name":"old.png","url":"https://docs.example/uploads/old.png","uploaded_to":7,"created_at":"2023-01-01T10:00:00Z"}
		],"total":3}`))
	})
	router, _ := newTestRouter(t, u)

	env := router.SearchImages(context.Background(), ImageSearch{
		Extension: "png",
		UsedIn:    12,
	})
	if !env.Success {
		t.Fatalf("search_images failed: %+v", env.Error)
	}
	matched, ok := env.Data.([]map[string]any)
	if !ok {
		t.Fatalf("data type = %T", env.Data)
	}
	if len(matched) != 1 {
		t.Fatalf("matched = %d, want 1", len(matched))
	}
	if matched[0]["name"] != "logo.png" {
		t.Errorf("matched = %v", matched[0]["name"])
	}
	if env.Metadata["matched"] != 1 {
		t.Errorf("metadata matched = %v", env.Metadata["matched"])
	}
}

func TestSearchImagesCreatedBounds(t *testing.T) {
	u := testutil.NewUpstream(t)
	u.Respond(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":1,"name":"a.png","created_at":"2024-01-15T00:00:00Z"},
			{"id":2,"name":"b.png","created_at":"2024-06-15T00:00:00Z"}
		],"total":2}`))
	})
	router, _ := newTestRouter(t, u)

	env := router.SearchImages(context.Background(), ImageSearch{
		CreatedAfter:  "2024-03-01",
		CreatedBefore: "2024-12-31",
	})
	if !env.Success {
		t.Fatalf("search_images failed: %+v", env.Error)
	}
	matched := env.Data.([]map[string]any)
	if len(matched) != 1 || matched[0]["name"] != "b.png" {
		t.Errorf("matched = %v", matched)
	}
}

func TestEnvelopeShape(t *testing.T) {
	env := Fail("update", errValidation())
	out, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(out, &decoded)
	if decoded["success"] != false {
		t.Error("success must be explicit")
	}
	if decoded["operation"] != "update" {
		t.Errorf("operation = %v", decoded["operation"])
	}
	if _, ok := decoded["error"].(map[string]any); !ok {
		t.Error("error body missing")
	}
}

func errValidation() error {
	return Validate(Request{Operation: OpUpdate, Entity: EntityBook, ID: 1})
}
