// Package bookstack is a thin client for the BookStack REST API.
//
// It knows nothing about tools or caching: it turns method+path+body into an
// authenticated HTTP request, decodes the JSON response, and classifies
// failures (non-2xx vs transport) using the apperr taxonomy.
package bookstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/wrenholt/libris/internal/apperr"
)

// DefaultTimeout bounds every upstream call. No request may block forever.
const DefaultTimeout = 30 * time.Second

// Collection is the envelope BookStack returns for collection GETs.
type Collection struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

// Client issues authenticated requests against one BookStack instance.
type Client struct {
	base        string
	tokenID     string
	tokenSecret string
	http        *http.Client
}

// New creates a client for the given base URL and API token pair.
func New(baseURL, tokenID, tokenSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:        strings.TrimSuffix(baseURL, "/"),
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
		http:        &http.Client{Timeout: timeout},
	}
}

// Get issues GET <base>/api/<path>?query and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.base + "/api/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.Transport("build request", err)
	}
	return c.do(req)
}

// GetCollection issues a collection GET and decodes the {data, total} envelope.
func (c *Client) GetCollection(ctx context.Context, path string, query url.Values) (*Collection, error) {
	raw, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	var col Collection
	if err := json.Unmarshal(raw, &col); err != nil {
		return nil, apperr.Transport("decode collection response", err)
	}
	return &col, nil
}

// Post issues POST with a JSON body and returns the raw JSON response.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// Put issues PUT with a JSON body and returns the raw JSON response.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body)
}

// Delete issues DELETE. Both 200 and 204 count as success.
func (c *Client) Delete(ctx context.Context, path string) error {
	u := c.base + "/api/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return apperr.Transport("build request", err)
	}
	_, err = c.do(req)
	return err
}

// FilePart carries a binary upload for a multipart request.
type FilePart struct {
	Field    string
	FileName string
	MIMEType string
	Data     []byte
}

// PostMultipart issues POST with multipart form fields plus one file part.
// BookStack's image endpoints take multipart bodies rather than JSON.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, file *FilePart) (json.RawMessage, error) {
	return c.sendMultipart(ctx, http.MethodPost, path, fields, file)
}

// PutMultipart issues PUT with multipart form fields and an optional file part.
func (c *Client) PutMultipart(ctx context.Context, path string, fields map[string]string, file *FilePart) (json.RawMessage, error) {
	return c.sendMultipart(ctx, http.MethodPut, path, fields, file)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Transport("encode request body", err)
	}
	u := c.base + "/api/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Transport("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) sendMultipart(ctx context.Context, method, path string, fields map[string]string, file *FilePart) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, apperr.Transport("write multipart field", err)
		}
	}
	if file != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.FileName))
		hdr.Set("Content-Type", file.MIMEType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			return nil, apperr.Transport("create multipart part", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, apperr.Transport("write multipart part", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, apperr.Transport("finalize multipart body", err)
	}

	u := c.base + "/api/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, apperr.Transport("build request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Token %s:%s", c.tokenID, c.tokenSecret))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Transport("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transport("read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}
