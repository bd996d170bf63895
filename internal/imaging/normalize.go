// Package imaging normalizes the image encodings accepted by the gallery
// tools (inline base64, data URL, remote http/https URL) into a single
// binary+MIME representation ready for multipart upload. Downstream code
// never branches on the original encoding again.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wrenholt/libris/internal/apperr"
)

// Source records which encoding a payload arrived in.
type Source string

const (
	SourceBase64    Source = "base64"
	SourceDataURL   Source = "dataUrl"
	SourceRemoteURL Source = "remoteUrl"
)

// Payload is the uniform decoded image, owned by the call that produced it
// and discarded after the upload completes.
type Payload struct {
	Bytes    []byte
	MIMEType string
	FileName string
	Source   Source
}

const (
	// DefaultMaxBytes caps decoded payloads and remote downloads.
	DefaultMaxBytes = 50 << 20 // 50 MB
	// DefaultFetchTimeout bounds the remote-URL fetch. It is enforced
	// independently of the subsequent upload request's timeout.
	DefaultFetchTimeout = 30 * time.Second
)

// allowedMIME maps accepted image MIME types to a filename extension.
var allowedMIME = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/svg+xml": ".svg",
}

// Normalizer decodes image inputs under size and time limits.
type Normalizer struct {
	MaxBytes     int
	FetchTimeout time.Duration
	client       *http.Client
}

// NewNormalizer creates a Normalizer. Zero values fall back to the defaults.
func NewNormalizer(maxBytes int, fetchTimeout time.Duration) *Normalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Normalizer{
		MaxBytes:     maxBytes,
		FetchTimeout: fetchTimeout,
		client:       &http.Client{Timeout: fetchTimeout},
	}
}

// Decode turns input into a Payload. The encoding is discriminated by shape:
// "data:" prefix is a data URL, "http://"/"https://" is a remote fetch, and
// anything else is treated as inline base64. fileName may be empty; one is
// derived from the URL path or generated.
func (n *Normalizer) Decode(ctx context.Context, input, fileName string) (*Payload, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apperr.Payload("image data is empty")
	}

	var p *Payload
	var err error
	switch {
	case strings.HasPrefix(input, "data:"):
		p, err = decodeDataURL(input)
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		p, err = n.fetchRemote(ctx, input)
	case strings.Contains(input, "://"):
		return nil, apperr.Payload("unsupported URL scheme: only http and https are allowed")
	default:
		p, err = decodeBase64(input)
	}
	if err != nil {
		return nil, err
	}

	if len(p.Bytes) == 0 {
		return nil, apperr.Payload("decoded image is empty")
	}
	if len(p.Bytes) > n.MaxBytes {
		return nil, apperr.Payload("image too large: %d bytes (max %d)", len(p.Bytes), n.MaxBytes)
	}
	if _, ok := allowedMIME[p.MIMEType]; !ok {
		return nil, apperr.Payload("unsupported image type: %s", p.MIMEType)
	}

	if fileName != "" {
		p.FileName = fileName
	}
	if p.FileName == "" {
		p.FileName = uuid.New().String() + allowedMIME[p.MIMEType]
	}
	return p, nil
}

// decodeBase64 handles a bare base64 string with no MIME declaration; the
// type is sniffed from the decoded bytes.
func decodeBase64(input string) (*Payload, error) {
	cleaned := stripWhitespace(input)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, apperr.PayloadWrap("invalid base64 image data", err)
		}
	}
	if len(data) == 0 {
		return nil, apperr.Payload("decoded image is empty")
	}
	return &Payload{Bytes: data, MIMEType: sniffMIME(data), Source: SourceBase64}, nil
}

// decodeDataURL parses data:<mime>[;base64],<payload>. A non-base64 data URL
// is URL-decoded as text bytes.
func decodeDataURL(input string) (*Payload, error) {
	rest := strings.TrimPrefix(input, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, apperr.Payload("invalid data URL: missing comma separator")
	}
	meta, encoded := rest[:comma], rest[comma+1:]

	mime := strings.Split(meta, ";")[0]
	if mime == "" {
		return nil, apperr.Payload("invalid data URL: missing MIME type")
	}

	var data []byte
	if strings.Contains(meta, ";base64") {
		var err error
		data, err = base64.StdEncoding.DecodeString(stripWhitespace(encoded))
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(stripWhitespace(encoded))
			if err != nil {
				return nil, apperr.PayloadWrap("invalid base64 in data URL", err)
			}
		}
	} else {
		text, err := url.QueryUnescape(encoded)
		if err != nil {
			return nil, apperr.PayloadWrap("invalid URL-encoded data URL", err)
		}
		data = []byte(text)
	}
	if len(data) == 0 {
		return nil, apperr.Payload("data URL payload is empty")
	}
	return &Payload{Bytes: data, MIMEType: mime, Source: SourceDataURL}, nil
}

// fetchRemote downloads the image with the normalizer's own timeout and size
// cap. Only http and https schemes are dialled, so a tool call cannot be used
// to probe internal resources.
func (n *Normalizer) fetchRemote(ctx context.Context, rawURL string) (*Payload, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.PayloadWrap("invalid image URL", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, apperr.Payload("unsupported URL scheme: %s (only http/https)", parsed.Scheme)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, n.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.PayloadWrap("build image request", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, apperr.PayloadWrap("image download failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Payload("image download failed: HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, int64(n.MaxBytes)+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperr.PayloadWrap("read image body", err)
	}
	if len(data) > n.MaxBytes {
		return nil, apperr.Payload("image too large: exceeds %d bytes", n.MaxBytes)
	}

	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if _, ok := allowedMIME[mime]; !ok {
		// Reject even on HTTP 200: the body is not an allowed image.
		return nil, apperr.Payload("remote content-type %q is not an allowed image type", mime)
	}

	return &Payload{
		Bytes:    data,
		MIMEType: mime,
		FileName: fileNameFromURL(parsed, allowedMIME[mime]),
		Source:   SourceRemoteURL,
	}, nil
}

// fileNameFromURL derives a filename from the URL path, falling back to a
// generated name with the detected extension.
func fileNameFromURL(u *url.URL, ext string) string {
	base := path.Base(u.Path)
	if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
		return base
	}
	return uuid.New().String() + ext
}

// sniffMIME detects the type of raw decoded bytes. SVG needs its own check
// because net/http sniffs it as XML or plain text.
func sniffMIME(data []byte) string {
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if _, ok := allowedMIME[detected]; ok {
		return detected
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Contains(head, []byte("<svg")) {
		return "image/svg+xml"
	}
	return detected
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// Ext returns the canonical extension for an allowed MIME type.
func Ext(mime string) string { return allowedMIME[mime] }

// String implements fmt.Stringer for logging.
func (p *Payload) String() string {
	return fmt.Sprintf("%s %s (%d bytes, %s)", p.Source, p.MIMEType, len(p.Bytes), p.FileName)
}
