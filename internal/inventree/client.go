// Package inventree implements an authenticated HTTP client for the
// InvenTree REST API.
//
// InvenTree validates its configured SITE_URL against the origin of incoming
// requests. The gateway usually reaches the server over an internal address
// (e.g. a Docker network alias), so every request carries the public site
// domain as its Host header to pass that validation. The override is fixed at
// construction time and never changed afterwards; one Client instance is
// shared by all in-flight operations.
package inventree

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
)

// UpstreamError describes a failed request against the InvenTree API. It
// always carries the method and path so callers can log a useful diagnosis,
// and the upstream response body when one was received.
type UpstreamError struct {
	Method     string
	Path       string
	StatusCode int // zero when the request never reached the server
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client is an HTTP client for the InvenTree REST API.
type Client struct {
	apiBase      *url.URL // <upstream>/api/, all resource endpoints live here
	rootBase     *url.URL // <upstream>/, media files are served outside /api
	token        string
	hostOverride string
	httpClient   *http.Client
}

// New creates a client for the InvenTree server at upstreamURL,
// authenticating with token and identifying as siteDomain on every request.
func New(upstreamURL, token, siteDomain string, timeout time.Duration) (*Client, error) {
	root, err := url.Parse(strings.TrimSuffix(upstreamURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", upstreamURL, err)
	}
	api := *root
	api.Path = api.Path + "api/"
	return &Client{
		apiBase:      &api,
		rootBase:     root,
		token:        token,
		hostOverride: siteDomain,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Get performs a GET request and decodes the JSON response into out.
// Passing a nil out discards the response body.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON payload.
func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, payload, out)
}

// Patch performs a PATCH request with a JSON payload.
func (c *Client) Patch(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, payload, out)
}

// UploadFile sends data as a multipart PATCH with a single "image" file
// field, which is how InvenTree accepts part image uploads.
func (c *Client) UploadFile(ctx context.Context, path string, data []byte, filename, contentType string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return &UpstreamError{Method: http.MethodPatch, Path: path, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &UpstreamError{Method: http.MethodPatch, Path: path, Err: err}
	}
	if err := mw.Close(); err != nil {
		return &UpstreamError{Method: http.MethodPatch, Path: path, Err: err}
	}
	return c.do(ctx, http.MethodPatch, path, &buf, mw.FormDataContentType(), out)
}

// StreamMedia performs a GET against the upstream root (not /api) with the
// client's identity headers and returns the raw response for streaming. The
// caller owns the response body. Non-2xx responses are returned as-is so the
// relay can propagate the upstream status.
func (c *Client) StreamMedia(ctx context.Context, path string) (*http.Response, error) {
	u, err := resolve(c.rootBase, path, false)
	if err != nil {
		return nil, &UpstreamError{Method: http.MethodGet, Path: path, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &UpstreamError{Method: http.MethodGet, Path: path, Err: err}
	}
	c.identify(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Method: http.MethodGet, Path: path, Err: err}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &UpstreamError{Method: method, Path: path, Err: err}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	u, err := resolve(c.apiBase, path, true)
	if err != nil {
		return &UpstreamError{Method: method, Path: path, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &UpstreamError{Method: method, Path: path, Err: err}
	}
	c.identify(req)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &UpstreamError{Method: method, Path: path, Err: err}
	}
	if resp.StatusCode >= 400 {
		return &UpstreamError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &UpstreamError{Method: method, Path: path, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

// identify applies the two fixed identity concerns: the bearer token and the
// spoofed Host header.
func (c *Client) identify(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.token)
	req.Host = c.hostOverride
}

// resolve joins path (which may carry its own query string) onto base.
// InvenTree negotiates multiple response representations, so API requests ask
// for JSON explicitly via the format query parameter.
func resolve(base *url.URL, path string, wantJSON bool) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	u := base.ResolveReference(ref)
	if wantJSON {
		q := u.Query()
		q.Set("format", "json")
		u.RawQuery = q.Encode()
	}
	return u, nil
}
