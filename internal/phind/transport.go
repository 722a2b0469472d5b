package phind

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one call made through a Transport.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Transport is the HTTP collaborator the provider drives.
type Transport interface {
	// Fetch returns the whole response body as text
	Fetch(ctx context.Context, req Request) (string, error)

	// Stream returns the response body for incremental reading; the caller closes it
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
}

// HTTPTransport implements Transport on net/http
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client, or a client with the given timeout when client is nil.
// A zero timeout leaves streams unbounded.
func NewHTTPTransport(client *http.Client, timeout time.Duration) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{client: client}
}

// Fetch implements Transport
func (t *HTTPTransport) Fetch(ctx context.Context, req Request) (string, error) {
	body, err := t.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(data), nil
}

// Stream implements Transport
func (t *HTTPTransport) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	return t.do(ctx, req)
}

func (t *HTTPTransport) do(ctx context.Context, req Request) (io.ReadCloser, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode, Body: string(excerpt)}
	}
	return resp.Body, nil
}

// DefaultHeaders is the browser-like header set the endpoints expect.
func DefaultHeaders(origin, userAgent string) http.Header {
	h := http.Header{}
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Origin", origin)
	h.Set("Referer", origin+"/search")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Content-Type", "application/json;charset=UTF-8")
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return h
}
