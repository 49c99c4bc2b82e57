package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// HTTP talks to a REST backend that exposes one resource per collection:
// GET and POST on /<collection>, PUT and DELETE on /<collection>/<id>.
type HTTP struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewHTTP creates a REST transport. A nil client gets one with cfg.Timeout.
func NewHTTP(cfg formedit.HTTPConfig, client *http.Client) *HTTP {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &HTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
		client:  client,
	}
}

func (h *HTTP) resourceURL(collection string, id ...string) string {
	parts := []string{h.baseURL, url.PathEscape(collection)}
	for _, p := range id {
		parts = append(parts, url.PathEscape(p))
	}
	return strings.Join(parts, "/")
}

// FetchCollection GETs the collection and decodes a bare array or an items envelope.
func (h *HTTP) FetchCollection(ctx context.Context, name string) (*formedit.CollectionPage, error) {
	body, err := h.do(ctx, name, http.MethodGet, h.resourceURL(name), nil)
	if err != nil {
		return nil, err
	}
	page, err := formedit.DecodeCollectionPage(body)
	if err != nil {
		return nil, formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeInvalidPayload, "collection payload is not readable").
			WithRecord(name, "").WithCause(err)
	}
	return page, nil
}

// CreateRecord POSTs raw and returns the record the backend echoes. An empty or
// unreadable echo yields an empty record, since the write itself succeeded.
func (h *HTTP) CreateRecord(ctx context.Context, name string, raw formedit.Record) (formedit.Record, error) {
	body, err := h.do(ctx, name, http.MethodPost, h.resourceURL(name), &raw)
	if err != nil {
		return formedit.Record{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return formedit.NewRecord(), nil
	}
	var created formedit.Record
	if err := json.Unmarshal(body, &created); err != nil {
		// The write went through; only the echo is unreadable.
		zap.S().Warnw("create response is not a record", "collection", name, "error", err)
		return formedit.NewRecord(), nil
	}
	return created, nil
}

// UpdateRecord PUTs raw to the record's resource path.
func (h *HTTP) UpdateRecord(ctx context.Context, name, id string, raw formedit.Record) error {
	_, err := h.do(ctx, name, http.MethodPut, h.resourceURL(name, id), &raw)
	return err
}

// DeleteRecord sends DELETE to the record's resource path.
func (h *HTTP) DeleteRecord(ctx context.Context, name, id string) error {
	_, err := h.do(ctx, name, http.MethodDelete, h.resourceURL(name, id), nil)
	return err
}

func (h *HTTP) do(ctx context.Context, collection, method, target string, payload *formedit.Record) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, formedit.NewInternalError("encode record", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, formedit.NewTransportError(collection, "build request", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, formedit.NewTransportError(collection, fmt.Sprintf("%s %s", method, target), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, formedit.NewTransportError(collection, "read response body", err)
	}
	zap.S().Debugw("transport request", "method", method, "url", target, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, formedit.NewStatusError(collection, resp.StatusCode)
	}
	return body, nil
}
