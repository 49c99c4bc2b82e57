package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lychee-technology/formedit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Header http.Header
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Body: string(data), Header: r.Header.Clone()})
	status, body := b.status, b.body
	b.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (b *fakeBackend) last() recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func newHTTPTransport(t *testing.T, backend *fakeBackend) *HTTP {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return NewHTTP(formedit.HTTPConfig{
		BaseURL: srv.URL + "/",
		Headers: map[string]string{"X-Client": "formedit"},
	}, srv.Client())
}

func TestHTTPFetchCollectionShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantTitle string
		wantIDs   []string
	}{
		{
			name:    "bare array",
			body:    `[{"id":"1","name":"a"},{"id":"2","name":"b"}]`,
			wantIDs: []string{"1", "2"},
		},
		{
			name:      "envelope object",
			body:      `{"title":"Servers","intro":"All hosts","items":[{"id":"7"}]}`,
			wantTitle: "Servers",
			wantIDs:   []string{"7"},
		},
		{
			name:      "wrapped envelope",
			body:      `[{"title":"Audit","items":[{"id":"9"},{"id":"10"}]}]`,
			wantTitle: "Audit",
			wantIDs:   []string{"9", "10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{body: tt.body}
			tr := newHTTPTransport(t, backend)

			page, err := tr.FetchCollection(context.Background(), "servers")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, page.Meta.Value("title"))
			ids := make([]string, 0, len(page.Items))
			for _, item := range page.Items {
				ids = append(ids, item.ID())
			}
			assert.Equal(t, tt.wantIDs, ids)

			req := backend.last()
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "/servers", req.Path)
			assert.Equal(t, "formedit", req.Header.Get("X-Client"))
		})
	}
}

func TestHTTPWritesUseResourcePaths(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{body: `{"id":"42","itemName":"web"}`}
	tr := newHTTPTransport(t, backend)

	created, err := tr.CreateRecord(ctx, "servers", formedit.NewRecord("itemName", "web", "itemOS", "linux"))
	require.NoError(t, err)
	assert.Equal(t, "42", created.ID())
	req := backend.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/servers", req.Path)
	assert.JSONEq(t, `{"itemName":"web","itemOS":"linux"}`, req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	backend.body = ""
	require.NoError(t, tr.UpdateRecord(ctx, "servers", "42", formedit.NewRecord("itemOS", "bsd")))
	req = backend.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/servers/42", req.Path)
	assert.Equal(t, `{"itemOS":"bsd"}`, req.Body)

	require.NoError(t, tr.DeleteRecord(ctx, "servers", "a/b"))
	req = backend.last()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/servers/a%2Fb", req.Path)
}

func TestHTTPCreateWithUnreadableEcho(t *testing.T) {
	backend := &fakeBackend{status: http.StatusCreated, body: `"ok"`}
	tr := newHTTPTransport(t, backend)

	created, err := tr.CreateRecord(context.Background(), "faqs", formedit.NewRecord("question", "q"))
	require.NoError(t, err)
	assert.Equal(t, 0, created.Len())
}

func TestHTTPNonSuccessStatus(t *testing.T) {
	backend := &fakeBackend{status: http.StatusNotFound, body: `"Not found"`}
	tr := newHTTPTransport(t, backend)

	_, err := tr.FetchCollection(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, formedit.IsTransportError(err))
	assert.True(t, formedit.HasCode(err, formedit.ErrCodeUnexpectedStatus))
	assert.Contains(t, err.Error(), "STATUS 404")

	err = tr.DeleteRecord(context.Background(), "missing", "1")
	assert.True(t, formedit.HasCode(err, formedit.ErrCodeUnexpectedStatus))
}

func TestHTTPMalformedCollection(t *testing.T) {
	backend := &fakeBackend{body: `"just a string"`}
	tr := newHTTPTransport(t, backend)

	_, err := tr.FetchCollection(context.Background(), "faqs")
	require.Error(t, err)
	assert.True(t, formedit.HasCode(err, formedit.ErrCodeInvalidPayload))
}

func TestHTTPUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTP(formedit.HTTPConfig{BaseURL: url}, nil)
	_, err := tr.FetchCollection(context.Background(), "faqs")
	require.Error(t, err)
	assert.True(t, formedit.HasCode(err, formedit.ErrCodeTransportFailed))
}
