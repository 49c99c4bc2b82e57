package internal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireServers() []formedit.Record {
	return []formedit.Record{
		formedit.NewRecord("id", "1", "itemName", "primary web server node", "itemOS", "linux",
			"itemStatus", "up", "itemCreated", "2024-01-02T03:04:05Z"),
		formedit.NewRecord("id", "2", "itemName", "secondary database node", "itemOS", "bsd",
			"itemStatus", "down", "itemCreated", "2024-02-03T04:05:06Z"),
	}
}

func newTestSession(t *testing.T, tr formedit.Transport) (*Session, *recordingEmitter) {
	t.Helper()
	emitter := &recordingEmitter{}
	s, err := NewSession(nil, tr, emitter)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 10, 11, 12, 0, time.Local) }
	return s, emitter
}

func openServers(t *testing.T, s *Session) {
	t.Helper()
	out := s.Open(context.Background(), "servers")
	require.True(t, out.OK(), "open: %v", out.Err)
}

func selectAndEdit(t *testing.T, s *Session, id, field, value string) {
	t.Helper()
	require.True(t, s.SelectID(id).OK())
	require.True(t, s.Edit(field, value).OK())
}

func rowByID(view formedit.View, id string) (formedit.RowProjection, bool) {
	for _, row := range view.Rows {
		if row.ID == id {
			return row, true
		}
	}
	return formedit.RowProjection{}, false
}

func TestNewSessionRequiresTransport(t *testing.T) {
	_, err := NewSession(nil, nil, nil)
	assert.Error(t, err)
}

func TestSessionCollections(t *testing.T) {
	s, _ := newTestSession(t, transport.NewMemory())
	names := s.Collections()
	require.Len(t, names, 12)
	assert.Equal(t, "manage", names[0])
	assert.Equal(t, "settings", names[11])
}

func TestSessionOpen(t *testing.T) {
	mem := transport.NewMemory()
	mem.Seed("servers", wireServers()...)
	mem.SetMeta("servers", formedit.NewRecord("title", "Servers", "intro", "All hosts"))
	s, emitter := newTestSession(t, mem)

	openServers(t, s)
	view := s.View()
	assert.Equal(t, "servers", view.Collection)
	assert.Equal(t, formedit.PageMeta{Title: "Servers", Description: "All hosts"}, view.Page)

	keys := make([]string, len(view.Columns))
	for i, col := range view.Columns {
		keys[i] = col.Key
	}
	assert.Equal(t, []string{"id", "name", "os", "status", "created"}, keys)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "secondary database node", view.Rows[1].Values[1])
	assert.Empty(t, view.Detail.Fields)
	assert.Empty(t, view.Notice.Text)

	rules := s.Rules()
	assert.Equal(t, formedit.WidgetSelect, rules["os"].Type)
	assert.True(t, rules["created"].ReadOnly)
	assert.Len(t, emitter.named(EventCollectionLoaded), 1)
}

func TestSessionOpenUnknownCollection(t *testing.T) {
	s, _ := newTestSession(t, transport.NewMemory())

	out := s.Open(context.Background(), "nope")
	assert.Equal(t, formedit.OutcomeBlocked, out.Status)
	assert.True(t, formedit.HasCode(out.Err, formedit.ErrCodeUnknownCollection))
	assert.Equal(t, "Error loading nope.", s.View().Notice.Text)
}

func TestSessionOpenFetchFailure(t *testing.T) {
	tr := &recordingTransport{fetchErr: formedit.NewStatusError("servers", 503)}
	s, _ := newTestSession(t, tr)

	out := s.Open(context.Background(), "servers")
	assert.Equal(t, formedit.OutcomeFailed, out.Status)
	assert.True(t, formedit.IsTransportError(out.Err))
	assert.Equal(t, "Error loading servers.", out.Notice.Text)
}

func TestSessionOpenDuplicateIDsKeepsPreviousState(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	require.True(t, s.SelectID("2").OK())

	tr.page = &formedit.CollectionPage{Items: []formedit.Record{
		formedit.NewRecord("id", "x", "question", "a"),
		formedit.NewRecord("id", "x", "question", "b"),
	}}
	out := s.Open(context.Background(), "faqs")
	assert.Equal(t, formedit.OutcomeFailed, out.Status)
	assert.True(t, formedit.IsIntegrityError(out.Err))

	view := s.View()
	assert.Equal(t, "Duplicate IDs: x", view.Notice.Text)
	assert.Equal(t, "servers", view.Collection)
	assert.Len(t, view.Rows, 2)
	row, ok := rowByID(view, "2")
	require.True(t, ok)
	assert.True(t, row.Selected)
}

func TestSessionSaveUpdate(t *testing.T) {
	mem := transport.NewMemory()
	mem.Seed("servers", wireServers()...)
	s, emitter := newTestSession(t, mem)
	openServers(t, s)
	selectAndEdit(t, s, "1", "status", "down")
	require.True(t, s.HasUnsavedChanges())

	out := s.Save(context.Background())
	require.True(t, out.OK(), "save: %v", out.Err)
	assert.Equal(t, formedit.Notice{Level: formedit.NoticeSuccess, Text: "Saved 10:11:12"}, out.Notice)
	assert.False(t, s.HasUnsavedChanges())

	page, err := mem.FetchCollection(context.Background(), "servers")
	require.NoError(t, err)
	assert.Equal(t, "down", page.Items[0].Value("itemStatus"))
	assert.Equal(t, "2024-01-02T03:04:05Z", page.Items[0].Value("itemCreated"))

	row, ok := rowByID(s.View(), "1")
	require.True(t, ok)
	assert.True(t, row.Selected)

	notices := emitter.named(EventNotice)
	require.NotEmpty(t, notices)
	assert.Equal(t, out.Notice, notices[len(notices)-1].Data)
}

func TestSessionSaveCreateReselects(t *testing.T) {
	mem := transport.NewMemory()
	mem.Seed("servers", wireServers()...)
	s, _ := newTestSession(t, mem)
	openServers(t, s)

	require.True(t, s.NewDraft().OK())
	view := s.View()
	require.Len(t, view.Rows, 3)
	assert.True(t, view.Rows[0].Draft)
	assert.True(t, view.Rows[0].Selected)

	require.True(t, s.Edit("name", "tertiary cache server node").OK())
	require.True(t, s.Edit("os", "linux").OK())
	require.True(t, s.Edit("status", "up").OK())

	out := s.Save(context.Background())
	require.True(t, out.OK(), "save: %v", out.Err)

	view = s.View()
	require.Len(t, view.Rows, 3)
	var selected formedit.RowProjection
	for _, row := range view.Rows {
		assert.False(t, row.Draft)
		if row.Selected {
			selected = row
		}
	}
	require.NotEmpty(t, selected.ID)
	_, err := uuid.Parse(selected.ID)
	assert.NoError(t, err)
	assert.Equal(t, "tertiary cache server node", selected.Values[1])
	assert.False(t, view.Detail.Dirty)

	page, err := mem.FetchCollection(context.Background(), "servers")
	require.NoError(t, err)
	created := page.Items[2]
	assert.Equal(t, []string{"id", "itemName", "itemOS", "itemStatus"}, created.Keys())
}

func TestSessionSaveCommitsLocallyWithoutReload(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}, createID: "42"}
	cfg := formedit.DefaultConfig()
	cfg.Editor.ReloadAfterWrite = false
	s, err := NewSession(cfg, tr, nil)
	require.NoError(t, err)
	openServers(t, s)

	require.True(t, s.NewDraft().OK())
	require.True(t, s.Edit("name", "tertiary cache server node").OK())
	require.True(t, s.Edit("os", "bsd").OK())
	require.True(t, s.Edit("status", "up").OK())
	require.True(t, s.Save(context.Background()).OK())

	assert.Equal(t, 1, tr.fetches)
	require.Len(t, tr.creates, 1)
	assert.Equal(t, "tertiary cache server node", tr.creates[0].Value("itemName"))
	assert.False(t, tr.creates[0].Has("id"))

	row, ok := rowByID(s.View(), "42")
	require.True(t, ok)
	assert.True(t, row.Selected)
	assert.False(t, s.HasUnsavedChanges())
}

func TestSessionSaveBlockedWhenInvalid(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "1", "name", "   ")

	out := s.Save(context.Background())
	assert.Equal(t, formedit.OutcomeBlocked, out.Status)
	assert.True(t, formedit.HasCode(out.Err, formedit.ErrCodeRequiredFieldMissing))
	assert.Equal(t, NoticeCompleteFields, out.Notice.Text)
	assert.Empty(t, tr.updates)
	assert.True(t, s.HasUnsavedChanges())
}

func TestSessionSaveNothingToSave(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)

	out := s.Save(context.Background())
	assert.Equal(t, formedit.OutcomeBlocked, out.Status)
	assert.Equal(t, NoticeNothingToSave, out.Notice.Text)

	require.True(t, s.SelectID("1").OK())
	out = s.Save(context.Background())
	assert.Equal(t, formedit.OutcomeBlocked, out.Status)
	assert.Equal(t, NoticeNothingToSave, out.Notice.Text)
	assert.Empty(t, tr.updates)
}

func TestSessionSaveFailureKeepsEdits(t *testing.T) {
	tr := &recordingTransport{
		page:      &formedit.CollectionPage{Items: wireServers()},
		updateErr: formedit.NewStatusError("servers", 500),
	}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "2", "status", "up")

	out := s.Save(context.Background())
	assert.Equal(t, formedit.OutcomeFailed, out.Status)
	assert.True(t, formedit.HasCode(out.Err, formedit.ErrCodeUnexpectedStatus))
	assert.Equal(t, NoticeSaveFailed, out.Notice.Text)
	assert.Equal(t, 1, tr.fetches)

	require.Len(t, tr.updates, 1)
	assert.Equal(t, []string{"itemName", "itemOS", "itemStatus"}, tr.updates[0].Keys())

	assert.True(t, s.HasUnsavedChanges())
	row, ok := rowByID(s.View(), "2")
	require.True(t, ok)
	assert.Equal(t, "up", row.Values[3])
}

func TestSessionCloseNeedsConfirmationWhenDirty(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "1", "status", "down")

	out := s.Close()
	assert.Equal(t, formedit.OutcomeConfirmRequired, out.Status)
	assert.True(t, formedit.HasCode(out.Err, formedit.ErrCodeUnsavedChanges))
	assert.Equal(t, NoticeUnsavedChanges, out.Notice.Text)
	assert.True(t, s.HasUnsavedChanges())

	require.True(t, s.Close().OK())
	assert.False(t, s.HasUnsavedChanges())
	assert.Equal(t, uuid.Nil, s.View().Detail.RowKey)
}

func TestSessionCloseCleanFormIsImmediate(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	require.True(t, s.SelectID("1").OK())
	require.True(t, s.Close().OK())
}

func TestSessionResetNeedsConfirmation(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)

	out := s.Reset()
	assert.Equal(t, formedit.OutcomeBlocked, out.Status)
	assert.Equal(t, NoticeNothingToSave, out.Notice.Text)

	selectAndEdit(t, s, "1", "status", "down")
	assert.Equal(t, formedit.OutcomeConfirmRequired, s.Reset().Status)
	require.True(t, s.Reset().OK())

	assert.False(t, s.HasUnsavedChanges())
	row, _ := rowByID(s.View(), "1")
	assert.Equal(t, "up", row.Values[3])
}

func TestSessionOpenNeedsConfirmationWhenDirty(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "1", "status", "down")

	out := s.Open(context.Background(), "servers")
	assert.Equal(t, formedit.OutcomeConfirmRequired, out.Status)
	assert.Equal(t, 1, tr.fetches)

	openServers(t, s)
	assert.Equal(t, 2, tr.fetches)
	assert.False(t, s.HasUnsavedChanges())
}

func TestSessionNewDraftNeedsConfirmationWhenDirty(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "1", "status", "down")

	assert.Equal(t, formedit.OutcomeConfirmRequired, s.NewDraft().Status)
	assert.Len(t, s.View().Rows, 2)
	require.True(t, s.NewDraft().OK())
	assert.Len(t, s.View().Rows, 3)
}

func TestSessionNewDraftOnEmptyCollection(t *testing.T) {
	s, _ := newTestSession(t, transport.NewMemory())
	out := s.Open(context.Background(), "faqs")
	require.True(t, out.OK())

	require.True(t, s.NewDraft().OK())
	view := s.View()
	require.Len(t, view.Columns, 5)
	assert.Equal(t, "id", view.Columns[0].Key)
	require.Len(t, view.Detail.Fields, 5)
	assert.True(t, view.Detail.Fields[0].ReadOnly)
}

func TestSessionDeleteDraftIsLocal(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	require.True(t, s.NewDraft().OK())

	out := s.Delete(context.Background())
	require.True(t, out.OK())
	assert.Empty(t, out.Notice.Text)
	assert.Empty(t, tr.deletes)
	assert.Len(t, s.View().Rows, 2)
	assert.Equal(t, 1, tr.fetches)
}

func TestSessionDeletePersisted(t *testing.T) {
	mem := transport.NewMemory()
	mem.Seed("servers", wireServers()...)
	s, _ := newTestSession(t, mem)
	openServers(t, s)

	out := s.Delete(context.Background())
	assert.True(t, formedit.HasCode(out.Err, formedit.ErrCodeNoSelection))

	require.True(t, s.SelectID("2").OK())
	out = s.Delete(context.Background())
	require.True(t, out.OK(), "delete: %v", out.Err)
	assert.Equal(t, NoticeRecordDeleted, out.Notice.Text)

	view := s.View()
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "1", view.Rows[0].ID)
	assert.Equal(t, uuid.Nil, view.Detail.RowKey)
}

func TestSessionDeleteDirtyNeedsConfirmation(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "1", "status", "down")

	assert.Equal(t, formedit.OutcomeConfirmRequired, s.Delete(context.Background()).Status)
	assert.Empty(t, tr.deletes)
	require.True(t, s.Delete(context.Background()).OK())
	assert.Equal(t, []string{"1"}, tr.deletes)
}

func TestSessionDeleteFailureKeepsRecord(t *testing.T) {
	tr := &recordingTransport{
		page:      &formedit.CollectionPage{Items: wireServers()},
		deleteErr: formedit.NewStatusError("servers", 404),
	}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	require.True(t, s.SelectID("1").OK())

	out := s.Delete(context.Background())
	assert.Equal(t, formedit.OutcomeFailed, out.Status)
	assert.Equal(t, NoticeDeleteFailed, out.Notice.Text)
	assert.Len(t, s.View().Rows, 2)
}

func TestSessionRejectsEventsWhileInFlight(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	selectAndEdit(t, s, "1", "status", "down")

	tr.block = make(chan struct{})
	result := make(chan formedit.Outcome, 1)
	go func() { result <- s.Save(context.Background()) }()
	require.Eventually(t, s.inflight.Busy, time.Second, time.Millisecond)

	out := s.Edit("status", "up")
	assert.Equal(t, formedit.OutcomeBlocked, out.Status)
	assert.True(t, formedit.HasCode(out.Err, formedit.ErrCodeOperationInFlight))
	assert.Equal(t, NoticeBusy, out.Notice.Text)
	assert.True(t, formedit.HasCode(s.Delete(context.Background()).Err, formedit.ErrCodeOperationInFlight))
	assert.True(t, formedit.HasCode(s.Open(context.Background(), "servers").Err, formedit.ErrCodeOperationInFlight))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.Drain(ctx)
	assert.True(t, s.inflight.Busy())

	close(tr.block)
	s.Drain(context.Background())
	assert.False(t, s.inflight.Busy())

	saved := <-result
	assert.True(t, saved.OK())
	assert.Len(t, tr.updates, 1)
}

func TestSessionToggleRow(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)
	key := s.View().Rows[0].Key

	require.True(t, s.ToggleRow(key).OK())
	assert.Equal(t, key, s.View().Detail.RowKey)
	require.True(t, s.ToggleRow(key).OK())
	assert.Equal(t, uuid.Nil, s.View().Detail.RowKey)

	out := s.SelectID("missing")
	assert.True(t, formedit.IsNotFoundError(out.Err))
}

func TestSessionSchema(t *testing.T) {
	tr := &recordingTransport{page: &formedit.CollectionPage{Items: wireServers()}}
	s, _ := newTestSession(t, tr)
	openServers(t, s)

	schema := s.Schema()
	assert.Equal(t, "servers", schema.Title)
	assert.Equal(t, []string{"name", "os", "status"}, schema.Required)
	assert.True(t, schema.Properties["id"].ReadOnly)
	assert.Equal(t, "date-time", schema.Properties["created"].Format)
}
