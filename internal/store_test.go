package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/formedit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport counts calls and can fail on demand.
type recordingTransport struct {
	page      *formedit.CollectionPage
	fetchErr  error
	createErr error
	updateErr error
	deleteErr error
	createID  string

	fetches int
	creates []formedit.Record
	updates []formedit.Record
	deletes []string

	// block, when set, is waited on by writes before they return.
	block chan struct{}
}

func (r *recordingTransport) FetchCollection(_ context.Context, _ string) (*formedit.CollectionPage, error) {
	r.fetches++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if r.page == nil {
		return &formedit.CollectionPage{Meta: formedit.NewRecord()}, nil
	}
	items := make([]formedit.Record, len(r.page.Items))
	for i, item := range r.page.Items {
		items[i] = item.Clone()
	}
	return &formedit.CollectionPage{Meta: r.page.Meta.Clone(), Items: items}, nil
}

func (r *recordingTransport) CreateRecord(_ context.Context, _ string, raw formedit.Record) (formedit.Record, error) {
	if r.block != nil {
		<-r.block
	}
	r.creates = append(r.creates, raw.Clone())
	if r.createErr != nil {
		return formedit.Record{}, r.createErr
	}
	if r.createID == "" {
		return formedit.NewRecord(), nil
	}
	return formedit.NewRecord("id", r.createID), nil
}

func (r *recordingTransport) UpdateRecord(_ context.Context, _ string, id string, raw formedit.Record) error {
	if r.block != nil {
		<-r.block
	}
	r.updates = append(r.updates, raw.Clone())
	return r.updateErr
}

func (r *recordingTransport) DeleteRecord(_ context.Context, _ string, id string) error {
	if r.block != nil {
		<-r.block
	}
	r.deletes = append(r.deletes, id)
	return r.deleteErr
}

func TestRecordStoreLoad(t *testing.T) {
	s := NewRecordStore(&recordingTransport{})
	require.NoError(t, s.Load("faqs", []formedit.Record{
		formedit.NewRecord("id", "1", "q", "a"),
		formedit.NewRecord("id", "2", "q", "b"),
	}))

	assert.Equal(t, "faqs", s.Collection())
	assert.Equal(t, 2, s.Len())
	_, selected := s.Selected()
	assert.False(t, selected)

	entries := s.Entries()
	assert.NotEqual(t, entries[0].Key, entries[1].Key)
	assert.NotEqual(t, uuid.Nil, entries[0].Key)
}

func TestRecordStoreDuplicateIDsKeepPreviousState(t *testing.T) {
	s := NewRecordStore(&recordingTransport{})
	require.NoError(t, s.Load("faqs", []formedit.Record{formedit.NewRecord("id", "1")}))
	key := s.Entries()[0].Key
	require.NoError(t, s.Select(key))

	err := s.Load("servers", []formedit.Record{
		formedit.NewRecord("id", "x"),
		formedit.NewRecord("id", "y"),
		formedit.NewRecord("id", "x"),
		formedit.NewRecord("id", " "),
		formedit.NewRecord("id", ""),
		formedit.NewRecord("id", "y"),
		formedit.NewRecord("id", "x"),
	})
	require.Error(t, err)
	assert.True(t, formedit.IsIntegrityError(err))
	assert.Equal(t, []string{"x", "y"}, formedit.DuplicateIDs(err))

	assert.Equal(t, "faqs", s.Collection())
	assert.Equal(t, 1, s.Len())
	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, key, selected.Key)
}

func TestRecordStoreSelect(t *testing.T) {
	s := NewRecordStore(&recordingTransport{})
	require.NoError(t, s.Load("faqs", []formedit.Record{formedit.NewRecord("id", "1")}))
	key := s.Entries()[0].Key

	require.NoError(t, s.Select(key))
	got, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "1", got.Record.ID())

	err := s.Select(uuid.New())
	assert.True(t, formedit.IsNotFoundError(err))

	require.NoError(t, s.Select(uuid.Nil))
	_, ok = s.Selected()
	assert.False(t, ok)

	found, ok := s.Find("1")
	assert.True(t, ok)
	assert.Equal(t, key, found)
	_, ok = s.Find("")
	assert.False(t, ok)
}

func TestRecordStoreCreateDraft(t *testing.T) {
	s := NewRecordStore(&recordingTransport{})
	require.NoError(t, s.Load("faqs", nil))

	fallback := formedit.DefaultConfig().Editor.DraftFallbackKeys
	keys := s.TemplateKeys(fallback)
	assert.Equal(t, []string{"id", "name", "description", "created", "updated"}, keys)

	key := s.CreateDraft(keys)
	entry, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, key, entry.Key)
	assert.True(t, entry.Draft())
	assert.Equal(t, keys, entry.Record.Keys())
	assert.Equal(t, "", entry.Record.Value("id"))

	require.NoError(t, s.Load("faqs", []formedit.Record{formedit.NewRecord("id", "1", "question", "q")}))
	assert.Equal(t, []string{"id", "question"}, s.TemplateKeys(fallback))

	draft := s.CreateDraft(s.TemplateKeys(fallback))
	assert.Equal(t, draft, s.Entries()[0].Key)
}

func TestRecordStoreUpdateOnlySelected(t *testing.T) {
	s := NewRecordStore(&recordingTransport{})
	require.NoError(t, s.Load("faqs", []formedit.Record{
		formedit.NewRecord("id", "1", "q", "a"),
		formedit.NewRecord("id", "2", "q", "b"),
	}))
	entries := s.Entries()

	err := s.Update(entries[1].Key, formedit.NewRecord("q", "x"))
	assert.True(t, formedit.HasCode(err, formedit.ErrCodeNoSelection))

	require.NoError(t, s.Select(entries[1].Key))
	require.NoError(t, s.Update(entries[1].Key, formedit.NewRecord("q", "x")))
	got, _ := s.Get(entries[1].Key)
	assert.Equal(t, "x", got.Value("q"))
}

func TestRecordStoreRemoveDraftIsLocal(t *testing.T) {
	tr := &recordingTransport{}
	s := NewRecordStore(tr)
	require.NoError(t, s.Load("faqs", []formedit.Record{formedit.NewRecord("id", "1")}))
	key := s.CreateDraft([]string{"id", "q"})

	require.NoError(t, s.Remove(context.Background(), key))
	assert.Empty(t, tr.deletes)
	assert.Equal(t, 1, s.Len())
	_, ok := s.Selected()
	assert.False(t, ok)
}

func TestRecordStoreRemovePersistedWaitsForTransport(t *testing.T) {
	tr := &recordingTransport{deleteErr: errors.New("boom")}
	s := NewRecordStore(tr)
	require.NoError(t, s.Load("faqs", []formedit.Record{formedit.NewRecord("id", "1")}))
	key := s.Entries()[0].Key

	err := s.Remove(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, []string{"1"}, tr.deletes)
	assert.Equal(t, 1, s.Len())

	tr.deleteErr = nil
	require.NoError(t, s.Remove(context.Background(), key))
	assert.Equal(t, []string{"1", "1"}, tr.deletes)
	assert.Equal(t, 0, s.Len())

	err = s.Remove(context.Background(), uuid.Nil)
	assert.True(t, formedit.HasCode(err, formedit.ErrCodeNoSelection))
}
