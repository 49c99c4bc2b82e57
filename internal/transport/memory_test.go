package transport

import (
	"context"
	"testing"

	"github.com/lychee-technology/formedit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Seed("faqs", formedit.NewRecord("id", "1", "question", "Why?", "answer", "Because."))
	m.SetMeta("faqs", formedit.NewRecord("title", "FAQs"))

	page, err := m.FetchCollection(ctx, "faqs")
	require.NoError(t, err)
	assert.Equal(t, "FAQs", page.Meta.Value("title"))
	require.Len(t, page.Items, 1)
	assert.Equal(t, []string{"id", "question", "answer"}, page.Items[0].Keys())

	created, err := m.CreateRecord(ctx, "faqs", formedit.NewRecord("question", "How?", "answer", ""))
	require.NoError(t, err)
	assert.True(t, created.HasID())
	assert.Equal(t, []string{"id", "question", "answer"}, created.Keys())

	require.NoError(t, m.UpdateRecord(ctx, "faqs", "1", formedit.NewRecord("answer", "Because I said so.")))
	page, err = m.FetchCollection(ctx, "faqs")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Because I said so.", page.Items[0].Value("answer"))

	require.NoError(t, m.DeleteRecord(ctx, "faqs", "1"))
	page, err = m.FetchCollection(ctx, "faqs")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID(), page.Items[0].ID())
}

func TestMemoryFetchReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Seed("faqs", formedit.NewRecord("id", "1", "question", "Why?"))

	page, err := m.FetchCollection(ctx, "faqs")
	require.NoError(t, err)
	page.Items[0].Set("question", "changed")

	page, err = m.FetchCollection(ctx, "faqs")
	require.NoError(t, err)
	assert.Equal(t, "Why?", page.Items[0].Value("question"))
}

func TestMemoryMissingRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.UpdateRecord(ctx, "faqs", "404", formedit.NewRecord("a", "b"))
	assert.True(t, formedit.IsNotFoundError(err))

	err = m.DeleteRecord(ctx, "faqs", "404")
	assert.True(t, formedit.IsNotFoundError(err))

	page, err := m.FetchCollection(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestWithIDPutsIDFirst(t *testing.T) {
	rec := withID(formedit.NewRecord("name", "a", "id", "old"), "new")
	assert.Equal(t, []string{"id", "name"}, rec.Keys())
	assert.Equal(t, "new", rec.ID())
}
