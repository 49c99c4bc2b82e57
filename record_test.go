package formedit

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKeepsKeyOrder(t *testing.T) {
	r := NewRecord("zeta", "1", "alpha", "2", "mid", "3")
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Keys())

	r.Set("alpha", "changed")
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Keys())
	assert.Equal(t, "changed", r.Value("alpha"))

	r.Delete("zeta")
	assert.Equal(t, []string{"alpha", "mid"}, r.Keys())
	assert.False(t, r.Has("zeta"))
	r.Delete("missing")
	assert.Equal(t, 2, r.Len())
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "7", NewRecord("id", " 7 ").ID())
	assert.False(t, NewRecord("id", "   ").HasID())
	assert.False(t, NewRecord("name", "x").HasID())
	assert.True(t, NewRecord("id", "abc").HasID())
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := NewRecord("a", "1")
	c := r.Clone()
	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "1", r.Value("a"))
	assert.False(t, r.Has("b"))
	assert.False(t, r.Equal(c))
	assert.True(t, r.Equal(r.Clone()))
}

func TestRecordFromMapSortsKeys(t *testing.T) {
	r := RecordFromMap(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, []string{"a", "b"}, r.Keys())
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, r.Map())
}

func TestRecordUnmarshalJSON(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id":12,"name":"web","on":true,"gone":null,"tags":["a", "b"],"ratio":1.50,"meta":{"x":1}}`), &r)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "on", "gone", "tags", "ratio", "meta"}, r.Keys())
	assert.Equal(t, "12", r.Value("id"))
	assert.Equal(t, "true", r.Value("on"))
	assert.Equal(t, "", r.Value("gone"))
	assert.True(t, r.Has("gone"))
	assert.Equal(t, `["a","b"]`, r.Value("tags"))
	assert.Equal(t, "1.50", r.Value("ratio"))
	assert.Equal(t, `{"x":1}`, r.Value("meta"))
}

func TestRecordNullMarks(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","gone":null,"name":"web"}`), &r))
	assert.True(t, r.IsNull("gone"))
	assert.False(t, r.IsNull("name"))
	assert.False(t, r.IsNull("missing"))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","gone":null,"name":"web"}`, string(data))

	clone := r.Clone()
	assert.True(t, clone.IsNull("gone"))

	clone.Set("gone", "back")
	assert.False(t, clone.IsNull("gone"))
	assert.True(t, r.IsNull("gone"))

	r.Delete("gone")
	assert.False(t, r.IsNull("gone"))
}

func TestRecordUnmarshalRejectsNonObject(t *testing.T) {
	var r Record
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &r))
}

func TestRecordMarshalJSON(t *testing.T) {
	r := NewRecord("z", "1", "a", `quote "me"`)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"1","a":"quote \"me\""}`, string(data))

	empty, err := json.Marshal(NewRecord())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestDecodeCollectionPage(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantIDs   []string
		wantTitle string
	}{
		{
			name:    "bare array",
			payload: `[{"id":"1"},{"id":"2"}]`,
			wantIDs: []string{"1", "2"},
		},
		{
			name:      "envelope",
			payload:   `{"title":"FAQ","intro":"Common questions","items":[{"id":"1"}]}`,
			wantIDs:   []string{"1"},
			wantTitle: "FAQ",
		},
		{
			name:      "wrapped envelope",
			payload:   `[{"title":"FAQ","items":[{"id":"3"},{"id":"4"}]}]`,
			wantIDs:   []string{"3", "4"},
			wantTitle: "FAQ",
		},
		{
			name:    "envelope without items",
			payload: `{"title":""}`,
			wantIDs: []string{},
		},
		{
			name:    "empty array",
			payload: `[]`,
			wantIDs: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodeCollectionPage([]byte(tt.payload))
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Items))
			for _, item := range page.Items {
				ids = append(ids, item.ID())
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantTitle, page.Meta.Value("title"))
			assert.False(t, page.Meta.Has("items"))
		})
	}
}

func TestDecodeCollectionPageEnvelopeKeepsMetaOrder(t *testing.T) {
	page, err := DecodeCollectionPage([]byte(`{"title":"FAQ","items":[],"intro":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "intro"}, page.Meta.Keys())
}

func TestDecodeCollectionPageErrors(t *testing.T) {
	for _, payload := range []string{``, `   `, `"text"`, `42`, `[1,2]`, `{"items":{}}`, `[{"id":`} {
		_, err := DecodeCollectionPage([]byte(payload))
		assert.Error(t, err, "payload %q", payload)
	}
}
