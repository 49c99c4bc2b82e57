package formedit

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// IDKey is the canonical identity field of every record.
const IDKey = "id"

// Record is a flat record whose values are carried as text. Key order is
// preserved as observed on the wire because it decides column order.
type Record struct {
	keys   []string
	values map[string]string
	nulls  map[string]bool
}

// NewRecord builds a record from alternating key/value pairs. A trailing key
// without a value is stored blank.
func NewRecord(kv ...string) Record {
	r := Record{values: make(map[string]string, (len(kv)+1)/2)}
	for i := 0; i < len(kv); i += 2 {
		v := ""
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		r.Set(kv[i], v)
	}
	return r
}

// RecordFromMap builds a record from a map, ordering keys lexically.
func RecordFromMap(m map[string]string) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	r := Record{values: make(map[string]string, len(m))}
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Keys returns the record keys in order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Get returns the value for key and whether it is present.
func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or "" when absent.
func (r Record) Value(key string) string {
	return r.values[key]
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Set assigns value to key, appending the key when it is new.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	delete(r.nulls, key)
}

// SetNull stores key as a JSON null: present with a blank value, but
// reported by IsNull so inference can leave it out.
func (r *Record) SetNull(key string) {
	r.Set(key, "")
	if r.nulls == nil {
		r.nulls = make(map[string]bool)
	}
	r.nulls[key] = true
}

// IsNull reports whether key arrived as a JSON null and has not been set since.
func (r Record) IsNull(key string) bool {
	return r.nulls[key]
}

// Delete removes key.
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	delete(r.nulls, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// ID returns the trimmed identity value.
func (r Record) ID() string {
	return strings.TrimSpace(r.values[IDKey])
}

// HasID reports whether the record has been persisted.
func (r Record) HasID() bool {
	return r.ID() != ""
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]string, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	if len(r.nulls) > 0 {
		out.nulls = make(map[string]bool, len(r.nulls))
		for k := range r.nulls {
			out.nulls[k] = true
		}
	}
	return out
}

// Equal reports whether both records hold the same keys in the same order with the same values.
func (r Record) Equal(other Record) bool {
	if len(r.keys) != len(other.keys) {
		return false
	}
	for i, k := range r.keys {
		if other.keys[i] != k || other.values[k] != r.values[k] {
			return false
		}
	}
	return true
}

// Map returns the values as a plain map.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the record as an object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb := []byte("null")
		if !r.nulls[k] {
			vb, err = json.Marshal(r.values[k])
			if err != nil {
				return nil, err
			}
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object keeping key order. Scalars are
// rendered as text, null becomes a blank value marked by IsNull, nested values
// keep their compact JSON text.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record must be a JSON object")
	}
	order, err := objectKeyOrder(data)
	if err != nil {
		return err
	}
	out := Record{values: make(map[string]string, len(raw))}
	for _, k := range order {
		if out.Has(k) {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(raw[k]), []byte("null")) {
			out.SetNull(k)
			continue
		}
		v, err := textValue(raw[k])
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		out.Set(k, v)
	}
	*r = out
	return nil
}

// objectKeyOrder walks the token stream of a JSON object and returns its top-level keys in order.
func objectKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("record must be a JSON object")
	}

	var keys []string
	depth := 1
	expectingKey := true
	for depth > 0 {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 1 {
					expectingKey = true
				}
			}
		case string:
			if depth == 1 && expectingKey {
				keys = append(keys, v)
				expectingKey = false
				continue
			}
			if depth == 1 {
				expectingKey = true
			}
		default:
			if depth == 1 {
				expectingKey = true
			}
		}
	}
	return keys, nil
}

func textValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

// CollectionPage is one fetched collection: optional page metadata plus its records.
type CollectionPage struct {
	Meta  Record   `json:"meta"`
	Items []Record `json:"items"`
}

// DecodeCollectionPage accepts either a bare array of records, an object with
// an "items" array, or a one-element array wrapping such an object.
func DecodeCollectionPage(data []byte) (*CollectionPage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty collection payload")
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("decode collection payload: %w", err)
		}
		if len(elems) == 1 && hasItemsKey(elems[0]) {
			return decodeEnvelope(elems[0])
		}
		page := &CollectionPage{Meta: NewRecord(), Items: make([]Record, 0, len(elems))}
		for i, elem := range elems {
			var rec Record
			if err := json.Unmarshal(elem, &rec); err != nil {
				return nil, fmt.Errorf("decode record %d: %w", i, err)
			}
			page.Items = append(page.Items, rec)
		}
		return page, nil
	}

	if trimmed[0] == '{' {
		return decodeEnvelope(trimmed)
	}
	return nil, fmt.Errorf("collection payload must be an array or object")
}

func hasItemsKey(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	_, ok := probe["items"]
	return ok
}

func decodeEnvelope(raw json.RawMessage) (*CollectionPage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode collection envelope: %w", err)
	}
	page := &CollectionPage{Meta: NewRecord()}
	if items, ok := fields["items"]; ok && !bytes.Equal(bytes.TrimSpace(items), []byte("null")) {
		if err := json.Unmarshal(items, &page.Items); err != nil {
			return nil, fmt.Errorf("decode collection items: %w", err)
		}
	}
	if page.Items == nil {
		page.Items = []Record{}
	}

	order, err := objectKeyOrder(raw)
	if err != nil {
		return nil, err
	}
	for _, k := range order {
		if k == "items" || page.Meta.Has(k) {
			continue
		}
		v, err := textValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("page field %q: %w", k, err)
		}
		page.Meta.Set(k, v)
	}
	return page, nil
}
