package content

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document is an opaque JSON payload. The engine never looks inside it;
// typed views belong to whoever renders the content.
type Document []byte

// NewDocument marshals v into a Document.
func NewDocument(v any) (Document, error) {
	if d, ok := v.(Document); ok {
		return d.Clone(), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return ParseDocument(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return Document(b), nil
}

// MustDocument is NewDocument for values known to marshal, such as literals in tests.
func MustDocument(v any) Document {
	d, err := NewDocument(v)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseDocument validates raw JSON and returns it as a compacted Document.
func ParseDocument(raw []byte) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return Document(buf.Bytes()), nil
}

// IsZero reports whether the document is empty.
func (d Document) IsZero() bool {
	return len(d) == 0
}

// Clone returns a copy that shares no memory with d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return bytes.Clone(d)
}

// Decode unmarshals the document into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d, v)
}

// String returns the raw JSON text.
func (d Document) String() string {
	return string(d)
}

// MarshalJSON emits the document as embedded JSON, or null when empty.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores a copy of the raw JSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("content.Document: UnmarshalJSON on nil pointer")
	}
	*d = bytes.Clone(data)
	return nil
}

// Value implements driver.Valuer. Documents are stored as JSON text.
func (d Document) Value() (driver.Value, error) {
	if len(d) == 0 {
		return "null", nil
	}
	return string(d), nil
}

// Scan implements sql.Scanner for text and jsonb columns.
func (d *Document) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = bytes.Clone(v)
	case string:
		*d = Document(v)
	default:
		return fmt.Errorf("content.Document: cannot scan %T", src)
	}
	return nil
}
