package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Payload maps reflection field names to values. It is stored as JSONB.
type Payload map[string]string

// Clone returns an independent copy.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// UnmarshalJSON accepts any JSON value per field. Strings are kept as is, null drops the
// field and other values keep their compact JSON text.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Payload, len(raw))
	for field, value := range raw {
		if text, ok := fieldText(value); ok {
			out[field] = text
		}
	}
	*p = out
	return nil
}

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported source %T", src)
	}
	out := Payload{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	*p = out
	return nil
}

// DraftPayload is autosaved form state kept exactly as the client sent it.
type DraftPayload map[string]json.RawMessage

// Clone returns an independent copy.
func (d DraftPayload) Clone() DraftPayload {
	out := make(DraftPayload, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Fields returns the text form of every non-null value.
func (d DraftPayload) Fields() Payload {
	out := make(Payload, len(d))
	for field, value := range d {
		if text, ok := fieldText(value); ok {
			out[field] = text
		}
	}
	return out
}

func fieldText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", false
		}
		return text, true
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed), true
	}
	return compact.String(), true
}
