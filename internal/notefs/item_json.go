package notefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the millisecond UTC layout the remote uses for timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z"

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

type wireItem struct {
	UUID        string          `json:"uuid"`
	ContentType Kind            `json:"content_type"`
	Content     json.RawMessage `json:"content,omitempty"`
	EncItemKey  string          `json:"enc_item_key"`
	AuthHash    *string         `json:"auth_hash"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	Deleted     bool            `json:"deleted"`
}

// MarshalJSON renders the wire shape of the item: decrypted content inline,
// no local bookkeeping fields.
func (it Item) MarshalJSON() ([]byte, error) {
	w := wireItem{
		UUID:        it.ID,
		ContentType: it.Kind,
		EncItemKey:  it.EncItemKey,
		AuthHash:    it.AuthHash,
		CreatedAt:   FormatTime(it.CreatedAt),
		UpdatedAt:   FormatTime(it.UpdatedAt),
		Deleted:     it.Deleted,
	}
	if it.Content != nil {
		data, err := MarshalContent(it.Content)
		if err != nil {
			return nil, err
		}
		w.Content = data
	}
	return json.Marshal(w)
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	createdAt, err := ParseTime(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := ParseTime(w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	*it = Item{
		ID:         w.UUID,
		Kind:       w.ContentType,
		EncItemKey: w.EncItemKey,
		AuthHash:   w.AuthHash,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		Deleted:    w.Deleted,
	}
	if len(w.Content) > 0 && !bytes.Equal(bytes.TrimSpace(w.Content), []byte("null")) {
		content, err := UnmarshalContent(w.ContentType, w.Content)
		if err != nil {
			return err
		}
		it.Content = content
	}
	return nil
}

// MarshalContent encodes a content payload, preserving fields this package
// does not model.
func MarshalContent(c Content) ([]byte, error) {
	switch v := c.(type) {
	case *NoteContent:
		return v.MarshalJSON()
	case *TagContent:
		return v.MarshalJSON()
	case *OtherContent:
		if len(v.Raw) == 0 {
			return []byte("{}"), nil
		}
		return v.Raw, nil
	case nil:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("unsupported content %T", c)
}

// UnmarshalContent decodes a payload into the variant selected by kind.
func UnmarshalContent(kind Kind, data []byte) (Content, error) {
	switch kind {
	case KindNote:
		var c NoteContent
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("note content: %w", err)
		}
		return &c, nil
	case KindTag:
		var c TagContent
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("tag content: %w", err)
		}
		return &c, nil
	default:
		return &OtherContent{ContentType: kind, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func (c *NoteContent) MarshalJSON() ([]byte, error) {
	out := cloneRaw(c.extra)
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	if err := putJSON(out, "title", c.Title); err != nil {
		return nil, err
	}
	if err := putJSON(out, "text", c.Text); err != nil {
		return nil, err
	}
	refs := c.References
	if refs == nil {
		refs = []Reference{}
	}
	if err := putJSON(out, "references", refs); err != nil {
		return nil, err
	}
	if err := putAppData(out, c.AppData); err != nil {
		return nil, err
	}
	if err := putOptional(out, "archived", c.Archived); err != nil {
		return nil, err
	}
	if err := putOptional(out, "trashed", c.Trashed); err != nil {
		return nil, err
	}
	if c.ConflictOf != "" {
		if err := putJSON(out, "conflict_of", c.ConflictOf); err != nil {
			return nil, err
		}
	} else {
		delete(out, "conflict_of")
	}
	return json.Marshal(out)
}

func (c *NoteContent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = NoteContent{}
	if err := takeJSON(fields, "title", &c.Title); err != nil {
		return err
	}
	if err := takeJSON(fields, "text", &c.Text); err != nil {
		return err
	}
	if err := takeJSON(fields, "references", &c.References); err != nil {
		return err
	}
	if err := takeAppData(fields, &c.AppData); err != nil {
		return err
	}
	if err := takeJSON(fields, "archived", &c.Archived); err != nil {
		return err
	}
	if err := takeJSON(fields, "trashed", &c.Trashed); err != nil {
		return err
	}
	if err := takeJSON(fields, "conflict_of", &c.ConflictOf); err != nil {
		return err
	}
	if len(fields) > 0 {
		c.extra = fields
	}
	return nil
}

func (c *TagContent) MarshalJSON() ([]byte, error) {
	out := cloneRaw(c.extra)
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	if err := putJSON(out, "title", c.Title); err != nil {
		return nil, err
	}
	refs := c.References
	if refs == nil {
		refs = []Reference{}
	}
	if err := putJSON(out, "references", refs); err != nil {
		return nil, err
	}
	if err := putAppData(out, c.AppData); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (c *TagContent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = TagContent{}
	if err := takeJSON(fields, "title", &c.Title); err != nil {
		return err
	}
	if err := takeJSON(fields, "references", &c.References); err != nil {
		return err
	}
	if err := takeAppData(fields, &c.AppData); err != nil {
		return err
	}
	if len(fields) > 0 {
		c.extra = fields
	}
	return nil
}

func putAppData(out map[string]json.RawMessage, a AppData) error {
	domains := cloneRaw(a.domains)
	if domains == nil {
		domains = map[string]json.RawMessage{}
	}
	sn := cloneRaw(a.extra)
	if sn == nil {
		sn = map[string]json.RawMessage{}
	}
	if a.ClientUpdatedAt != nil {
		if err := putJSON(sn, "client_updated_at", FormatTime(*a.ClientUpdatedAt)); err != nil {
			return err
		}
	}
	if err := putOptional(sn, "archived", a.Archived); err != nil {
		return err
	}
	if err := putOptional(sn, "trashed", a.Trashed); err != nil {
		return err
	}
	if len(sn) > 0 {
		if err := putJSON(domains, AppDomain, sn); err != nil {
			return err
		}
	}
	if len(domains) == 0 {
		delete(out, "appData")
		return nil
	}
	return putJSON(out, "appData", domains)
}

func takeAppData(fields map[string]json.RawMessage, dst *AppData) error {
	var domains map[string]json.RawMessage
	if err := takeJSON(fields, "appData", &domains); err != nil {
		return err
	}
	*dst = AppData{}
	if len(domains) == 0 {
		return nil
	}
	var sn map[string]json.RawMessage
	if err := takeJSON(domains, AppDomain, &sn); err != nil {
		return err
	}
	var clientUpdatedAt string
	if err := takeJSON(sn, "client_updated_at", &clientUpdatedAt); err != nil {
		return err
	}
	if clientUpdatedAt != "" {
		ts, err := ParseTime(clientUpdatedAt)
		if err != nil {
			return fmt.Errorf("client_updated_at: %w", err)
		}
		dst.ClientUpdatedAt = &ts
	}
	if err := takeJSON(sn, "archived", &dst.Archived); err != nil {
		return err
	}
	if err := takeJSON(sn, "trashed", &dst.Trashed); err != nil {
		return err
	}
	if len(sn) > 0 {
		dst.extra = sn
	}
	if len(domains) > 0 {
		dst.domains = domains
	}
	return nil
}

// takeJSON decodes fields[key] into dst and removes the key. A missing key or
// JSON null leaves dst untouched.
func takeJSON(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func putJSON(out map[string]json.RawMessage, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	out[key] = data
	return nil
}

func putOptional(out map[string]json.RawMessage, key string, value *bool) error {
	if value == nil {
		delete(out, key)
		return nil
	}
	return putJSON(out, key, *value)
}
