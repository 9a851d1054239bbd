package notefs

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindNote Kind = "Note"
	KindTag  Kind = "Tag"
)

// AppDomain is the appData namespace holding client metadata.
const AppDomain = "org.standardnotes.sn"

type Reference struct {
	UUID        string `json:"uuid"`
	ContentType Kind   `json:"content_type"`
}

// Content is the kind-specific payload of an Item: *NoteContent, *TagContent
// or *OtherContent.
type Content interface {
	Kind() Kind
	clone() Content
}

type AppData struct {
	ClientUpdatedAt *time.Time
	Archived        *bool
	Trashed         *bool

	extra   map[string]json.RawMessage
	domains map[string]json.RawMessage
}

type NoteContent struct {
	Title      string
	Text       string
	References []Reference
	AppData    AppData
	Archived   *bool
	Trashed    *bool
	ConflictOf string

	extra map[string]json.RawMessage
}

type TagContent struct {
	Title      string
	References []Reference
	AppData    AppData

	extra map[string]json.RawMessage
}

// OtherContent carries payloads of kinds this package does not interpret.
type OtherContent struct {
	ContentType Kind
	Raw         json.RawMessage
}

type Item struct {
	ID         string
	Kind       Kind
	Content    Content
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Deleted    bool
	EncItemKey string
	AuthHash   *string

	// Sequence and Dirty are local bookkeeping and never leave the replica.
	Sequence uint64
	Dirty    bool
}

func (c *NoteContent) Kind() Kind { return KindNote }
func (c *TagContent) Kind() Kind  { return KindTag }
func (c *OtherContent) Kind() Kind {
	return c.ContentType
}

func (c *NoteContent) clone() Content {
	out := *c
	out.References = append([]Reference(nil), c.References...)
	out.AppData = c.AppData.clone()
	out.Archived = cloneBool(c.Archived)
	out.Trashed = cloneBool(c.Trashed)
	out.extra = cloneRaw(c.extra)
	return &out
}

func (c *TagContent) clone() Content {
	out := *c
	out.References = append([]Reference(nil), c.References...)
	out.AppData = c.AppData.clone()
	out.extra = cloneRaw(c.extra)
	return &out
}

func (c *OtherContent) clone() Content {
	out := *c
	out.Raw = append(json.RawMessage(nil), c.Raw...)
	return &out
}

func (a AppData) clone() AppData {
	out := a
	if a.ClientUpdatedAt != nil {
		ts := *a.ClientUpdatedAt
		out.ClientUpdatedAt = &ts
	}
	out.Archived = cloneBool(a.Archived)
	out.Trashed = cloneBool(a.Trashed)
	out.extra = cloneRaw(a.extra)
	out.domains = cloneRaw(a.domains)
	return out
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	out := *it
	if it.Content != nil {
		out.Content = it.Content.clone()
	}
	if it.AuthHash != nil {
		hash := *it.AuthHash
		out.AuthHash = &hash
	}
	return &out
}

// Note returns the note payload when the item is a note.
func (it *Item) Note() (*NoteContent, bool) {
	if it == nil || it.Kind != KindNote {
		return nil, false
	}
	c, ok := it.Content.(*NoteContent)
	return c, ok && c != nil
}

// Tag returns the tag payload when the item is a tag.
func (it *Item) Tag() (*TagContent, bool) {
	if it == nil || it.Kind != KindTag {
		return nil, false
	}
	c, ok := it.Content.(*TagContent)
	return c, ok && c != nil
}

func (it *Item) title() (string, bool) {
	switch c := it.Content.(type) {
	case *NoteContent:
		return c.Title, true
	case *TagContent:
		return c.Title, true
	}
	return "", false
}

func (it *Item) conflictOf() string {
	if c, ok := it.Note(); ok {
		return c.ConflictOf
	}
	return ""
}

func (it *Item) appData() *AppData {
	switch c := it.Content.(type) {
	case *NoteContent:
		return &c.AppData
	case *TagContent:
		return &c.AppData
	}
	return nil
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	b := *v
	return &b
}

func boolPtr(v bool) *bool {
	return &v
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
