package snapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agentworkforce/notefs/internal/notefs"
)

var ErrUnsupportedPayload = errors.New("unsupported payload encoding")

// PlainVersion prefixes unencrypted payloads.
const PlainVersion = "000"

// RemoteItem is an item as it travels over the wire, content still encoded.
type RemoteItem struct {
	UUID        string  `json:"uuid"`
	ContentType string  `json:"content_type"`
	Content     *string `json:"content"`
	EncItemKey  string  `json:"enc_item_key"`
	AuthHash    *string `json:"auth_hash"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
	Deleted     bool    `json:"deleted"`
}

// Codec turns replica items into wire items and back. Encryption schemes
// plug in here.
type Codec interface {
	Encode(item notefs.Item) (RemoteItem, error)
	Decode(raw RemoteItem) (notefs.Item, error)
}

// PlainCodec implements protocol 000: base64 encoded JSON content checked
// against the note and tag schemas.
type PlainCodec struct{}

func (PlainCodec) Encode(item notefs.Item) (RemoteItem, error) {
	out := RemoteItem{
		UUID:        item.ID,
		ContentType: string(item.Kind),
		EncItemKey:  item.EncItemKey,
		AuthHash:    item.AuthHash,
		CreatedAt:   notefs.FormatTime(item.CreatedAt),
		UpdatedAt:   notefs.FormatTime(item.UpdatedAt),
		Deleted:     item.Deleted,
	}
	if item.Deleted || item.Content == nil {
		return out, nil
	}
	data, err := notefs.MarshalContent(uploadContent(item.Content))
	if err != nil {
		return RemoteItem{}, fmt.Errorf("encode %s: %w", item.ID, err)
	}
	if err := validateContent(item.Kind, data); err != nil {
		return RemoteItem{}, fmt.Errorf("encode %s: %w", item.ID, err)
	}
	encoded := PlainVersion + base64.StdEncoding.EncodeToString(data)
	out.Content = &encoded
	return out, nil
}

// uploadContent replaces invalid UTF-8 in note text with U+FFFD. The replica
// keeps raw bytes so partial writes splice correctly.
func uploadContent(content notefs.Content) notefs.Content {
	note, ok := content.(*notefs.NoteContent)
	if !ok || utf8.ValidString(note.Text) {
		return content
	}
	fixed := *note
	fixed.Text = strings.ToValidUTF8(note.Text, "\uFFFD")
	return &fixed
}

func (PlainCodec) Decode(raw RemoteItem) (notefs.Item, error) {
	createdAt, err := notefs.ParseTime(raw.CreatedAt)
	if err != nil {
		return notefs.Item{}, fmt.Errorf("decode %s: created_at: %w", raw.UUID, err)
	}
	updatedAt, err := notefs.ParseTime(raw.UpdatedAt)
	if err != nil {
		return notefs.Item{}, fmt.Errorf("decode %s: updated_at: %w", raw.UUID, err)
	}
	item := notefs.Item{
		ID:         raw.UUID,
		Kind:       notefs.Kind(raw.ContentType),
		EncItemKey: raw.EncItemKey,
		AuthHash:   raw.AuthHash,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		Deleted:    raw.Deleted,
	}
	if raw.Deleted || raw.Content == nil || *raw.Content == "" {
		return item, nil
	}
	payload := *raw.Content
	if !strings.HasPrefix(payload, PlainVersion) {
		version := payload
		if len(version) > 3 {
			version = version[:3]
		}
		return notefs.Item{}, fmt.Errorf("decode %s: %w %q", raw.UUID, ErrUnsupportedPayload, version)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, PlainVersion))
	if err != nil {
		return notefs.Item{}, fmt.Errorf("decode %s: %w", raw.UUID, err)
	}
	if err := validateContent(item.Kind, data); err != nil {
		return notefs.Item{}, fmt.Errorf("decode %s: %w", raw.UUID, err)
	}
	content, err := notefs.UnmarshalContent(item.Kind, data)
	if err != nil {
		return notefs.Item{}, fmt.Errorf("decode %s: %w", raw.UUID, err)
	}
	item.Content = content
	return item, nil
}
