package snapi

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentworkforce/notefs/internal/notefs"
)

func plainContent(t *testing.T, body string) *string {
	t.Helper()
	encoded := PlainVersion + base64.StdEncoding.EncodeToString([]byte(body))
	return &encoded
}

func TestPlainCodecRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	item := notefs.Item{
		ID:        "n1",
		Kind:      notefs.KindNote,
		Content:   &notefs.NoteContent{Title: "groceries", Text: "milk\n"},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Sequence:  7,
		Dirty:     true,
	}
	raw, err := PlainCodec{}.Encode(item)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if raw.Content == nil || !strings.HasPrefix(*raw.Content, PlainVersion) {
		t.Fatalf("expected 000 payload, got %v", raw.Content)
	}
	if raw.CreatedAt != "2024-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected created_at %q", raw.CreatedAt)
	}

	decoded, err := PlainCodec{}.Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	note, ok := decoded.Note()
	if !ok || note.Title != "groceries" || note.Text != "milk\n" {
		t.Fatalf("unexpected decoded content %+v", decoded.Content)
	}
	if !decoded.CreatedAt.Equal(created) || !decoded.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("unexpected timestamps %v %v", decoded.CreatedAt, decoded.UpdatedAt)
	}
	if decoded.Sequence != 0 || decoded.Dirty {
		t.Fatalf("bookkeeping must not travel: %+v", decoded)
	}
}

func TestPlainCodecDeletedItemsHaveNoContent(t *testing.T) {
	raw, err := PlainCodec{}.Encode(notefs.Item{
		ID:      "n1",
		Kind:    notefs.KindNote,
		Content: &notefs.NoteContent{Title: "gone"},
		Deleted: true,
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if raw.Content != nil || !raw.Deleted {
		t.Fatalf("expected deleted item without content, got %+v", raw)
	}
	decoded, err := PlainCodec{}.Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !decoded.Deleted || decoded.Content != nil {
		t.Fatalf("unexpected decoded deletion %+v", decoded)
	}
}

func TestPlainCodecRejectsEncryptedPayloads(t *testing.T) {
	payload := "004:abc:def"
	_, err := PlainCodec{}.Decode(RemoteItem{UUID: "n1", ContentType: "Note", Content: &payload})
	if !errors.Is(err, ErrUnsupportedPayload) {
		t.Fatalf("expected ErrUnsupportedPayload, got %v", err)
	}
}

func TestPlainCodecRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"numeric title":     `{"title":5,"text":"x"}`,
		"reference no uuid": `{"title":"t","references":[{"content_type":"Note"}]}`,
		"not an object":     `"hello"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PlainCodec{}.Decode(RemoteItem{UUID: "t1", ContentType: "Tag", Content: plainContent(t, body)})
			if err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestPlainCodecKeepsOtherKindsRaw(t *testing.T) {
	body := `{"anything":[1,2,3]}`
	item, err := PlainCodec{}.Decode(RemoteItem{UUID: "x1", ContentType: "SN|Component", Content: plainContent(t, body)})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	other, ok := item.Content.(*notefs.OtherContent)
	if !ok || string(other.Raw) != body {
		t.Fatalf("expected raw content, got %#v", item.Content)
	}
}

func TestPlainCodecRejectsBadTimestamps(t *testing.T) {
	_, err := PlainCodec{}.Decode(RemoteItem{UUID: "n1", ContentType: "Note", CreatedAt: "yesterday"})
	if err == nil {
		t.Fatalf("expected bad created_at to fail")
	}
}

func TestPlainCodecReplacesInvalidUTF8OnUpload(t *testing.T) {
	note := &notefs.NoteContent{Title: "bin", Text: "ok\xff\n", References: []notefs.Reference{}}
	raw, err := PlainCodec{}.Encode(notefs.Item{ID: "n1", Kind: notefs.KindNote, Content: note})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if note.Text != "ok\xff\n" {
		t.Fatalf("expected local text untouched, got %q", note.Text)
	}
	back, err := PlainCodec{}.Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	decoded, _ := back.Note()
	if decoded.Text != "ok\uFFFD\n" {
		t.Fatalf("unexpected uploaded text %q", decoded.Text)
	}
}
