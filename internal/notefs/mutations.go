package notefs

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	ContainerArchived = "archived"
	ContainerTrash    = "trash"
)

func (r *Replica) newItem(kind Kind, content Content) (*Item, error) {
	id, err := r.newID()
	if err != nil {
		return nil, err
	}
	return &Item{
		ID:        id,
		Kind:      kind,
		Content:   content,
		CreatedAt: r.now().UTC(),
	}, nil
}

func (r *Replica) newNote(title, text string) (*Item, error) {
	return r.newItem(KindNote, &NoteContent{Title: title, Text: text, References: []Reference{}})
}

// CreateNote adds a new dirty note and returns its id.
func (r *Replica) CreateNote(title, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, err := r.newNote(title, text)
	if err != nil {
		return "", err
	}
	r.insertLocal(it)
	return it.ID, nil
}

// CreateTag adds a new dirty tag and returns its id.
func (r *Replica) CreateTag(title string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, err := r.newItem(KindTag, &TagContent{Title: title, References: []Reference{}})
	if err != nil {
		return "", err
	}
	r.insertLocal(it)
	return it.ID, nil
}

// WriteNoteBody replaces the note text. Bytes are stored as given, so a
// multi-byte rune split across writes survives until its second half lands.
func (r *Replica) WriteNoteBody(id string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, note, err := r.note(id)
	if err != nil {
		return err
	}
	note.Text = string(body)
	r.markDirty(it)
	return nil
}

// WriteNoteAt splices data into the note text at off, zero filling any gap
// past the end.
func (r *Replica) WriteNoteAt(id string, data []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("write %s: negative offset %d", id, off)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	it, note, err := r.note(id)
	if err != nil {
		return err
	}
	text := note.Text
	if gap := off - int64(len(text)); gap > 0 {
		text += string(make([]byte, gap))
	}
	end := off + int64(len(data))
	var b strings.Builder
	b.Grow(int(max(int64(len(text)), end)))
	b.WriteString(text[:off])
	b.Write(data)
	if end < int64(len(text)) {
		b.WriteString(text[end:])
	}
	note.Text = b.String()
	r.markDirty(it)
	return nil
}

// TruncateNote cuts or zero extends the note text to size bytes.
func (r *Replica) TruncateNote(id string, size uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, note, err := r.note(id)
	if err != nil {
		return err
	}
	if size <= uint64(len(note.Text)) {
		note.Text = note.Text[:size]
	} else {
		note.Text += string(make([]byte, size-uint64(len(note.Text))))
	}
	r.markDirty(it)
	return nil
}

// RenameNote moves a note to destination, a slash separated path whose first
// segment names the container and whose file stem becomes the title. Moving
// into archived or trash sets that flag. Anything else clears archived if set,
// otherwise trashed.
func (r *Replica) RenameNote(id, destination string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, note, err := r.note(id)
	if err != nil {
		return err
	}
	container, stem := splitDestination(destination)
	switch {
	case container == ContainerArchived:
		setArchived(note, true)
	case container == ContainerTrash:
		setTrashed(note, true)
	case Archived(it):
		setArchived(note, false)
	case Trashed(it):
		setTrashed(note, false)
	}
	note.Title = stem
	r.markDirty(it)
	r.allocate(it)
	return nil
}

func splitDestination(destination string) (container, stem string) {
	clean := path.Clean("/" + strings.TrimSpace(destination))
	trimmed := strings.TrimPrefix(clean, "/")
	container, _, _ = strings.Cut(trimmed, "/")
	base := path.Base(clean)
	if base == "/" {
		return container, ""
	}
	return container, strings.TrimSuffix(base, path.Ext(base))
}

// DeleteNote trashes an active note and hard deletes a trashed one.
func (r *Replica) DeleteNote(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, note, err := r.note(id)
	if err != nil {
		return err
	}
	if Trashed(it) {
		r.hardDelete(it)
		return nil
	}
	setTrashed(note, true)
	r.markDirty(it)
	return nil
}

func (r *Replica) DeleteTag(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, err := r.getKind(id, KindTag)
	if err != nil {
		return err
	}
	r.hardDelete(it)
	return nil
}

func (r *Replica) RenameTag(id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, tag, err := r.tag(id)
	if err != nil {
		return err
	}
	tag.Title = title
	r.markDirty(it)
	r.allocate(it)
	return nil
}

// TagNote adds a reference to the note. An existing reference leaves the tag
// untouched and clean.
func (r *Replica) TagNote(tagID, noteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, tag, err := r.tag(tagID)
	if err != nil {
		return err
	}
	if _, err := r.getKind(noteID, KindNote); err != nil {
		return err
	}
	ref := Reference{UUID: noteID, ContentType: KindNote}
	for _, existing := range tag.References {
		if existing == ref {
			return nil
		}
	}
	tag.References = append(tag.References, ref)
	r.markDirty(it)
	return nil
}

// UntagNote drops every reference to the note. The tag is dirtied even when
// nothing matched.
func (r *Replica) UntagNote(tagID, noteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, tag, err := r.tag(tagID)
	if err != nil {
		return err
	}
	ref := Reference{UUID: noteID, ContentType: KindNote}
	kept := tag.References[:0]
	for _, existing := range tag.References {
		if existing != ref {
			kept = append(kept, existing)
		}
	}
	tag.References = kept
	r.markDirty(it)
	return nil
}

func (r *Replica) TouchNote(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, _, err := r.note(id)
	if err != nil {
		return err
	}
	r.markDirty(it)
	return nil
}

func (r *Replica) note(id string) (*Item, *NoteContent, error) {
	it, err := r.getKind(id, KindNote)
	if err != nil {
		return nil, nil, err
	}
	note, ok := it.Note()
	if !ok {
		note = &NoteContent{References: []Reference{}}
		it.Content = note
	}
	return it, note, nil
}

func (r *Replica) tag(id string) (*Item, *TagContent, error) {
	it, err := r.getKind(id, KindTag)
	if err != nil {
		return nil, nil, err
	}
	tag, ok := it.Tag()
	if !ok {
		tag = &TagContent{References: []Reference{}}
		it.Content = tag
	}
	return it, tag, nil
}

func setArchived(note *NoteContent, v bool) {
	note.AppData.Archived = boolPtr(v)
	if note.Archived != nil {
		note.Archived = boolPtr(v)
	}
}

func setTrashed(note *NoteContent, v bool) {
	note.Trashed = boolPtr(v)
	if note.AppData.Trashed != nil {
		note.AppData.Trashed = boolPtr(v)
	}
}

// Archived reports the archived flag, preferring the app metadata value.
func Archived(it *Item) bool {
	if ad := it.appData(); ad != nil && ad.Archived != nil {
		return *ad.Archived
	}
	if note, ok := it.Note(); ok && note.Archived != nil {
		return *note.Archived
	}
	return false
}

// Trashed reports the trashed flag, preferring the app metadata value.
func Trashed(it *Item) bool {
	if ad := it.appData(); ad != nil && ad.Trashed != nil {
		return *ad.Trashed
	}
	if note, ok := it.Note(); ok && note.Trashed != nil {
		return *note.Trashed
	}
	return false
}

// LastUpdated prefers client_updated_at, then the server's updated_at, then
// the creation time.
func LastUpdated(it *Item) time.Time {
	if ad := it.appData(); ad != nil && ad.ClientUpdatedAt != nil {
		return *ad.ClientUpdatedAt
	}
	if !it.UpdatedAt.IsZero() {
		return it.UpdatedAt
	}
	return it.CreatedAt
}
