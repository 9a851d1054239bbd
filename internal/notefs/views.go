package notefs

import (
	"sort"
	"strings"
	"time"
)

type NoteFilter struct {
	Archived bool
	Trashed  bool
}

// Match places every note in exactly one of active, archived or trash.
// Asking for archived and trashed at once matches nothing.
func (f NoteFilter) Match(it *Item) bool {
	archived, trashed := Archived(it), Trashed(it)
	switch {
	case f.Archived && f.Trashed:
		return false
	case f.Archived:
		return archived && !trashed
	case f.Trashed:
		return trashed
	default:
		return !archived && !trashed
	}
}

type NoteView struct {
	Name     string
	ID       string
	Text     []byte
	Created  time.Time
	Modified time.Time
	Sequence uint64
	Archived bool
	Trashed  bool
}

type TagView struct {
	Name     string
	ID       string
	NoteIDs  []string
	Created  time.Time
	Modified time.Time
	Sequence uint64
}

// ListNotes returns the sorted names of notes matching filter.
func (r *Replica) ListNotes(filter NoteFilter) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes.byName))
	for name, id := range r.notes.byName {
		if it, ok := r.items[id]; ok && filter.Match(it) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Replica) AllNotes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notes.names()
	sort.Strings(out)
	return out
}

func (r *Replica) ListTags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tags.names()
	sort.Strings(out)
	return out
}

func (r *Replica) LookupNote(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lookup(r.notes, KindNote, name)
}

func (r *Replica) LookupTag(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lookup(r.tags, KindTag, name)
}

func lookup(cache *nameCache, kind Kind, name string) (string, error) {
	id, ok := cache.byName[name]
	if !ok {
		return "", &NotFoundError{Kind: kind, Key: name}
	}
	return id, nil
}

func (r *Replica) NoteName(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.notes.byID[id]
	if !ok {
		return "", &NotFoundError{Kind: KindNote, Key: id}
	}
	return name, nil
}

func (r *Replica) TagName(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.tags.byID[id]
	if !ok {
		return "", &NotFoundError{Kind: KindTag, Key: id}
	}
	return name, nil
}

// NoteByName renders the note for reading. The text always ends in a newline.
func (r *Replica) NoteByName(name string) (NoteView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := lookup(r.notes, KindNote, name)
	if err != nil {
		return NoteView{}, err
	}
	it, err := r.getKind(id, KindNote)
	if err != nil {
		return NoteView{}, err
	}
	text := ""
	if note, ok := it.Note(); ok {
		text = note.Text
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return NoteView{
		Name:     name,
		ID:       it.ID,
		Text:     []byte(text),
		Created:  it.CreatedAt,
		Modified: LastUpdated(it),
		Sequence: it.Sequence,
		Archived: Archived(it),
		Trashed:  Trashed(it),
	}, nil
}

// TagByName renders the tag with the ids of the notes it references.
func (r *Replica) TagByName(name string) (TagView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := lookup(r.tags, KindTag, name)
	if err != nil {
		return TagView{}, err
	}
	it, err := r.getKind(id, KindTag)
	if err != nil {
		return TagView{}, err
	}
	noteIDs := []string{}
	if tag, ok := it.Tag(); ok {
		for _, ref := range tag.References {
			if ref.ContentType == KindNote {
				noteIDs = append(noteIDs, ref.UUID)
			}
		}
	}
	return TagView{
		Name:     name,
		ID:       it.ID,
		NoteIDs:  noteIDs,
		Created:  it.CreatedAt,
		Modified: LastUpdated(it),
		Sequence: it.Sequence,
	}, nil
}
