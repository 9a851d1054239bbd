// Package fusefs presents a replica as a directory tree: one directory per
// note container and a tags directory holding a subdirectory per tag whose
// entries are symlinks to the tagged notes.
package fusefs

import (
	"errors"
	"hash/fnv"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/agentworkforce/notefs/internal/notefs"
)

const (
	DirNotes    = "notes"
	DirArchived = notefs.ContainerArchived
	DirTrash    = notefs.ContainerTrash
	DirTags     = "tags"
)

var containers = []string{DirNotes, DirArchived, DirTrash}

type EntryType int

const (
	EntryDir EntryType = iota
	EntryFile
	EntrySymlink
)

// Entry describes one name in the tree.
type Entry struct {
	Name     string
	ID       string
	Type     EntryType
	Ino      uint64
	Size     uint64
	Created  time.Time
	Modified time.Time
	Target   string
}

// SyncTrigger asks for a sync round soon. It must not block.
type SyncTrigger func()

type View struct {
	replica *notefs.Replica
	trigger SyncTrigger
	logger  zerolog.Logger
	started time.Time
}

func NewView(replica *notefs.Replica, trigger SyncTrigger, logger zerolog.Logger) *View {
	return &View{
		replica: replica,
		trigger: trigger,
		logger:  logger,
		started: time.Now().UTC(),
	}
}

func (v *View) changed() {
	if v.trigger != nil {
		v.trigger()
	}
}

// Root lists the fixed top level directories.
func (v *View) Root() []Entry {
	out := make([]Entry, 0, len(containers)+1)
	for _, name := range append(append([]string{}, containers...), DirTags) {
		out = append(out, v.staticDir(name))
	}
	return out
}

func (v *View) staticDir(name string) Entry {
	return Entry{
		Name:     name,
		Type:     EntryDir,
		Ino:      staticIno(name),
		Created:  v.started,
		Modified: v.started,
	}
}

func staticIno(name string) uint64 {
	switch name {
	case DirNotes:
		return 2
	case DirArchived:
		return 3
	case DirTrash:
		return 4
	case DirTags:
		return 5
	}
	return 1
}

func filterFor(container string) (notefs.NoteFilter, error) {
	switch container {
	case DirNotes:
		return notefs.NoteFilter{}, nil
	case DirArchived:
		return notefs.NoteFilter{Archived: true}, nil
	case DirTrash:
		return notefs.NoteFilter{Trashed: true}, nil
	}
	return notefs.NoteFilter{}, unix.ENOENT
}

func containerOf(view notefs.NoteView) string {
	switch {
	case view.Trashed:
		return DirTrash
	case view.Archived:
		return DirArchived
	}
	return DirNotes
}

// List returns the note files of a container.
func (v *View) List(container string) ([]Entry, error) {
	filter, err := filterFor(container)
	if err != nil {
		return nil, err
	}
	names := v.replica.ListNotes(filter)
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		note, err := v.replica.NoteByName(name)
		if err != nil {
			continue
		}
		out = append(out, noteEntry(note))
	}
	return out, nil
}

// Lookup finds a note file by name inside a container.
func (v *View) Lookup(container, name string) (Entry, error) {
	if _, err := filterFor(container); err != nil {
		return Entry{}, err
	}
	note, err := v.replica.NoteByName(name)
	if err != nil {
		return Entry{}, err
	}
	if containerOf(note) != container {
		return Entry{}, unix.ENOENT
	}
	return noteEntry(note), nil
}

// Note returns the current entry of the note with the given id.
func (v *View) Note(id string) (Entry, error) {
	note, err := v.noteByID(id)
	if err != nil {
		return Entry{}, err
	}
	return noteEntry(note), nil
}

func (v *View) noteByID(id string) (notefs.NoteView, error) {
	name, err := v.replica.NoteName(id)
	if err != nil {
		return notefs.NoteView{}, err
	}
	return v.replica.NoteByName(name)
}

func noteEntry(note notefs.NoteView) Entry {
	return Entry{
		Name:     note.Name,
		ID:       note.ID,
		Type:     EntryFile,
		Ino:      itemIno(note.ID),
		Size:     uint64(len(note.Text)),
		Created:  note.Created,
		Modified: note.Modified,
	}
}

// Read returns up to size bytes of the rendered note starting at off.
func (v *View) Read(id string, off int64, size int) ([]byte, error) {
	note, err := v.noteByID(id)
	if err != nil {
		return nil, err
	}
	if off < 0 {
		return nil, unix.EINVAL
	}
	if off >= int64(len(note.Text)) {
		return []byte{}, nil
	}
	end := off + int64(size)
	if end > int64(len(note.Text)) {
		end = int64(len(note.Text))
	}
	return note.Text[off:end], nil
}

// Write splices data into the note text at off, zero filling any gap.
func (v *View) Write(id string, data []byte, off int64) (int, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if err := v.replica.WriteNoteAt(id, data, off); err != nil {
		return 0, err
	}
	v.changed()
	return len(data), nil
}

// Truncate cuts or zero extends the note text to size bytes.
func (v *View) Truncate(id string, size uint64) error {
	if err := v.replica.TruncateNote(id, size); err != nil {
		return err
	}
	v.changed()
	return nil
}

// Touch marks the note modified without changing its text.
func (v *View) Touch(id string) error {
	if err := v.replica.TouchNote(id); err != nil {
		return err
	}
	v.changed()
	return nil
}

// Create adds an empty note to a container. The returned entry carries the
// name the allocator settled on, which can differ from the one requested.
func (v *View) Create(container, name string) (Entry, error) {
	if _, err := filterFor(container); err != nil {
		return Entry{}, err
	}
	if _, err := v.Lookup(container, name); err == nil {
		return Entry{}, unix.EEXIST
	}
	id, err := v.replica.CreateNote(stem(name), "")
	if err != nil {
		return Entry{}, err
	}
	if container != DirNotes {
		if err := v.replica.RenameNote(id, path.Join(container, name)); err != nil {
			return Entry{}, err
		}
	}
	v.changed()
	return v.Note(id)
}

// Remove deletes a note file: active and archived notes move to the trash,
// trashed notes are deleted for good.
func (v *View) Remove(container, name string) error {
	entry, err := v.Lookup(container, name)
	if err != nil {
		return err
	}
	if err := v.replica.DeleteNote(entry.ID); err != nil {
		return err
	}
	v.changed()
	return nil
}

// Rename moves a note file, possibly across containers.
func (v *View) Rename(container, name, newContainer, newName string) error {
	if _, err := filterFor(newContainer); err != nil {
		return err
	}
	entry, err := v.Lookup(container, name)
	if err != nil {
		return err
	}
	if err := v.replica.RenameNote(entry.ID, path.Join(newContainer, newName)); err != nil {
		return err
	}
	v.changed()
	return nil
}

// Tags lists one directory per tag.
func (v *View) Tags() []Entry {
	names := v.replica.ListTags()
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		if tag, err := v.replica.TagByName(name); err == nil {
			out = append(out, tagEntry(tag))
		}
	}
	return out
}

func (v *View) LookupTag(name string) (Entry, error) {
	tag, err := v.replica.TagByName(name)
	if err != nil {
		return Entry{}, err
	}
	return tagEntry(tag), nil
}

// Tag returns the current entry of the tag with the given id.
func (v *View) Tag(id string) (Entry, error) {
	name, err := v.replica.TagName(id)
	if err != nil {
		return Entry{}, err
	}
	return v.LookupTag(name)
}

func tagEntry(tag notefs.TagView) Entry {
	return Entry{
		Name:     tag.Name,
		ID:       tag.ID,
		Type:     EntryDir,
		Ino:      itemIno(tag.ID),
		Created:  tag.Created,
		Modified: tag.Modified,
	}
}

func (v *View) MakeTag(name string) (Entry, error) {
	if _, err := v.replica.LookupTag(name); err == nil {
		return Entry{}, unix.EEXIST
	}
	id, err := v.replica.CreateTag(name)
	if err != nil {
		return Entry{}, err
	}
	v.changed()
	return v.Tag(id)
}

// RemoveTag deletes a tag that no longer lists any note.
func (v *View) RemoveTag(name string) error {
	links, err := v.TagLinks(name)
	if err != nil {
		return err
	}
	if len(links) > 0 {
		return unix.ENOTEMPTY
	}
	id, err := v.replica.LookupTag(name)
	if err != nil {
		return err
	}
	if err := v.replica.DeleteTag(id); err != nil {
		return err
	}
	v.changed()
	return nil
}

func (v *View) RenameTag(name, newName string) error {
	id, err := v.replica.LookupTag(name)
	if err != nil {
		return err
	}
	if err := v.replica.RenameTag(id, newName); err != nil {
		return err
	}
	v.changed()
	return nil
}

// TagLinks lists the symlinks inside a tag directory.
func (v *View) TagLinks(name string) ([]Entry, error) {
	tag, err := v.replica.TagByName(name)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(tag.NoteIDs))
	seen := map[string]bool{}
	for _, noteID := range tag.NoteIDs {
		if seen[noteID] {
			continue
		}
		seen[noteID] = true
		note, err := v.noteByID(noteID)
		if err != nil {
			continue
		}
		out = append(out, linkEntry(tag.ID, note))
	}
	return out, nil
}

func (v *View) LookupLink(tagName, name string) (Entry, error) {
	links, err := v.TagLinks(tagName)
	if err != nil {
		return Entry{}, err
	}
	for _, link := range links {
		if link.Name == name {
			return link, nil
		}
	}
	return Entry{}, unix.ENOENT
}

func linkEntry(tagID string, note notefs.NoteView) Entry {
	target := path.Join("..", "..", containerOf(note), note.Name)
	return Entry{
		Name:     note.Name,
		ID:       note.ID,
		Type:     EntrySymlink,
		Ino:      itemIno(tagID + "/" + note.ID),
		Size:     uint64(len(target)),
		Created:  note.Created,
		Modified: note.Modified,
		Target:   target,
	}
}

// Link tags the note a symlink target points at. The note is found by the
// target's base name, falling back to the link name.
func (v *View) Link(tagName, target, name string) (Entry, error) {
	tagID, err := v.replica.LookupTag(tagName)
	if err != nil {
		return Entry{}, err
	}
	noteID, err := v.replica.LookupNote(path.Base(target))
	if err != nil {
		noteID, err = v.replica.LookupNote(name)
	}
	if err != nil {
		return Entry{}, err
	}
	if err := v.replica.TagNote(tagID, noteID); err != nil {
		return Entry{}, err
	}
	v.changed()
	note, err := v.noteByID(noteID)
	if err != nil {
		return Entry{}, err
	}
	return linkEntry(tagID, note), nil
}

func (v *View) Unlink(tagName, name string) error {
	link, err := v.LookupLink(tagName, name)
	if err != nil {
		return err
	}
	tagID, err := v.replica.LookupTag(tagName)
	if err != nil {
		return err
	}
	if err := v.replica.UntagNote(tagID, link.ID); err != nil {
		return err
	}
	v.changed()
	return nil
}

// MoveLink moves a note from one tag directory to another.
func (v *View) MoveLink(tagName, name, newTagName string) error {
	link, err := v.LookupLink(tagName, name)
	if err != nil {
		return err
	}
	fromID, err := v.replica.LookupTag(tagName)
	if err != nil {
		return err
	}
	toID, err := v.replica.LookupTag(newTagName)
	if err != nil {
		return err
	}
	if fromID == toID {
		return nil
	}
	if err := v.replica.TagNote(toID, link.ID); err != nil {
		return err
	}
	if err := v.replica.UntagNote(fromID, link.ID); err != nil {
		return err
	}
	v.changed()
	return nil
}

func (v *View) TagName(id string) (string, error) {
	return v.replica.TagName(id)
}

func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// itemIno hashes an item id into the upper half of the inode space, above the
// fixed directory inodes. Unlike the replica sequence it stays the same when a
// fresh replica sees items in another order. Two ids hashing alike would share
// an inode; with 63 bits that is not checked.
func itemIno(key string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(key))
	return hasher.Sum64() | 1<<63
}

// errno maps replica errors onto the codes the kernel expects.
func (v *View) errno(op string, err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, notefs.ErrNotFound) {
		return unix.ENOENT
	}
	v.logger.Error().Err(err).Str("op", op).Msg("filesystem operation failed")
	return unix.EIO
}
