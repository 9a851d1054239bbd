package notefs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

var baseTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeRemote struct {
	responses []SyncResult
	err       error
	respond   func(items []Item) SyncResult
	calls     [][]Item
}

func (f *fakeRemote) Sync(_ context.Context, items []Item) (SyncResult, error) {
	f.calls = append(f.calls, items)
	if f.err != nil {
		return SyncResult{}, f.err
	}
	if f.respond != nil {
		return f.respond(items), nil
	}
	if len(f.responses) == 0 {
		return SyncResult{SavedItems: items}, nil
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return res, nil
}

func newTestReplica(t *testing.T, remote Remote) *Replica {
	t.Helper()
	counter := 0
	replica, err := NewReplica(remote, Options{
		Extension: ".txt",
		Now: func() time.Time {
			return baseTime.Add(time.Hour)
		},
		NewID: func() (string, error) {
			counter++
			return fmt.Sprintf("local-%d", counter), nil
		},
	})
	if err != nil {
		t.Fatalf("new replica failed: %v", err)
	}
	return replica
}

func remoteNote(id, title, text string, created time.Time) Item {
	return Item{
		ID:        id,
		Kind:      KindNote,
		Content:   &NoteContent{Title: title, Text: text, References: []Reference{}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func remoteTag(id, title string, created time.Time, refs ...Reference) Item {
	return Item{
		ID:        id,
		Kind:      KindTag,
		Content:   &TagContent{Title: title, References: refs},
		CreatedAt: created,
	}
}

func seed(t *testing.T, items ...Item) *Replica {
	t.Helper()
	remote := &fakeRemote{responses: []SyncResult{{ResponseItems: items}}}
	replica := newTestReplica(t, remote)
	if _, err := replica.SyncOnce(context.Background()); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
	return replica
}

func TestNewReplicaRequiresRemote(t *testing.T) {
	if _, err := NewReplica(nil, Options{}); err == nil {
		t.Fatalf("expected missing remote to fail")
	}
	if _, err := NewReplica(&fakeRemote{}, Options{Extension: "a/b"}); err == nil {
		t.Fatalf("expected extension with separator to fail")
	}
	if _, err := NewReplica(&fakeRemote{}, Options{MaxRounds: -1}); err == nil {
		t.Fatalf("expected negative max rounds to fail")
	}
}

func TestCreateNoteAssignsFirstSequenceAndName(t *testing.T) {
	replica := newTestReplica(t, &fakeRemote{})
	id, err := replica.CreateNote("draft", "")
	if err != nil {
		t.Fatalf("create note failed: %v", err)
	}
	item, err := replica.Get(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if item.Sequence != 0 {
		t.Fatalf("expected sequence 0, got %d", item.Sequence)
	}
	if !item.Dirty {
		t.Fatalf("expected new note to be dirty")
	}
	name, err := replica.NoteName(id)
	if err != nil {
		t.Fatalf("note name failed: %v", err)
	}
	if name != "draft.txt" {
		t.Fatalf("expected draft.txt, got %q", name)
	}
	note, _ := item.Note()
	if note.AppData.ClientUpdatedAt == nil || !note.AppData.ClientUpdatedAt.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("expected client_updated_at stamp, got %v", note.AppData.ClientUpdatedAt)
	}

	second, err := replica.CreateTag("work")
	if err != nil {
		t.Fatalf("create tag failed: %v", err)
	}
	tag, _ := replica.Get(second)
	if tag.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", tag.Sequence)
	}
}

func TestNamesStayUniqueWithinKind(t *testing.T) {
	replica := newTestReplica(t, &fakeRemote{})
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := replica.CreateNote("draft", "")
		if err != nil {
			t.Fatalf("create note failed: %v", err)
		}
		ids = append(ids, id)
	}
	tagID, err := replica.CreateTag("draft")
	if err != nil {
		t.Fatalf("create tag failed: %v", err)
	}

	want := []string{"draft.txt", "draft2.txt", "draft3.txt"}
	for i, id := range ids {
		name, err := replica.NoteName(id)
		if err != nil {
			t.Fatalf("note name failed: %v", err)
		}
		if name != want[i] {
			t.Fatalf("expected %q, got %q", want[i], name)
		}
	}
	if name, _ := replica.TagName(tagID); name != "draft" {
		t.Fatalf("expected tag namespace to be independent, got %q", name)
	}

	// Renaming the second note onto the first name bumps it to the next free slot.
	if err := replica.RenameNote(ids[1], "/notes/draft.txt"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if name, _ := replica.NoteName(ids[1]); name != "draft2.txt" {
		t.Fatalf("expected draft2.txt after rename, got %q", name)
	}
	seen := map[string]bool{}
	for _, name := range replica.AllNotes() {
		if seen[name] {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = true
	}
}

func TestAllocationSanitizesAndDefaults(t *testing.T) {
	replica := newTestReplica(t, &fakeRemote{})
	slash, _ := replica.CreateNote("a/b", "")
	empty, _ := replica.CreateNote("", "")
	if name, _ := replica.NoteName(slash); name != "a-b.txt" {
		t.Fatalf("expected a-b.txt, got %q", name)
	}
	if name, _ := replica.NoteName(empty); name != "Untitled.txt" {
		t.Fatalf("expected Untitled.txt, got %q", name)
	}
}

func TestAllocateIsIdempotent(t *testing.T) {
	replica := newTestReplica(t, &fakeRemote{})
	first, _ := replica.CreateNote("draft", "")
	second, _ := replica.CreateNote("draft", "")
	before, _ := replica.NoteName(second)

	replica.mu.Lock()
	replica.allocate(replica.items[second])
	replica.allocate(replica.items[second])
	replica.mu.Unlock()

	after, _ := replica.NoteName(second)
	if before != after {
		t.Fatalf("expected stable name %q, got %q", before, after)
	}
	if name, _ := replica.NoteName(first); name != "draft.txt" {
		t.Fatalf("expected first note to keep draft.txt, got %q", name)
	}
}

func TestAllocationIsDeterministicByCreationTime(t *testing.T) {
	older := remoteNote("n-old", "x", "", baseTime)
	newer := remoteNote("n-new", "x", "", baseTime.Add(time.Second))

	forward := seed(t, older, newer)
	backward := seed(t, newer, older)

	for _, replica := range []*Replica{forward, backward} {
		if name, _ := replica.NoteName("n-old"); name != "x.txt" {
			t.Fatalf("expected older note to get x.txt, got %q", name)
		}
		if name, _ := replica.NoteName("n-new"); name != "x2.txt" {
			t.Fatalf("expected newer note to get x2.txt, got %q", name)
		}
	}
}

func TestRemoteDeletionEvictsName(t *testing.T) {
	note := remoteNote("n1", "gone", "", baseTime)
	deleted := note
	deleted.Deleted = true
	deleted.Content = nil
	remote := &fakeRemote{responses: []SyncResult{
		{ResponseItems: []Item{note}},
		{ResponseItems: []Item{deleted}},
	}}
	replica := newTestReplica(t, remote)
	for i := 0; i < 2; i++ {
		if _, err := replica.SyncOnce(context.Background()); err != nil {
			t.Fatalf("sync %d failed: %v", i, err)
		}
	}
	if _, err := replica.Get("n1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := replica.LookupNote("gone.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected name to be evicted, got %v", err)
	}
	if replica.Len() != 0 {
		t.Fatalf("expected empty table, got %d", replica.Len())
	}
}

func TestMetadataOnlyMergeKeepsLocalContent(t *testing.T) {
	replica := seed(t, remoteNote("n1", "title", "remote", baseTime))
	if err := replica.WriteNoteBody("n1", []byte("local")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	echo := remoteNote("n1", "title", "stale echo", baseTime)
	echo.UpdatedAt = baseTime.Add(2 * time.Hour)
	replica.mu.Lock()
	replica.upsert(&echo, true)
	replica.mu.Unlock()

	item, _ := replica.Get("n1")
	note, _ := item.Note()
	if note.Text != "local" {
		t.Fatalf("expected local text to survive, got %q", note.Text)
	}
	if !item.UpdatedAt.Equal(baseTime.Add(2 * time.Hour)) {
		t.Fatalf("expected updated_at from echo, got %v", item.UpdatedAt)
	}
	if item.Dirty {
		t.Fatalf("expected merge to clear dirty")
	}
	if item.Sequence != 0 {
		t.Fatalf("expected sequence to be kept, got %d", item.Sequence)
	}

	// An unknown id takes the incoming content even in metadata-only mode.
	fresh := remoteNote("n2", "fresh", "body", baseTime)
	replica.mu.Lock()
	replica.upsert(&fresh, true)
	replica.mu.Unlock()
	item, _ = replica.Get("n2")
	note, _ = item.Note()
	if note.Text != "body" || item.Sequence != 1 {
		t.Fatalf("unexpected new item %+v seq=%d", note, item.Sequence)
	}
}

func TestDirtySnapshotOrderedBySequence(t *testing.T) {
	replica := newTestReplica(t, &fakeRemote{})
	a, _ := replica.CreateNote("a", "")
	b, _ := replica.CreateNote("b", "")
	c, _ := replica.CreateTag("c")
	if err := replica.DeleteTag(c); err != nil {
		t.Fatalf("delete tag failed: %v", err)
	}
	replica.mu.Lock()
	snapshot := replica.dirtySnapshot()
	replica.mu.Unlock()

	var got []string
	for _, it := range snapshot {
		if it.Dirty || it.Sequence != 0 {
			t.Fatalf("expected transient fields stripped, got %+v", it)
		}
		got = append(got, it.ID)
	}
	if !reflect.DeepEqual(got, []string{a, b, c}) {
		t.Fatalf("unexpected snapshot order %v", got)
	}
	if !snapshot[2].Deleted {
		t.Fatalf("expected tombstone in snapshot")
	}
}
