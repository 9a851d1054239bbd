package notefs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxRounds = 16
	UntitledName     = "Untitled"
)

type Options struct {
	// Extension is appended to every note name, e.g. ".txt".
	Extension string
	// MaxRounds bounds the conflict loop of SyncOnce. Zero means DefaultMaxRounds.
	MaxRounds int
	Logger    zerolog.Logger
	Now       func() time.Time
	NewID     func() (string, error)
}

// Replica is the local item table of one account together with its name
// caches. All methods are safe for concurrent use; they are serialized by a
// single mutex that SyncOnce also holds across the remote call.
type Replica struct {
	mu sync.Mutex

	remote    Remote
	ext       string
	maxRounds int
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() (string, error)

	items      map[string]*Item
	tombstones map[string]*Item
	nextSeq    uint64
	notes      *nameCache
	tags       *nameCache
}

func NewReplica(remote Remote, opts Options) (*Replica, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote is required")
	}
	maxRounds := opts.MaxRounds
	if maxRounds < 0 {
		return nil, fmt.Errorf("max rounds must be positive, got %d", maxRounds)
	}
	if maxRounds == 0 {
		maxRounds = DefaultMaxRounds
	}
	ext := strings.TrimSpace(opts.Extension)
	if strings.Contains(ext, "/") {
		return nil, fmt.Errorf("extension %q contains a path separator", ext)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = newItemID
	}
	return &Replica{
		remote:     remote,
		ext:        ext,
		maxRounds:  maxRounds,
		logger:     opts.Logger,
		now:        now,
		newID:      newID,
		items:      map[string]*Item{},
		tombstones: map[string]*Item{},
		notes:      newNameCache(),
		tags:       newNameCache(),
	}, nil
}

func newItemID() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Extension returns the suffix applied to note names.
func (r *Replica) Extension() string {
	return r.ext
}

// Len reports the number of live items in the table.
func (r *Replica) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Get returns a copy of the item stored under id.
func (r *Replica) Get(id string) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return it.Clone(), nil
}

func (r *Replica) get(id string) (*Item, error) {
	it, ok := r.items[id]
	if !ok {
		return nil, &NotFoundError{Key: id}
	}
	return it, nil
}

func (r *Replica) getKind(id string, kind Kind) (*Item, error) {
	it, ok := r.items[id]
	if !ok || it.Kind != kind {
		return nil, &NotFoundError{Kind: kind, Key: id}
	}
	return it, nil
}

// upsert merges a remote record into the table. With metadataOnly the stored
// content and security fields survive, unless the id is new.
func (r *Replica) upsert(in *Item, metadataOnly bool) {
	delete(r.tombstones, in.ID)
	if in.Deleted {
		r.remove(in.ID)
		return
	}
	existing, ok := r.items[in.ID]
	merged := in.Clone()
	merged.Dirty = false
	if !ok {
		merged.Sequence = r.nextSeq
		r.nextSeq++
	} else {
		merged.Sequence = existing.Sequence
		if metadataOnly {
			merged.Content = existing.Content
			merged.EncItemKey = existing.EncItemKey
			merged.AuthHash = existing.AuthHash
		}
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = existing.CreatedAt
		}
	}
	r.items[in.ID] = merged
	r.allocate(merged)
}

// insertLocal adds a freshly created item and marks it dirty.
func (r *Replica) insertLocal(it *Item) {
	it.Sequence = r.nextSeq
	r.nextSeq++
	r.items[it.ID] = it
	r.markDirty(it)
	r.allocate(it)
}

func (r *Replica) remove(id string) {
	r.notes.evict(id)
	r.tags.evict(id)
	delete(r.items, id)
}

// hardDelete tombstones the item, drops it from the table and parks the
// tombstone until the next round uploads it.
func (r *Replica) hardDelete(it *Item) {
	it.Deleted = true
	r.markDirty(it)
	r.remove(it.ID)
	r.tombstones[it.ID] = it
}

// markDirty flags the item for upload and stamps client_updated_at.
func (r *Replica) markDirty(it *Item) {
	it.Dirty = true
	if ad := it.appData(); ad != nil {
		ts := r.now().UTC().Truncate(time.Millisecond)
		ad.ClientUpdatedAt = &ts
	}
}

// dirtySnapshot returns wire copies of every dirty item and pending tombstone,
// ordered by sequence.
func (r *Replica) dirtySnapshot() []Item {
	pending := make([]*Item, 0)
	for _, it := range r.items {
		if it.Dirty {
			pending = append(pending, it)
		}
	}
	for _, it := range r.tombstones {
		pending = append(pending, it)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Sequence < pending[j].Sequence
	})
	out := make([]Item, 0, len(pending))
	for _, it := range pending {
		cp := it.Clone()
		cp.Dirty = false
		cp.Sequence = 0
		out = append(out, *cp)
	}
	return out
}
