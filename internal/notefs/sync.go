package notefs

import (
	"context"
	"fmt"
	"sort"
)

// Remote submits dirty items and returns the three categories of the
// server's answer. Implementations own authentication, paging and payload
// encoding.
type Remote interface {
	Sync(ctx context.Context, items []Item) (SyncResult, error)
}

type SyncResult struct {
	// ResponseItems are authoritative remote changes, merged in full.
	ResponseItems []Item
	// SavedItems acknowledge uploaded items; only their metadata is merged.
	SavedItems []Item
	// Conflicts carry the server version of items it refused to overwrite.
	Conflicts []Item
}

type SyncReport struct {
	Rounds    int
	Uploaded  int
	Retrieved int
	Saved     int
	Conflicts int
}

// SyncOnce runs sync rounds until one finishes without conflicts. Every
// conflicting note is branched into a new dirty copy before the server version
// is absorbed, so the next round uploads the copy. The replica stays locked
// for the whole call.
func (r *Replica) SyncOnce(ctx context.Context) (SyncReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report SyncReport
	for round := 1; ; round++ {
		if round > r.maxRounds {
			return report, fmt.Errorf("%w after %d rounds", ErrConflictsUnresolved, r.maxRounds)
		}
		if err := ctx.Err(); err != nil {
			return report, &SyncError{Round: round, Err: err}
		}
		batch := r.dirtySnapshot()
		res, err := r.remote.Sync(ctx, batch)
		if err != nil {
			r.logger.Warn().Err(err).Int("round", round).Int("items", len(batch)).Msg("sync round failed")
			return report, &SyncError{Round: round, Err: err}
		}
		report.Rounds = round
		report.Uploaded += len(batch)
		report.Retrieved += len(res.ResponseItems)
		report.Saved += len(res.SavedItems)
		report.Conflicts += len(res.Conflicts)

		r.merge(res.ResponseItems, false)
		r.merge(res.SavedItems, true)
		if err := r.branchConflicts(res.Conflicts); err != nil {
			return report, err
		}
		r.merge(res.Conflicts, true)

		r.logger.Debug().
			Int("round", round).
			Int("uploaded", len(batch)).
			Int("retrieved", len(res.ResponseItems)).
			Int("saved", len(res.SavedItems)).
			Int("conflicts", len(res.Conflicts)).
			Msg("sync round complete")
		if len(res.Conflicts) == 0 {
			return report, nil
		}
	}
}

func (r *Replica) merge(batch []Item, metadataOnly bool) {
	for _, it := range byCreation(batch) {
		r.upsert(it, metadataOnly)
	}
}

// branchConflicts creates a new local note for every conflicting note,
// carrying the server's title and text and pointing back at the original.
func (r *Replica) branchConflicts(conflicts []Item) error {
	for _, it := range byCreation(conflicts) {
		note, ok := it.Note()
		if !ok {
			continue
		}
		copied, err := r.newNote(note.Title, note.Text)
		if err != nil {
			return fmt.Errorf("branch conflict %s: %w", it.ID, err)
		}
		content, _ := copied.Note()
		content.ConflictOf = it.ID
		r.insertLocal(copied)
		r.logger.Info().Str("id", it.ID).Str("copy", copied.ID).Msg("conflict branched")
	}
	return nil
}

func byCreation(batch []Item) []*Item {
	out := make([]*Item, 0, len(batch))
	for i := range batch {
		out = append(out, &batch[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
