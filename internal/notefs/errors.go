package notefs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrSyncTransport       = errors.New("sync transport failure")
	ErrConflictsUnresolved = errors.New("conflicts still unresolved")
)

type NotFoundError struct {
	Kind Kind
	Key  string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("item %s not found", e.Key)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SyncError wraps a failed remote call. No merge happened for the round.
type SyncError struct {
	Round int
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync round %d: %v", e.Round, e.Err)
}

func (e *SyncError) Is(target error) bool {
	return target == ErrSyncTransport
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
