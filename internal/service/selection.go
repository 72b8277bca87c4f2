package service

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// SelectionMode is the list mode of the selection manager.
type SelectionMode int

const (
	ModeNormal SelectionMode = iota
	ModeSelecting
)

func (m SelectionMode) String() string {
	if m == ModeSelecting {
		return "selecting"
	}
	return "normal"
}

// DeleteFunc deletes a single task.
type DeleteFunc func(ctx context.Context, taskID string) error

// Selection tracks multi-select state for batch deletion.
//
// A batch that stops partway keeps the unprocessed identifiers selected and
// stays in selecting mode with the failure pending until Acknowledge.
type Selection struct {
	mu       sync.Mutex
	mode     SelectionMode
	selected []string
	pending  *PartialBatchError
	running  bool
}

func NewSelection() *Selection {
	return &Selection{}
}

func (s *Selection) Mode() SelectionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Enter switches to selecting mode with an empty selection.
func (s *Selection) Enter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeSelecting {
		return
	}
	s.mode = ModeSelecting
	s.selected = nil
	s.pending = nil
}

// Exit returns to normal mode and clears the selection.
func (s *Selection) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Toggle adds or removes taskID and reports whether it is now selected.
func (s *Selection) Toggle(taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSelecting {
		return false, ErrNotSelecting
	}
	if i := slices.Index(s.selected, taskID); i >= 0 {
		s.selected = slices.Delete(s.selected, i, i+1)
		return false, nil
	}
	s.selected = append(s.selected, taskID)
	return true, nil
}

// Clear empties the selection and stays in selecting mode.
func (s *Selection) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSelecting {
		return ErrNotSelecting
	}
	s.selected = nil
	return nil
}

// SelectAll replaces the selection with the given visible identifiers.
func (s *Selection) SelectAll(visible []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSelecting {
		return ErrNotSelecting
	}
	s.selected = make([]string, 0, len(visible))
	for _, id := range visible {
		if !slices.Contains(s.selected, id) {
			s.selected = append(s.selected, id)
		}
	}
	return nil
}

func (s *Selection) IsSelected(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.selected, taskID)
}

// Selected returns the selected identifiers in selection order.
func (s *Selection) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selected)
}

// Pending returns the unacknowledged failure of the last batch, if any.
func (s *Selection) Pending() *PartialBatchError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Acknowledge dismisses a pending failure and returns to normal mode.
func (s *Selection) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// DeleteSelected deletes the selection one by one with del and stops at the
// first failure. On success the selection is cleared and the mode returns
// to normal. On failure the returned *PartialBatchError is kept pending and
// its unprocessed identifiers remain selected.
func (s *Selection) DeleteSelected(ctx context.Context, del DeleteFunc) ([]string, error) {
	s.mu.Lock()
	if s.mode != ModeSelecting {
		s.mu.Unlock()
		return nil, ErrNotSelecting
	}
	if s.running {
		s.mu.Unlock()
		return nil, errors.New("batch delete already running")
	}
	ids := slices.Clone(s.selected)
	s.running = true
	s.mu.Unlock()

	deleted := make([]string, 0, len(ids))
	var batchErr *PartialBatchError
	for i, id := range ids {
		if err := del(ctx, id); err != nil {
			batchErr = &PartialBatchError{
				Op:           "delete selected",
				Succeeded:    deleted,
				Failed:       id,
				NotAttempted: slices.Clone(ids[i+1:]),
				Err:          err,
			}
			break
		}
		deleted = append(deleted, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if batchErr == nil {
		s.reset()
		return deleted, nil
	}
	s.selected = batchErr.Unprocessed()
	s.pending = batchErr
	return deleted, batchErr
}

func (s *Selection) reset() {
	s.mode = ModeNormal
	s.selected = nil
	s.pending = nil
}
