package service

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestSelectionRequiresSelectingMode(t *testing.T) {
	s := NewSelection()
	if _, err := s.Toggle("a"); !errors.Is(err, ErrNotSelecting) {
		t.Fatalf("Toggle in normal mode: err = %v", err)
	}
	if err := s.SelectAll([]string{"a"}); !errors.Is(err, ErrNotSelecting) {
		t.Fatalf("SelectAll in normal mode: err = %v", err)
	}
	if _, err := s.DeleteSelected(context.Background(), nil); !errors.Is(err, ErrNotSelecting) {
		t.Fatalf("DeleteSelected in normal mode: err = %v", err)
	}
	if err := s.Clear(); !errors.Is(err, ErrNotSelecting) {
		t.Fatalf("Clear in normal mode: err = %v", err)
	}
}

func TestSelectionClearStaysSelecting(t *testing.T) {
	s := NewSelection()
	s.Enter()
	if err := s.SelectAll([]string{"a", "b"}); err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := s.Selected(); len(got) != 0 {
		t.Fatalf("Selected after Clear = %v", got)
	}
	if s.Mode() != ModeSelecting {
		t.Fatalf("mode after Clear = %s, want selecting", s.Mode())
	}
	if on, err := s.Toggle("c"); err != nil || !on {
		t.Fatalf("Toggle after Clear = %v, %v", on, err)
	}
}

func TestSelectionToggleAndSelectAll(t *testing.T) {
	s := NewSelection()
	s.Enter()
	if s.Mode() != ModeSelecting {
		t.Fatalf("mode = %s", s.Mode())
	}

	if on, _ := s.Toggle("a"); !on {
		t.Fatalf("Toggle did not select")
	}
	s.Toggle("b")
	if on, _ := s.Toggle("a"); on {
		t.Fatalf("second Toggle did not deselect")
	}
	if got := s.Selected(); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("Selected = %v", got)
	}

	if err := s.SelectAll([]string{"c", "d", "c"}); err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if got := s.Selected(); !slices.Equal(got, []string{"c", "d"}) {
		t.Fatalf("Selected = %v", got)
	}

	s.Exit()
	if s.Mode() != ModeNormal || len(s.Selected()) != 0 {
		t.Fatalf("Exit left mode %s with %v", s.Mode(), s.Selected())
	}
}

func TestDeleteSelectedSuccess(t *testing.T) {
	s := NewSelection()
	s.Enter()
	s.SelectAll([]string{"a", "b"})

	var calls []string
	deleted, err := s.DeleteSelected(context.Background(), func(_ context.Context, id string) error {
		calls = append(calls, id)
		return nil
	})
	if err != nil {
		t.Fatalf("DeleteSelected: %v", err)
	}
	if !slices.Equal(deleted, []string{"a", "b"}) || !slices.Equal(calls, deleted) {
		t.Fatalf("deleted = %v, calls = %v", deleted, calls)
	}
	if s.Mode() != ModeNormal || len(s.Selected()) != 0 {
		t.Fatalf("selection not cleared")
	}
}

func TestDeleteSelectedPartialFailure(t *testing.T) {
	s := NewSelection()
	s.Enter()
	s.SelectAll([]string{"a", "b", "c", "d"})

	boom := errors.New("network down")
	deleted, err := s.DeleteSelected(context.Background(), func(_ context.Context, id string) error {
		if id == "c" {
			return boom
		}
		return nil
	})
	batchErr, ok := IsPartial(err)
	if !ok || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if !slices.Equal(deleted, []string{"a", "b"}) {
		t.Fatalf("deleted = %v", deleted)
	}
	if batchErr.Summary() != "2 of 4 done, not processed: c, d" {
		t.Fatalf("Summary = %q", batchErr.Summary())
	}

	if s.Mode() != ModeSelecting || s.Pending() != batchErr {
		t.Fatalf("mode %s pending %v", s.Mode(), s.Pending())
	}
	if got := s.Selected(); !slices.Equal(got, []string{"c", "d"}) {
		t.Fatalf("Selected = %v, want the unprocessed ids", got)
	}

	s.Acknowledge()
	if s.Mode() != ModeNormal || s.Pending() != nil || len(s.Selected()) != 0 {
		t.Fatalf("Acknowledge did not reset the selection")
	}
}
