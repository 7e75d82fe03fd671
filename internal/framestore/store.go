// Package framestore keeps the ordered slides captured from a video together
// with the caller's selection.
package framestore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kdimtricp/vslides/internal/fingerprint"
)

var ErrIndexOutOfRange = errors.New("frame index out of range")

// Frame is one accepted slide. Frames are values; the store hands out copies.
type Frame struct {
	ID          uint64
	Timestamp   float64
	ImageRef    string
	Width       int
	Height      int
	Fingerprint fingerprint.Fingerprint
}

// Store is safe for concurrent use. Selection is a set of positions that
// always lies within [0, Len()).
type Store struct {
	mu       sync.RWMutex
	frames   []Frame
	selected map[int]struct{}
	nextID   uint64
}

func New() *Store {
	return &Store{
		selected: make(map[int]struct{}),
		nextID:   1,
	}
}

// Append assigns the frame a fresh ID, adds it at the end and selects it.
func (s *Store) Append(f Frame) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.nextID
	s.nextID++

	s.frames = append(s.frames, f)
	s.selected[len(s.frames)-1] = struct{}{}
	return f
}

// Remove deletes the frame at index and shifts the selection of every later
// frame down by one.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}

	s.frames = append(s.frames[:index], s.frames[index+1:]...)

	remapped := make(map[int]struct{}, len(s.selected))
	for i := range s.selected {
		switch {
		case i == index:
		case i > index:
			remapped[i-1] = struct{}{}
		default:
			remapped[i] = struct{}{}
		}
	}
	s.selected = remapped
	return nil
}

// Move relocates the frame at oldIndex to newIndex. The selection follows
// the frames, so its size never changes.
func (s *Store) Move(oldIndex, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(oldIndex); err != nil {
		return err
	}
	if err := s.checkIndex(newIndex); err != nil {
		return err
	}
	if oldIndex == newIndex {
		return nil
	}

	f := s.frames[oldIndex]
	s.frames = append(s.frames[:oldIndex], s.frames[oldIndex+1:]...)
	s.frames = append(s.frames[:newIndex], append([]Frame{f}, s.frames[newIndex:]...)...)

	remapped := make(map[int]struct{}, len(s.selected))
	for i := range s.selected {
		remapped[remapMove(i, oldIndex, newIndex)] = struct{}{}
	}
	s.selected = remapped
	return nil
}

func remapMove(i, oldIndex, newIndex int) int {
	switch {
	case i == oldIndex:
		return newIndex
	case oldIndex < newIndex && i > oldIndex && i <= newIndex:
		return i - 1
	case newIndex < oldIndex && i >= newIndex && i < oldIndex:
		return i + 1
	default:
		return i
	}
}

// ToggleSelect flips the selection of index and reports the new state.
func (s *Store) ToggleSelect(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return false, err
	}

	if _, ok := s.selected[index]; ok {
		delete(s.selected, index)
		return false, nil
	}
	s.selected[index] = struct{}{}
	return true, nil
}

func (s *Store) SetSelected(index int, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	if selected {
		s.selected[index] = struct{}{}
	} else {
		delete(s.selected, index)
	}
	return nil
}

func (s *Store) IsSelected(index int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.selected[index]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.frames)
}

func (s *Store) Frame(index int) (Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkIndex(index); err != nil {
		return Frame{}, err
	}
	return s.frames[index], nil
}

// Frames returns a copy of the frames in store order.
func (s *Store) Frames() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Selected returns the selected indices in ascending order.
func (s *Store) Selected() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedSelection()
}

// SelectedFrames returns the selected frames in ascending index order, which
// is the order they are exported in.
func (s *Store) SelectedFrames() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indices := s.sortedSelection()
	out := make([]Frame, 0, len(indices))
	for _, i := range indices {
		out = append(out, s.frames[i])
	}
	return out
}

// Reset drops every frame and the selection. IDs keep increasing.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = nil
	s.selected = make(map[int]struct{})
}

// Restore replaces the store content with previously persisted frames.
// Selection entries outside the frame range are rejected.
func (s *Store) Restore(frames []Frame, selected []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel := make(map[int]struct{}, len(selected))
	for _, i := range selected {
		if i < 0 || i >= len(frames) {
			return fmt.Errorf("restore selection %d: %w", i, ErrIndexOutOfRange)
		}
		sel[i] = struct{}{}
	}

	s.frames = make([]Frame, len(frames))
	copy(s.frames, frames)
	s.selected = sel

	for _, f := range frames {
		if f.ID >= s.nextID {
			s.nextID = f.ID + 1
		}
	}
	return nil
}

func (s *Store) sortedSelection() []int {
	out := make([]int, 0, len(s.selected))
	for i := range s.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.frames) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, index, len(s.frames))
	}
	return nil
}
