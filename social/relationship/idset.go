package relationship

import (
	"iter"
	"slices"
)

// IDSet is an immutable set of user ids. Iteration order is ascending and
// every call to All starts over.
type IDSet struct {
	ids   []int64
	index map[int64]struct{}
}

func newIDSet(ids []int64) IDSet {
	s := IDSet{index: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		if _, dup := s.index[id]; dup {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	slices.Sort(s.ids)
	return s
}

// All yields the ids in ascending order.
func (s IDSet) All() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for _, id := range s.ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Contains reports whether id is in the set.
func (s IDSet) Contains(id int64) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids.
func (s IDSet) Len() int { return len(s.ids) }

// Slice returns a copy of the ids.
func (s IDSet) Slice() []int64 { return slices.Clone(s.ids) }
