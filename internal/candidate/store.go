package candidate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/model"
)

// Store holds the candidates of one run in load order. It is read-only after
// construction and safe for concurrent readers.
type Store struct {
	cands  []model.Candidate
	byTIC  map[uint64][]int
	ticSeq []uint64
}

// New indexes cands. Keys must be unique.
func New(cands []model.Candidate) (*Store, error) {
	s := &Store{
		cands: cands,
		byTIC: make(map[uint64][]int),
	}
	seen := make(map[model.Key]struct{}, len(cands))
	for i := range cands {
		k := cands[i].Key
		if _, ok := seen[k]; ok {
			return nil, eris.Errorf("candidate: duplicate key %s", k)
		}
		seen[k] = struct{}{}
		if _, ok := s.byTIC[k.TIC]; !ok {
			s.ticSeq = append(s.ticSeq, k.TIC)
		}
		s.byTIC[k.TIC] = append(s.byTIC[k.TIC], i)
	}
	return s, nil
}

// Len returns the number of candidates.
func (s *Store) Len() int { return len(s.cands) }

// At returns the candidate at position i.
func (s *Store) At(i int) *model.Candidate { return &s.cands[i] }

// Targets returns the distinct TIC ids in first-seen order.
func (s *Store) Targets() []uint64 {
	return append([]uint64(nil), s.ticSeq...)
}

// ByTarget returns the positions of all candidates on one target.
func (s *Store) ByTarget(tic uint64) []int {
	return s.byTIC[tic]
}

// Select returns the positions for which pred holds, in load order.
func (s *Store) Select(pred func(*model.Candidate) bool) []int {
	var out []int
	for i := range s.cands {
		if pred(&s.cands[i]) {
			out = append(out, i)
		}
	}
	return out
}

// Join aligns a keyed table to store order; a missing key yields def.
func Join[T any](s *Store, table map[model.Key]T, def T) []T {
	out := make([]T, len(s.cands))
	for i := range s.cands {
		if v, ok := table[s.cands[i].Key]; ok {
			out[i] = v
		} else {
			out[i] = def
		}
	}
	return out
}
