// Package rating holds player ratings keyed by player id.
//
// Reads come in two flavours: GetOrDefault never mutates the store, while
// GetOrInsertDefault registers an unseen player at the default rating. Game
// processing uses the inserting variant; predictions use the pure one.
package rating

import (
	"sort"

	"github.com/okian/teamelo/internal/domain/types"
)

// DefaultRating is the rating of a player with no history.
const DefaultRating = 2000.0

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithDefault overrides the rating given to unseen players.
func WithDefault(r float64) Option {
	return func(s *Store) {
		s.def = r
	}
}

// WithInitial pre-populates the store. Later entries overwrite earlier ones.
func WithInitial(ratings map[string]float64) Option {
	return func(s *Store) {
		for id, r := range ratings {
			s.Insert(id, r)
		}
	}
}

// Store maps player ids to ratings. It never shrinks.
// A Store is not safe for concurrent use; callers that share one across
// goroutines must synchronize.
type Store struct {
	def     float64
	ratings map[string]float64
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		def:     DefaultRating,
		ratings: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Default returns the rating used for unseen players.
func (s *Store) Default() float64 { return s.def }

// GetOrDefault returns the stored rating or the default. It never inserts.
func (s *Store) GetOrDefault(id string) float64 {
	if r, ok := s.ratings[id]; ok {
		return r
	}
	return s.def
}

// Lookup returns the stored rating and whether id is known.
func (s *Store) Lookup(id string) (float64, bool) {
	r, ok := s.ratings[id]
	return r, ok
}

// GetOrInsertDefault returns the stored rating, inserting the default first if id is unseen.
func (s *Store) GetOrInsertDefault(id string) float64 {
	if r, ok := s.ratings[id]; ok {
		return r
	}
	s.ratings[id] = s.def
	return s.def
}

// Insert overwrites the rating for id.
func (s *Store) Insert(id string, r float64) {
	s.ratings[id] = r
}

// Add moves id's rating by delta, registering id at the default first if needed.
func (s *Store) Add(id string, delta float64) {
	s.ratings[id] = s.GetOrInsertDefault(id) + delta
}

// Len returns the number of known players.
func (s *Store) Len() int { return len(s.ratings) }

// All returns a copy of every known rating.
func (s *Store) All() map[string]float64 {
	out := make(map[string]float64, len(s.ratings))
	for id, r := range s.ratings {
		out[id] = r
	}
	return out
}

// Standings returns every player ordered by rating descending, ties by id ascending.
func (s *Store) Standings() []types.Entry {
	entries := make([]types.Entry, 0, len(s.ratings))
	for id, r := range s.ratings {
		entries = append(entries, types.Entry{PlayerID: id, Rating: r})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Entry returns id's standings row without sorting the whole store.
// The second result is false if id is unknown.
func (s *Store) Entry(id string) (types.Entry, bool) {
	r, ok := s.ratings[id]
	if !ok {
		return types.Entry{}, false
	}
	rank := 1
	for other, v := range s.ratings {
		if v > r || (v == r && other < id) {
			rank++
		}
	}
	return types.Entry{Rank: rank, PlayerID: id, Rating: r}, true
}
