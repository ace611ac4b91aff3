// Package balance splits a roster into two equal teams whose ratings best
// match the roster as a whole.
//
// The search is exact: every half-size combination of roster positions is
// scored by |mean(roster) - mean(teamA)| and the lowest score wins. Candidates
// are visited in lexicographic order of their ascending index tuples, and a
// candidate only replaces the best on a strictly lower score, so on ties the
// earliest combination wins. With roster [A B C D] the order is
// {A,B} {A,C} {A,D} {B,C} {B,D} {C,D}.
//
// The cost is C(n, n/2) * n/2 rating additions, which is why rosters are
// capped (20 players by default, C(20,10) = 184756 candidates).
package balance

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/okian/teamelo/internal/domain/elo"
	"github.com/okian/teamelo/internal/domain/rating"
)

const (
	defaultMaxRoster = 20
	// ctx is polled once per this many candidates.
	ctxPollInterval = 1 << 12
	// below this many candidates a single goroutine is used.
	minParallelCandidates = 1 << 14
)

// Split is a balanced partition of a roster.
type Split struct {
	TeamA      []string
	TeamB      []string
	MeanA      float64
	MeanB      float64
	Target     float64 // mean rating of the whole roster
	Imbalance  float64 // |Target - MeanA|
	Expected   float64 // probability TeamA beats TeamB
	Candidates uint64  // combinations scored
}

// Option applies a configuration option to the Balancer.
type Option func(*Balancer)

// WithMaxRoster caps the roster size. Values are clamped to [2, HardLimit].
func WithMaxRoster(n int) Option {
	return func(b *Balancer) {
		switch {
		case n < 2:
			b.maxRoster = 2
		case n > HardLimit:
			b.maxRoster = HardLimit
		default:
			b.maxRoster = n
		}
	}
}

// WithWorkers sets how many goroutines share the search. Non-positive means runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(b *Balancer) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		b.workers = n
	}
}

// WithScale sets the saturation scale used for the expected outcome.
func WithScale(r float64) Option {
	return func(b *Balancer) {
		if r > 0 {
			b.scale = r
		}
	}
}

// Balancer finds balanced splits using read-only lookups on a rating store.
type Balancer struct {
	store     *rating.Store
	maxRoster int
	workers   int
	scale     float64
}

// New creates a balancer over store. By default it searches sequentially.
func New(store *rating.Store, opts ...Option) *Balancer {
	b := &Balancer{
		store:     store,
		maxRoster: defaultMaxRoster,
		workers:   1,
		scale:     elo.DefaultScale,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxRoster returns the configured roster ceiling.
func (b *Balancer) MaxRoster() int { return b.maxRoster }

// FindBalancedSplit returns the best split of roster. Unseen players count at
// the store's default rating and are not inserted.
func (b *Balancer) FindBalancedSplit(ctx context.Context, roster []string) (Split, error) {
	n := len(roster)
	switch {
	case n == 0:
		return Split{}, fmt.Errorf("%w: empty roster", ErrNoValidSplit)
	case n%2 != 0:
		return Split{}, fmt.Errorf("%w: got %d players", ErrOddRoster, n)
	case n > b.maxRoster:
		return Split{}, fmt.Errorf("%w: %d players, limit %d", ErrRosterTooLarge, n, b.maxRoster)
	}

	ratings := make([]float64, n)
	var total float64
	for i, id := range roster {
		ratings[i] = b.store.GetOrDefault(id)
		total += ratings[i]
	}
	target := total / float64(n)
	k := n / 2
	count := binomial(n, k)

	best, err := b.search(ctx, ratings, target, k, count)
	if err != nil {
		return Split{}, err
	}
	if best.idx == nil {
		return Split{}, ErrNoValidSplit
	}

	inA := make([]bool, n)
	for _, i := range best.idx {
		inA[i] = true
	}
	split := Split{
		TeamA:      make([]string, 0, k),
		TeamB:      make([]string, 0, k),
		Target:     target,
		Imbalance:  best.score,
		Candidates: count,
	}
	var sumB float64
	for i, id := range roster {
		if inA[i] {
			split.TeamA = append(split.TeamA, id)
		} else {
			split.TeamB = append(split.TeamB, id)
			sumB += ratings[i]
		}
	}
	split.MeanA = best.mean
	split.MeanB = sumB / float64(k)
	split.Expected = elo.ExpectedScore(split.MeanA, split.MeanB, b.scale)
	return split, nil
}

// candidate is the best combination within a rank range.
type candidate struct {
	idx   []int
	mean  float64
	score float64
}

// better reports whether c should replace the current best. Only a strictly
// lower score wins, which keeps the earliest combination on ties.
func (c candidate) better(than candidate) bool {
	return c.idx != nil && (than.idx == nil || c.score < than.score)
}

func (b *Balancer) search(ctx context.Context, ratings []float64, target float64, k int, count uint64) (candidate, error) {
	workers := uint64(b.workers)
	if workers <= 1 || count < minParallelCandidates {
		return scanRange(ctx, ratings, target, k, 0, count)
	}
	if workers > count {
		workers = count
	}

	results := make([]candidate, workers)
	errs := make([]error, workers)
	chunk := count / workers
	var wg sync.WaitGroup
	for w := uint64(0); w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if w == workers-1 {
			hi = count
		}
		wg.Add(1)
		go func(slot, lo, hi uint64) {
			defer wg.Done()
			results[slot], errs[slot] = scanRange(ctx, ratings, target, k, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	// Ranges are contiguous and ascending, so folding them in slot order with
	// the strict comparison reproduces the sequential winner.
	var best candidate
	for i, c := range results {
		if errs[i] != nil {
			return candidate{}, errs[i]
		}
		if c.better(best) {
			best = c
		}
	}
	return best, nil
}

// scanRange scores combinations with ranks in [lo, hi).
func scanRange(ctx context.Context, ratings []float64, target float64, k int, lo, hi uint64) (candidate, error) {
	var best candidate
	if lo >= hi {
		return best, nil
	}
	c := newCombination(len(ratings), k)
	c.unrank(lo)
	for r := lo; r < hi; r++ {
		if (r-lo)%ctxPollInterval == 0 {
			if err := ctx.Err(); err != nil {
				return candidate{}, fmt.Errorf("balance search interrupted: %w", err)
			}
		}
		var sum float64
		for _, i := range c.idx {
			sum += ratings[i]
		}
		mean := sum / float64(k)
		score := math.Abs(target - mean)
		if best.idx == nil || score < best.score {
			if best.idx == nil {
				best.idx = make([]int, k)
			}
			copy(best.idx, c.idx)
			best.mean = mean
			best.score = score
		}
		if r+1 < hi && !c.advance() {
			break
		}
	}
	return best, nil
}
