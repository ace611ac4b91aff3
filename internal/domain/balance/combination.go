package balance

// HardLimit is the largest roster whose half-size combination count still
// fits the uint64 counters used for ranking and work splitting.
const HardLimit = 62

// pascal[n][k] = C(n, k) for n <= HardLimit.
var pascal = func() [HardLimit + 1][HardLimit + 1]uint64 {
	var t [HardLimit + 1][HardLimit + 1]uint64
	for n := 0; n <= HardLimit; n++ {
		t[n][0] = 1
		for k := 1; k <= n; k++ {
			t[n][k] = t[n-1][k-1] + t[n-1][k]
		}
	}
	return t
}()

// binomial returns C(n, k), or 0 when k is out of range.
func binomial(n, k int) uint64 {
	if k < 0 || k > n || n > HardLimit {
		return 0
	}
	return pascal[n][k]
}

// combination walks k-of-n index tuples in lexicographic order:
// [0 1 .. k-1], [0 1 .. k-2 k], ..., [n-k .. n-1].
type combination struct {
	n, k int
	idx  []int
}

func newCombination(n, k int) *combination {
	c := &combination{n: n, k: k, idx: make([]int, k)}
	for i := range c.idx {
		c.idx[i] = i
	}
	return c
}

// unrank positions c on the combination with lexicographic rank r.
func (c *combination) unrank(r uint64) {
	next := 0
	for i := 0; i < c.k; i++ {
		for {
			// combinations that put next at position i
			count := binomial(c.n-next-1, c.k-i-1)
			if r < count {
				break
			}
			r -= count
			next++
		}
		c.idx[i] = next
		next++
	}
}

// advance moves to the next combination and reports false after the last one.
func (c *combination) advance() bool {
	i := c.k - 1
	for i >= 0 && c.idx[i] == c.n-c.k+i {
		i--
	}
	if i < 0 {
		return false
	}
	c.idx[i]++
	for j := i + 1; j < c.k; j++ {
		c.idx[j] = c.idx[j-1] + 1
	}
	return true
}
