// Package fuzzy scores approximate substring matches on a 0 (exact) to 1 (anything) scale.
package fuzzy

import "strings"

// Options control how strict a match must be.
type Options struct {
	// Threshold is the highest score still considered a match.
	Threshold float64
	// Distance is how far from the start of the text a match may drift before the location
	// penalty alone reaches 1.0.
	Distance int
	// IgnoreLocation drops the location penalty entirely.
	IgnoreLocation bool
}

// DefaultOptions mirror the directory search defaults.
var DefaultOptions = Options{Threshold: 0.1, Distance: 100}

// Match is the best alignment of a pattern inside a text.
type Match struct {
	Errors int
	Start  int
	Score  float64
}

// Matcher scores a lower-cased pattern against many texts.
type Matcher struct {
	pattern []rune
	opts    Options
	// scratch columns reused between calls; a Matcher is not safe for concurrent use.
	prevCost, curCost   []int
	prevStart, curStart []int
}

// NewMatcher prepares pattern for repeated scoring.
func NewMatcher(pattern string, opts Options) *Matcher {
	if opts.Distance <= 0 {
		opts.Distance = DefaultOptions.Distance
	}
	p := []rune(strings.ToLower(strings.TrimSpace(pattern)))
	n := len(p) + 1
	return &Matcher{
		pattern:   p,
		opts:      opts,
		prevCost:  make([]int, n),
		curCost:   make([]int, n),
		prevStart: make([]int, n),
		curStart:  make([]int, n),
	}
}

// Pattern returns the normalized pattern.
func (m *Matcher) Pattern() string {
	return string(m.pattern)
}

// Score returns the best match of the pattern in text and whether it is within the threshold.
// text is expected to be lower-cased already.
func (m *Matcher) Score(text string) (Match, bool) {
	if len(m.pattern) == 0 {
		return Match{Score: 1}, false
	}
	if text == string(m.pattern) {
		return Match{}, true
	}

	best := m.align([]rune(text))
	if best.Errors >= len(m.pattern) {
		return best, false
	}
	return best, best.Score <= m.opts.Threshold
}

// align runs Sellers' variant of the edit-distance recurrence, where a match may begin
// anywhere in the text, tracking where each alignment starts.
func (m *Matcher) align(text []rune) Match {
	plen := len(m.pattern)
	for i := 0; i <= plen; i++ {
		m.prevCost[i] = i
		m.prevStart[i] = 0
	}

	best := m.score(m.prevCost[plen], 0)
	for j := 1; j <= len(text); j++ {
		m.curCost[0] = 0
		m.curStart[0] = j
		for i := 1; i <= plen; i++ {
			sub := 1
			if m.pattern[i-1] == text[j-1] {
				sub = 0
			}
			cost, start := m.prevCost[i-1]+sub, m.prevStart[i-1]
			if c := m.prevCost[i] + 1; c < cost {
				cost, start = c, m.prevStart[i]
			}
			if c := m.curCost[i-1] + 1; c < cost {
				cost, start = c, m.curStart[i-1]
			}
			m.curCost[i], m.curStart[i] = cost, start
		}

		if cand := m.score(m.curCost[plen], m.curStart[plen]); cand.Score < best.Score {
			best = cand
		}
		m.prevCost, m.curCost = m.curCost, m.prevCost
		m.prevStart, m.curStart = m.curStart, m.prevStart
	}
	return best
}

func (m *Matcher) score(errs, start int) Match {
	s := float64(errs) / float64(len(m.pattern))
	if !m.opts.IgnoreLocation {
		s += float64(start) / float64(m.opts.Distance)
	}
	if s > 1 {
		s = 1
	}
	return Match{Errors: errs, Start: start, Score: s}
}
