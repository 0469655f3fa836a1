package fuzzy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/api-directory/internal/fuzzy"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		text    string
		opts    fuzzy.Options
		errors  int
		start   int
		score   float64
		ok      bool
	}{
		{name: "exact", pattern: "weather", text: "weather", opts: fuzzy.DefaultOptions, ok: true},
		{name: "prefix", pattern: "weather", text: "weather data", opts: fuzzy.DefaultOptions, ok: true},
		{name: "inner substring", pattern: "weather", text: "openweathermap", opts: fuzzy.DefaultOptions, start: 4, score: 0.04, ok: true},
		{name: "far substring", pattern: "weather", text: "provides historical and current weather", opts: fuzzy.DefaultOptions, start: 32, score: 0.32},
		{name: "far substring ignoring location", pattern: "weather", text: "provides historical and current weather", opts: fuzzy.Options{Threshold: 0.1, IgnoreLocation: true}, start: 32, ok: true},
		{name: "typo beyond threshold", pattern: "wether", text: "weather", opts: fuzzy.DefaultOptions, errors: 1, score: 1.0 / 6},
		{name: "typo loose threshold", pattern: "wether", text: "weather", opts: fuzzy.Options{Threshold: 0.2}, errors: 1, score: 1.0 / 6, ok: true},
		{name: "case folded pattern", pattern: "WEATHER", text: "weather", opts: fuzzy.DefaultOptions, ok: true},
		{name: "no overlap", pattern: "zzz", text: "abc", opts: fuzzy.Options{Threshold: 1}, errors: 3, score: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fuzzy.NewMatcher(tt.pattern, tt.opts)
			got, ok := m.Score(tt.text)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.errors, got.Errors)
			require.Equal(t, tt.start, got.Start)
			require.InDelta(t, tt.score, got.Score, 1e-9)
		})
	}
}

func TestEmptyPatternNeverMatches(t *testing.T) {
	m := fuzzy.NewMatcher("   ", fuzzy.DefaultOptions)
	_, ok := m.Score("anything")
	require.False(t, ok)
	require.Equal(t, "", m.Pattern())
}

func TestMatcherIsReusable(t *testing.T) {
	m := fuzzy.NewMatcher("cat", fuzzy.DefaultOptions)
	first, ok := m.Score("cat facts")
	require.True(t, ok)
	_, ok = m.Score("dog pictures")
	require.False(t, ok)
	again, ok := m.Score("cat facts")
	require.True(t, ok)
	require.Equal(t, first, again)
}
