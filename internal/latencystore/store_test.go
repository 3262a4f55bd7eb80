package latencystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestP95NoSamples(t *testing.T) {
	s := New("")
	_, ok := s.P95("gpt-a")
	require.False(t, ok)
}

func TestP95ComputedOverSamples(t *testing.T) {
	s := New("")
	for i := 1; i <= 100; i++ {
		s.Record("gpt-a", float64(i)/10.0)
	}
	p95, ok := s.P95("gpt-a")
	require.True(t, ok)
	require.InDelta(t, 9.5, p95, 0.6)
}

func TestRecordIgnoresNonPositive(t *testing.T) {
	s := New("")
	s.Record("gpt-a", 0)
	s.Record("gpt-a", -1)
	_, ok := s.P95("gpt-a")
	require.False(t, ok)
}

func TestRingCapsAtMaxSamples(t *testing.T) {
	s := New("")
	for i := 0; i < MaxSamples+20; i++ {
		s.Record("gpt-a", 1.0)
	}
	require.Len(t, s.samples["gpt-a"], MaxSamples)
}

func TestFilePersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.json")
	s1 := New(path)
	s1.Record("gpt-a", 1.5)
	s1.Record("gpt-a", 2.5)

	s2 := New(path)
	p95, ok := s2.P95("gpt-a")
	require.True(t, ok)
	require.Equal(t, 2.5, p95)
}
