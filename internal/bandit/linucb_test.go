package bandit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectReturnsDistinctArms(t *testing.T) {
	r, err := New(2, 1.0, 1e-2, nil)
	require.NoError(t, err)
	arms := []string{"a", "b", "c"}
	picked, err := r.Select([]float64{1.0, 0.5}, arms, 2, nil)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	require.NotEqual(t, picked[0], picked[1])
}

func TestSelectDeterministic(t *testing.T) {
	r, _ := New(2, 1.0, 1e-2, nil)
	arms := []string{"a", "b", "c"}
	x := []float64{1.0, 0.3}
	first, _ := r.Select(x, arms, 3, nil)
	second, _ := r.Select(x, arms, 3, nil)
	require.Equal(t, first, second)
}

func TestUpdatePrefersRewardedArm(t *testing.T) {
	r, _ := New(2, 1.0, 1e-2, nil)
	x := []float64{1.0, 0.5}
	require.NoError(t, r.Update(x, "a", 1.0))
	picked, _ := r.Select(x, []string{"a", "b"}, 2, nil)
	require.Equal(t, "a", picked[0])
}

func TestDimensionMismatch(t *testing.T) {
	r, _ := New(2, 1.0, 1e-2, nil)
	_, err := r.Select([]float64{1.0}, []string{"a"}, 1, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	err = r.Update([]float64{1.0, 2.0, 3.0}, "a", 1.0)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAInvStaysSymmetric(t *testing.T) {
	r, _ := New(3, 1.0, 1e-2, nil)
	x := []float64{1.0, 0.4, 0.9}
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Update(x, "a", float64(i%2)))
	}
	st := r.arms["a"]
	for i := range st.AInv {
		for j := range st.AInv[i] {
			require.InDeltaf(t, st.AInv[i][j], st.AInv[j][i], 1e-8, "A_inv not symmetric at (%d,%d)", i, j)
		}
	}
}

func TestDegenerateFeatureVectorNoPanic(t *testing.T) {
	r, _ := New(2, 1.0, 1e-2, nil)
	zero := []float64{0.0, 0.0}
	require.NoError(t, r.Update(zero, "a", 0.5))
	_, err := r.Select(zero, []string{"a", "b"}, 2, nil)
	require.NoError(t, err)
}

func TestFilePersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	r1, _ := New(2, 1.0, 1e-2, NewFilePersister(path))
	x := []float64{1.0, 0.6}
	require.NoError(t, r1.Update(x, "a", 1.0))

	r2, err := New(2, 1.0, 1e-2, NewFilePersister(path))
	require.NoError(t, err)
	picked1, _ := r1.Select(x, []string{"a", "b"}, 2, nil)
	picked2, _ := r2.Select(x, []string{"a", "b"}, 2, nil)
	require.Equal(t, picked1[0], picked2[0])
}

func TestFilePersisterMissingFileIsColdStart(t *testing.T) {
	dir := t.TempDir()
	_, err := New(2, 1.0, 1e-2, NewFilePersister(filepath.Join(dir, "missing.json")))
	require.NoError(t, err)
}

func TestDimensionMismatchOnLoadResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	r1, _ := New(2, 1.0, 1e-2, NewFilePersister(path))
	_ = r1.Update([]float64{1.0, 0.5}, "a", 1.0)

	r2, err := New(3, 1.0, 1e-2, NewFilePersister(path))
	require.NoError(t, err)
	require.Empty(t, r2.arms)
}

func TestDecayShrinksConfidence(t *testing.T) {
	r, _ := New(2, 1.0, 1e-2, nil)
	x := []float64{1.0, 0.5}
	_ = r.Update(x, "a", 1.0)
	before := r.arms["a"].B[0]
	r.Decay(0.5)
	after := r.arms["a"].B[0]
	require.Less(t, after, before)
}
