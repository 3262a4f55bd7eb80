// Package bandit implements a disjoint LinUCB contextual bandit: one ridge
// regression per arm with Sherman-Morrison rank-one updates, persisted as
// JSON to a file or an optional key/value store. Grounded on the pack's
// Thompson-Sampling router (internal/router/thompson.go for the arm-map
// shape and refresh-loop idiom) generalized to the disjoint-LinUCB
// algorithm from the original implementation's routing_linucb.py.
package bandit

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/llmrace/llmrace/internal/racelog"
)

// ErrDimensionMismatch is returned by Select/Update when x's length does
// not match the router's fixed dimension.
var ErrDimensionMismatch = errors.New("bandit: feature dimension mismatch")

// Persister abstracts the two state backends named in spec.md §6: a local
// file and an optional Redis-backed store. Load returning (nil, nil) means
// no prior state; Router starts cold in that case.
type Persister interface {
	Load() (*StatePayload, error)
	Save(*StatePayload) error
}

// Router is a disjoint LinUCB bandit fixed to dimension d for its
// lifetime. Safe for concurrent Select/Update from a single process;
// cross-process safety is delegated to the Persister (file or K/V).
type Router struct {
	mu          sync.Mutex
	d           int
	alpha       float64
	ridgeLambda float64
	persister   Persister
	arms        map[string]*ArmState
}

// New constructs a Router for dimension d, loading prior state from
// persister if present. A dimension mismatch in the loaded payload
// discards all arm state rather than failing.
func New(d int, alpha, ridgeLambda float64, persister Persister) (*Router, error) {
	if d <= 0 {
		return nil, errors.New("bandit: d must be > 0")
	}
	r := &Router{
		d:           d,
		alpha:       alpha,
		ridgeLambda: ridgeLambda,
		persister:   persister,
		arms:        make(map[string]*ArmState),
	}
	if persister != nil {
		payload, err := persister.Load()
		if err != nil {
			racelog.Default().Warn("bandit: state load failed, starting cold", "error", err)
		} else if payload != nil {
			r.loadPayload(payload)
		}
	}
	return r, nil
}

// Dim returns the router's fixed feature dimension.
func (r *Router) Dim() int { return r.d }

func (r *Router) loadPayload(payload *StatePayload) {
	if payload.D != r.d {
		racelog.Default().Info("bandit: dimension mismatch on load, resetting", "loaded_d", payload.D, "want_d", r.d)
		return
	}
	for name, st := range payload.Arms {
		if len(st.AInv) == 0 || len(st.B) == 0 {
			continue
		}
		cp := st
		r.arms[name] = &cp
	}
}

func (r *Router) ensureLocked(arm string) *ArmState {
	if st, ok := r.arms[arm]; ok {
		return st
	}
	lambda := r.ridgeLambda
	if lambda < 1e-9 {
		lambda = 1e-9
	}
	aInv := identity(r.d, 1.0/lambda)
	st := &ArmState{AInv: aInv, B: make([]float64, r.d)}
	r.arms[arm] = st
	return st
}

// Select scores each arm as mean + alpha*sqrt(variance) + bias and returns
// the k highest-scoring arms from arms, in descending score order, ties
// broken by the input arms order (a stable sort over scores preserves it).
func (r *Router) Select(x []float64, arms []string, k int, armBias map[string]float64) ([]string, error) {
	if len(x) != r.d {
		return nil, ErrDimensionMismatch
	}
	if len(arms) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	type scored struct {
		arm   string
		score float64
	}
	scores := make([]scored, len(arms))
	for i, a := range arms {
		st := r.ensureLocked(a)
		theta := matVec(st.AInv, st.B)
		mean := dot(theta, x)
		ax := matVec(st.AInv, x)
		variance := math.Max(0, dot(ax, x))
		bias := 0.0
		if armBias != nil {
			bias = armBias[a]
		}
		scores[i] = scored{arm: a, score: mean + r.alpha*math.Sqrt(variance) + bias}
	}
	r.mu.Unlock()

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	kEff := k
	if kEff < 1 {
		kEff = 1
	}
	if kEff > len(scores) {
		kEff = len(scores)
	}
	out := make([]string, kEff)
	for i := 0; i < kEff; i++ {
		out[i] = scores[i].arm
	}
	return out, nil
}

// Update applies the Sherman-Morrison rank-one downdate to arm's A_inv and
// accumulates reward*x into b, then best-effort persists. A persistence
// failure is logged and swallowed; it must not fail the update itself.
func (r *Router) Update(x []float64, arm string, reward float64) error {
	if len(x) != r.d {
		return ErrDimensionMismatch
	}
	r.mu.Lock()
	st := r.ensureLocked(arm)
	aInvX := matVec(st.AInv, x)
	denom := 1.0 + dot(x, aInvX)
	if denom <= 1e-9 {
		denom = 1e-9
	}
	outer := outerProduct(aInvX, aInvX)
	for i := range st.AInv {
		for j := range st.AInv[i] {
			st.AInv[i][j] -= outer[i][j] / denom
		}
	}
	for i := range st.B {
		st.B[i] += reward * x[i]
	}
	payload := r.snapshotLocked()
	r.mu.Unlock()

	return r.persist(payload)
}

// BulkUpdate applies Update per arm; one arm's failure does not prevent
// the others from updating.
func (r *Router) BulkUpdate(x []float64, rewards map[string]float64) {
	for arm, reward := range rewards {
		if err := r.Update(x, arm, reward); err != nil {
			racelog.Default().Warn("bandit: update failed", "arm", arm, "error", err)
		}
	}
}

// Decay forgets stale evidence: A_inv /= factor, b *= factor, for every
// arm. factor must be in (0, 1]; values outside that range are a no-op.
func (r *Router) Decay(factor float64) {
	if factor <= 0 || factor > 1 {
		return
	}
	r.mu.Lock()
	for _, st := range r.arms {
		for i := range st.AInv {
			for j := range st.AInv[i] {
				st.AInv[i][j] /= factor
			}
		}
		for i := range st.B {
			st.B[i] *= factor
		}
	}
	payload := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.persist(payload); err != nil {
		racelog.Default().Warn("bandit: decay persist failed", "error", err)
	}
}

func (r *Router) snapshotLocked() *StatePayload {
	arms := make(map[string]ArmState, len(r.arms))
	for name, st := range r.arms {
		arms[name] = *st
	}
	return &StatePayload{Version: StateVersion, D: r.d, Arms: arms}
}

func (r *Router) persist(payload *StatePayload) error {
	if r.persister == nil {
		return nil
	}
	if err := r.persister.Save(payload); err != nil {
		racelog.Default().Warn("bandit: state save failed", "error", err)
		return err
	}
	return nil
}

func identity(n int, diag float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = diag
	}
	return m
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		sum := 0.0
		for j, val := range row {
			sum += val * v[j]
		}
		out[i] = sum
	}
	return out
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func outerProduct(a, b []float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		out[i] = make([]float64, len(b))
		for j := range b {
			out[i][j] = a[i] * b[j]
		}
	}
	return out
}
