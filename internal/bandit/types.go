package bandit

// StateVersion is the persisted state format version. A dimension
// mismatch on load discards all arm state and starts cold, mirroring the
// original router's forgiving migration behavior; the loaded version
// field is not compared.
const StateVersion = 1

// ArmState is one arm's ridge-regression accumulator: A_inv is the
// running inverse of (X^T X + lambda*I) for that arm, b is X^T y.
// A_inv must stay symmetric positive-definite; b has the same length.
type ArmState struct {
	AInv [][]float64 `json:"A_inv"`
	B    []float64   `json:"b"`
}

// StatePayload is the full persisted router state, matching the JSON
// shape `{version, d, arms: {name: {A_inv, b}}}` from spec.md §6.
type StatePayload struct {
	Version int                 `json:"version"`
	D       int                 `json:"d"`
	Arms    map[string]ArmState `json:"arms"`
}
