package race

import "fmt"

// ConfigError is raised synchronously at Race's entry for preconditions
// violated before any I/O happens: empty agent_models, invalid weights
// or dimensions.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "race: config error: " + e.Reason }

// JudgeParseError is fatal: the judge's streamed output never parsed
// into a valid verdict after retries.
type JudgeParseError struct {
	Err error
}

func (e *JudgeParseError) Error() string { return fmt.Sprintf("race: judge unparseable: %v", e.Err) }
func (e *JudgeParseError) Unwrap() error { return e.Err }

// AllFullFailedError is terminal: every candidate's full-answer attempt
// failed, including any sequential fallback.
type AllFullFailedError struct {
	FailedModels []string
}

func (e *AllFullFailedError) Error() string {
	return fmt.Sprintf("race: all %d full-answer attempts failed: %v", len(e.FailedModels), e.FailedModels)
}

// FeatureDimError is raised when a feature vector's dimension does not
// match the router it is fed to. Callers must not retry with a
// different d against the same router instance.
type FeatureDimError struct {
	Got, Want int
}

func (e *FeatureDimError) Error() string {
	return fmt.Sprintf("race: feature dimension mismatch: got %d, router wants %d", e.Got, e.Want)
}

// PreviewStreamError and FullStreamError are recovered locally per
// spec.md §7 and never returned from Race; they are logged and folded
// into the affected candidate's debug/failure record. They are still
// named here so every error in the taxonomy has a concrete type.
type PreviewStreamError struct {
	Model string
	Err   error
}

func (e *PreviewStreamError) Error() string {
	return fmt.Sprintf("race: preview stream failed for %s: %v", e.Model, e.Err)
}
func (e *PreviewStreamError) Unwrap() error { return e.Err }

type FullStreamError struct {
	Model string
	Err   error
}

func (e *FullStreamError) Error() string {
	return fmt.Sprintf("race: full stream failed for %s: %v", e.Model, e.Err)
}
func (e *FullStreamError) Unwrap() error { return e.Err }

// RouterPersistenceError documents the taxonomy entry for a bandit
// state save failure. The bandit package itself implements the
// "swallowed; logged; next update retries" policy (internal/bandit's
// Router.persist), so Race never constructs this type directly; it is
// named here to keep the full error taxonomy in one place.
type RouterPersistenceError struct {
	Err error
}

func (e *RouterPersistenceError) Error() string {
	return fmt.Sprintf("race: router persistence failed: %v", e.Err)
}
func (e *RouterPersistenceError) Unwrap() error { return e.Err }
