//go:build !yzma

package backend

// Built without the 'yzma' tag: no native runtime is linked in. Init and
// Load refuse to run instead of pretending to generate.

const unavailable = "llama runtime not built (missing 'yzma' build tag)"

// Built reports whether this binary carries the native runtime.
const Built = false

// Init is a no-op placeholder that reports the runtime as unavailable.
func Init(libPath string) error { return ErrDependencyUnavailable(unavailable) }

type stubLoader struct{}

// NewLoader returns a loader that always fails.
func NewLoader() Loader { return stubLoader{} }

func (stubLoader) Load(path string) (Model, error) {
	return nil, ErrDependencyUnavailable(unavailable)
}
