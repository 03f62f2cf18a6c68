// Package metrics provides abstract metrics interfaces so core packages can
// be instrumented without coupling to a specific backend (Prometheus etc.).
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when the
// operation completes to record the elapsed time.
type Timer interface {
	ObserveDuration()
}
