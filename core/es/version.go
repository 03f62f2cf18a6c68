package es

import "log/slog"

// Version is the per-aggregate stream version, a monotonically increasing
// value starting at 1 for the first event. It drives optimistic concurrency
// control: an append must name the version it expects the stream head to be
// at, and fails with ErrConcurrencyConflict otherwise.
type Version uint64

func (v Version) Uint64() uint64 { return uint64(v) }

func (v Version) SlogAttr() slog.Attr { return v.SlogAttrWithKey("version") }

func (v Version) SlogAttrWithKey(key string) slog.Attr {
	return slog.Uint64(key, uint64(v))
}
