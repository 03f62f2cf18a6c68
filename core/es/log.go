package es

import "context"

const defaultLogPageSize = 256

// LogReader pages through a notification log from a fixed starting
// position, tracking how far it has read. It is not safe for concurrent
// use; create one reader per pass.
type LogReader struct {
	log      NotificationLog
	position uint64
	pageSize int
}

type LogReaderOption func(*LogReader)

// WithAfterPosition starts the pass after the given position. Re-reading
// from an earlier position is the caller's means of replay and recovery.
func WithAfterPosition(position uint64) LogReaderOption {
	return func(r *LogReader) { r.position = position }
}

func WithPageSize(size int) LogReaderOption {
	return func(r *LogReader) {
		if size > 0 {
			r.pageSize = size
		}
	}
}

func NewLogReader(log NotificationLog, opts ...LogReaderOption) *LogReader {
	r := &LogReader{log: log, pageSize: defaultLogPageSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next page of envelopes, or an empty slice when the
// reader has caught up with the log at this instant.
func (r *LogReader) Next(ctx context.Context) ([]Envelope, error) {
	page, err := r.log.ReadLog(ctx, r.position, r.pageSize)
	if err != nil {
		return nil, err
	}
	if len(page) > 0 {
		r.position = page[len(page)-1].Seq
	}
	return page, nil
}

// Position returns the Seq of the last envelope returned by Next, or the
// starting position when nothing has been read yet.
func (r *LogReader) Position() uint64 { return r.position }
