package session

import "context"

// RecorderSink receives asynchronous recorder callbacks. Data may keep
// arriving between a stop request and the stop-completion callback; the
// final buffered segment is usually delivered in that window.
type RecorderSink interface {
	RecorderData(chunk []byte)
	RecorderStopped(err error)
}

// Recorder abstracts one platform capture recorder instance. Instances are
// single-use: Start at most once, then Stop, then discard.
type Recorder interface {
	Start(context.Context, RecorderSink) error
	Stop(context.Context) error
}

// RecorderFactory produces a fresh recorder for each recording.
type RecorderFactory func() Recorder

// placeholderRecorder completes immediately without capturing anything.
// It keeps session flow alive in tests and fallback wiring.
type placeholderRecorder struct {
	sink RecorderSink
}

func (r *placeholderRecorder) Start(_ context.Context, sink RecorderSink) error {
	r.sink = sink
	return nil
}

func (r *placeholderRecorder) Stop(context.Context) error {
	if r.sink != nil {
		r.sink.RecorderStopped(nil)
	}
	return nil
}
