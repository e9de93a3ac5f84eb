package session

import (
	"context"
	"errors"
)

var (
	// ErrNoGrant indicates no output folder has been selected yet.
	ErrNoGrant = errors.New("no output folder selected; run setup first")
	// ErrPermissionLost indicates the persisted folder grant failed its
	// pre-write verification; grants can be revoked out-of-band.
	ErrPermissionLost = errors.New("output folder permission lost; run setup again")
)

// SavedRecording describes one persisted media artifact.
type SavedRecording struct {
	Path   string
	Bytes  int64
	Chunks int
}

// Saver persists the accumulated chunk sequence once per completed
// recording. It must re-verify folder access before writing.
type Saver interface {
	Save(context.Context, [][]byte) (SavedRecording, error)
}

// SaveFunc adapts a function to the Saver interface.
type SaveFunc func(context.Context, [][]byte) (SavedRecording, error)

func (f SaveFunc) Save(ctx context.Context, chunks [][]byte) (SavedRecording, error) {
	return f(ctx, chunks)
}

// GrantSource answers whether an output folder grant currently exists.
type GrantSource interface {
	Ready(context.Context) bool
}

// GrantFunc adapts a function to the GrantSource interface.
type GrantFunc func(context.Context) bool

func (f GrantFunc) Ready(ctx context.Context) bool { return f(ctx) }
