// Package writer persists completed recordings into the granted output
// directory.
package writer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mhutchens/heycam/internal/grant"
	"github.com/mhutchens/heycam/internal/session"
)

const (
	filenamePrefix = "recording-"
	filenameExt    = ".webm"
	// Colons are not portable in filenames, so the stamp uses dashes.
	stampLayout = "2006-01-02T15-04-05"
)

// Writer saves recordings under the persisted folder grant. It implements
// both session.Saver and session.GrantSource.
type Writer struct {
	store  *grant.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store *grant.Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Writer{store: store, logger: logger, now: time.Now}
}

// Ready reports whether an output folder grant exists. It does not probe
// access; Save re-verifies immediately before writing.
func (w *Writer) Ready(ctx context.Context) bool {
	_, ok, err := w.store.Get(ctx)
	if err != nil {
		w.logger.Error("failed to read folder grant", "error", err)
		return false
	}
	return ok
}

// Save re-verifies the grant, then writes the chunk sequence to a new
// timestamped file. The verification result is never trusted from an
// earlier call; grants can be revoked out-of-band at any time.
func (w *Writer) Save(ctx context.Context, chunks [][]byte) (session.SavedRecording, error) {
	g, ok, err := w.store.Get(ctx)
	if err != nil {
		return session.SavedRecording{}, fmt.Errorf("read folder grant: %w", err)
	}
	if !ok {
		return session.SavedRecording{}, session.ErrNoGrant
	}

	status, err := w.store.Verify(ctx, g, grant.ModeReadWrite)
	if err != nil {
		w.logger.Warn("failed to record grant verification", "error", err)
	}
	if status != grant.StatusGranted {
		return session.SavedRecording{}, fmt.Errorf("verify %s: %w", g.Path, session.ErrPermissionLost)
	}

	name := filenamePrefix + w.now().UTC().Format(stampLayout) + filenameExt
	path := filepath.Join(g.Path, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return session.SavedRecording{}, fmt.Errorf("create %s: %w", path, err)
	}

	var written int64
	for _, chunk := range chunks {
		n, err := f.Write(chunk)
		written += int64(n)
		if err != nil {
			_ = f.Close()
			return session.SavedRecording{}, fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return session.SavedRecording{}, fmt.Errorf("close %s: %w", path, err)
	}

	w.logger.Info("recording saved",
		"path", path,
		"bytes", written,
		"chunks", len(chunks))

	return session.SavedRecording{Path: path, Bytes: written, Chunks: len(chunks)}, nil
}
