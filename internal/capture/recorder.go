package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mhutchens/heycam/internal/config"
	"github.com/mhutchens/heycam/internal/session"
)

// Recorder runs one ffmpeg process encoding the acquired stream to webm on
// stdout. Instances are single-use; the session creates a fresh one per
// recording.
type Recorder struct {
	cfg    config.CaptureConfig
	stream Stream

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool
	stopped bool
}

// NewRecorder builds a recorder bound to an acquired stream. It implements
// session.Recorder.
func NewRecorder(cfg config.CaptureConfig, stream Stream) *Recorder {
	return &Recorder{cfg: cfg, stream: stream}
}

// Start launches ffmpeg and begins delivering data segments to the sink.
// The stop-completion callback fires once the process exits.
func (r *Recorder) Start(ctx context.Context, sink session.RecorderSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("recorder already started")
	}

	cmd := exec.CommandContext(ctx, r.cfg.FFmpeg, recordArgs(r.cfg, r.stream)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create ffmpeg stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.started = true

	go func() {
		pump(stdout, r.cfg.ChunkSize, sink)
		waitErr := cmd.Wait()
		if waitErr != nil && !r.wasStopped() {
			waitErr = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
		} else {
			waitErr = nil
		}
		sink.RecorderStopped(waitErr)
	}()

	return nil
}

// Stop asks ffmpeg to finalize the container and exit. Idempotent; a stop
// before start is a no-op. Completion is reported asynchronously through
// the sink.
func (r *Recorder) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.stopped {
		return nil
	}
	r.stopped = true

	// 'q' on stdin is ffmpeg's clean-quit command; it flushes and closes
	// the webm container instead of truncating it.
	if _, err := io.WriteString(r.stdin, "q"); err != nil {
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Signal(os.Interrupt)
		}
	}
	_ = r.stdin.Close()
	return nil
}

func (r *Recorder) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// pump delivers encoder output to the sink in arrival order. The sink owns
// copying; the buffer is reused across reads.
func pump(rd io.Reader, chunkSize int, sink session.RecorderSink) {
	if chunkSize < 256 {
		chunkSize = 32 * 1024
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			sink.RecorderData(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func recordArgs(cfg config.CaptureConfig, stream Stream) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-i", stream.VideoDevice,
		"-f", "pulse",
		"-i", stream.AudioSource,
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-b:v", "2M",
		"-c:a", "libopus",
		"-f", "webm",
		"-",
	}
}
