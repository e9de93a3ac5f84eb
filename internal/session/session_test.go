package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mhutchens/heycam/internal/fsm"
	"github.com/mhutchens/heycam/internal/ipc"
	"github.com/stretchr/testify/require"
)

type cueLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *cueLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *cueLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

type fakeFeedback struct{ log *cueLog }

func (f fakeFeedback) Speak(text string) { f.log.add("speak:" + text) }

func (f fakeFeedback) Tone(hz float64, _ time.Duration) { f.log.add(fmt.Sprintf("tone:%.0f", hz)) }

type fakeRecorder struct {
	log *cueLog

	mu         sync.Mutex
	sink       RecorderSink
	startCalls int
	stopCalls  int
	startErr   error

	// holdCompletion suppresses the stop-completion callback from Stop so
	// tests can deliver it later via complete.
	holdCompletion bool
}

func (r *fakeRecorder) Start(_ context.Context, sink RecorderSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.startCalls++
	r.sink = sink
	if r.log != nil {
		r.log.add("recorder:start")
	}
	return nil
}

func (r *fakeRecorder) Stop(context.Context) error {
	r.mu.Lock()
	sink := r.sink
	hold := r.holdCompletion
	r.stopCalls++
	r.mu.Unlock()
	if sink != nil && !hold {
		sink.RecorderStopped(nil)
	}
	return nil
}

func (r *fakeRecorder) complete(err error) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink.RecorderStopped(err)
	}
}

func (r *fakeRecorder) data(chunk []byte) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	sink.RecorderData(chunk)
}

func (r *fakeRecorder) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls, r.stopCalls
}

type fakeSaver struct {
	mu    sync.Mutex
	calls int
	got   [][][]byte
	err   error
}

func (s *fakeSaver) Save(_ context.Context, chunks [][]byte) (SavedRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	owned := make([][]byte, len(chunks))
	copy(owned, chunks)
	s.got = append(s.got, owned)
	if s.err != nil {
		return SavedRecording{}, s.err
	}
	var total int64
	for _, c := range chunks {
		total += int64(len(c))
	}
	return SavedRecording{Path: "/out/recording-test.webm", Bytes: total, Chunks: len(chunks)}, nil
}

func (s *fakeSaver) saveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSaver) lastChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) == 0 {
		return nil
	}
	return s.got[len(s.got)-1]
}

type fakeVoice struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (v *fakeVoice) Start(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

func (v *fakeVoice) startCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type harness struct {
	ctrl     *Controller
	voice    *fakeVoice
	recorder *fakeRecorder
	saver    *fakeSaver
	log      *cueLog
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	log := &cueLog{}
	voice := &fakeVoice{}
	recorder := &fakeRecorder{log: log}
	saver := &fakeSaver{}

	opts := Options{
		Voice:             voice,
		NewRecorder:       func() Recorder { return recorder },
		Saver:             saver,
		Feedback:          fakeFeedback{log: log},
		Grants:            GrantFunc(func(context.Context) bool { return true }),
		StartPhrase:       "start action",
		StopPhrase:        "thank you",
		CountdownSeconds:  3,
		TickInterval:      2 * time.Millisecond,
		StatusRevertDelay: 50 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}

	ctrl := NewController(nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{ctrl: ctrl, voice: voice, recorder: recorder, saver: saver, log: log}
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.State() == want
	}, time.Second, time.Millisecond, "waiting for state %s", want)
}

func waitForStatus(t *testing.T, ctrl *Controller, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.Status() == want
	}, time.Second, time.Millisecond, "waiting for status %q", want)
}

func TestVoiceTriggeredLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("Please Start Action Now")
	waitForState(t, h.ctrl, fsm.StateRecording)

	h.recorder.data([]byte("first"))
	h.recorder.data([]byte("second"))
	h.recorder.data(nil) // empty segments are dropped

	h.ctrl.VoiceResult("thank you so much")
	waitForState(t, h.ctrl, fsm.StateListening)

	require.Eventually(t, func() bool { return h.saver.saveCalls() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, h.saver.lastChunks())

	starts, stops := h.recorder.counts()
	require.Equal(t, 1, starts)
	require.Equal(t, 1, stops)

	waitForStatus(t, h.ctrl, "saved recording-test.webm")
	waitForStatus(t, h.ctrl, StatusListening)
	require.False(t, h.ctrl.VoiceDown())
}

func TestCountdownCueOrder(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)

	entries := h.log.snapshot()
	require.Equal(t, []string{
		"speak:3",
		"speak:2",
		"speak:1",
		fmt.Sprintf("tone:%d", goCueHz),
		"recorder:start",
	}, entries[:5])
}

func TestStartTriggerIgnoredWhileCountdownAndRecording(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	h.ctrl.VoiceResult("start action")
	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)

	h.ctrl.VoiceResult("start action")
	h.ctrl.VoiceResult("i said start action again")
	require.Equal(t, fsm.StateRecording, h.ctrl.State())

	starts, _ := h.recorder.counts()
	require.Equal(t, 1, starts)
}

func TestStopIgnoredWhileNotRecording(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("thank you")
	h.ctrl.VoiceResult("thank you very much")

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "cannot stop from state listening")

	_, stops := h.recorder.counts()
	require.Equal(t, 0, stops)
	require.Equal(t, 0, h.saver.saveCalls())
}

func TestRecordRejectedWithoutGrant(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.Grants = GrantFunc(func(context.Context) bool { return false })
	})

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "record"})
	require.True(t, resp.OK)

	waitForStatus(t, h.ctrl, StatusSelectFolder)
	require.Equal(t, fsm.StateListening, h.ctrl.State())

	starts, _ := h.recorder.counts()
	require.Equal(t, 0, starts)
}

func TestRecordRejectedBeforeStreamReady(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "record"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "camera stream not ready")
}

func TestSaveRunsExactlyOncePerStop(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)

	h.ctrl.VoiceResult("thank you")
	waitForState(t, h.ctrl, fsm.StateListening)
	require.Eventually(t, func() bool { return h.saver.saveCalls() == 1 }, time.Second, time.Millisecond)

	// A duplicate stop-completion callback must not trigger a second save.
	h.recorder.complete(nil)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, h.saver.saveCalls())
}

func TestChunksClearedBetweenRecordings(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	h.recorder.data([]byte("old"))
	h.ctrl.VoiceResult("thank you")
	waitForState(t, h.ctrl, fsm.StateListening)
	require.Eventually(t, func() bool { return h.saver.saveCalls() == 1 }, time.Second, time.Millisecond)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	h.recorder.data([]byte("new"))
	h.ctrl.VoiceResult("thank you")
	require.Eventually(t, func() bool { return h.saver.saveCalls() == 2 }, time.Second, time.Millisecond)

	require.Equal(t, [][]byte{[]byte("new")}, h.saver.lastChunks())
}

func TestEmptyRecordingStillSaves(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	h.ctrl.VoiceResult("thank you")

	require.Eventually(t, func() bool { return h.saver.saveCalls() == 1 }, time.Second, time.Millisecond)
	require.Empty(t, h.saver.lastChunks())
}

func TestSavePermissionLost(t *testing.T) {
	h := newHarness(t, nil)
	h.saver.err = ErrPermissionLost

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	h.ctrl.VoiceResult("thank you")

	waitForStatus(t, h.ctrl, StatusPermission)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
}

func TestSaveFailureLeavesSessionListening(t *testing.T) {
	h := newHarness(t, nil)
	h.saver.err = errors.New("disk full")

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	h.ctrl.VoiceResult("thank you")

	require.Eventually(t, func() bool {
		return h.ctrl.Status() == "save failed: disk full"
	}, time.Second, time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())

	// The next recording starts from a clean chunk sequence.
	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
}

func TestVoiceTerminateAutoRestart(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)
	require.Equal(t, 1, h.voice.startCalls())

	h.ctrl.VoiceTerminated()
	require.Eventually(t, func() bool { return h.voice.startCalls() == 2 }, time.Second, time.Millisecond)
	require.False(t, h.ctrl.VoiceDown())
}

func TestVoiceErrorThenTerminateManualRecovery(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.ManualRecovery = true
	})

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)
	require.Equal(t, 1, h.voice.startCalls())

	h.ctrl.VoiceError("no-speech")
	h.ctrl.VoiceTerminated()
	require.Eventually(t, func() bool { return h.ctrl.VoiceDown() }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, h.voice.startCalls())

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "voice"})
	require.True(t, resp.OK)
	require.Eventually(t, func() bool { return h.voice.startCalls() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !h.ctrl.VoiceDown() }, time.Second, time.Millisecond)
}

func TestVoiceTerminateWhileRecordingNoRestart(t *testing.T) {
	h := newHarness(t, nil)

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)

	h.ctrl.VoiceTerminated()
	require.Eventually(t, func() bool { return h.ctrl.VoiceDown() }, time.Second, time.Millisecond)
	require.Equal(t, 1, h.voice.startCalls())
	require.Equal(t, fsm.StateRecording, h.ctrl.State())
}

func TestVoiceUnsupported(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.Voice = &fakeVoice{err: ErrVoiceUnsupported}
	})

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "voice"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "voice recognition unsupported")

	// Manual recording still works without an engine.
	record := h.ctrl.Handle(context.Background(), ipc.Request{Command: "record"})
	require.True(t, record.OK)
	waitForState(t, h.ctrl, fsm.StateRecording)
}

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Equal(t, StatusIdle, status.Status)

	unknown := h.ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestLateStopCompletionNeverCrossesRecordings(t *testing.T) {
	var mu sync.Mutex
	var recorders []*fakeRecorder

	h := newHarness(t, func(opts *Options) {
		opts.NewRecorder = func() Recorder {
			mu.Lock()
			defer mu.Unlock()
			r := &fakeRecorder{holdCompletion: true}
			recorders = append(recorders, r)
			return r
		}
	})
	rec := func(i int) *fakeRecorder {
		mu.Lock()
		defer mu.Unlock()
		return recorders[i]
	}

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	rec(0).data([]byte("old"))

	// Stop the first recording; its completion is still in flight.
	h.ctrl.VoiceResult("thank you")
	waitForState(t, h.ctrl, fsm.StateListening)
	require.Equal(t, 0, h.saver.saveCalls())

	// A new recording must not arm while the completion is pending.
	h.ctrl.VoiceResult("start action")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
	mu.Lock()
	require.Len(t, recorders, 1)
	mu.Unlock()

	rec(0).complete(nil)
	require.Eventually(t, func() bool { return h.saver.saveCalls() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, [][]byte{[]byte("old")}, h.saver.lastChunks())

	// Second recording; a stale completion from the first recorder must not
	// consume its chunks or flip its state.
	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateRecording)
	rec(1).data([]byte("new"))

	rec(0).complete(nil)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, h.saver.saveCalls())
	require.Equal(t, fsm.StateRecording, h.ctrl.State())

	h.ctrl.VoiceResult("thank you")
	rec(1).complete(nil)
	require.Eventually(t, func() bool { return h.saver.saveCalls() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, [][]byte{[]byte("new")}, h.saver.lastChunks())
}

func TestStopPhraseDuringCountdownIgnored(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.TickInterval = 100 * time.Millisecond
	})

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	waitForState(t, h.ctrl, fsm.StateCountdown)

	h.ctrl.VoiceResult("thank you")
	h.ctrl.VoiceResult("no really thank you")
	require.Equal(t, fsm.StateCountdown, h.ctrl.State())

	// The countdown runs to completion regardless.
	waitForState(t, h.ctrl, fsm.StateRecording)
	_, stops := h.recorder.counts()
	require.Equal(t, 0, stops)
	require.Equal(t, 0, h.saver.saveCalls())
}

func TestStaleTickDiscardedAfterPhaseChange(t *testing.T) {
	recorder := &fakeRecorder{}
	ctrl := NewController(nil, Options{
		NewRecorder:      func() Recorder { return recorder },
		Grants:           GrantFunc(func(context.Context) bool { return true }),
		StartPhrase:      "start action",
		StopPhrase:       "thank you",
		CountdownSeconds: 1,
		TickInterval:     time.Hour,
	})
	ctx := context.Background()

	ctrl.handleStreamReady()
	ctrl.beginCountdown(ctx)
	require.Equal(t, fsm.StateCountdown, ctrl.State())
	require.NotNil(t, ctrl.tickC)

	// The phase leaves countdown before the pending tick is delivered.
	require.NoError(t, ctrl.transition(fsm.EventAbort))
	ctrl.handleTick(ctx)

	require.Equal(t, fsm.StateListening, ctrl.State())
	require.Nil(t, ctrl.tickC)
	starts, _ := recorder.counts()
	require.Equal(t, 0, starts)
}

func TestRecorderStartFailureReturnsToListening(t *testing.T) {
	h := newHarness(t, nil)
	h.recorder.startErr = errors.New("camera busy")

	h.ctrl.StreamReady()
	waitForState(t, h.ctrl, fsm.StateListening)

	h.ctrl.VoiceResult("start action")
	require.Eventually(t, func() bool {
		return h.ctrl.Status() == "recording failed to start: camera busy"
	}, time.Second, time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())
	require.Equal(t, 0, h.saver.saveCalls())
}
