// Package session coordinates the hands-free recording lifecycle: voice
// triggers, the countdown, recorder ownership, and the save pipeline. All
// session state is mutated on a single event loop; voice, timer, and
// recorder callbacks only post events into it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mhutchens/heycam/internal/fsm"
	"github.com/mhutchens/heycam/internal/ipc"
)

type command int

const (
	commandRecord command = iota + 1
	commandStop
	commandVoice
)

type event interface{ isEvent() }

type streamReadyEvent struct{}
type voiceResultEvent struct{ transcript string }
type voiceErrorEvent struct{ code string }
type voiceTerminatedEvent struct{}
type commandEvent struct{ cmd command }
type statusRevertEvent struct{}

// Recorder events carry the instance they came from: a superseded recorder
// can deliver trailing callbacks after a new recording has begun, and those
// must never be attributed to the new one.
type recorderDataEvent struct {
	rec   Recorder
	chunk []byte
}

type recorderStoppedEvent struct {
	rec Recorder
	err error
}

func (streamReadyEvent) isEvent()     {}
func (voiceResultEvent) isEvent()     {}
func (voiceErrorEvent) isEvent()      {}
func (voiceTerminatedEvent) isEvent() {}
func (recorderDataEvent) isEvent()    {}
func (recorderStoppedEvent) isEvent() {}
func (commandEvent) isEvent()         {}
func (statusRevertEvent) isEvent()    {}

// Cue tones for recording start/stop and save confirmation.
const (
	goCueHz       = 880
	goCueDuration = 150 * time.Millisecond

	stopCueHz       = 620
	stopCueDuration = 120 * time.Millisecond

	savedCueHz       = 988
	savedCueDuration = 90 * time.Millisecond
)

// Options wires collaborators and tuning knobs into a controller.
type Options struct {
	Voice       VoiceSource
	NewRecorder RecorderFactory
	Saver       Saver
	Feedback    Feedback
	Grants      GrantSource

	StartPhrase string
	StopPhrase  string

	CountdownSeconds int
	TickInterval     time.Duration

	StatusRevertDelay time.Duration

	// ManualRecovery selects the voice-channel recovery policy. It is an
	// injected classification, decided once at construction, never sniffed
	// at event-handling time.
	ManualRecovery bool
}

// Controller owns the singleton recording session and its event loop.
type Controller struct {
	logger      *slog.Logger
	voice       VoiceSource
	newRecorder RecorderFactory
	saver       Saver
	feedback    Feedback
	grants      GrantSource

	startPhrase      string
	stopPhrase       string
	countdownSeconds int
	tickInterval     time.Duration
	revertDelay      time.Duration
	manualRecovery   bool

	sessionID string
	events    chan event

	mu            sync.RWMutex
	state         fsm.State
	voiceDown     bool
	voiceDisabled bool
	status        string

	// Loop-owned; only Run's goroutine touches these.
	remaining int
	ticker    *time.Ticker
	tickC     <-chan time.Time
	active    Recorder
	chunks    [][]byte
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Voice == nil {
		opts.Voice = noopVoice{}
	}
	if opts.NewRecorder == nil {
		opts.NewRecorder = func() Recorder { return &placeholderRecorder{} }
	}
	if opts.Saver == nil {
		opts.Saver = SaveFunc(func(context.Context, [][]byte) (SavedRecording, error) {
			return SavedRecording{}, ErrNoGrant
		})
	}
	if opts.Feedback == nil {
		opts.Feedback = noopFeedback{}
	}
	if opts.Grants == nil {
		opts.Grants = GrantFunc(func(context.Context) bool { return false })
	}
	if opts.CountdownSeconds <= 0 {
		opts.CountdownSeconds = 3
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	sessionID := uuid.NewString()

	return &Controller{
		logger:           logger.With("session_id", sessionID),
		voice:            opts.Voice,
		newRecorder:      opts.NewRecorder,
		saver:            opts.Saver,
		feedback:         opts.Feedback,
		grants:           opts.Grants,
		startPhrase:      strings.ToLower(strings.TrimSpace(opts.StartPhrase)),
		stopPhrase:       strings.ToLower(strings.TrimSpace(opts.StopPhrase)),
		countdownSeconds: opts.CountdownSeconds,
		tickInterval:     opts.TickInterval,
		revertDelay:      opts.StatusRevertDelay,
		manualRecovery:   opts.ManualRecovery,
		sessionID:        sessionID,
		events:           make(chan event, 128),
		state:            fsm.StateIdle,
		status:           StatusIdle,
	}
}

// State returns the current session phase snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the current user-visible status string.
func (c *Controller) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// VoiceDown reports whether the voice channel is down without a pending
// automatic restart.
func (c *Controller) VoiceDown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voiceDown
}

// StreamReady signals that the capture stream has been acquired.
func (c *Controller) StreamReady() {
	c.post(streamReadyEvent{})
}

// VoiceResult implements VoiceSink.
func (c *Controller) VoiceResult(transcript string) {
	c.post(voiceResultEvent{transcript: transcript})
}

// VoiceError implements VoiceSink.
func (c *Controller) VoiceError(code string) {
	c.post(voiceErrorEvent{code: code})
}

// VoiceTerminated implements VoiceSink.
func (c *Controller) VoiceTerminated() {
	c.post(voiceTerminatedEvent{})
}

// recorderSink is the per-recorder callback adapter. Each recording gets
// its own sink bound to its recorder instance, so events are attributable.
type recorderSink struct {
	ctrl *Controller
	rec  Recorder
}

func (s *recorderSink) RecorderData(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	owned := make([]byte, len(chunk))
	copy(owned, chunk)
	s.ctrl.post(recorderDataEvent{rec: s.rec, chunk: owned})
}

func (s *recorderSink) RecorderStopped(err error) {
	s.ctrl.post(recorderStoppedEvent{rec: s.rec, err: err})
}

func (c *Controller) post(e event) {
	c.events <- e
}

// Run executes the session event loop until context cancellation.
func (c *Controller) Run(ctx context.Context) error {
	c.startVoice(ctx, true)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.tickC:
			c.handleTick(ctx)
		case e := <-c.events:
			c.dispatch(ctx, e)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, e event) {
	switch ev := e.(type) {
	case streamReadyEvent:
		c.handleStreamReady()
	case voiceResultEvent:
		c.handleVoiceResult(ctx, ev.transcript)
	case voiceErrorEvent:
		c.handleVoiceError(ev.code)
	case voiceTerminatedEvent:
		c.handleVoiceTerminated(ctx)
	case recorderDataEvent:
		c.handleRecorderData(ev)
	case recorderStoppedEvent:
		c.handleRecorderStopped(ctx, ev)
	case commandEvent:
		c.handleCommand(ctx, ev.cmd)
	case statusRevertEvent:
		c.handleStatusRevert()
	}
}

func (c *Controller) handleStreamReady() {
	if err := c.transition(fsm.EventStreamReady); err != nil {
		c.logger.Debug("stream ready ignored", "error", err.Error())
		return
	}
	c.setStatus(StatusListening)
	c.logger.Info("session listening")
}

// handleVoiceResult matches the transcript against the two trigger phrases
// by case-insensitive substring containment. A start phrase heard while not
// listening, or a stop phrase heard while not recording, is ignored.
func (c *Controller) handleVoiceResult(ctx context.Context, transcript string) {
	lower := strings.ToLower(transcript)

	if strings.Contains(lower, c.startPhrase) && c.state != fsm.StateRecording {
		if c.state != fsm.StateListening {
			return
		}
		c.logger.Info("start trigger heard", "transcript_length", len(transcript))
		c.beginCountdown(ctx)
		return
	}

	if strings.Contains(lower, c.stopPhrase) && c.state == fsm.StateRecording {
		c.logger.Info("stop trigger heard", "transcript_length", len(transcript))
		c.stopRecording(ctx)
	}
}

// beginCountdown arms the pre-recording countdown. Rejected without a grant:
// the user is routed back to setup instead of counting down.
func (c *Controller) beginCountdown(ctx context.Context) {
	if c.state != fsm.StateListening {
		return
	}
	if c.active != nil {
		// The previous recording has not delivered its stop-completion yet;
		// arming now would let its trailing events bleed into the new one.
		c.logger.Warn("recording rejected: previous recording still finalizing")
		return
	}
	if !c.grants.Ready(ctx) {
		c.setStatus(StatusSelectFolder)
		c.logger.Warn("recording rejected: no output folder grant")
		return
	}
	if err := c.transition(fsm.EventArm); err != nil {
		c.logger.Debug("arm rejected", "error", err.Error())
		return
	}

	c.remaining = c.countdownSeconds
	c.feedback.Speak(strconv.Itoa(c.remaining))
	c.setStatus("starting in " + strconv.Itoa(c.remaining))
	c.ticker = time.NewTicker(c.tickInterval)
	c.tickC = c.ticker.C
}

// handleTick advances the countdown. Ticks scheduled before a state change
// are discarded: the phase is re-checked on every wakeup.
func (c *Controller) handleTick(ctx context.Context) {
	if c.state != fsm.StateCountdown {
		c.stopTicker()
		return
	}

	c.remaining--
	if c.remaining > 0 {
		c.feedback.Speak(strconv.Itoa(c.remaining))
		c.setStatus("starting in " + strconv.Itoa(c.remaining))
		return
	}

	c.stopTicker()
	c.feedback.Tone(goCueHz, goCueDuration)

	c.chunks = nil
	rec := c.newRecorder()
	if err := rec.Start(ctx, &recorderSink{ctrl: c, rec: rec}); err != nil {
		_ = c.transition(fsm.EventAbort)
		c.setStatus("recording failed to start: " + err.Error())
		c.logger.Error("start recorder failed", "error", err.Error())
		return
	}

	c.active = rec
	if err := c.transition(fsm.EventGo); err != nil {
		c.logger.Error("go transition failed", "error", err.Error())
	}
	c.setStatus(StatusRecording)
	c.logger.Info("recording started")
}

// stopRecording is the single stop routine shared by the voice trigger and
// the manual command. A stop request while not recording is a no-op.
func (c *Controller) stopRecording(ctx context.Context) {
	if c.state != fsm.StateRecording || c.active == nil {
		return
	}

	c.feedback.Tone(stopCueHz, stopCueDuration)
	if err := c.active.Stop(ctx); err != nil {
		c.logger.Warn("stop recorder", "error", err.Error())
	}
	if err := c.transition(fsm.EventStop); err != nil {
		c.logger.Error("stop transition failed", "error", err.Error())
	}
	// The recorder handle stays set until the stop-completion callback so
	// trailing data segments still land in the chunk sequence.
	c.setStatus("saving recording")
	c.logger.Info("recording stopping")
}

func (c *Controller) handleRecorderData(ev recorderDataEvent) {
	if c.active == nil || ev.rec != c.active {
		return
	}
	c.chunks = append(c.chunks, ev.chunk)
}

// handleRecorderStopped runs the save pipeline exactly once per completed
// recording, consuming the accumulated chunk sequence. Completions from any
// recorder other than the active one are discarded.
func (c *Controller) handleRecorderStopped(ctx context.Context, ev recorderStoppedEvent) {
	if c.active == nil || ev.rec != c.active {
		return
	}
	recErr := ev.err
	c.active = nil

	chunks := c.chunks
	c.chunks = nil

	if c.state == fsm.StateRecording {
		// Recorder died without a stop request.
		if err := c.transition(fsm.EventStop); err != nil {
			c.logger.Error("stop transition failed", "error", err.Error())
		}
	}
	if recErr != nil {
		c.logger.Warn("recorder exited with error", "error", recErr.Error())
	}

	saved, err := c.saver.Save(ctx, chunks)
	if err != nil {
		switch {
		case errors.Is(err, ErrPermissionLost):
			c.setStatus(StatusPermission)
		case errors.Is(err, ErrNoGrant):
			c.setStatus(StatusSelectFolder)
		default:
			c.setStatus("save failed: " + err.Error())
		}
		c.logger.Error("save recording failed", "error", err.Error(), "chunks", len(chunks))
		return
	}

	c.feedback.Tone(savedCueHz, savedCueDuration)
	c.setStatus("saved " + filepath.Base(saved.Path))
	c.logger.Info("recording saved",
		"path", saved.Path,
		"bytes", saved.Bytes,
		"chunks", saved.Chunks,
	)

	if c.revertDelay > 0 {
		time.AfterFunc(c.revertDelay, func() { c.post(statusRevertEvent{}) })
	}
}

func (c *Controller) handleStatusRevert() {
	if c.state != fsm.StateListening {
		return
	}
	if !strings.HasPrefix(c.Status(), "saved ") {
		return
	}
	c.setStatus(StatusListening)
}

// handleVoiceError applies the error half of the recovery policy: manual
// recovery surfaces the restart affordance immediately, automatic recovery
// swallows the error and lets the terminate handler restart.
func (c *Controller) handleVoiceError(code string) {
	c.logger.Warn("voice channel error", "code", code)
	if c.manualRecovery {
		c.setVoiceDown(true)
	}
}

func (c *Controller) handleVoiceTerminated(ctx context.Context) {
	if c.isVoiceDisabled() {
		return
	}
	c.logger.Info("voice channel terminated")

	if c.state == fsm.StateRecording {
		// No restart mid-recording; manual recovery stays available.
		c.setVoiceDown(true)
		return
	}
	if c.manualRecovery {
		c.setVoiceDown(true)
		return
	}
	c.startVoice(ctx, false)
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd {
	case commandRecord:
		c.beginCountdown(ctx)
	case commandStop:
		c.stopRecording(ctx)
	case commandVoice:
		c.startVoice(ctx, false)
	}
}

// startVoice starts (or restarts) the voice channel and updates the
// voice-down flag to match the outcome.
func (c *Controller) startVoice(ctx context.Context, initial bool) {
	err := c.voice.Start(ctx)
	if err == nil {
		c.setVoiceDown(false)
		return
	}

	if errors.Is(err, ErrVoiceUnsupported) {
		c.setVoiceDisabled()
		c.logger.Warn("voice recognition disabled", "error", err.Error())
		return
	}

	level := c.logger.Warn
	if initial {
		level = c.logger.Error
	}
	level("voice channel start failed", "error", err.Error())
	c.setVoiceDown(true)
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{
			OK:        true,
			State:     string(c.State()),
			Status:    c.Status(),
			VoiceDown: c.VoiceDown(),
		}
	case ipc.CommandRecord:
		return c.requestRecord()
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandVoice:
		return c.requestVoiceRestart()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestRecord enqueues a recording-start request. Requests while already
// counting down or recording are idempotent no-ops.
func (c *Controller) requestRecord() ipc.Response {
	state := c.State()
	switch state {
	case fsm.StateIdle:
		return ipc.Response{OK: false, State: string(state), Error: "camera stream not ready"}
	case fsm.StateCountdown, fsm.StateRecording:
		return ipc.Response{OK: true, State: string(state), Message: "already recording"}
	}

	c.post(commandEvent{cmd: commandRecord})
	return ipc.Response{OK: true, State: string(state), Message: "recording requested"}
}

// requestStop enqueues a stop request when state permits it.
func (c *Controller) requestStop() ipc.Response {
	state := c.State()
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}

	c.post(commandEvent{cmd: commandStop})
	return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
}

// requestVoiceRestart enqueues a manual voice channel restart.
func (c *Controller) requestVoiceRestart() ipc.Response {
	if c.isVoiceDisabled() {
		return ipc.Response{OK: false, State: string(c.State()), Error: "voice recognition unsupported"}
	}

	c.post(commandEvent{cmd: commandVoice})
	return ipc.Response{OK: true, State: string(c.State()), Message: "voice restart requested"}
}

// shutdown stops loop-owned resources on context cancellation.
func (c *Controller) shutdown() {
	c.stopTicker()
	if c.active != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.active.Stop(stopCtx); err != nil {
			c.logger.Warn("stop recorder on shutdown", "error", err.Error())
		}
		c.active = nil
		c.chunks = nil
	}
	c.logger.Info("session closed")
}

func (c *Controller) stopTicker() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	c.tickC = nil
}

// transition applies one FSM event to the session phase.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *Controller) setVoiceDown(down bool) {
	c.mu.Lock()
	c.voiceDown = down
	c.mu.Unlock()
}

func (c *Controller) setVoiceDisabled() {
	c.mu.Lock()
	c.voiceDisabled = true
	c.mu.Unlock()
}

func (c *Controller) isVoiceDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voiceDisabled
}
