package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mhutchens/heycam/internal/capture"
	"github.com/mhutchens/heycam/internal/cli"
	"github.com/mhutchens/heycam/internal/config"
	"github.com/mhutchens/heycam/internal/doctor"
	"github.com/mhutchens/heycam/internal/feedback"
	"github.com/mhutchens/heycam/internal/grant"
	"github.com/mhutchens/heycam/internal/ipc"
	"github.com/mhutchens/heycam/internal/logging"
	"github.com/mhutchens/heycam/internal/session"
	"github.com/mhutchens/heycam/internal/version"
	"github.com/mhutchens/heycam/internal/voice"
	"github.com/mhutchens/heycam/internal/writer"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("heycam"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("heycam"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}

	logger.Info("command start",
		"command", parsed.Command,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfg)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandRecord:
		return r.forwardOrFail(ctx, ipc.CommandRecord)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandVoice:
		return r.forwardOrFail(ctx, ipc.CommandVoice)
	case cli.CommandSetup:
		return r.commandSetup(ctx, cfg, parsed.SetupDir)
	case cli.CommandRun:
		return r.commandRun(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		if resp.Status != "" && resp.Status != resp.State {
			fmt.Fprintln(r.Stdout, resp.Status)
		}
		if resp.VoiceDown {
			fmt.Fprintln(r.Stdout, session.StatusVoiceDown)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active heycam session; start one with 'heycam run'\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandSetup verifies write access to dir and persists it as the output
// folder grant. Verification happens before persisting so a bad directory
// never supersedes a working grant.
func (r Runner) commandSetup(ctx context.Context, cfg config.Config, dir string) int {
	abs, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: resolve %q: %v\n", dir, err)
		return 1
	}

	store, err := grant.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	status, err := store.Verify(ctx, grant.Grant{Path: abs}, grant.ModeReadWrite)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: verify %s: %v\n", abs, err)
		return 1
	}
	if status != grant.StatusGranted {
		fmt.Fprintf(r.Stderr, "error: %s is not a writable directory\n", abs)
		return 1
	}

	g, err := store.Set(ctx, abs, grant.ModeReadWrite)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(r.Stdout, "recordings will be saved to %s\n", g.Path)
	return 0
}

// voiceRelay breaks the construction cycle between the voice supervisor
// (which needs an event sink) and the session controller (which needs a
// voice source). The sink is bound before the session loop starts.
type voiceRelay struct {
	sink session.VoiceSink
}

func (r *voiceRelay) VoiceResult(transcript string) { r.sink.VoiceResult(transcript) }
func (r *voiceRelay) VoiceError(code string)        { r.sink.VoiceError(code) }
func (r *voiceRelay) VoiceTerminated()              { r.sink.VoiceTerminated() }

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: heycam session already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	store, err := grant.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("open grant store failed", "error", err.Error())
		return 1
	}
	defer store.Close()

	stream, err := capture.Acquire(ctx, capture.Constraints{
		VideoDevice: cfg.Capture.VideoDevice,
		AudioSource: cfg.Capture.AudioSource,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		if errors.Is(err, capture.ErrNotAllowed) {
			fmt.Fprintln(r.Stderr, "grant camera and microphone access, then run heycam again")
		}
		logger.Error("acquire capture stream failed", "error", err.Error())
		return 1
	}

	saver := writer.New(store, logger)
	cues := feedback.New(cfg.Feedback, logger)

	relay := &voiceRelay{}
	supervisor := voice.NewSupervisor(cfg.Engine, relay, logger)

	controller := session.NewController(logger, session.Options{
		Voice: supervisor,
		NewRecorder: func() session.Recorder {
			return capture.NewRecorder(cfg.Capture, stream)
		},
		Saver:             saver,
		Feedback:          cues,
		Grants:            saver,
		StartPhrase:       cfg.Trigger.Start,
		StopPhrase:        cfg.Trigger.Stop,
		CountdownSeconds:  cfg.Countdown.Seconds,
		StatusRevertDelay: time.Duration(cfg.Feedback.StatusRevertMS) * time.Millisecond,
		ManualRecovery:    voice.ClassifyRecovery(cfg.Platform.Hint) == voice.RecoveryManual,
	})
	relay.sink = controller

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	controller.StreamReady()
	runErr := controller.Run(ctx)

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	return 0
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
