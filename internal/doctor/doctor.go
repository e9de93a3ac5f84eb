// Package doctor runs runtime readiness diagnostics for config, tools,
// capture devices, the speech engine, and the output folder grant.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/mhutchens/heycam/internal/capture"
	"github.com/mhutchens/heycam/internal/config"
	"github.com/mhutchens/heycam/internal/grant"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Config) Report {
	checks := []Check{}

	engineNote := "voice triggers disabled (no engine URL)"
	if strings.TrimSpace(cfg.Engine.URL) != "" {
		engineNote = fmt.Sprintf("engine %s", cfg.Engine.URL)
	}
	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("triggers %q/%q, %s", cfg.Trigger.Start, cfg.Trigger.Stop, engineNote),
	})

	checks = append(checks, checkBinary(cfg.Capture.FFmpeg, "recording encoder"))
	checks = append(checks, checkCommand(cfg.Feedback.SpeakArgv, "speak_cmd"))
	checks = append(checks, checkCaptureDevices(cfg.Capture))
	if strings.TrimSpace(cfg.Engine.URL) != "" {
		checks = append(checks, checkEngineReachable(cfg.Engine))
	}
	checks = append(checks, checkFolderGrant(cfg.Store))

	return Report{Checks: checks}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkCaptureDevices runs the live acquisition probe to surface device
// and permission issues before a session starts.
func checkCaptureDevices(cfg config.CaptureConfig) Check {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := capture.Acquire(ctx, capture.Constraints{
		VideoDevice: cfg.VideoDevice,
		AudioSource: cfg.AudioSource,
	})
	if err != nil {
		return Check{Name: "capture.devices", Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    "capture.devices",
		Pass:    true,
		Message: fmt.Sprintf("video %s, audio %q", stream.VideoDevice, stream.AudioSource),
	}
}

// checkEngineReachable probes the speech engine's TCP endpoint. A full
// websocket handshake is left to the session; reachability catches the
// common engine-not-running case.
func checkEngineReachable(cfg config.EngineConfig) Check {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Host == "" {
		return Check{Name: "engine.reach", Pass: false, Message: fmt.Sprintf("invalid engine URL %q", cfg.URL)}
	}

	host := parsed.Host
	if parsed.Port() == "" {
		port := "80"
		if parsed.Scheme == "wss" {
			port = "443"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return Check{Name: "engine.reach", Pass: false, Message: fmt.Sprintf("dial %s: %v", host, err)}
	}
	_ = conn.Close()
	return Check{Name: "engine.reach", Pass: true, Message: fmt.Sprintf("reachable at %s", host)}
}

// checkFolderGrant verifies a persisted grant exists and still carries
// live write access.
func checkFolderGrant(cfg config.StoreConfig) Check {
	store, err := grant.Open(cfg.DBPath)
	if err != nil {
		return Check{Name: "grants.folder", Pass: false, Message: fmt.Sprintf("open grant store: %v", err)}
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	g, ok, err := store.Get(ctx)
	if err != nil {
		return Check{Name: "grants.folder", Pass: false, Message: fmt.Sprintf("read grant: %v", err)}
	}
	if !ok {
		return Check{Name: "grants.folder", Pass: false, Message: "no output folder selected; run heycam setup <dir>"}
	}

	status, err := store.Verify(ctx, g, grant.ModeReadWrite)
	if err != nil {
		return Check{Name: "grants.folder", Pass: false, Message: fmt.Sprintf("verify grant: %v", err)}
	}
	if status != grant.StatusGranted {
		return Check{Name: "grants.folder", Pass: false, Message: fmt.Sprintf("write access to %s denied; run heycam setup again", g.Path)}
	}
	return Check{Name: "grants.folder", Pass: true, Message: fmt.Sprintf("writable %s", g.Path)}
}
