package session

// User-visible status strings surfaced over IPC.
const (
	StatusIdle         = "waiting for camera"
	StatusListening    = "listening"
	StatusRecording    = "recording"
	StatusSelectFolder = "select an output folder first (heycam setup <dir>)"
	StatusPermission   = "output folder permission lost; run heycam setup again"
	StatusVoiceDown    = "voice recognition stopped; run heycam voice to restart"
)
