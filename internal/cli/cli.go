package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandStatus  Command = "status"
	CommandRecord  Command = "record"
	CommandStop    Command = "stop"
	CommandVoice   Command = "voice"
	CommandSetup   Command = "setup"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandStatus:  {},
	CommandRecord:  {},
	CommandStop:    {},
	CommandVoice:   {},
	CommandSetup:   {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command  Command
	SetupDir string
	ShowHelp bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			if cmd == CommandSetup {
				i++
				if i >= len(args) {
					return Parsed{}, errors.New("setup requires an output directory")
				}
				parsed.SetupDir = args[i]
			}

			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", cmd)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s <command>

Commands:
  run          Start the recording session daemon
  status       Print current session state
  record       Start the countdown and record (bypasses voice trigger)
  stop         Stop the active recording and save it
  voice        Restart the voice recognition channel
  setup DIR    Select and persist the output folder for recordings
  doctor       Run configuration and environment checks
  version      Print version information
  help         Show this help

Flags:
  -h, --help   Show help
  --version    Show version

Configuration is read from HEYCAM_* environment variables; see doctor
output for the effective values.
`, binaryName)
}
