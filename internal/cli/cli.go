// Package cli parses the voxcap command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandRecord  Command = "record"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandHistory Command = "history"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

const DefaultHistoryLimit = 20

var validCommands = map[Command]struct{}{
	CommandRecord:  {},
	CommandStop:    {},
	CommandCancel:  {},
	CommandStatus:  {},
	CommandDevices: {},
	CommandHistory: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	LogLevel   string
	Limit      int
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, Limit: DefaultHistoryLimit}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--log-level":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--log-level requires a level")
			}
			level := strings.ToLower(strings.TrimSpace(args[i]))
			switch level {
			case "debug", "info", "warn", "warning", "error":
			default:
				return Parsed{}, fmt.Errorf("invalid log level %q", args[i])
			}
			parsed.LogLevel = level
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

			rest := args[i+1:]
			if cmd == CommandHistory && len(rest) == 1 {
				limit, err := strconv.Atoi(rest[0])
				if err != nil || limit <= 0 {
					return Parsed{}, fmt.Errorf("history limit must be a positive integer, got %q", rest[0])
				}
				parsed.Limit = limit
				return parsed, nil
			}
			if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--log-level LEVEL] <command>

Commands:
  record    Record a voice sample and save it to the output dir
  stop      Finish the active recording (after the minimum duration)
  cancel    Abandon the active recording without saving
  status    Print the current session state
  devices   List available input devices
  history [N]  Show the last N recordings (default %[2]d)
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH       Config file path (default: $XDG_CONFIG_HOME/voxcap/config.jsonc)
  --log-level LEVEL   debug, info, warn or error (default: info)
  -h, --help          Show help
  --version           Show version
`, binaryName, DefaultHistoryLimit)
}
