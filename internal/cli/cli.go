// Package cli parses murmur command lines.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandServe      Command = "serve"
	CommandStatus     Command = "status"
	CommandQuota      Command = "quota"
	CommandDevices    Command = "devices"
	CommandVoices     Command = "voices"
	CommandUpload     Command = "upload"
	CommandInfo       Command = "info"
	CommandDelete     Command = "delete"
	CommandTranscribe Command = "transcribe"
	CommandSpeak      Command = "speak"
	CommandChat       Command = "chat"
	CommandListen     Command = "listen"
	CommandStop       Command = "stop"
	CommandCancel     Command = "cancel"
	CommandConvert    Command = "convert"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// commandSpec bounds positional arguments and names the accepted options. Options mapped to
// true take a value; false marks a boolean switch.
type commandSpec struct {
	minArgs int
	maxArgs int // -1 joins everything into one argument
	options map[string]bool
}

var commands = map[Command]commandSpec{
	CommandServe:      {},
	CommandStatus:     {},
	CommandQuota:      {},
	CommandDevices:    {options: map[string]bool{"kind": true}},
	CommandVoices:     {},
	CommandUpload:     {minArgs: 1, maxArgs: 1},
	CommandInfo:       {minArgs: 1, maxArgs: 1},
	CommandDelete:     {minArgs: 1, maxArgs: 1},
	CommandTranscribe: {minArgs: 1, maxArgs: 1, options: map[string]bool{"online": false, "language": true}},
	CommandSpeak:      {minArgs: 1, maxArgs: -1, options: map[string]bool{"voice": true, "speed": true, "play": false, "out": true}},
	CommandChat:       {minArgs: 1, maxArgs: -1},
	CommandListen:     {options: map[string]bool{"max-seconds": true, "online": false}},
	CommandStop:       {},
	CommandCancel:     {},
	CommandConvert:    {minArgs: 1, maxArgs: 1, options: map[string]bool{"to": true, "rate": true}},
	CommandDoctor:     {options: map[string]bool{"tone": false}},
	CommandVersion:    {},
	CommandHelp:       {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Args       []string
	Options    map[string]string
}

// Flag reports whether a boolean option was given.
func (p Parsed) Flag(name string) bool {
	_, ok := p.Options[name]
	return ok
}

// Option returns the value of name, or fallback when absent.
func (p Parsed) Option(name string, fallback string) string {
	if v, ok := p.Options[name]; ok {
		return v
	}
	return fallback
}

// Float parses a numeric option. Absent options return fallback.
func (p Parsed) Float(name string, fallback float64) (float64, error) {
	v, ok := p.Options[name]
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s must be a number: %q", name, v)
	}
	return f, nil
}

// Int parses an integer option. Absent options return fallback.
func (p Parsed) Int(name string, fallback int) (int, error) {
	v, ok := p.Options[name]
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("--%s must be an integer: %q", name, v)
	}
	return n, nil
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
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			spec, ok := commands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandArgs(&parsed, spec, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandArgs(parsed *Parsed, spec commandSpec, rest []string) error {
	var positional []string
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "--" {
			positional = append(positional, rest[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "--") || len(arg) == 2 {
			positional = append(positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		takesValue, ok := spec.options[name]
		if !ok {
			if len(positional) == 0 && len(spec.options) == 0 && spec.minArgs == 0 {
				return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}
			return fmt.Errorf("unknown option for %s: --%s", parsed.Command, name)
		}
		switch {
		case takesValue && !hasValue:
			i++
			if i >= len(rest) {
				return fmt.Errorf("--%s requires a value", name)
			}
			value = rest[i]
		case !takesValue && hasValue:
			return fmt.Errorf("--%s does not take a value", name)
		}
		if parsed.Options == nil {
			parsed.Options = make(map[string]string)
		}
		parsed.Options[name] = value
	}

	if spec.maxArgs < 0 && len(positional) > 0 {
		positional = []string{strings.Join(positional, " ")}
	}
	limit := spec.maxArgs
	if limit < 0 {
		limit = 1
	}
	switch {
	case len(positional) < spec.minArgs:
		return fmt.Errorf("%s requires %d argument(s)", parsed.Command, spec.minArgs)
	case len(positional) > limit:
		return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
	}
	parsed.Args = positional
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args] [--option value]

Daemon:
  serve                         Run the daemon in the foreground
  doctor [--tone]               Run configuration and environment checks

Requests (sent to a running daemon):
  status                        Show engines, quota, and listen state
  quota                         Show per-service daily usage
  devices [--kind input|output] List audio devices
  voices                        List synthesis voices
  upload FILE                   Store an audio file and print its id
  info FILE_ID                  Show a stored upload's size and audio parameters
  delete FILE_ID                Remove a stored upload
  transcribe FILE_ID|FILE [--online] [--language TAG]
                                Transcribe a stored upload or a local WAV/PCM file
  speak TEXT [--voice V] [--speed S] [--play] [--out PATH]
                                Synthesize speech
  chat MESSAGE                  Ask for a conversational reply
  listen [--max-seconds N] [--online]
                                Capture from the microphone and transcribe
  stop                          Stop the active listen session and transcribe
  cancel                        Discard the active listen session
  convert FILE_ID --to FORMAT [--rate HZ]
                                Convert a stored upload

Other:
  version                       Print version information
  help                          Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/murmur/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
