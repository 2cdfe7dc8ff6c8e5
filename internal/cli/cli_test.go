package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/murmur.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/murmur.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantCmd:  CommandVersion,
			wantHelp: false,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:     "valid cancel command",
			args:     []string{"cancel"},
			wantCmd:  CommandCancel,
			wantHelp: false,
		},
		{
			name:     "valid stop with config",
			args:     []string{"--config", "/tmp/cfg", "stop"},
			wantCmd:  CommandStop,
			wantHelp: false,
			wantPath: "/tmp/cfg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestParseCommandArgsAndOptions(t *testing.T) {
	parsed, err := Parse([]string{"speak", "good", "morning", "--voice", "en-gb", "--speed=1.5", "--play"})
	require.NoError(t, err)
	require.Equal(t, CommandSpeak, parsed.Command)
	require.Equal(t, []string{"good morning"}, parsed.Args)
	require.Equal(t, "en-gb", parsed.Option("voice", ""))
	require.True(t, parsed.Flag("play"))
	require.False(t, parsed.Flag("out"))

	speed, err := parsed.Float("speed", 1)
	require.NoError(t, err)
	require.Equal(t, 1.5, speed)

	parsed, err = Parse([]string{"convert", "a1b2c3d4", "--to", "mp3", "--rate", "22050"})
	require.NoError(t, err)
	require.Equal(t, []string{"a1b2c3d4"}, parsed.Args)
	rate, err := parsed.Int("rate", 0)
	require.NoError(t, err)
	require.Equal(t, 22050, rate)

	parsed, err = Parse([]string{"transcribe", "a1b2c3d4", "--language", "fr-FR"})
	require.NoError(t, err)
	require.Equal(t, "fr-FR", parsed.Option("language", ""))

	for _, cmd := range []Command{CommandInfo, CommandDelete} {
		parsed, err = Parse([]string{string(cmd), "a1b2c3d4"})
		require.NoError(t, err)
		require.Equal(t, cmd, parsed.Command)
		require.Equal(t, []string{"a1b2c3d4"}, parsed.Args)
	}

	parsed, err = Parse([]string{"chat", "--", "--not-an-option"})
	require.NoError(t, err)
	require.Equal(t, []string{"--not-an-option"}, parsed.Args)
}

func TestParseCommandArgErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing upload path", args: []string{"upload"}, wantErr: "requires 1 argument"},
		{name: "two upload paths", args: []string{"upload", "a.wav", "b.wav"}, wantErr: "unexpected arguments"},
		{name: "missing info id", args: []string{"info"}, wantErr: "requires 1 argument"},
		{name: "two delete ids", args: []string{"delete", "a1b2c3d4", "b1b2c3d4"}, wantErr: "unexpected arguments"},
		{name: "unknown option", args: []string{"listen", "--forever"}, wantErr: "unknown option for listen"},
		{name: "missing option value", args: []string{"convert", "a1b2c3d4", "--to"}, wantErr: "--to requires a value"},
		{name: "switch with value", args: []string{"transcribe", "x.wav", "--online=yes"}, wantErr: "does not take a value"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}

	parsed, err := Parse([]string{"listen", "--max-seconds", "soon"})
	require.NoError(t, err)
	_, err = parsed.Float("max-seconds", 0)
	require.Error(t, err)
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("murmur")
	require.Contains(t, text, "serve")
	require.Contains(t, text, "transcribe")
	require.Contains(t, text, "speak")
	require.Contains(t, text, "doctor")
	require.Contains(t, text, "--config PATH")
}
