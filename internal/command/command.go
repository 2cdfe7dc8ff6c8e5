// Package command runs external audio tools by argv.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrEmptyArgv is returned for a command with no program.
var ErrEmptyArgv = errors.New("command argv cannot be empty")

// Runner executes argv with optional stdin and returns stdout.
type Runner interface {
	Run(ctx context.Context, argv []string, stdin io.Reader) ([]byte, error)
}

// Exec runs commands with os/exec.
type Exec struct{}

// Run executes argv, feeding stdin when non-nil. Failures include the tail of stderr.
func (Exec) Run(ctx context.Context, argv []string, stdin io.Reader) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyArgv
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", argv[0], ctxErr)
		}
		if tail := lastLine(stderr.String()); tail != "" {
			return nil, fmt.Errorf("run %s: %w: %s", argv[0], err, tail)
		}
		return nil, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}

// Lookup reports whether argv's program resolves on PATH.
func Lookup(argv []string) error {
	if len(argv) == 0 {
		return ErrEmptyArgv
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("find %s: %w", argv[0], err)
	}
	return nil
}

// Expand substitutes {name} placeholders in each argument.
func Expand(argv []string, vars map[string]string) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		for name, value := range vars {
			arg = strings.ReplaceAll(arg, "{"+name+"}", value)
		}
		out[i] = arg
	}
	return out
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	const limit = 240
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
