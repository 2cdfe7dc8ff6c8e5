package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecRunPipesStdin(t *testing.T) {
	out, err := Exec{}.Run(context.Background(), []string{"cat"}, strings.NewReader("pcm bytes"))
	require.NoError(t, err)
	require.Equal(t, "pcm bytes", string(out))
}

func TestExecRunReportsStderrTail(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), []string{"sh", "-c", "echo first >&2; echo model missing >&2; exit 3"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "run sh")
	require.Contains(t, err.Error(), "model missing")
	require.NotContains(t, err.Error(), "first")
}

func TestExecRunEmptyArgv(t *testing.T) {
	_, err := Exec{}.Run(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrEmptyArgv)
}

func TestExecRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Exec{}.Run(ctx, []string{"sleep", "5"}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLookup(t *testing.T) {
	require.NoError(t, Lookup([]string{"sh"}))
	require.Error(t, Lookup([]string{"definitely-not-a-real-binary-murmur"}))
	require.ErrorIs(t, Lookup(nil), ErrEmptyArgv)
}

func TestExpand(t *testing.T) {
	argv := Expand([]string{"vosk", "--model", "{model}", "--rate={rate}"}, map[string]string{
		"model": "/models/en",
		"rate":  "16000",
	})
	require.Equal(t, []string{"vosk", "--model", "/models/en", "--rate=16000"}, argv)
}
