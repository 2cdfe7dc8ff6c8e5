package ipc

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestArgsRoundTrip(t *testing.T) {
	type speakArgs struct {
		Text  string  `json:"text"`
		Speed float64 `json:"speed"`
	}

	req, err := NewRequest("speak", speakArgs{Text: "hello", Speed: 1.5})
	require.NoError(t, err)

	line, err := json.Marshal(req)
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"speak","args":{"text":"hello","speed":1.5}}`, string(line))

	var decoded Request
	require.NoError(t, json.Unmarshal(line, &decoded))
	var args speakArgs
	require.NoError(t, decoded.DecodeArgs(&args))
	require.Equal(t, speakArgs{Text: "hello", Speed: 1.5}, args)
}

func TestRequestWithoutArgs(t *testing.T) {
	req, err := NewRequest("status", nil)
	require.NoError(t, err)
	require.Empty(t, req.Args)

	var v struct{ Kind string }
	require.NoError(t, req.DecodeArgs(&v))
	require.Empty(t, v.Kind)

	bad := Request{Command: "speak", Args: json.RawMessage(`[1,2]`)}
	require.ErrorContains(t, bad.DecodeArgs(&v), "decode speak args")
}

func TestResponseDecodeData(t *testing.T) {
	resp := Response{OK: true, Data: json.RawMessage(`{"file_id":"0123abcd"}`)}
	var out struct {
		FileID string `json:"file_id"`
	}
	require.NoError(t, resp.DecodeData(&out))
	require.Equal(t, "0123abcd", out.FileID)
}

func TestRuntimeSocketPathUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "murmur.sock"), path)
}
