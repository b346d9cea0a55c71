package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integrate/internal/client"
	"integrate/internal/testing/mock"
)

// useConfig points the global --config-path at a directory holding content.
func useConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	original := configPath
	configPath = dir
	t.Cleanup(func() { configPath = original })
}

func runTools(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newToolsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newMockTools(t *testing.T) *mock.ToolServer {
	return mock.NewToolServer(t,
		mock.Tool{Name: "github_echo", Description: "Echo text"},
		mock.Tool{Name: "github_fail", Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("rate limited")
		}},
		mock.Tool{Name: "gmail_send", Description: "Send mail"},
	)
}

// The server URL is replaced by --server-url in each test.
const pluginConfig = `
client:
  serverUrl: http://127.0.0.1:1/mcp
  plugins:
    - id: github
`

func TestToolsList(t *testing.T) {
	ts := newMockTools(t)
	useConfig(t, pluginConfig)

	out, err := runTools(t, "list", "--server-url", ts.URL())
	require.NoError(t, err)
	assert.Contains(t, out, "github_echo")
	assert.Contains(t, out, "github.echo")
	assert.Contains(t, out, "Echo text")
	assert.NotContains(t, out, "gmail_send")
}

func TestToolsList_NoPlugins(t *testing.T) {
	ts := newMockTools(t)
	useConfig(t, "logging:\n  level: error\n")

	out, err := runTools(t, "list", "--server-url", ts.URL())
	require.NoError(t, err)
	assert.Contains(t, out, "No tools enabled")
}

func TestToolsCall(t *testing.T) {
	ts := newMockTools(t)
	useConfig(t, pluginConfig)

	out, err := runTools(t, "call", "github.echo", "--server-url", ts.URL(), "--arg", "text=hello",
		"--api-key", "key-1", "--session-token", "sess-1", "--provider-token", "github=gho_1")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	headers := ts.LastHeaders()
	assert.Equal(t, "key-1", headers.Get(client.HeaderAPIKey))
	assert.Equal(t, "sess-1", headers.Get(client.HeaderSessionToken))
	tokens, err := client.ParseIntegrateTokens(headers.Get(client.HeaderIntegrateTokens))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"github": "gho_1"}, tokens)
}

func TestToolsCall_Errors(t *testing.T) {
	ts := newMockTools(t)
	useConfig(t, pluginConfig)

	_, err := runTools(t, "call", "gmail_send", "--server-url", ts.URL())
	assert.ErrorIs(t, err, client.ErrToolNotEnabled)

	out, err := runTools(t, "call", "github_fail", "--server-url", ts.URL())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned an error")
	assert.Contains(t, out, "rate limited")

	_, err = runTools(t, "call", "github_echo", "--server-url", ts.URL(), "--arg", "novalue")
	assert.Error(t, err)

	_, err = runTools(t, "call", "github_echo", "--server-url", ts.URL(), "--provider-token", "=x")
	assert.Error(t, err)
}

func TestToolsList_Unreachable(t *testing.T) {
	useConfig(t, pluginConfig)

	_, err := runTools(t, "list", "--server-url", "http://127.0.0.1:1/mcp")
	require.Error(t, err)
	assert.Equal(t, ExitCodeConnection, getExitCode(err))
}

func TestToolsList_NoServerURL(t *testing.T) {
	useConfig(t, "logging:\n  level: error\n")

	_, err := runTools(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no server URL")
}

func TestToolsList_InvalidConfig(t *testing.T) {
	useConfig(t, "client:\n  plugins:\n    - id: Bad_Id\n")

	_, err := runTools(t, "list", "--server-url", "http://127.0.0.1:1/mcp")
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfig, getExitCode(err))
}

func TestParseToolArgs(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: map[string]any{}},
		{name: "string pair", pairs: []string{"owner=octo"}, want: map[string]any{"owner": "octo"}},
		{name: "json value", pairs: []string{"limit=10", "draft=true"}, want: map[string]any{"limit": float64(10), "draft": true}},
		{name: "value with equals", pairs: []string{"q=a=b"}, want: map[string]any{"q": "a=b"}},
		{name: "json object", json: `{"a":1,"b":"x"}`, pairs: []string{"b=y"}, want: map[string]any{"a": float64(1), "b": "y"}},
		{name: "bad json", json: `{`, wantErr: true},
		{name: "missing equals", pairs: []string{"flag"}, wantErr: true},
		{name: "empty key", pairs: []string{"=v"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseToolArgs(tt.json, tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
