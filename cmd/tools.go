package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"integrate/internal/client"
	"integrate/internal/config"
	pkgstrings "integrate/pkg/strings"
)

type toolsOptions struct {
	serverURL      string
	apiKey         string
	sessionToken   string
	providerTokens []string
}

type callOptions struct {
	args     []string
	argsJSON string
}

func newToolsCmd() *cobra.Command {
	opts := &toolsOptions{}
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and call tools of the configured plugins",
	}
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server-url", "", "MCP endpoint (overrides client.serverUrl)")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "API key sent as X-API-KEY (overrides client.apiKey)")
	cmd.PersistentFlags().StringVar(&opts.sessionToken, "session-token", "", "Session token sent as X-Session-Token")
	cmd.PersistentFlags().StringArrayVar(&opts.providerTokens, "provider-token", nil, "Provider access token as provider=token (repeatable)")

	cmd.AddCommand(newToolsListCmd(opts), newToolsCallCmd(opts))
	return cmd
}

func newToolsListCmd(opts *toolsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tools enabled by the configured plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connectClient(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect(cmd.Context()) }()

			renderTools(cmd.OutOrStdout(), c.Tools())
			return nil
		},
	}
}

func newToolsCallCmd(opts *toolsOptions) *cobra.Command {
	copts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Call a tool by name (github_list_repos) or method (github.listRepos)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(copts.argsJSON, copts.args)
			if err != nil {
				return err
			}

			c, err := connectClient(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = c.Disconnect(cmd.Context()) }()

			name := args[0]
			if strings.Contains(name, ".") {
				name = client.MethodToToolName(name, "")
			}
			result, err := c.CallTool(cmd.Context(), name, toolArgs)
			if err != nil {
				return err
			}
			if err := renderResult(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.IsError {
				return fmt.Errorf("tool %s returned an error", name)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&copts.args, "arg", nil, "Tool argument as key=value; JSON values are decoded (repeatable)")
	cmd.Flags().StringVar(&copts.argsJSON, "args-json", "", "Tool arguments as a JSON object")
	return cmd
}

// connectClient builds a client from the configuration and flags and
// connects it.
func connectClient(cmd *cobra.Command, opts *toolsOptions) (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newConnectedClient(cmd, cfg.Client, opts)
}

func newConnectedClient(cmd *cobra.Command, cc config.ClientConfig, opts *toolsOptions) (*client.Client, error) {
	if opts.serverURL != "" {
		cc.ServerURL = opts.serverURL
	}
	if opts.apiKey != "" {
		cc.APIKey = opts.apiKey
	}
	if cc.ServerURL == "" {
		return nil, fmt.Errorf("no server URL: set client.serverUrl or --server-url")
	}

	c, err := client.New(client.Config{
		ServerURL:     cc.ServerURL,
		APIKey:        cc.APIKey,
		Headers:       cc.Headers,
		Timeout:       cc.Timeout,
		ClientSide:    true,
		ClientName:    "integrate-cli",
		ClientVersion: GetVersion(),
	}, cc.ClientPlugins()...)
	if err != nil {
		return nil, err
	}

	c.SetSessionToken(opts.sessionToken)
	for _, pt := range opts.providerTokens {
		provider, token, ok := strings.Cut(pt, "=")
		if !ok || provider == "" {
			return nil, fmt.Errorf("invalid --provider-token %q: want provider=token", pt)
		}
		if err := c.SetProviderToken(provider, token); err != nil {
			return nil, err
		}
	}

	if err := c.Connect(cmd.Context()); err != nil {
		return nil, err
	}
	return c, nil
}

// parseToolArgs merges --args-json with --arg pairs; pairs win.
func parseToolArgs(argsJSON string, pairs []string) (map[string]any, error) {
	args := make(map[string]any)
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("invalid --args-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		args[key] = v
	}
	return args, nil
}

func renderTools(w io.Writer, tools []mcp.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(w, text.FgYellow.Sprint("No tools enabled"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"NAME", "METHOD", "DESCRIPTION"})
	for _, tool := range tools {
		desc := pkgstrings.Truncate(tool.Description, pkgstrings.DescriptionWidth)
		t.AppendRow(table.Row{tool.Name, client.ToolNameToMethod(tool.Name), desc})
	}
	t.Render()
}

func renderResult(w io.Writer, result *mcp.CallToolResult) error {
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			fmt.Fprintln(w, tc.Text)
			continue
		}
		data, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode tool result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}
