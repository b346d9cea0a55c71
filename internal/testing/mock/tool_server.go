package mock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolFunc implements a mock tool. Returning an error produces a tool
// result with isError set.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool describes one tool exposed by ToolServer.
type Tool struct {
	Name        string
	Description string
	Handler     ToolFunc
}

// ToolServer is a streamable-HTTP MCP server that records the headers of
// the requests it receives.
type ToolServer struct {
	server *httptest.Server

	mu      sync.Mutex
	headers []http.Header
}

// NewToolServer starts an MCP tool server that is closed when the test ends.
// Tools without a handler echo their arguments' "text" value.
func NewToolServer(t testing.TB, tools ...Tool) *ToolServer {
	t.Helper()

	s := server.NewMCPServer("mock-tools", "1.0.0", server.WithToolCapabilities(false))
	for _, tool := range tools {
		handler := tool.Handler
		if handler == nil {
			handler = func(_ context.Context, args map[string]any) (string, error) {
				text, _ := args["text"].(string)
				return text, nil
			}
		}
		s.AddTool(
			mcp.NewTool(tool.Name, mcp.WithDescription(tool.Description)),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				out, err := handler(ctx, req.GetArguments())
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(out), nil
			},
		)
	}

	ts := &ToolServer{}
	streamable := server.NewStreamableHTTPServer(s)
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Session teardown carries no client headers.
		if r.Method != http.MethodDelete {
			ts.mu.Lock()
			ts.headers = append(ts.headers, r.Header.Clone())
			ts.mu.Unlock()
		}
		streamable.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.server.Close)

	return ts
}

// URL is the MCP endpoint.
func (s *ToolServer) URL() string { return s.server.URL + "/mcp" }

// LastHeaders returns the headers of the most recent request, or nil.
func (s *ToolServer) LastHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		return nil
	}
	return s.headers[len(s.headers)-1]
}

// Requests returns how many HTTP requests were received, not counting
// session teardown.
func (s *ToolServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.headers)
}
