// Package transport maintains a logical JSON-RPC session with a remote MCP
// tool server.
//
// A Session owns the connection handshake, request/response correlation by
// id and the outgoing header set. The wire is mcp-go's streamable HTTP
// transport; tests may substitute any transport.Interface.
//
//	s := transport.NewSession(transport.Options{URL: "https://mcp.example.com/api/v1/mcp"})
//	if _, err := s.Connect(ctx); err != nil {
//		return err
//	}
//	defer s.Disconnect()
//
//	s.SetHeader("X-Session-Token", token)
//	result, err := s.CallTool(ctx, "github_list_repos", map[string]any{"owner": "acme"})
//
// Requests made before the handshake fail with ErrNotInitialized.
// Disconnect fails every in-flight request with ErrCancelled.
package transport
