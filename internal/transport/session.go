package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"sync"
	"time"

	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"integrate/pkg/logging"
)

// DefaultTimeout bounds the handshake and every request unless the caller's
// context expires first.
const DefaultTimeout = 30 * time.Second

const methodInitialized = "notifications/initialized"

// State is the lifecycle position of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Factory creates the underlying wire transport. headers is consulted for
// every outgoing HTTP request.
type Factory func(url string, headers mcptransport.HTTPHeaderFunc) (mcptransport.Interface, error)

// Options configures a Session.
type Options struct {
	// URL is the MCP endpoint of the tool server.
	URL string

	// Headers are static headers sent with every request. They survive
	// Disconnect.
	Headers map[string]string

	Timeout time.Duration

	// HTTPClient replaces the default HTTP client of the streamable transport.
	HTTPClient *http.Client

	ClientName    string
	ClientVersion string

	// Factory overrides the streamable HTTP transport, mainly for tests.
	Factory Factory

	Metrics *Metrics

	// OnNotification receives server notifications.
	OnNotification func(mcp.JSONRPCNotification)
}

type result struct {
	resp *mcptransport.JSONRPCResponse
	err  error
}

// Session is one logical JSON-RPC session with a tool server. It is safe for
// concurrent use; any number of requests may be in flight at once.
type Session struct {
	opts Options

	// connectMu serializes Connect calls.
	connectMu sync.Mutex

	mu             sync.Mutex
	state          State
	conn           mcptransport.Interface
	initResult     *mcp.InitializeResult
	staticHeaders  map[string]string
	sessionHeaders map[string]string
	nextID         int64
	inflight       map[int64]chan result
}

// NewSession creates a disconnected session.
func NewSession(opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "integrate"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	if opts.Factory == nil {
		opts.Factory = streamableHTTP(opts)
	}

	s := &Session{
		opts:           opts,
		staticHeaders:  make(map[string]string, len(opts.Headers)),
		sessionHeaders: make(map[string]string),
		inflight:       make(map[int64]chan result),
	}
	for k, v := range opts.Headers {
		s.staticHeaders[http.CanonicalHeaderKey(k)] = v
	}
	return s
}

func streamableHTTP(opts Options) Factory {
	return func(url string, headers mcptransport.HTTPHeaderFunc) (mcptransport.Interface, error) {
		httpOpts := []mcptransport.StreamableHTTPCOption{
			mcptransport.WithHTTPHeaderFunc(headers),
			mcptransport.WithHTTPTimeout(opts.Timeout),
		}
		if opts.HTTPClient != nil {
			httpOpts = append(httpOpts, mcptransport.WithHTTPBasicClient(opts.HTTPClient))
		}
		t, err := mcptransport.NewStreamableHTTP(url, httpOpts...)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// URL returns the endpoint the session connects to.
func (s *Session) URL() string {
	return s.opts.URL
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialized reports whether the handshake has completed.
func (s *Session) Initialized() bool {
	return s.State() == StateInitialized
}

// SessionID returns the server-assigned session id, or "" when disconnected.
func (s *Session) SessionID() string {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ""
	}
	return conn.GetSessionId()
}

// Connect starts the transport and performs the initialize handshake. When
// the session is already initialized it returns the existing result.
func (s *Session) Connect(ctx context.Context) (*mcp.InitializeResult, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.state == StateInitialized {
		res := s.initResult
		s.mu.Unlock()
		return res, nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	logging.Debug("Transport", "Connecting to %s", s.opts.URL)
	res, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.state = StateDisconnected
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		logging.Warn("Transport", "Connection to %s failed: %v", s.opts.URL, err)
		return nil, &ConnectionError{URL: s.opts.URL, Err: err}
	}

	logging.Info("Transport", "Connected to %s (server %s %s, protocol %s)",
		s.opts.URL, res.ServerInfo.Name, res.ServerInfo.Version, res.ProtocolVersion)
	return res, nil
}

func (s *Session) connect(ctx context.Context) (*mcp.InitializeResult, error) {
	conn, err := s.opts.Factory(s.opts.URL, s.headers)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	conn.SetNotificationHandler(s.handleNotification)
	if err := conn.Start(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start transport: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	raw, err := s.send(ctx, string(mcp.MethodInitialize), mcp.InitializeParams{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo: mcp.Implementation{
			Name:    s.opts.ClientName,
			Version: s.opts.ClientVersion,
		},
	})
	if err != nil {
		return nil, err
	}

	var res mcp.InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, malformed(string(mcp.MethodInitialize), err)
	}

	err = conn.SendNotification(ctx, mcp.JSONRPCNotification{
		JSONRPC:      mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{Method: methodInitialized},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", methodInitialized, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return nil, ErrCancelled
	}
	s.state = StateInitialized
	s.initResult = &res
	return &res, nil
}

// Request sends a JSON-RPC request and waits for the matching response.
func (s *Session) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !s.Initialized() {
		return nil, fmt.Errorf("%s: %w", method, ErrNotInitialized)
	}
	return s.send(ctx, method, params)
}

func (s *Session) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	started := time.Now()

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, ErrNotInitialized)
	}
	s.nextID++
	id := s.nextID
	ch := make(chan result, 1)
	s.inflight[id] = ch
	s.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	go func() {
		resp, err := conn.SendRequest(reqCtx, mcptransport.JSONRPCRequest{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      mcp.NewRequestId(id),
			Method:  method,
			Params:  params,
		})
		s.deliver(id, method, result{resp: resp, err: err})
	}()

	select {
	case res := <-ch:
		raw, err := s.decode(method, res)
		s.opts.Metrics.observe(method, outcome(err), started)
		return raw, err
	case <-reqCtx.Done():
		s.discard(id)
		err := timeoutOrCancel(ctx, method, s.opts.Timeout)
		s.opts.Metrics.observe(method, outcome(err), started)
		return nil, err
	}
}

// deliver hands a response to its waiter. Responses for ids that timed out
// or were cancelled are dropped.
func (s *Session) deliver(id int64, method string, res result) {
	s.mu.Lock()
	ch, ok := s.inflight[id]
	delete(s.inflight, id)
	s.mu.Unlock()

	if !ok {
		logging.Debug("Transport", "Ignoring late response to %s id=%d", method, id)
		return
	}
	ch <- res
}

func (s *Session) discard(id int64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Session) decode(method string, res result) (json.RawMessage, error) {
	if res.err != nil {
		switch {
		case errors.Is(res.err, ErrCancelled):
			return nil, fmt.Errorf("%s: %w", method, ErrCancelled)
		case errors.Is(res.err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
		case undecodable(res.err):
			return nil, &RPCError{
				Method:  method,
				Code:    mcp.PARSE_ERROR,
				Message: fmt.Sprintf("undecodable response: %v", res.err),
				Err:     res.err,
			}
		default:
			return nil, fmt.Errorf("%s: %w", method, res.err)
		}
	}
	if res.resp == nil {
		return nil, &RPCError{Method: method, Code: mcp.PARSE_ERROR, Message: "empty response"}
	}
	if e := res.resp.Error; e != nil {
		return nil, &RPCError{Method: method, Code: e.Code, Message: e.Message, Data: e.Data}
	}
	if len(res.resp.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return res.resp.Result, nil
}

// undecodable reports whether err comes from decoding the response body
// rather than from reaching the server.
func undecodable(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func timeoutOrCancel(ctx context.Context, method string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
	return fmt.Errorf("%s: no response within %v: %w", method, timeout, ErrTimeout)
}

func outcome(err error) string {
	var re *RPCError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &re):
		return outcomeRPCError
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return outcomeCancelled
	default:
		return outcomeError
	}
}

func malformed(method string, err error) *RPCError {
	return &RPCError{Method: method, Code: mcp.PARSE_ERROR, Message: fmt.Sprintf("malformed result: %v", err)}
}

// Notify sends a notification. No response is expected.
func (s *Session) Notify(ctx context.Context, method string, params map[string]any) error {
	s.mu.Lock()
	conn := s.conn
	ready := s.state == StateInitialized
	s.mu.Unlock()
	if !ready || conn == nil {
		return fmt.Errorf("%s: %w", method, ErrNotInitialized)
	}

	return conn.SendNotification(ctx, mcp.JSONRPCNotification{
		JSONRPC: mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{
			Method: method,
			Params: mcp.NotificationParams{AdditionalFields: params},
		},
	})
}

func (s *Session) handleNotification(n mcp.JSONRPCNotification) {
	logging.Debug("Transport", "Received notification %s", n.Method)
	if s.opts.OnNotification != nil {
		s.opts.OnNotification(n)
	}
}

// SetHeader sets a session header. Session headers are cleared on
// Disconnect.
func (s *Session) SetHeader(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionHeaders[http.CanonicalHeaderKey(name)] = value
}

// RemoveHeader removes a header, static or session.
func (s *Session) RemoveHeader(name string) {
	key := http.CanonicalHeaderKey(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionHeaders, key)
	delete(s.staticHeaders, key)
}

// Headers returns a copy of the outgoing header set. Session headers
// override static headers with the same name.
func (s *Session) Headers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.staticHeaders)+len(s.sessionHeaders))
	maps.Copy(out, s.staticHeaders)
	maps.Copy(out, s.sessionHeaders)
	return out
}

func (s *Session) headers(context.Context) map[string]string {
	return s.Headers()
}

// Disconnect fails all in-flight requests with ErrCancelled, clears session
// headers and closes the transport. It is safe to call when not connected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	waiters := s.inflight
	s.inflight = make(map[int64]chan result)
	s.conn = nil
	s.initResult = nil
	s.state = StateDisconnected
	s.sessionHeaders = make(map[string]string)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- result{err: ErrCancelled}
	}
	if conn == nil {
		return nil
	}

	logging.Debug("Transport", "Disconnecting from %s, cancelled %d in-flight request(s)", s.opts.URL, len(waiters))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// Reconnect disconnects and connects again. Static headers are kept; session
// headers must be set again by the caller.
func (s *Session) Reconnect(ctx context.Context) (*mcp.InitializeResult, error) {
	if err := s.Disconnect(); err != nil {
		logging.Warn("Transport", "Error while closing previous connection: %v", err)
	}
	return s.Connect(ctx)
}

// ListTools returns every tool the server exposes, following pagination.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	method := string(mcp.MethodToolsList)
	var (
		tools  []mcp.Tool
		cursor mcp.Cursor
	)
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		raw, err := s.Request(ctx, method, params)
		if err != nil {
			return nil, err
		}
		var page mcp.ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, malformed(method, err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" || page.NextCursor == cursor {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool invokes a tool by its server-side name.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	method := string(mcp.MethodToolsCall)
	raw, err := s.Request(ctx, method, mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	res, err := mcp.ParseCallToolResult(&raw)
	if err != nil {
		return nil, malformed(method, err)
	}
	return res, nil
}
