package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/javimaligno/goapply-core/internal/mcp"
)

// HTTPDevtoolsClient is a concrete DevtoolsClient that speaks the same
// JSON-RPC 2.0 "tools/call" protocol used against an MCP server, pointed
// instead at a devtools-mcp sidecar.
type HTTPDevtoolsClient struct {
	baseURL    string
	httpClient *http.Client
	requestID  atomic.Int64
}

// NewHTTPDevtoolsClient builds a client against a running devtools-mcp
// sidecar listening at baseURL.
func NewHTTPDevtoolsClient(baseURL string) *HTTPDevtoolsClient {
	return &HTTPDevtoolsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// CallTool sends a tools/call request and returns the decoded result.
func (c *HTTPDevtoolsClient) CallTool(ctx context.Context, name string, args map[string]any) (mcp.MCPToolResult, error) {
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	if err != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: marshal params: %w", err)
	}

	req := mcp.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "tools/call",
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: HTTP %d", resp.StatusCode)
	}

	var rpcResp mcp.JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: %s", rpcResp.Error.Message)
	}

	var result mcp.MCPToolResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return mcp.MCPToolResult{}, fmt.Errorf("devtools client: decode tool result: %w", err)
	}
	return result, nil
}

var _ DevtoolsClient = (*HTTPDevtoolsClient)(nil)
