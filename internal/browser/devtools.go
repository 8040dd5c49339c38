package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/javimaligno/goapply-core/internal/mcp"
)

// DevtoolsClient is the seam over the devtools-mcp sidecar transport
// (stdio or socket). A concrete implementation owns the
// JSON-RPC request/response loop using internal/mcp + internal/bridge;
// DevtoolsAdapter only needs tool-call semantics.
type DevtoolsClient interface {
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.MCPToolResult, error)
}

// DevtoolsAdapter drives a browser through the devtools-mcp sidecar's
// published 26-tool contract, translating CSS-like selectors
// into accessibility-tree UIDs via a snapshot taken fresh for each
// resolution (the latest one is kept in cachedSnapshot). Grounded on
// original_source/src/browser_service/adapters/chrome_devtools.py.
type DevtoolsAdapter struct {
	client DevtoolsClient

	mu              sync.Mutex
	currentURL      string
	currentTitle    string
	defaultTimeout  time.Duration
	cachedSnapshot  string
	cachedElements  []snapshotElement
}

// NewDevtoolsAdapter wraps client as a Browser Adapter.
func NewDevtoolsAdapter(client DevtoolsClient) *DevtoolsAdapter {
	return &DevtoolsAdapter{client: client, defaultTimeout: 30 * time.Second}
}

func (a *DevtoolsAdapter) Backend() Backend { return BackendDevtools }

func (a *DevtoolsAdapter) Initialize(ctx context.Context, cfg InitConfig) OperationResult {
	start := time.Now()
	if err := validateInitConfig(cfg); err != nil {
		return fail(start, err)
	}
	a.mu.Lock()
	a.defaultTimeout = cfg.DefaultTimeout
	a.mu.Unlock()
	// The sidecar process itself is started/connected by the caller
	// (bridge.StdioFraming plumbing); Initialize here only seeds defaults
	// and confirms the client answers.
	if _, err := a.client.CallTool(ctx, "list_pages", nil); err != nil {
		return fail(start, fmt.Errorf("devtools-mcp not reachable: %w", err))
	}
	return ok(start)
}

func (a *DevtoolsAdapter) Close(ctx context.Context) OperationResult {
	start := time.Now()
	_, err := a.client.CallTool(ctx, "close_page", nil)
	if err != nil {
		// Close is idempotent; a sidecar that's already gone
		// is not a failure.
		return ok(start)
	}
	return ok(start)
}

func (a *DevtoolsAdapter) Navigate(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) NavigateResult {
	start := time.Now()
	_, err := a.client.CallTool(ctx, "navigate_page", map[string]any{"url": url})
	if err != nil {
		return NavigateResult{OperationResult: fail(start, err), FinalURL: url}
	}
	finalURL, _ := a.GetCurrentURL(ctx)
	title, _ := a.GetPageTitle(ctx)
	a.mu.Lock()
	a.currentURL, a.currentTitle = finalURL, title
	a.mu.Unlock()
	return NavigateResult{OperationResult: ok(start), FinalURL: finalURL, Title: title}
}

func (a *DevtoolsAdapter) refreshSnapshot(ctx context.Context) ([]snapshotElement, error) {
	result, err := a.client.CallTool(ctx, "take_snapshot", nil)
	if err != nil {
		return nil, err
	}
	text := firstText(result)
	elements := parseSnapshot(text)
	a.mu.Lock()
	a.cachedSnapshot = text
	a.cachedElements = elements
	a.mu.Unlock()
	return elements, nil
}

func (a *DevtoolsAdapter) resolve(ctx context.Context, selector string) (snapshotElement, error) {
	elements, err := a.refreshSnapshot(ctx)
	if err != nil {
		return snapshotElement{}, err
	}
	el, found := resolveSelector(elements, selector)
	if !found {
		return snapshotElement{}, fmt.Errorf("%s: could not find element for selector %q", mcp.ErrElementNotFound, selector)
	}
	return el, nil
}

func (a *DevtoolsAdapter) Fill(ctx context.Context, locator, value string, clearFirst, force bool, timeout time.Duration) OperationResult {
	start := time.Now()
	el, err := a.resolve(ctx, locator)
	if err != nil {
		return fail(start, err)
	}
	if _, err := a.client.CallTool(ctx, "fill", map[string]any{"uid": el.UID, "value": value}); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DevtoolsAdapter) Click(ctx context.Context, locator string, button string, count int, force bool, timeout time.Duration) OperationResult {
	start := time.Now()
	el, err := a.resolve(ctx, locator)
	if err != nil {
		return fail(start, err)
	}
	if _, err := a.client.CallTool(ctx, "click", map[string]any{"uid": el.UID}); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DevtoolsAdapter) Select(ctx context.Context, locator, value string) OperationResult {
	start := time.Now()
	el, err := a.resolve(ctx, locator)
	if err != nil {
		return fail(start, err)
	}
	if _, err := a.client.CallTool(ctx, "click", map[string]any{"uid": el.UID}); err != nil {
		return fail(start, err)
	}
	// MCP has no direct select_option tool; open the dropdown and type to
	// filter, per chrome_devtools.py's select().
	if value != "" {
		if _, err := a.client.CallTool(ctx, "press_key", map[string]any{"key": "Enter"}); err != nil {
			return fail(start, err)
		}
		for _, r := range value {
			if _, err := a.client.CallTool(ctx, "press_key", map[string]any{"key": string(r)}); err != nil {
				return fail(start, err)
			}
		}
		if _, err := a.client.CallTool(ctx, "press_key", map[string]any{"key": "Enter"}); err != nil {
			return fail(start, err)
		}
	}
	return ok(start)
}

func (a *DevtoolsAdapter) Upload(ctx context.Context, locator, filePath string) OperationResult {
	start := time.Now()
	el, err := a.resolve(ctx, locator)
	if err != nil {
		return fail(start, err)
	}
	if _, err := a.client.CallTool(ctx, "upload_file", map[string]any{"uid": el.UID, "file_path": filePath}); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DevtoolsAdapter) Screenshot(ctx context.Context, fullPage bool, path string) ScreenshotResult {
	start := time.Now()
	result, err := a.client.CallTool(ctx, "take_screenshot", map[string]any{"fullPage": fullPage})
	if err != nil {
		return ScreenshotResult{OperationResult: fail(start, err)}
	}
	data := extractBase64Image(firstText(result))
	res := ScreenshotResult{OperationResult: ok(start), Base64Data: data}
	if path != "" && data != "" {
		raw, decErr := decodeBase64(data)
		if decErr != nil {
			return ScreenshotResult{OperationResult: fail(start, decErr)}
		}
		if werr := writeFile(path, raw); werr != nil {
			return ScreenshotResult{OperationResult: fail(start, werr)}
		}
		res.Path = path
	}
	return res
}

// Evaluate wraps the script in a zero-arg arrow function if it isn't
// already one; the sidecar's evaluate_script tool requires that shape.
func (a *DevtoolsAdapter) Evaluate(ctx context.Context, script string, args ...any) EvaluateResult {
	start := time.Now()
	wrapped := script
	if !strings.HasPrefix(strings.TrimSpace(script), "()") {
		wrapped = "() => " + script
	}
	result, err := a.client.CallTool(ctx, "evaluate_script", map[string]any{"function": wrapped})
	if err != nil {
		return EvaluateResult{OperationResult: fail(start, err)}
	}
	return EvaluateResult{OperationResult: ok(start), Value: firstText(result)}
}

func (a *DevtoolsAdapter) GetDOM(ctx context.Context, scopeSelector string, formFieldsOnly bool) DOMResult {
	start := time.Now()
	elements, err := a.refreshSnapshot(ctx)
	if err != nil {
		return DOMResult{OperationResult: fail(start, err)}
	}

	var fields []FormField
	for _, el := range elements {
		ft, isForm := fieldTypeForRole(el.Role)
		if !isForm {
			continue
		}
		fields = append(fields, FormField{
			Locator:  fmt.Sprintf("[uid=%s]", el.UID),
			Name:     el.Name,
			Type:     ft,
			Label:    el.Name,
			Visible:  true,
			Enabled:  true,
		})
	}

	url, _ := a.GetCurrentURL(ctx)
	title, _ := a.GetPageTitle(ctx)
	snippet := a.cachedSnapshot
	if len(snippet) > 5000 {
		snippet = snippet[:5000]
	}
	return DOMResult{OperationResult: ok(start), URL: url, Title: title, HTMLSnippet: snippet, Fields: fields}
}

func (a *DevtoolsAdapter) WaitFor(ctx context.Context, locator string, state ElementState, timeout time.Duration) WaitForResult {
	start := time.Now()
	if timeout <= 0 {
		timeout = a.defaultTimeout
	}
	_, err := a.client.CallTool(ctx, "wait_for", map[string]any{"uid": locator, "timeoutMs": timeout.Milliseconds()})
	if err != nil {
		return WaitForResult{OperationResult: ok(start), Satisfied: false}
	}
	return WaitForResult{OperationResult: ok(start), Satisfied: true}
}

func (a *DevtoolsAdapter) GetCurrentURL(ctx context.Context) (string, error) {
	result, err := a.client.CallTool(ctx, "list_pages", nil)
	if err != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.currentURL, err
	}
	return firstText(result), nil
}

func (a *DevtoolsAdapter) GetPageTitle(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTitle, nil
}

func (a *DevtoolsAdapter) GetPageContent(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cachedSnapshot, nil
}

func firstText(result mcp.MCPToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if len(result.Content) == 1 {
		return result.Content[0].Text
	}
	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}
