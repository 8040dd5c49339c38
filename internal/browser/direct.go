package browser

import (
	"context"
	"fmt"
	"time"
)

// DirectDriver is the seam a concrete CSS-selector automation engine plugs
// into (a Chromium-class browser driven in-process). No Go binding for such
// a driver appears anywhere in the retrieved example pack, so DirectAdapter
// is defined against this narrow interface rather than a concrete library;
// a caller supplies the real implementation.
type DirectDriver interface {
	Launch(ctx context.Context, cfg InitConfig) error
	Shutdown(ctx context.Context) error
	Goto(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) (finalURL, title string, err error)
	Fill(ctx context.Context, selector, value string, clearFirst, force bool, timeout time.Duration) error
	Click(ctx context.Context, selector, button string, count int, force bool, timeout time.Duration) error
	Select(ctx context.Context, selector, value string) error
	Upload(ctx context.Context, selector, filePath string) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Eval(ctx context.Context, script string, args []any) (any, error)
	WaitFor(ctx context.Context, selector string, state ElementState, timeout time.Duration) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	ExtractFormFields(ctx context.Context, scopeSelector string, formFieldsOnly bool) ([]FormField, error)
}

// DirectAdapter drives a browser directly via CSS selectors. Fastest of
// the two backends; natural element identification.
type DirectAdapter struct {
	driver DirectDriver
}

// NewDirectAdapter wraps driver as a Browser Adapter.
func NewDirectAdapter(driver DirectDriver) *DirectAdapter {
	return &DirectAdapter{driver: driver}
}

func (a *DirectAdapter) Backend() Backend { return BackendDirect }

func (a *DirectAdapter) Initialize(ctx context.Context, cfg InitConfig) OperationResult {
	start := time.Now()
	if err := validateInitConfig(cfg); err != nil {
		return fail(start, err)
	}
	if err := a.driver.Launch(ctx, cfg); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DirectAdapter) Close(ctx context.Context) OperationResult {
	start := time.Now()
	if err := a.driver.Shutdown(ctx); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DirectAdapter) Navigate(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) NavigateResult {
	start := time.Now()
	finalURL, title, err := a.driver.Goto(ctx, url, waitUntil, timeout)
	if err != nil {
		return NavigateResult{OperationResult: fail(start, err)}
	}
	return NavigateResult{OperationResult: ok(start), FinalURL: finalURL, Title: title}
}

func (a *DirectAdapter) Fill(ctx context.Context, locator, value string, clearFirst, force bool, timeout time.Duration) OperationResult {
	start := time.Now()
	if err := a.driver.Fill(ctx, locator, value, clearFirst, force, timeout); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DirectAdapter) Click(ctx context.Context, locator string, button string, count int, force bool, timeout time.Duration) OperationResult {
	start := time.Now()
	if err := a.driver.Click(ctx, locator, button, count, force, timeout); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DirectAdapter) Select(ctx context.Context, locator, value string) OperationResult {
	start := time.Now()
	if err := a.driver.Select(ctx, locator, value); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DirectAdapter) Upload(ctx context.Context, locator, filePath string) OperationResult {
	start := time.Now()
	if err := a.driver.Upload(ctx, locator, filePath); err != nil {
		return fail(start, err)
	}
	return ok(start)
}

func (a *DirectAdapter) Screenshot(ctx context.Context, fullPage bool, path string) ScreenshotResult {
	start := time.Now()
	data, err := a.driver.Screenshot(ctx, fullPage)
	if err != nil {
		return ScreenshotResult{OperationResult: fail(start, err)}
	}
	res := ScreenshotResult{OperationResult: ok(start), Base64Data: encodeBase64(data)}
	if path != "" {
		if werr := writeFile(path, data); werr != nil {
			return ScreenshotResult{OperationResult: fail(start, werr)}
		}
		res.Path = path
	}
	return res
}

func (a *DirectAdapter) Evaluate(ctx context.Context, script string, args ...any) EvaluateResult {
	start := time.Now()
	val, err := a.driver.Eval(ctx, script, args)
	if err != nil {
		return EvaluateResult{OperationResult: fail(start, err)}
	}
	return EvaluateResult{OperationResult: ok(start), Value: val}
}

func (a *DirectAdapter) GetDOM(ctx context.Context, scopeSelector string, formFieldsOnly bool) DOMResult {
	start := time.Now()
	fields, err := a.driver.ExtractFormFields(ctx, scopeSelector, formFieldsOnly)
	if err != nil {
		return DOMResult{OperationResult: fail(start, err)}
	}
	url, _ := a.driver.CurrentURL(ctx)
	title, _ := a.driver.Title(ctx)
	content, _ := a.driver.Content(ctx)
	snippet := content
	if len(snippet) > 2000 {
		snippet = snippet[:2000]
	}
	return DOMResult{OperationResult: ok(start), URL: url, Title: title, HTMLSnippet: snippet, Fields: fields}
}

func (a *DirectAdapter) WaitFor(ctx context.Context, locator string, state ElementState, timeout time.Duration) WaitForResult {
	start := time.Now()
	satisfied, err := a.driver.WaitFor(ctx, locator, state, timeout)
	if err != nil {
		return WaitForResult{OperationResult: fail(start, err)}
	}
	return WaitForResult{OperationResult: ok(start), Satisfied: satisfied}
}

func (a *DirectAdapter) GetCurrentURL(ctx context.Context) (string, error) { return a.driver.CurrentURL(ctx) }
func (a *DirectAdapter) GetPageTitle(ctx context.Context) (string, error)  { return a.driver.Title(ctx) }
func (a *DirectAdapter) GetPageContent(ctx context.Context) (string, error) {
	return a.driver.Content(ctx)
}

// IsElementVisible is a convenience built atop Evaluate, grounded on
// base.py's default is_element_visible.
func (a *DirectAdapter) IsElementVisible(ctx context.Context, selector string) bool {
	script := fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' &&
			style.opacity !== '0' && el.offsetParent !== null;
	}`, selector)
	res := a.Evaluate(ctx, script)
	if !res.Success {
		return false
	}
	visible, _ := res.Value.(bool)
	return visible
}
