// Package browser implements the Browser Adapter (C1): a uniform
// low-level contract over two backends — an in-process direct-automation
// driver and a devtools-mcp sidecar speaking the accessibility-tree
// protocol. Everything above this package speaks only the Form Field /
// opaque-locator vocabulary; the two element-identification schemes (CSS
// selectors vs accessibility UIDs) never leak out.
package browser

import (
	"context"
	"time"
)

// WaitUntil names the navigation-completion condition to wait for.
type WaitUntil string

const (
	WaitLoad            WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// ElementState names the visibility/attachment condition WaitFor polls for.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
)

// FieldType classifies a Form Field by its accessibility role.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTel      FieldType = "tel"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
	FieldTextarea FieldType = "textarea"
	FieldSubmit   FieldType = "submit"
	FieldSearch   FieldType = "search"
	FieldNumber   FieldType = "number"
)

// FormField is the transient, backend-agnostic description of one form
// control, produced by GetDOM. Locator is opaque: a CSS selector for the
// direct-automation backend, an accessibility UID for the devtools-mcp
// backend.
type FormField struct {
	Locator     string    `json:"locator"`
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Label       string    `json:"label,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required"`
	Value       string    `json:"value,omitempty"`
	Options     []string  `json:"options,omitempty"`
	Visible     bool      `json:"visible"`
	Enabled     bool      `json:"enabled"`
}

// OperationResult wraps every adapter operation outcome: a success flag,
// elapsed time, and an error description on failure. Adapters never raise
// across their public surface.
type OperationResult struct {
	Success   bool          `json:"success"`
	ElapsedMs int64         `json:"elapsed_ms"`
	Error     string        `json:"error,omitempty"`
	Elapsed   time.Duration `json:"-"`
}

// NavigateResult is the outcome of Navigate.
type NavigateResult struct {
	OperationResult
	FinalURL string `json:"final_url"`
	Title    string `json:"title"`
}

// ScreenshotResult is the outcome of Screenshot.
type ScreenshotResult struct {
	OperationResult
	Base64Data string `json:"base64_data,omitempty"`
	Path       string `json:"path,omitempty"`
}

// EvaluateResult is the outcome of Evaluate.
type EvaluateResult struct {
	OperationResult
	Value any `json:"value,omitempty"`
}

// DOMResult is the outcome of GetDOM.
type DOMResult struct {
	OperationResult
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	HTMLSnippet string      `json:"html_snippet"`
	Fields      []FormField `json:"fields"`
}

// WaitForResult is the outcome of WaitFor.
type WaitForResult struct {
	OperationResult
	Satisfied bool `json:"satisfied"`
}

// InitConfig configures Initialize. DevtoolsEndpoint, when set, must be a
// URL; Initialize does not require it, because the devtools-mcp endpoint is
// handed to the DevtoolsClient (config.Validate requires it for that backend).
type InitConfig struct {
	ViewportWidth    int           `validate:"required,gt=0"`
	ViewportHeight   int           `validate:"required,gt=0"`
	Headless         bool
	SlowMoMillis     int           `validate:"gte=0"`
	UserAgent        string        `validate:"omitempty"`
	DefaultTimeout   time.Duration `validate:"required,gt=0"`
	DevtoolsEndpoint string        `validate:"omitempty,url"`
}

// Backend names which concrete implementation an Adapter is.
type Backend string

const (
	BackendDirect   Backend = "direct-automation"
	BackendDevtools Backend = "devtools-mcp"
)

// Adapter is the uniform browser-control contract. Grounded on
// original_source/src/browser_service/adapters/base.py: every abstract
// method there has a corresponding method here.
type Adapter interface {
	Backend() Backend

	Initialize(ctx context.Context, cfg InitConfig) OperationResult
	Close(ctx context.Context) OperationResult

	Navigate(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) NavigateResult
	Fill(ctx context.Context, locator, value string, clearFirst, force bool, timeout time.Duration) OperationResult
	Click(ctx context.Context, locator string, button string, count int, force bool, timeout time.Duration) OperationResult
	Select(ctx context.Context, locator, value string) OperationResult
	Upload(ctx context.Context, locator, filePath string) OperationResult

	Screenshot(ctx context.Context, fullPage bool, path string) ScreenshotResult
	Evaluate(ctx context.Context, script string, args ...any) EvaluateResult
	GetDOM(ctx context.Context, scopeSelector string, formFieldsOnly bool) DOMResult
	WaitFor(ctx context.Context, locator string, state ElementState, timeout time.Duration) WaitForResult

	GetCurrentURL(ctx context.Context) (string, error)
	GetPageTitle(ctx context.Context) (string, error)
	GetPageContent(ctx context.Context) (string, error)
}

func ok(start time.Time) OperationResult {
	return OperationResult{Success: true, Elapsed: time.Since(start), ElapsedMs: time.Since(start).Milliseconds()}
}

func fail(start time.Time, err error) OperationResult {
	return OperationResult{Success: false, Elapsed: time.Since(start), ElapsedMs: time.Since(start).Milliseconds(), Error: err.Error()}
}
