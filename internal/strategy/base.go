// Package strategy implements the ATS Strategy Registry (C5): per-platform
// form-filling logic selected by URL/content detection, with a generic
// fallback usable against any unrecognized application tracking system.
// Grounded on original_source/src/automation/strategies/{base,registry,generic}.py.
package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/javimaligno/goapply-core/internal/browser"
)

// UserProfile is the applicant data fed into form filling, carrying the
// full field set from original_source/src/automation/models.py::UserFormData.
type UserProfile struct {
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	PhoneCountryCode  string
	AddressLine1      string
	AddressLine2      string
	City              string
	StateRegion       string
	PostalCode        string
	Country           string
	LinkedInURL       string
	GitHubURL         string
	PortfolioURL      string
	WillingToRelocate bool
	DesiredSalary     string
	YearsExperience   int
}

// CaptchaResult is the outcome of a strategy's CAPTCHA-handling attempt.
type CaptchaResult struct {
	Resolved       bool
	RequiresUser   bool
	CaptchaFamily  string
	Message        string
}

// FormFillResult is the outcome of filling a form.
type FormFillResult struct {
	Success      bool
	FieldsFilled map[string]string
	Errors       []string
}

// SubmitResult is the outcome of submitting an application.
type SubmitResult struct {
	Success             bool
	ConfirmationMessage string
	RedirectURL         string
	Error               string
}

// FormAnalysis summarizes a page's form structure for a strategy.
type FormAnalysis struct {
	PageURL        string
	PageTitle      string
	TotalFields    int
	StandardFields []browser.FormField
	CustomFields   []browser.FormField
	HasFileUpload  bool
}

// Strategy is platform-specific form-handling logic for one ATS. Grounded
// on base.py's ATSStrategy abstract class; handle_custom_questions is
// intentionally omitted here since answering free-text questions is an LLM
// collaborator concern places outside this module.
type Strategy interface {
	// Name is the ATS identifier (e.g. "breezy", "generic").
	Name() string
	// URLPatterns are regex patterns matched against the page URL.
	URLPatterns() []string
	// Detect reports whether this strategy should handle the page, tried
	// after URL-pattern matching fails to find a match.
	Detect(ctx context.Context, pageHTML, pageURL string) bool
	// AnalyzeForm inspects the current page's form structure.
	AnalyzeForm(ctx context.Context, adapter browser.Adapter) (FormAnalysis, error)
	// FillForm fills the form with profile data, cvPath, and an optional
	// cover letter.
	FillForm(ctx context.Context, adapter browser.Adapter, profile UserProfile, cvPath, coverLetter string) FormFillResult
	// Submit clicks the submission control and waits for confirmation.
	Submit(ctx context.Context, adapter browser.Adapter) SubmitResult
	// HandleCaptcha attempts to resolve a detected CAPTCHA. The base
	// behavior (embedded via BaseStrategy) always defers to manual
	// intervention; strategies wired to captcha.Solver override this.
	HandleCaptcha(ctx context.Context, adapter browser.Adapter) CaptchaResult
}

// BaseStrategy implements the defaults every ATSStrategy subclass got for
// free in base.py: intervention-only CAPTCHA handling and the JS-based
// fill/click workarounds some platforms need. Embed it in a concrete
// strategy and override what differs.
type BaseStrategy struct{}

// HandleCaptcha defers to manual intervention, matching base.py's default.
func (BaseStrategy) HandleCaptcha(ctx context.Context, adapter browser.Adapter) CaptchaResult {
	return CaptchaResult{
		Resolved:     false,
		RequiresUser: true,
		Message:      "CAPTCHA detected - manual intervention required",
	}
}

// FillFieldWithJS sets a field's value via JavaScript DOM manipulation,
// for ATS platforms whose native fill has timing issues (per base.py's
// fill_field_with_js, written against Breezy.hr).
func (BaseStrategy) FillFieldWithJS(ctx context.Context, adapter browser.Adapter, selector, value string) bool {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(value)
	script := fmt.Sprintf(`
		const el = document.querySelector('%s');
		if (el) {
			el.value = '%s';
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
		return false;
	`, selector, escaped)
	result := adapter.Evaluate(ctx, script)
	ok, _ := result.Value.(bool)
	return result.Success && ok
}

// ClickWithJS clicks an element via JavaScript.
func (BaseStrategy) ClickWithJS(ctx context.Context, adapter browser.Adapter, selector string) bool {
	script := fmt.Sprintf(`
		const el = document.querySelector('%s');
		if (el) { el.click(); return true; }
		return false;
	`, selector)
	result := adapter.Evaluate(ctx, script)
	ok, _ := result.Value.(bool)
	return result.Success && ok
}

// WaitForNavigation polls for the current URL to change within timeout.
func (BaseStrategy) WaitForNavigation(ctx context.Context, adapter browser.Adapter, timeout time.Duration) bool {
	initial, _ := adapter.GetCurrentURL(ctx)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		current, err := adapter.GetCurrentURL(ctx)
		if err == nil && current != initial {
			return true
		}
	}
	return false
}

// isElementVisible checks visibility via script evaluation, kept here
// rather than on browser.Adapter since only strategy code needs it and
// DirectAdapter already exposes an equivalent convenience method.
func isElementVisible(ctx context.Context, adapter browser.Adapter, selector string) bool {
	script := fmt.Sprintf(`
		(function() {
			var el = document.querySelector('%s');
			if (!el) return false;
			var style = window.getComputedStyle(el);
			return style.display !== 'none' && style.visibility !== 'hidden' && el.offsetParent !== null;
		})()
	`, selector)
	result := adapter.Evaluate(ctx, script)
	if !result.Success {
		return false
	}
	visible, _ := result.Value.(bool)
	return visible
}

// splitSelectors splits a comma-separated selector-alternatives string,
// trimming whitespace, matching generic.py's ", ".join()-produced format.
func splitSelectors(selectors string) []string {
	parts := strings.Split(selectors, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
