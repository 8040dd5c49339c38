// Package blocker implements the Blocker Detector (C3): a pure function
// of (page_html, page_url, optional user_location) that classifies page
// obstacles without ever modifying the page. Grounded on
// original_source/src/automation/blockers/detector.py.
package blocker

import (
	"regexp"
	"strings"
)

// Kind is the Detected Blocker type.
type Kind string

const (
	KindCaptcha         Kind = "captcha"
	KindLoginRequired   Kind = "login_required"
	KindMultiStepForm   Kind = "multi_step_form"
	KindLocationMismatch Kind = "location_mismatch"
)

// CaptchaFamily names a CAPTCHA subtype, matching examples.
type CaptchaFamily string

const (
	FamilyTurnstile CaptchaFamily = "turnstile"
	FamilyHCaptcha  CaptchaFamily = "hcaptcha"
	FamilyRecaptcha CaptchaFamily = "recaptcha"
)

// Blocker is the transient Detected Blocker entity.
type Blocker struct {
	Type             Kind   `json:"type"`
	Subtype          string `json:"subtype,omitempty"`
	Message          string `json:"message"`
	ElementSelector  string `json:"element_selector,omitempty"`
	SuggestedAction  string `json:"suggested_action,omitempty"`
}

// captchaPatterns are case-insensitive substrings checked in family order;
// the first family to match wins. Carried verbatim in meaning from
// detector.py's CAPTCHA_PATTERNS, renamed "cloudflare" to "turnstile" to
// match the vendor's own family naming.
var captchaPatterns = []struct {
	family   CaptchaFamily
	patterns []string
}{
	{FamilyTurnstile, []string{"cf-turnstile", "challenge-platform", "cloudflare", "__cf_bm", "turnstile"}},
	{FamilyHCaptcha, []string{"h-captcha", "hcaptcha.com", "hcaptcha-response"}},
	{FamilyRecaptcha, []string{"g-recaptcha", "recaptcha.net", "grecaptcha", "recaptcha-response"}},
}

var loginPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/sign[-_]?in`),
	regexp.MustCompile(`(?i)/log[-_]?in`),
	regexp.MustCompile(`(?i)/auth/`),
	regexp.MustCompile(`(?i)please\s+(log|sign)\s+in`),
	regexp.MustCompile(`(?i)(log|sign)\s+in\s+to\s+continue`),
	regexp.MustCompile(`(?i)login\s+required`),
	regexp.MustCompile(`(?i)authentication\s+required`),
	regexp.MustCompile(`(?i)session\s+expired`),
}

var applicationPageIndicators = []string{"apply", "application", "resume", "cover letter"}

var multiStepPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)step\s+\d+\s+of\s+\d+`),
	regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`),
	regexp.MustCompile(`(?i)class=".*step.*progress.*"`),
	regexp.MustCompile(`(?i)class=".*wizard.*"`),
	regexp.MustCompile(`(?i)class=".*multi.*step.*"`),
}

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)location\s+requirement`),
	regexp.MustCompile(`(?i)must\s+be\s+located\s+in`),
	regexp.MustCompile(`(?i)eligibility.*location`),
	regexp.MustCompile(`(?i)work\s+authorization`),
}

// DetectAll runs every detector and returns every blocker found, in the
// order CAPTCHA, login-required, multi-step, location-mismatch.
func DetectAll(pageHTML, pageURL string, userLocation string) []Blocker {
	var blockers []Blocker
	if b, found := DetectCaptcha(pageHTML); found {
		blockers = append(blockers, b)
	}
	if b, found := DetectLoginRequired(pageHTML, pageURL); found {
		blockers = append(blockers, b)
	}
	if b, found := DetectMultiStepForm(pageHTML); found {
		blockers = append(blockers, b)
	}
	if b, found := DetectLocationMismatch(pageHTML, userLocation); found {
		blockers = append(blockers, b)
	}
	return blockers
}

// DetectCaptcha classifies a CAPTCHA family from page HTML. The first
// pattern match wins, checked in family order.
func DetectCaptcha(pageHTML string) (Blocker, bool) {
	htmlLower := strings.ToLower(pageHTML)
	for _, fam := range captchaPatterns {
		for _, pattern := range fam.patterns {
			if strings.Contains(htmlLower, strings.ToLower(pattern)) {
				return Blocker{
					Type:            KindCaptcha,
					Subtype:         string(fam.family),
					Message:         capitalize(string(fam.family)) + " CAPTCHA detected",
					SuggestedAction: "Please complete the CAPTCHA manually",
				}, true
			}
		}
	}
	return Blocker{}, false
}

// DetectLoginRequired reports whether the page requires authentication,
// URL-pattern / content-pattern / structural-heuristic
// cascade.
func DetectLoginRequired(pageHTML, pageURL string) (Blocker, bool) {
	urlLower := strings.ToLower(pageURL)
	htmlLower := strings.ToLower(pageHTML)

	for _, re := range loginPatterns {
		if re.MatchString(urlLower) {
			return Blocker{
				Type:            KindLoginRequired,
				Message:         "Login required to access application form",
				SuggestedAction: "Please log in to the platform",
			}, true
		}
	}
	for _, re := range loginPatterns {
		if re.MatchString(htmlLower) {
			return Blocker{
				Type:            KindLoginRequired,
				Message:         "Login required - page content indicates authentication needed",
				SuggestedAction: "Please log in to the platform",
			}, true
		}
	}

	hasPasswordField := strings.Contains(htmlLower, `type="password"`)
	hasLoginAction := strings.Contains(htmlLower, `action="login"`) ||
		strings.Contains(htmlLower, `action="signin"`)
	structurallyLoginLike := hasPasswordField && hasLoginAction
	if structurallyLoginLike && !containsAny(htmlLower, applicationPageIndicators) {
		return Blocker{
			Type:            KindLoginRequired,
			Message:         "Page appears to be a login page",
			SuggestedAction: "Please log in to access the application",
		}, true
	}
	return Blocker{}, false
}

// DetectMultiStepForm reports presence of a multi-step wizard.
func DetectMultiStepForm(pageHTML string) (Blocker, bool) {
	htmlLower := strings.ToLower(pageHTML)
	for _, re := range multiStepPatterns {
		if re.MatchString(htmlLower) {
			return Blocker{
				Type:            KindMultiStepForm,
				Message:         "Complex multi-step form detected",
				SuggestedAction: "Form may require multiple pages - will handle step by step",
			}, true
		}
	}
	return Blocker{}, false
}

// DetectLocationMismatch reports presence of a location/eligibility
// requirement warning. userLocation is currently advisory only (// names it as an input but the pattern set does not vary by it).
func DetectLocationMismatch(pageHTML, userLocation string) (Blocker, bool) {
	htmlLower := strings.ToLower(pageHTML)
	for _, re := range locationPatterns {
		if re.MatchString(htmlLower) {
			return Blocker{
				Type:            KindLocationMismatch,
				Message:         "Job may have location requirements",
				SuggestedAction: "Please verify you meet location requirements",
			}, true
		}
	}
	return Blocker{}, false
}

// CaptchaSelector returns a CSS selector likely to locate the CAPTCHA
// widget for family, for screenshotting or manual-intervention framing.
func CaptchaSelector(family CaptchaFamily) string {
	switch family {
	case FamilyTurnstile:
		return `.cf-turnstile, [data-cf-turnstile], iframe[src*='turnstile']`
	case FamilyHCaptcha:
		return `.h-captcha, [data-hcaptcha], iframe[src*='hcaptcha']`
	case FamilyRecaptcha:
		return `.g-recaptcha, [data-recaptcha], iframe[src*='recaptcha']`
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
