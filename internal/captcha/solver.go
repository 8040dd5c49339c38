// Package captcha implements the CAPTCHA Solver (C4): sitekey extraction,
// family detection, and token acquisition from a remote solving provider,
// guarded by a circuit breaker so a failing provider cannot cascade into
// every blocked application retrying against it. Grounded on
// original_source/src/integrations/captcha/solver.py.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/logging"
)

// Family is a supported CAPTCHA family, matching blocker.CaptchaFamily's
// naming plus the reCAPTCHA v2/v3 split the original solver makes (the
// Blocker Detector does not need that split, but token acquisition does:
// v2 and v3 are solved differently).
type Family string

const (
	FamilyTurnstile    Family = "turnstile"
	FamilyHCaptcha     Family = "hcaptcha"
	FamilyRecaptchaV2  Family = "recaptcha_v2"
	FamilyRecaptchaV3  Family = "recaptcha_v3"
)

// sitekeyPatterns are tried in order; the first match wins. Carried
// verbatim in meaning from solver.py's SITEKEY_PATTERNS.
var sitekeyPatterns = map[Family][]*regexp.Regexp{
	FamilyTurnstile: {
		regexp.MustCompile(`(?i)data-sitekey=["']([^"']+)["']`),
		regexp.MustCompile(`(?i)sitekey:\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?is)turnstile.*?sitekey["']?\s*[:=]\s*["']([^"']+)["']`),
	},
	FamilyHCaptcha: {
		regexp.MustCompile(`(?i)data-sitekey=["']([^"']+)["']`),
		regexp.MustCompile(`(?is)h-captcha.*?data-sitekey=["']([^"']+)["']`),
		regexp.MustCompile(`(?is)hcaptcha.*?sitekey["']?\s*[:=]\s*["']([^"']+)["']`),
	},
	FamilyRecaptchaV2: {
		regexp.MustCompile(`(?i)data-sitekey=["']([^"']+)["']`),
		regexp.MustCompile(`(?is)grecaptcha\.render.*?["']sitekey["']\s*:\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?is)g-recaptcha.*?data-sitekey=["']([^"']+)["']`),
	},
	FamilyRecaptchaV3: {
		regexp.MustCompile(`(?i)grecaptcha\.execute\s*\(\s*["']([^"']+)["']`),
		regexp.MustCompile(`(?i)recaptcha/api\.js\?render=([^"'&]+)`),
	},
}

// responseFields names the form field a solved token gets written into.
var responseFields = map[Family]string{
	FamilyTurnstile:   "cf-turnstile-response",
	FamilyHCaptcha:    "h-captcha-response",
	FamilyRecaptchaV2: "g-recaptcha-response",
	FamilyRecaptchaV3: "g-recaptcha-response",
}

// costUSD is the approximate per-solve price by family.
var costUSD = map[Family]float64{
	FamilyTurnstile:   0.0025,
	FamilyHCaptcha:    0.0029,
	FamilyRecaptchaV2: 0.0025,
	FamilyRecaptchaV3: 0.0025,
}

// ErrNotConfigured is returned when no provider API key is set.
var ErrNotConfigured = errors.New("captcha provider not configured")

// ErrUndetected is returned by SolveFromHTML when no known family matches.
var ErrUndetected = errors.New("could not detect captcha family")

// Provider dispatches a solve request to a remote CAPTCHA-solving service.
// Implementations talk to a vendor's service (TwoCaptchaProvider uses
// 2captcha's HTTP API directly); Solver never talks to the network directly.
type Provider interface {
	Solve(ctx context.Context, req SolveRequest) (token string, err error)
	Balance(ctx context.Context) (float64, error)
}

// SolveRequest is everything a Provider needs to solve one challenge.
type SolveRequest struct {
	Family   Family
	Sitekey  string
	PageURL  string
	Action   string  // reCAPTCHA v3 only
	MinScore float64 // reCAPTCHA v3 only
}

// Result is the outcome of a solve attempt.
type Result struct {
	Success          bool
	Token            string
	Family           Family
	SolveTimeSeconds float64
	CostUSD          float64
	Error            string
}

// Solver extracts sitekeys, detects CAPTCHA families, and acquires tokens
// via a Provider wrapped in a circuit breaker (spec's CAPTCHA-handling flow
// treats an unreachable provider as "stop trying, surface an intervention"
// rather than hammering it).
type Solver struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// New builds a Solver. provider may be nil, in which case every solve
// attempt fails with ErrNotConfigured, mirroring solver.py's
// is_configured=False behavior rather than panicking.
func New(provider Provider) *Solver {
	settings := gobreaker.Settings{
		Name:        "captcha-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	log := logging.L().Named("captcha")
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("captcha provider circuit state change",
			zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
	}
	return &Solver{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		log:      log,
	}
}

// IsConfigured reports whether a provider was supplied.
func (s *Solver) IsConfigured() bool {
	return s.provider != nil
}

// DetectFamily identifies a CAPTCHA family from page HTML, checked in order
// of likelihood per solver.py's detect_captcha_type.
func DetectFamily(pageHTML string) (Family, bool) {
	htmlLower := strings.ToLower(pageHTML)
	switch {
	case strings.Contains(htmlLower, "turnstile") || strings.Contains(htmlLower, "cf-turnstile"):
		return FamilyTurnstile, true
	case strings.Contains(htmlLower, "hcaptcha") || strings.Contains(htmlLower, "h-captcha"):
		return FamilyHCaptcha, true
	case strings.Contains(htmlLower, "grecaptcha.execute"):
		return FamilyRecaptchaV3, true
	case strings.Contains(htmlLower, "g-recaptcha") || strings.Contains(htmlLower, "recaptcha"):
		return FamilyRecaptchaV2, true
	}
	return "", false
}

// ExtractSitekey pulls a family's sitekey out of page HTML, trying each
// pattern in order.
func ExtractSitekey(pageHTML string, family Family) (string, bool) {
	for _, re := range sitekeyPatterns[family] {
		if m := re.FindStringSubmatch(pageHTML); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Solve acquires a token for an already-identified family/sitekey.
func (s *Solver) Solve(ctx context.Context, req SolveRequest) Result {
	if s.provider == nil {
		return Result{Success: false, Error: ErrNotConfigured.Error()}
	}

	start := time.Now()
	out, err := s.breaker.Execute(func() (any, error) {
		return s.provider.Solve(ctx, req)
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		s.log.Error("captcha solve failed", zap.String("family", string(req.Family)), zap.Error(err))
		return Result{Success: false, Family: req.Family, SolveTimeSeconds: elapsed, Error: err.Error()}
	}

	token, _ := out.(string)
	cost := costUSD[req.Family]
	s.log.Info("captcha solved",
		zap.String("family", string(req.Family)), zap.Float64("seconds", elapsed), zap.Float64("cost_usd", cost))
	return Result{Success: true, Token: token, Family: req.Family, SolveTimeSeconds: elapsed, CostUSD: cost}
}

// SolveFromHTML detects the family, extracts the sitekey, and solves in one
// call. Convenience wrapper matching solver.py's solve_from_html.
func (s *Solver) SolveFromHTML(ctx context.Context, pageHTML, pageURL string) Result {
	family, found := DetectFamily(pageHTML)
	if !found {
		return Result{Success: false, Error: ErrUndetected.Error()}
	}

	sitekey, found := ExtractSitekey(pageHTML, family)
	if !found {
		return Result{Success: false, Family: family, Error: fmt.Sprintf("could not extract sitekey for %s", family)}
	}

	return s.Solve(ctx, SolveRequest{Family: family, Sitekey: sitekey, PageURL: pageURL})
}

// ResponseFieldName returns the form field name a solved token should be
// written into for family.
func ResponseFieldName(family Family) string {
	if name, ok := responseFields[family]; ok {
		return name
	}
	return "captcha-response"
}

// InjectionScript generates JavaScript that writes token into every
// response-field candidate for family and fires the widget's registered
// callback, if any. Ported in meaning from solver.py's get_injection_script.
func InjectionScript(family Family, token string) string {
	fieldName := ResponseFieldName(family)
	escaped := strings.ReplaceAll(token, `"`, `\"`)

	var b strings.Builder
	fmt.Fprintf(&b, `(function() {
  var fields = document.querySelectorAll('[name="%s"], [id="%s"]');
  fields.forEach(function(field) { field.value = "%s"; });
  var textareas = document.querySelectorAll('textarea[name*="response"], textarea[name*="captcha"]');
  textareas.forEach(function(ta) { ta.value = "%s"; });
`, fieldName, fieldName, escaped, escaped)

	switch family {
	case FamilyTurnstile, FamilyHCaptcha:
		fmt.Fprintf(&b, `  var widgets = document.querySelectorAll('[data-callback]');
  widgets.forEach(function(w) {
    var callback = w.getAttribute('data-callback');
    if (window[callback]) window[callback]("%s");
  });
`, escaped)
	case FamilyRecaptchaV2, FamilyRecaptchaV3:
		fmt.Fprintf(&b, `  document.querySelectorAll('.g-recaptcha-response').forEach(function(el) {
    el.innerHTML = "%s";
    el.value = "%s";
  });
  var widgets = document.querySelectorAll('[data-callback]');
  widgets.forEach(function(w) {
    var callback = w.getAttribute('data-callback');
    if (window[callback]) window[callback]("%s");
  });
`, escaped, escaped, escaped)
	}

	b.WriteString("  return true;\n})();")
	return b.String()
}

// Balance reports the provider account's remaining balance, or an error if
// unconfigured or unreachable.
func (s *Solver) Balance(ctx context.Context) (float64, error) {
	if s.provider == nil {
		return 0, ErrNotConfigured
	}
	return s.provider.Balance(ctx)
}
