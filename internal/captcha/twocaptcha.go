package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TwoCaptchaProvider is a Provider backed by the 2captcha REST API
// (in.php submit / res.php poll), the service the original Python solver
// wraps via its SDK. Grounded on
// original_source/src/integrations/captcha/solver.py's per-family method
// dispatch (turnstile/hcaptcha/recaptcha v2+v3), reimplemented here
// directly against the underlying HTTP protocol since no Go 2captcha SDK
// is in this module's dependency surface.
type TwoCaptchaProvider struct {
	apiKey     string
	httpClient *http.Client
	pollEvery  time.Duration
	pollFor    time.Duration
}

// NewTwoCaptchaProvider builds a Provider using apiKey. An empty apiKey is
// accepted (matching the original's "warn and return errors" behavior
// instead of failing construction).
func NewTwoCaptchaProvider(apiKey string) *TwoCaptchaProvider {
	return &TwoCaptchaProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pollEvery:  5 * time.Second,
		pollFor:    2 * time.Minute,
	}
}

const twoCaptchaBaseURL = "https://2captcha.com"

// Solve submits req to 2captcha and polls until a token is returned.
func (p *TwoCaptchaProvider) Solve(ctx context.Context, req SolveRequest) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("2captcha: no API key configured")
	}

	submitParams := url.Values{
		"key":    {p.apiKey},
		"json":   {"1"},
		"sitekey": {req.Sitekey},
		"pageurl": {req.PageURL},
	}

	switch req.Family {
	case FamilyTurnstile:
		submitParams.Set("method", "turnstile")
	case FamilyHCaptcha:
		submitParams.Set("method", "hcaptcha")
	case FamilyRecaptchaV2:
		submitParams.Set("method", "userrecaptcha")
	case FamilyRecaptchaV3:
		submitParams.Set("method", "userrecaptcha")
		submitParams.Set("version", "v3")
		action := req.Action
		if action == "" {
			action = "submit"
		}
		submitParams.Set("action", action)
		submitParams.Set("min_score", strconv.FormatFloat(minScoreOrDefault(req.MinScore), 'f', 2, 64))
	default:
		return "", fmt.Errorf("2captcha: unsupported family %q", req.Family)
	}

	taskID, err := p.submit(ctx, submitParams)
	if err != nil {
		return "", err
	}

	return p.poll(ctx, taskID)
}

func minScoreOrDefault(v float64) float64 {
	if v <= 0 {
		return 0.9
	}
	return v
}

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (p *TwoCaptchaProvider) submit(ctx context.Context, params url.Values) (string, error) {
	resp, err := p.get(ctx, "/in.php", params)
	if err != nil {
		return "", fmt.Errorf("2captcha: submit: %w", err)
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("2captcha: submit rejected: %s", resp.Request)
	}
	return resp.Request, nil
}

func (p *TwoCaptchaProvider) poll(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(p.pollFor)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.pollEvery):
		}

		resp, err := p.get(ctx, "/res.php", url.Values{
			"key":    {p.apiKey},
			"json":   {"1"},
			"action": {"get"},
			"id":     {taskID},
		})
		if err != nil {
			return "", fmt.Errorf("2captcha: poll: %w", err)
		}

		if resp.Status == 1 {
			return resp.Request, nil
		}
		if resp.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("2captcha: solve failed: %s", resp.Request)
		}
	}
	return "", fmt.Errorf("2captcha: timed out waiting for solution")
}

func (p *TwoCaptchaProvider) get(ctx context.Context, path string, params url.Values) (twoCaptchaResponse, error) {
	reqURL := twoCaptchaBaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return twoCaptchaResponse{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return twoCaptchaResponse{}, err
	}
	defer resp.Body.Close()

	var out twoCaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return twoCaptchaResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// Balance reports the account's remaining balance in USD.
func (p *TwoCaptchaProvider) Balance(ctx context.Context) (float64, error) {
	if p.apiKey == "" {
		return 0, fmt.Errorf("2captcha: no API key configured")
	}

	resp, err := p.get(ctx, "/res.php", url.Values{
		"key":    {p.apiKey},
		"json":   {"1"},
		"action": {"getbalance"},
	})
	if err != nil {
		return 0, fmt.Errorf("2captcha: balance: %w", err)
	}
	if resp.Status != 1 {
		return 0, fmt.Errorf("2captcha: balance: %s", resp.Request)
	}

	balance, err := strconv.ParseFloat(strings.TrimSpace(resp.Request), 64)
	if err != nil {
		return 0, fmt.Errorf("2captcha: parse balance: %w", err)
	}
	return balance, nil
}

var _ Provider = (*TwoCaptchaProvider)(nil)
