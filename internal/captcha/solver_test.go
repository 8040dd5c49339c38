package captcha

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	token   string
	err     error
	balance float64
}

func (f *fakeProvider) Solve(ctx context.Context, req SolveRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeProvider) Balance(ctx context.Context) (float64, error) {
	return f.balance, f.err
}

func TestDetectFamily(t *testing.T) {
	cases := map[string]Family{
		`<div class="cf-turnstile" data-sitekey="abc"></div>`: FamilyTurnstile,
		`<div class="h-captcha" data-sitekey="abc"></div>`:    FamilyHCaptcha,
		`grecaptcha.execute("abc123")`:                        FamilyRecaptchaV3,
		`<div class="g-recaptcha" data-sitekey="abc"></div>`:  FamilyRecaptchaV2,
	}
	for html, want := range cases {
		got, found := DetectFamily(html)
		require.True(t, found)
		require.Equal(t, want, got)
	}
}

func TestDetectFamilyNone(t *testing.T) {
	_, found := DetectFamily(`<div>plain page</div>`)
	require.False(t, found)
}

func TestExtractSitekey(t *testing.T) {
	html := `<div class="cf-turnstile" data-sitekey="0x4AAAAAAA"></div>`
	key, found := ExtractSitekey(html, FamilyTurnstile)
	require.True(t, found)
	require.Equal(t, "0x4AAAAAAA", key)
}

func TestExtractSitekeyNotFound(t *testing.T) {
	_, found := ExtractSitekey(`<div>no sitekey here</div>`, FamilyTurnstile)
	require.False(t, found)
}

func TestSolveSuccess(t *testing.T) {
	s := New(&fakeProvider{token: "solved-token"})
	result := s.Solve(context.Background(), SolveRequest{Family: FamilyTurnstile, Sitekey: "k", PageURL: "https://x"})
	require.True(t, result.Success)
	require.Equal(t, "solved-token", result.Token)
	require.Equal(t, 0.0025, result.CostUSD)
}

func TestSolveNotConfigured(t *testing.T) {
	s := New(nil)
	result := s.Solve(context.Background(), SolveRequest{Family: FamilyTurnstile})
	require.False(t, result.Success)
	require.Equal(t, ErrNotConfigured.Error(), result.Error)
}

func TestSolveProviderError(t *testing.T) {
	s := New(&fakeProvider{err: errors.New("provider down")})
	result := s.Solve(context.Background(), SolveRequest{Family: FamilyHCaptcha})
	require.False(t, result.Success)
	require.Contains(t, result.Error, "provider down")
}

func TestSolveFromHTML(t *testing.T) {
	s := New(&fakeProvider{token: "tok"})
	html := `<div class="g-recaptcha" data-sitekey="sk123"></div>`
	result := s.SolveFromHTML(context.Background(), html, "https://example.com")
	require.True(t, result.Success)
	require.Equal(t, FamilyRecaptchaV2, result.Family)
}

func TestSolveFromHTMLUndetected(t *testing.T) {
	s := New(&fakeProvider{token: "tok"})
	result := s.SolveFromHTML(context.Background(), `<div>nothing</div>`, "https://example.com")
	require.False(t, result.Success)
	require.Equal(t, ErrUndetected.Error(), result.Error)
}

func TestResponseFieldName(t *testing.T) {
	require.Equal(t, "cf-turnstile-response", ResponseFieldName(FamilyTurnstile))
	require.Equal(t, "g-recaptcha-response", ResponseFieldName(FamilyRecaptchaV3))
}

func TestInjectionScriptContainsToken(t *testing.T) {
	script := InjectionScript(FamilyTurnstile, "abc123")
	require.Contains(t, script, "abc123")
	require.Contains(t, script, "cf-turnstile-response")
}

func TestBalance(t *testing.T) {
	s := New(&fakeProvider{balance: 12.5})
	bal, err := s.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12.5, bal)
}

func TestBalanceNotConfigured(t *testing.T) {
	s := New(nil)
	_, err := s.Balance(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}
